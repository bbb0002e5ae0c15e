package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"crypto-rsi-scanner/internal/model"
)

type stubQuerier struct {
	segment model.Segment
	limit   int
	entries []model.SnapshotEntry
}

func (s *stubQuerier) GetSnapshot(_ context.Context, seg model.Segment, limit int) []model.SnapshotEntry {
	s.segment, s.limit = seg, limit
	if limit < len(s.entries) {
		return s.entries[:limit]
	}
	return s.entries
}

func (s *stubQuerier) GetConnectionStatus() model.ConnectionStatus {
	return model.ConnectionStatus{
		Tickers:       map[model.Segment]model.TickerStatus{model.SegmentSpot: {State: "CONNECTED", Open: true}},
		Subscriptions: []string{"BTCUSDT"},
	}
}

func serve(t *testing.T, q Querier, target string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := NewRouter(q, nil)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSnapshotEndpoint(t *testing.T) {
	rsi := 25.5
	q := &stubQuerier{entries: []model.SnapshotEntry{
		{Symbol: "BTCUSDT", Price: 65000, RSILong: &rsi, Signal: "BUY"},
		{Symbol: "ETHUSDT", Price: 3000, Signal: "NEUTRAL"},
	}}

	w := serve(t, q, "/api/snapshot?market=derivatives&limit=1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if q.segment != model.SegmentDerivatives || q.limit != 1 {
		t.Errorf("unexpected query %s/%d", q.segment, q.limit)
	}

	var body struct {
		Count int `json:"count"`
		Data  []struct {
			Symbol   string   `json:"symbol"`
			RSILong  *float64 `json:"rsiLong"`
			RSIShort *float64 `json:"rsiShort"`
			Signal   string   `json:"signal"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Data[0].Symbol != "BTCUSDT" || body.Data[0].Signal != "BUY" {
		t.Errorf("unexpected body %s", w.Body.String())
	}
	if body.Data[0].RSILong == nil || *body.Data[0].RSILong != 25.5 || body.Data[0].RSIShort != nil {
		t.Errorf("absent indicators should encode as null: %s", w.Body.String())
	}
}

func TestSnapshotEndpointDefaults(t *testing.T) {
	q := &stubQuerier{}
	w := serve(t, q, "/api/snapshot")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if q.segment != model.SegmentSpot || q.limit != defaultLimit {
		t.Errorf("unexpected defaults %s/%d", q.segment, q.limit)
	}
	var body struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Data == nil {
		t.Errorf("empty result should encode as [], got %s", w.Body.String())
	}

	serve(t, q, "/api/snapshot?limit=5000")
	if q.limit != maxLimit {
		t.Errorf("limit should be capped at %d, got %d", maxLimit, q.limit)
	}
}

func TestSnapshotEndpointRejectsBadInput(t *testing.T) {
	for _, target := range []string{
		"/api/snapshot?market=options",
		"/api/snapshot?limit=abc",
		"/api/snapshot?limit=-1",
	} {
		if w := serve(t, &stubQuerier{}, target); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, w.Code)
		}
	}
}

func TestStatusAndHealthEndpoints(t *testing.T) {
	w := serve(t, &stubQuerier{}, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status model.ConnectionStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Tickers[model.SegmentSpot].Open || len(status.Subscriptions) != 1 {
		t.Errorf("unexpected status %s", w.Body.String())
	}

	if w := serve(t, &stubQuerier{}, "/healthz"); w.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", w.Code)
	}
	if w := serve(t, &stubQuerier{}, "/metrics"); w.Code != http.StatusOK {
		t.Errorf("metrics: expected 200, got %d", w.Code)
	}
}
