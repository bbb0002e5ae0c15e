package data

import (
	"fmt"
	"testing"

	"crypto-rsi-scanner/internal/model"
	"crypto-rsi-scanner/internal/strategy"
)

var testTimeframes = Timeframes{"1h", "4h", "1d"}

func newStores() (*HistoryStore, *SnapshotStore) {
	h := NewHistoryStore(0)
	return h, NewSnapshotStore(h, testTimeframes, 14)
}

func rising(n int) []CandlePoint {
	out := make([]CandlePoint, n)
	for i := range out {
		out[i] = CandlePoint{Close: 100 + float64(i), CloseTime: int64(i+1) * 60_000}
	}
	return out
}

func TestListOrderingAndLimit(t *testing.T) {
	_, s := newStores()
	s.UpsertTicker(model.SegmentSpot, model.Ticker{Symbol: "CCCUSDT", QuoteVolume: 500})
	s.UpsertTicker(model.SegmentSpot, model.Ticker{Symbol: "AAAUSDT", QuoteVolume: 900})
	s.UpsertTicker(model.SegmentSpot, model.Ticker{Symbol: "BBBUSDT", QuoteVolume: 500})
	s.UpsertTicker(model.SegmentSpot, model.Ticker{Symbol: "DDDUSDT", QuoteVolume: 100})
	s.UpsertTicker(model.SegmentDerivatives, model.Ticker{Symbol: "EEEUSDT", QuoteVolume: 1e9})

	got := s.List(model.SegmentSpot, 10)
	want := []string{"AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, e := range got {
		if e.Symbol != want[i] {
			t.Errorf("position %d: got %s, want %s", i, e.Symbol, want[i])
		}
	}

	for limit := 0; limit <= 5; limit++ {
		if n := len(s.List(model.SegmentSpot, limit)); n > limit {
			t.Errorf("limit %d returned %d entries", limit, n)
		}
	}
	if n := len(s.List(model.SegmentSpot, 2)); n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}

func TestUpsertMergesInPlace(t *testing.T) {
	_, s := newStores()
	s.UpsertTicker(model.SegmentSpot, model.Ticker{Symbol: "BTCUSDT", Price: 1, QuoteVolume: 1})
	s.UpsertTicker(model.SegmentSpot, model.Ticker{Symbol: "BTCUSDT", Price: 2, QuoteVolume: 3, High: 4, Low: 0.5, ChangePercent: -1.5})

	if n := s.Len(model.SegmentSpot); n != 1 {
		t.Fatalf("expected 1 entry, got %d", n)
	}
	e, ok := s.Get(model.SegmentSpot, "BTCUSDT")
	if !ok {
		t.Fatal("entry missing")
	}
	if e.Price != 2 || e.Volume24h != 3 || e.High24h != 4 || e.Low24h != 0.5 || e.Change24h != -1.5 {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestMissingIndicators(t *testing.T) {
	h, s := newStores()
	for _, tf := range testTimeframes {
		h.Seed("FULLUSDT", tf, rising(30))
	}
	h.Seed("HALFUSDT", "1h", rising(30))

	s.UpsertTicker(model.SegmentSpot, model.Ticker{Symbol: "FULLUSDT", Price: 200, QuoteVolume: 1})
	s.UpsertTicker(model.SegmentSpot, model.Ticker{Symbol: "HALFUSDT", Price: 200, QuoteVolume: 1})
	s.UpsertTicker(model.SegmentSpot, model.Ticker{Symbol: "NONEUSDT", Price: 200, QuoteVolume: 1})

	got := s.MissingIndicators(model.SegmentSpot)
	want := []string{"HALFUSDT", "NONEUSDT"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestIndicatorLifecycleFromAbsentToDefined(t *testing.T) {
	h, s := newStores()
	s.UpsertTicker(model.SegmentSpot, model.Ticker{Symbol: "ZZZUSDT", Price: 150, QuoteVolume: 10})

	entries := s.List(model.SegmentSpot, 10)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.RSIShort != nil || e.RSIMedium != nil || e.RSILong != nil {
		t.Errorf("expected all indicators absent, got %+v", e)
	}
	if e.Signal != strategy.SignalNeutral.String() {
		t.Errorf("expected NEUTRAL, got %s", e.Signal)
	}

	h.Seed("ZZZUSDT", testTimeframes.Long(), rising(20))
	s.UpsertTicker(model.SegmentSpot, model.Ticker{Symbol: "ZZZUSDT", Price: 150, QuoteVolume: 10})

	e, _ = s.Get(model.SegmentSpot, "ZZZUSDT")
	if e.RSILong == nil {
		t.Fatal("expected long indicator to be defined")
	}
	if *e.RSILong != 100 {
		t.Errorf("rising closes plus higher live price should give 100, got %v", *e.RSILong)
	}
	if e.Signal != strategy.ClassifySignal(e.RSILong).String() || e.Signal != "STRONG_SELL" {
		t.Errorf("unexpected signal %s", e.Signal)
	}
	if e.RSIShort != nil || e.RSIMedium != nil {
		t.Error("short/medium should stay absent without history")
	}
}

func TestZeroIndicatorIsNotAbsent(t *testing.T) {
	h, s := newStores()
	falling := make([]CandlePoint, 20)
	for i := range falling {
		falling[i] = CandlePoint{Close: 100 - float64(i), CloseTime: int64(i + 1)}
	}
	h.Seed("DOWNTRENDUSDT", "1d", falling)
	s.UpsertTicker(model.SegmentSpot, model.Ticker{Symbol: "DOWNTRENDUSDT", Price: 50})

	e, _ := s.Get(model.SegmentSpot, "DOWNTRENDUSDT")
	if e.RSILong == nil || *e.RSILong != 0 {
		t.Fatalf("expected defined zero, got %v", e.RSILong)
	}
	if e.Signal != "STRONG_BUY" {
		t.Errorf("RSI 0 should map to STRONG_BUY, got %s", e.Signal)
	}
}

func TestRefreshUsesLastPrice(t *testing.T) {
	h, s := newStores()
	s.UpsertTicker(model.SegmentDerivatives, model.Ticker{Symbol: "ABCUSDT", Price: 500})
	h.Seed("ABCUSDT", "4h", rising(20))
	s.Refresh("ABCUSDT")

	e, _ := s.Get(model.SegmentDerivatives, "ABCUSDT")
	if e.RSIMedium == nil {
		t.Error("expected medium indicator after Refresh")
	}
}
