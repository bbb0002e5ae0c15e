package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-rsi-scanner/internal/model"
)

// KlinesClient 历史 K 线 REST 客户端，每个分段一个地址
type KlinesClient struct {
	httpClient *http.Client
	endpoints  map[model.Segment]string
	now        func() time.Time
}

// NewKlinesClient 创建客户端；单次请求的超时由调用方通过 ctx 控制
func NewKlinesClient(endpoints map[model.Segment]string) *KlinesClient {
	return &KlinesClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: 8 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		endpoints: endpoints,
		now:       time.Now,
	}
}

// Klines 请求最近 limit 根 K 线 (按时间升序)。
// 最后一根通常尚未收盘，返回时 Closed=false，由调用方决定是否使用。
func (c *KlinesClient) Klines(ctx context.Context, seg model.Segment, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	endpoint, ok := c.endpoints[seg]
	if !ok || endpoint == "" {
		return nil, fmt.Errorf("no klines endpoint for segment %q", seg)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing klines endpoint: %w", err)
	}
	q := u.Query()
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", string(tf))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewConnectionError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewReadError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPStatusError(resp.StatusCode, body)
	}
	return c.decodeKlines(body, symbol, tf)
}

// 响应格式: [[openTime, "open", "high", "low", "close", "volume", closeTime, ...], ...]
func (c *KlinesClient) decodeKlines(body []byte, symbol string, tf model.Timeframe) ([]model.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, NewDecodeError(err)
	}

	nowMs := c.now().UnixMilli()
	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 7 {
			return nil, NewDecodeError(fmt.Errorf("kline row %d has %d fields", i, len(row)))
		}
		candle := model.Candle{Symbol: strings.ToUpper(symbol), Timeframe: tf}
		if err := json.Unmarshal(row[0], &candle.OpenTime); err != nil {
			return nil, NewDecodeError(fmt.Errorf("kline row %d open time: %w", i, err))
		}
		if err := json.Unmarshal(row[6], &candle.CloseTime); err != nil {
			return nil, NewDecodeError(fmt.Errorf("kline row %d close time: %w", i, err))
		}
		var ohlcv [5]string
		for j := range ohlcv {
			if err := json.Unmarshal(row[j+1], &ohlcv[j]); err != nil {
				return nil, NewDecodeError(fmt.Errorf("kline row %d field %d: %w", i, j+1, err))
			}
		}
		err := parseFields(
			floatField{ohlcv[0], &candle.Open},
			floatField{ohlcv[1], &candle.High},
			floatField{ohlcv[2], &candle.Low},
			floatField{ohlcv[3], &candle.Close},
			floatField{ohlcv[4], &candle.Volume},
		)
		if err != nil {
			return nil, NewDecodeError(fmt.Errorf("kline row %d: %w", i, err))
		}
		candle.Closed = candle.CloseTime <= nowMs
		candles = append(candles, candle)
	}
	return candles, nil
}
