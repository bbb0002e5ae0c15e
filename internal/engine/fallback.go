package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"crypto-rsi-scanner/internal/data"
	"crypto-rsi-scanner/internal/metrics"
	"crypto-rsi-scanner/internal/model"
)

// backfill 为缺少历史的 (symbol, timeframe) 拉取历史 K 线并整体替换窗口。
// 单个请求失败只记录日志并跳过，不会中断整批；返回成功回填的窗口数量。
func (e *Engine) backfill(ctx context.Context, targets []subscription) int {
	seeded := 0
	for _, t := range targets {
		// 窗口已足够 (推送 K 线补齐) 但快照还没重新计算时同样需要 Refresh
		refreshed := false
		for _, tf := range e.timeframes {
			if e.history.Len(t.Symbol, tf) > e.cfg.RSIPeriod {
				refreshed = true
				continue
			}
			if e.fetcher == nil {
				continue
			}
			if !e.claim(t.Symbol, tf) {
				continue
			}
			ok, err := e.fetchAndSeed(ctx, t, tf)
			e.release(t.Symbol, tf)
			if err != nil {
				if ctx.Err() != nil {
					return seeded
				}
				e.log.Warn("Fallback request failed",
					zap.String("symbol", t.Symbol), zap.String("timeframe", string(tf)), zap.Error(err))
				continue
			}
			if ok {
				seeded++
				refreshed = true
			}
		}
		if refreshed {
			e.snapshots.Refresh(t.Symbol)
		}
	}
	return seeded
}

// fetchAndSeed 单个请求受 FallbackTimeout 限制，请求之间按 FallbackSpacing 限速
func (e *Engine) fetchAndSeed(ctx context.Context, t subscription, tf model.Timeframe) (bool, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return false, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.FallbackTimeout)
	defer cancel()

	start := time.Now()
	candles, err := e.fetcher.Klines(reqCtx, t.Segment, t.Symbol, tf, e.cfg.FallbackLimit)
	metrics.FallbackDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FallbackRequests.WithLabelValues(string(tf), "error").Inc()
		return false, err
	}

	points := make([]data.CandlePoint, 0, len(candles))
	for _, c := range candles {
		if c.Closed {
			points = append(points, data.CandlePoint{Close: c.Close, CloseTime: c.CloseTime})
		}
	}
	if len(points) < e.cfg.FallbackMinCandles {
		metrics.FallbackRequests.WithLabelValues(string(tf), "insufficient").Inc()
		e.log.Debug("Not enough candles returned for fallback",
			zap.String("symbol", t.Symbol), zap.String("timeframe", string(tf)), zap.Int("len", len(points)))
		return false, nil
	}

	e.history.Seed(t.Symbol, tf, points)
	metrics.FallbackRequests.WithLabelValues(string(tf), "ok").Inc()
	return true, nil
}

// claim 同一个 (symbol, timeframe) 同时只允许一个回填请求
func (e *Engine) claim(symbol string, tf model.Timeframe) bool {
	key := symbol + "@" + string(tf)
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	if _, busy := e.inflight[key]; busy {
		return false
	}
	e.inflight[key] = struct{}{}
	return true
}

func (e *Engine) release(symbol string, tf model.Timeframe) {
	e.inflightMu.Lock()
	delete(e.inflight, symbol+"@"+string(tf))
	e.inflightMu.Unlock()
}
