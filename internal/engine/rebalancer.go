package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"crypto-rsi-scanner/internal/metrics"
	"crypto-rsi-scanner/internal/model"
)

// rebalanceLoop 先延迟一次 (等待 ticker 数据填充)，之后按固定间隔执行
func (e *Engine) rebalanceLoop(ctx context.Context) {
	if !sleep(ctx, e.cfg.RebalanceDelay) {
		return
	}
	e.rebalance(ctx)

	ticker := time.NewTicker(e.cfg.RebalanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.rebalance(ctx)
		}
	}
}

// desiredSubscriptions 每个分段成交额前 RankTopN 的并集 (按分段优先级去重，保持排名顺序)
func (e *Engine) desiredSubscriptions() []subscription {
	seen := make(map[string]struct{})
	var out []subscription
	for _, seg := range model.Segments {
		for _, symbol := range e.snapshots.TopSymbols(seg, e.cfg.RankTopN) {
			if _, ok := seen[symbol]; ok {
				continue
			}
			seen[symbol] = struct{}{}
			out = append(out, subscription{Symbol: symbol, Segment: seg})
		}
	}
	return out
}

// rebalance 排名集合变化时整体替换活跃订阅集合和全部 K 线连接组，返回是否发生了替换
func (e *Engine) rebalance(ctx context.Context) bool {
	desired := e.desiredSubscriptions()

	e.subMu.Lock()
	if ctx.Err() != nil || sameSymbols(e.active, desired) {
		e.subMu.Unlock()
		return false
	}

	old := e.groups
	active := make(map[string]model.Segment, len(desired))
	for _, s := range desired {
		active[s.Symbol] = s.Segment
	}
	priority := desired
	if len(priority) > e.cfg.PriorityCap {
		priority = priority[:e.cfg.PriorityCap]
	}
	groups := e.buildGroups(ctx, priority)
	e.active = active
	e.groups = groups
	e.subMu.Unlock()

	for _, g := range old {
		g.teardown()
	}
	for _, g := range groups {
		e.goTracked(g.ctx, g.run)
	}

	metrics.Resubscriptions.Inc()
	e.log.Info("Subscription set changed, candle connections rebuilt",
		zap.Int("symbols", len(desired)),
		zap.Int("priority", len(priority)),
		zap.Int("closedGroups", len(old)),
		zap.Int("groups", len(groups)))

	e.scheduleFallback(ctx, priority)
	return true
}

// buildGroups 展开为 (symbol, timeframe) 流，按分段分组后每 StreamsPerConnection 个一条连接
func (e *Engine) buildGroups(ctx context.Context, priority []subscription) []*candleGroup {
	bySegment := make(map[model.Segment][]streamRef)
	for _, s := range priority {
		for _, tf := range e.timeframes {
			bySegment[s.Segment] = append(bySegment[s.Segment], streamRef{Symbol: s.Symbol, Timeframe: tf})
		}
	}

	var groups []*candleGroup
	for _, seg := range model.Segments {
		for _, chunk := range partition(bySegment[seg], e.cfg.StreamsPerConnection) {
			groups = append(groups, newCandleGroup(ctx, e, len(groups), seg, chunk))
		}
	}
	return groups
}

// partition 按 size 切分，最后一组可能不足 size
func partition(streams []streamRef, size int) [][]streamRef {
	var out [][]streamRef
	for len(streams) > 0 {
		n := size
		if len(streams) < n {
			n = len(streams)
		}
		out = append(out, streams[:n:n])
		streams = streams[n:]
	}
	return out
}

func sameSymbols(active map[string]model.Segment, desired []subscription) bool {
	if len(active) != len(desired) {
		return false
	}
	for _, s := range desired {
		if _, ok := active[s.Symbol]; !ok {
			return false
		}
	}
	return true
}

// retainActive 过滤掉已不在活跃订阅集合中的流
func (e *Engine) retainActive(streams []streamRef) []streamRef {
	e.subMu.RLock()
	defer e.subMu.RUnlock()

	var out []streamRef
	for _, s := range streams {
		if _, ok := e.active[s.Symbol]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (e *Engine) removeGroup(g *candleGroup) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for i, cur := range e.groups {
		if cur == g {
			e.groups = append(e.groups[:i:i], e.groups[i+1:]...)
			return
		}
	}
}

// scheduleFallback 新连接组建立 FallbackDelay 之后，为仍缺少历史的优先交易对拉取历史 K 线
func (e *Engine) scheduleFallback(ctx context.Context, priority []subscription) {
	if e.fetcher == nil || len(priority) == 0 {
		return
	}
	e.goTracked(ctx, func(ctx context.Context) {
		if !sleep(ctx, e.cfg.FallbackDelay) {
			return
		}
		targets := make([]subscription, 0, len(priority))
		e.subMu.RLock()
		for _, s := range priority {
			if _, ok := e.active[s.Symbol]; ok {
				targets = append(targets, s)
			}
		}
		e.subMu.RUnlock()

		seeded := e.backfill(ctx, targets)
		e.log.Info("Scheduled fallback finished",
			zap.Int("symbols", len(targets)), zap.Int("seeded", seeded))
	})
}
