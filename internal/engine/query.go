package engine

import (
	"context"

	"go.uber.org/zap"

	"crypto-rsi-scanner/internal/model"
)

// GetSnapshot 返回分段内按成交额排序的前 limit 条快照。
// 结果中缺少指标的交易对会先同步回填 (受单次请求超时限制)，首次查询延迟换取数据完整；
// 历史已经足够的交易对只重新计算指标。
func (e *Engine) GetSnapshot(ctx context.Context, seg model.Segment, limit int) []model.SnapshotEntry {
	entries := e.snapshots.List(seg, limit)
	if len(entries) == 0 {
		return entries
	}

	missing := make(map[string]struct{})
	for _, symbol := range e.snapshots.MissingIndicators(seg) {
		missing[symbol] = struct{}{}
	}
	var targets []subscription
	for _, entry := range entries {
		if _, ok := missing[entry.Symbol]; ok {
			targets = append(targets, subscription{Symbol: entry.Symbol, Segment: seg})
		}
	}
	if len(targets) == 0 {
		return entries
	}

	if seeded := e.backfill(ctx, targets); seeded > 0 {
		e.log.Debug("On-demand fallback seeded history",
			zap.String("segment", string(seg)), zap.Int("symbols", len(targets)), zap.Int("seeded", seeded))
	}
	return e.snapshots.List(seg, limit)
}
