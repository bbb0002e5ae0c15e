package data

import (
	"sort"
	"sync"

	"crypto-rsi-scanner/internal/model"
	"crypto-rsi-scanner/internal/strategy"
	"crypto-rsi-scanner/pkg/ta"
)

// Timeframes 短 / 中 / 长 三个周期，长周期决定信号
type Timeframes [3]model.Timeframe

func (t Timeframes) Short() model.Timeframe  { return t[0] }
func (t Timeframes) Medium() model.Timeframe { return t[1] }
func (t Timeframes) Long() model.Timeframe   { return t[2] }

// SnapshotStore 每个市场分段一张 symbol -> 最新快照 的表
type SnapshotStore struct {
	mu         sync.RWMutex
	history    *HistoryStore
	timeframes Timeframes
	period     int
	segments   map[model.Segment]map[string]*model.SnapshotEntry
}

// NewSnapshotStore 创建快照存储，指标计算读取 history 中的收盘价
func NewSnapshotStore(history *HistoryStore, timeframes Timeframes, period int) *SnapshotStore {
	if period <= 0 {
		period = ta.DefaultRSIPeriod
	}
	return &SnapshotStore{
		history:    history,
		timeframes: timeframes,
		period:     period,
		segments:   make(map[model.Segment]map[string]*model.SnapshotEntry),
	}
}

// UpsertTicker 合并 ticker 字段，并用当前历史窗口 + 实时价格重新计算指标和信号
func (s *SnapshotStore) UpsertTicker(seg model.Segment, t model.Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.segments[seg]
	if !ok {
		entries = make(map[string]*model.SnapshotEntry)
		s.segments[seg] = entries
	}
	entry, ok := entries[t.Symbol]
	if !ok {
		entry = &model.SnapshotEntry{Symbol: t.Symbol}
		entries[t.Symbol] = entry
	}

	entry.Price = t.Price
	entry.Volume24h = t.QuoteVolume
	entry.Change24h = t.ChangePercent
	entry.High24h = t.High
	entry.Low24h = t.Low
	s.recompute(entry)
}

// Refresh 用最后一次已知价格重新计算 symbol 在所有分段中的指标 (历史被回填后调用)
func (s *SnapshotStore) Refresh(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entries := range s.segments {
		if entry, ok := entries[symbol]; ok {
			s.recompute(entry)
		}
	}
}

// recompute 调用方必须持有写锁
func (s *SnapshotStore) recompute(entry *model.SnapshotEntry) {
	entry.RSIShort = s.indicator(entry.Symbol, s.timeframes.Short(), entry.Price)
	entry.RSIMedium = s.indicator(entry.Symbol, s.timeframes.Medium(), entry.Price)
	entry.RSILong = s.indicator(entry.Symbol, s.timeframes.Long(), entry.Price)
	entry.Signal = strategy.ClassifySignal(entry.RSILong).String()
}

// indicator 把实时价格作为最后一个收盘价追加到历史后计算 RSI，反映盘中变化
func (s *SnapshotStore) indicator(symbol string, tf model.Timeframe, live float64) *float64 {
	closes := s.history.Closes(symbol, tf)
	if len(closes) == 0 {
		return nil
	}
	if live > 0 {
		closes = append(closes, live)
	}
	v, ok := ta.RSI(closes, s.period)
	if !ok {
		return nil
	}
	return &v
}

// List 返回按 24h 成交额降序 (同额按 symbol 升序) 排列的前 limit 条快照副本
func (s *SnapshotStore) List(seg model.Segment, limit int) []model.SnapshotEntry {
	if limit <= 0 {
		return nil
	}

	s.mu.RLock()
	out := make([]model.SnapshotEntry, 0, len(s.segments[seg]))
	for _, e := range s.segments[seg] {
		out = append(out, *e)
	}
	s.mu.RUnlock()

	sortByVolume(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TopSymbols 成交额排名前 n 的交易对
func (s *SnapshotStore) TopSymbols(seg model.Segment, n int) []string {
	entries := s.List(seg, n)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Symbol
	}
	return out
}

// Get 查询单个交易对
func (s *SnapshotStore) Get(seg model.Segment, symbol string) (model.SnapshotEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.segments[seg][symbol]
	if !ok {
		return model.SnapshotEntry{}, false
	}
	return *e, true
}

// MissingIndicators 至少缺一个周期 RSI 的交易对 (升序)，用于调度回填
func (s *SnapshotStore) MissingIndicators(seg model.Segment) []string {
	s.mu.RLock()
	var out []string
	for symbol, e := range s.segments[seg] {
		if !e.HasAllIndicators() {
			out = append(out, symbol)
		}
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Len 分段内的交易对数量
func (s *SnapshotStore) Len(seg model.Segment) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments[seg])
}

// Clear 清空全部快照
func (s *SnapshotStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = make(map[model.Segment]map[string]*model.SnapshotEntry)
}

func sortByVolume(entries []model.SnapshotEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Volume24h != entries[j].Volume24h {
			return entries[i].Volume24h > entries[j].Volume24h
		}
		return entries[i].Symbol < entries[j].Symbol
	})
}
