package data

import (
	"sort"
	"sync"

	"crypto-rsi-scanner/internal/model"
)

// DefaultHistoryCapacity 每个 (symbol, timeframe) 最多保留的收盘 K 线数量
const DefaultHistoryCapacity = 100

// CandlePoint 一根已收盘 K 线的收盘价
type CandlePoint struct {
	Close     float64
	CloseTime int64 // 毫秒
}

type historyKey struct {
	symbol    string
	timeframe model.Timeframe
}

// HistoryStore 按 (symbol, timeframe) 保存收盘价滚动窗口 (FIFO)
type HistoryStore struct {
	mu       sync.RWMutex
	capacity int
	series   map[historyKey][]CandlePoint
}

// NewHistoryStore 创建历史窗口存储，capacity <= 0 时使用默认值
func NewHistoryStore(capacity int) *HistoryStore {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &HistoryStore{
		capacity: capacity,
		series:   make(map[historyKey][]CandlePoint),
	}
}

// AppendClosed 追加一根已收盘的 K 线。
// 未收盘的 K 线、收盘时间不晚于最后一根的 K 线都会被忽略 (返回 false)，保证窗口按时间单调递增。
func (h *HistoryStore) AppendClosed(c model.Candle) bool {
	if !c.Closed {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := historyKey{c.Symbol, c.Timeframe}
	points := h.series[key]
	if n := len(points); n > 0 && c.CloseTime <= points[n-1].CloseTime {
		return false
	}

	points = append(points, CandlePoint{Close: c.Close, CloseTime: c.CloseTime})
	if len(points) > h.capacity {
		// 复制到新切片，避免底层数组无限增长
		trimmed := make([]CandlePoint, h.capacity, h.capacity+1)
		copy(trimmed, points[len(points)-h.capacity:])
		points = trimmed
	}
	h.series[key] = points
	return true
}

// Closes 返回收盘价序列的副本，没有历史时返回 nil
func (h *HistoryStore) Closes(symbol string, tf model.Timeframe) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	points := h.series[historyKey{symbol, tf}]
	if len(points) == 0 {
		return nil
	}
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close
	}
	return out
}

// Len 当前窗口长度
func (h *HistoryStore) Len(symbol string, tf model.Timeframe) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.series[historyKey{symbol, tf}])
}

// Seed 用一批历史 K 线整体替换窗口 (不与推送数据合并)。
// 输入会按收盘时间排序并去重，超出容量时只保留最新的部分。
func (h *HistoryStore) Seed(symbol string, tf model.Timeframe, points []CandlePoint) {
	sorted := make([]CandlePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CloseTime < sorted[j].CloseTime })

	dedup := sorted[:0]
	for _, p := range sorted {
		if n := len(dedup); n > 0 && p.CloseTime == dedup[n-1].CloseTime {
			dedup[n-1] = p
			continue
		}
		dedup = append(dedup, p)
	}
	if len(dedup) > h.capacity {
		dedup = dedup[len(dedup)-h.capacity:]
	}
	window := make([]CandlePoint, len(dedup))
	copy(window, dedup)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.series[historyKey{symbol, tf}] = window
}

// Clear 清空全部历史
func (h *HistoryStore) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.series = make(map[historyKey][]CandlePoint)
}
