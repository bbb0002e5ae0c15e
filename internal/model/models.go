package model

import "time"

// Segment 市场分段，每个分段有独立的 ticker / K 线数据源
type Segment string

const (
	SegmentSpot        Segment = "spot"
	SegmentDerivatives Segment = "derivatives"
)

// Segments 按优先级排列；交易对同时出现在两个分段时归属靠前的那个
var Segments = []Segment{SegmentSpot, SegmentDerivatives}

// ParseSegment 校验外部传入的分段名
func ParseSegment(s string) (Segment, bool) {
	switch Segment(s) {
	case SegmentSpot, SegmentDerivatives:
		return Segment(s), true
	}
	return "", false
}

// Timeframe K 线周期，例如 "1h", "4h", "1d"
type Timeframe string

// Ticker 全市场 ticker 流中单个交易对的 24h 快照
type Ticker struct {
	Symbol        string  // 交易所原始大写代码，例如 "BTCUSDT"
	Price         float64 // 最新成交价
	QuoteVolume   float64 // 24h 计价币成交额
	ChangePercent float64 // 24h 涨跌幅 (%)
	High          float64
	Low           float64
}

// Candle 代表 K 线流中的一条记录 (可能尚未收盘)
type Candle struct {
	Symbol    string
	Timeframe Timeframe
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	OpenTime  int64 // 毫秒
	CloseTime int64 // 毫秒
	Closed    bool  // 只有收盘 K 线才会进入历史窗口
}

// SnapshotEntry 是查询接口返回的单个交易对快照
// RSI 字段为 nil 表示历史不足 (与 0 区分)
type SnapshotEntry struct {
	Symbol    string   `json:"symbol"`
	Price     float64  `json:"price"`
	Volume24h float64  `json:"volume24h"`
	Change24h float64  `json:"change24h"`
	High24h   float64  `json:"high24h"`
	Low24h    float64  `json:"low24h"`
	RSIShort  *float64 `json:"rsiShort"`
	RSIMedium *float64 `json:"rsiMedium"`
	RSILong   *float64 `json:"rsiLong"`
	Signal    string   `json:"signal"`
}

// HasAllIndicators 三个周期的 RSI 是否都已就绪
func (e SnapshotEntry) HasAllIndicators() bool {
	return e.RSIShort != nil && e.RSIMedium != nil && e.RSILong != nil
}

// GroupStatus 单个 K 线连接组的状态
type GroupStatus struct {
	ID      string  `json:"id"`
	Segment Segment `json:"segment"`
	Streams int     `json:"streams"`
	State   string  `json:"state"`
}

// TickerStatus 单个分段 ticker 连接的状态
type TickerStatus struct {
	State       string    `json:"state"`
	Open        bool      `json:"open"`
	Attempt     int       `json:"attempt"`
	LastMessage time.Time `json:"lastMessage"`
}

// ConnectionStatus 是 getConnectionStatus 的返回值
type ConnectionStatus struct {
	Tickers          map[Segment]TickerStatus `json:"tickers"`
	CandleGroups     int                      `json:"candleGroups"`
	CandleGroupsOpen int                      `json:"candleGroupsOpen"`
	Groups           []GroupStatus            `json:"groups"`
	Subscriptions    []string                 `json:"subscriptions"`
}
