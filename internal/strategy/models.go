package strategy

// Signal 是根据长周期 RSI 给出的参考信号 (只是提示，不会触发任何下单)
type Signal string

const (
	SignalStrongBuy  Signal = "STRONG_BUY"
	SignalBuy        Signal = "BUY"
	SignalNeutral    Signal = "NEUTRAL"
	SignalSell       Signal = "SELL"
	SignalStrongSell Signal = "STRONG_SELL"
)

func (s Signal) String() string {
	return string(s)
}

// Thresholds RSI 分档阈值，四个边界都是闭区间
type Thresholds struct {
	StrongBuy  float64 // <= 视为 STRONG_BUY
	Buy        float64 // <= 视为 BUY
	Sell       float64 // >= 视为 SELL
	StrongSell float64 // >= 视为 STRONG_SELL
}

// DefaultThresholds 20 / 30 / 70 / 80
var DefaultThresholds = Thresholds{
	StrongBuy:  20,
	Buy:        30,
	Sell:       70,
	StrongSell: 80,
}
