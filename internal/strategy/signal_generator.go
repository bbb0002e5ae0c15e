package strategy

// ClassifySignal 根据长周期 RSI 生成信号。
// rsi 为 nil 表示历史不足，返回 NEUTRAL；RSI 恰好为 0 是有效值 (STRONG_BUY)，不能当作缺失。
func ClassifySignal(rsi *float64) Signal {
	return DefaultThresholds.Classify(rsi)
}

// Classify 使用自定义阈值分类
func (t Thresholds) Classify(rsi *float64) Signal {
	if rsi == nil {
		return SignalNeutral
	}

	v := *rsi
	switch {
	case v <= t.StrongBuy:
		return SignalStrongBuy
	case v <= t.Buy:
		return SignalBuy
	case v >= t.StrongSell:
		return SignalStrongSell
	case v >= t.Sell:
		return SignalSell
	default:
		return SignalNeutral
	}
}
