package ta

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// DefaultRSIPeriod Wilder 原始参数
const DefaultRSIPeriod = 14

// RSI 使用 Wilder 平滑计算收盘价序列的相对强弱指数。
// 至少需要 period+1 个收盘价；不足时返回 ok=false (历史不足是正常状态，不是错误)。
// 结果保留两位小数，并保证落在 [0,100]，否则视为无效数据。
func RSI(closes []float64, period int) (value float64, ok bool) {
	if period < 2 || len(closes) < period+1 {
		return 0, false
	}

	loss, valid := scan(closes)
	if !valid {
		return 0, false
	}
	// 没有任何下跌时平均损失为 0，RSI 恒为 100 (包括完全横盘)
	if !loss {
		return 100, true
	}

	// talib 的种子值是前 period 个差值的简单平均，之后按 (avg*(n-1)+x)/n 平滑
	out := talib.Rsi(closes, period)
	raw := out[len(out)-1]
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, false
	}

	v := round2(raw)
	if v < 0 || v > 100 {
		return 0, false
	}
	return v, true
}

// scan 报告序列中是否出现过下跌，以及所有价格是否为有限值
func scan(closes []float64) (loss bool, valid bool) {
	for i, c := range closes {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false, false
		}
		if i > 0 && c < closes[i-1] {
			loss = true
		}
	}
	return loss, true
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
