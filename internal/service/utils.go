package service

import (
	"fmt"
	"strconv"
	"time"
)

func StringToFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// FormatInterval 将 time.Duration 格式化为交易所的 K 线周期写法，如 "1h", "4h", "1d", "1w"
func FormatInterval(d time.Duration) string {
	day := 24 * time.Hour
	week := 7 * day
	switch {
	case d >= week && d%week == 0:
		return fmt.Sprintf("%dw", d/week)
	case d >= day && d%day == 0:
		return fmt.Sprintf("%dd", d/day)
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	// 无法识别的周期返回原始 String()
	return d.String()
}

// 将 K 线周期字符串解析为 time.Duration
// 例如 "1m" -> 1*time.Minute, "1d" -> 24*time.Hour
func ParseIntervalDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval format: %s", s)
	}

	unit := s[len(s)-1:]
	valueStr := s[:len(s)-1]

	var unitDuration time.Duration
	switch unit {
	case "m":
		unitDuration = time.Minute
	case "h":
		unitDuration = time.Hour
	case "d":
		unitDuration = 24 * time.Hour
	case "w":
		unitDuration = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("unsupported interval unit: %s", unit)
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid interval value: %s", valueStr)
	}

	return time.Duration(value) * unitDuration, nil
}

// NormalizeTimeframes 统一周期写法 ("60m" -> "1h")，并要求短、中、长周期严格递增
func NormalizeTimeframes(tfs []string) ([]string, error) {
	out := make([]string, len(tfs))
	var prev time.Duration
	for i, tf := range tfs {
		d, err := ParseIntervalDuration(tf)
		if err != nil {
			return nil, err
		}
		if d <= prev {
			return nil, fmt.Errorf("timeframes must be strictly increasing: %s after %s", tf, out[i-1])
		}
		out[i] = FormatInterval(d)
		prev = d
	}
	return out, nil
}
