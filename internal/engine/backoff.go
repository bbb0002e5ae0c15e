package engine

import "time"

// Backoff 指数退避：第 n 次连续失败后等待 min(initial * 2^n, max)，成功连接后归零
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	attempt int
}

// Delay 计算第 attempt 次重连的等待时间
func Delay(initial, max time.Duration, attempt int) time.Duration {
	d := initial
	for i := 0; i < attempt; i++ {
		if d >= max || d > max/2 {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}

// Current 下一次重连将使用的等待时间
func (b *Backoff) Current() time.Duration {
	return Delay(b.Initial, b.Max, b.attempt)
}

// Next 返回本次等待时间，并把连续失败次数加一
func (b *Backoff) Next() time.Duration {
	d := b.Current()
	b.attempt++
	return d
}

// Reset 连接成功后调用
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt 当前连续失败次数
func (b *Backoff) Attempt() int {
	return b.attempt
}
