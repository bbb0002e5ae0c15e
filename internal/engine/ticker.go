package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"crypto-rsi-scanner/internal/api"
	"crypto-rsi-scanner/internal/metrics"
	"crypto-rsi-scanner/internal/model"
)

// connState ticker 连接状态: DISCONNECTED -> CONNECTING -> CONNECTED -> DISCONNECTED
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "CONNECTING"
	case stateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// tickerConn 一个分段的全市场 ticker 长连接，断开后按指数退避重连
type tickerConn struct {
	e       *Engine
	segment model.Segment
	url     string
	log     *zap.Logger

	mu          sync.RWMutex
	state       connState
	backoff     Backoff
	lastMessage time.Time
}

func newTickerConn(e *Engine, seg model.Segment, url string) *tickerConn {
	return &tickerConn{
		e:       e,
		segment: seg,
		url:     url,
		log:     e.log.With(zap.String("segment", string(seg)), zap.String("stream", "ticker")),
		backoff: Backoff{Initial: e.cfg.InitialBackoff, Max: e.cfg.MaxBackoff},
	}
}

// run 连接主循环，直到 ctx 结束；任何连接错误都只会导致重连，不会退出
func (tc *tickerConn) run(ctx context.Context) {
	for {
		tc.setState(stateConnecting)
		conn, err := tc.e.dialer.Dial(ctx, tc.url)
		if err == nil {
			tc.onOpen()
			tc.readLoop(ctx, conn)
		} else if ctx.Err() == nil {
			tc.log.Warn("Ticker stream connect failed", zap.Error(err))
		}
		tc.setState(stateDisconnected)

		if ctx.Err() != nil {
			return
		}

		tc.mu.Lock()
		delay := tc.backoff.Next()
		attempt := tc.backoff.Attempt()
		tc.mu.Unlock()

		metrics.Reconnects.WithLabelValues("ticker", string(tc.segment)).Inc()
		tc.log.Warn("Ticker stream closed, scheduling reconnect",
			zap.Duration("delay", delay), zap.Int("attempt", attempt))
		if !sleep(ctx, delay) {
			return
		}
	}
}

func (tc *tickerConn) onOpen() {
	tc.mu.Lock()
	tc.state = stateConnected
	tc.backoff.Reset()
	tc.mu.Unlock()

	metrics.TickerConnectionUp.WithLabelValues(string(tc.segment)).Set(1)
	tc.log.Info("Ticker stream connected", zap.String("url", tc.url))
}

func (tc *tickerConn) setState(s connState) {
	tc.mu.Lock()
	tc.state = s
	tc.mu.Unlock()
	if s != stateConnected {
		metrics.TickerConnectionUp.WithLabelValues(string(tc.segment)).Set(0)
	}
}

// readLoop 按到达顺序处理消息，连接断开或 ctx 结束时返回
func (tc *tickerConn) readLoop(ctx context.Context, conn api.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				tc.log.Warn("Error reading ticker stream", zap.Error(err))
			}
			return
		}
		tc.handle(message)
	}
}

// handle 解析失败的消息直接丢弃，下一条消息会覆盖它
func (tc *tickerConn) handle(message []byte) {
	tickers, err := api.ParseTickers(message)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("ticker", "malformed").Inc()
		tc.log.Debug("Dropping malformed ticker message", zap.Error(err))
		return
	}

	tc.mu.Lock()
	tc.lastMessage = time.Now()
	tc.mu.Unlock()

	for _, t := range tc.e.selectTracked(tickers) {
		tc.e.snapshots.UpsertTicker(tc.segment, t)
	}
	metrics.MessagesTotal.WithLabelValues("ticker", "ok").Inc()
}

func (tc *tickerConn) status() model.TickerStatus {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return model.TickerStatus{
		State:       tc.state.String(),
		Open:        tc.state == stateConnected,
		Attempt:     tc.backoff.Attempt(),
		LastMessage: tc.lastMessage,
	}
}

// selectTracked 只保留计价币匹配、非杠杆代币的交易对，按成交额取前 TrackedPerSegment 个
func (e *Engine) selectTracked(tickers []model.Ticker) []model.Ticker {
	quote := e.cfg.QuoteCurrency
	out := make([]model.Ticker, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, quote) {
			continue
		}
		base := strings.TrimSuffix(t.Symbol, quote)
		if base == "" || isLeveraged(base, e.cfg.LeveragedMarkers) {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].QuoteVolume != out[j].QuoteVolume {
			return out[i].QuoteVolume > out[j].QuoteVolume
		}
		return out[i].Symbol < out[j].Symbol
	})
	if len(out) > e.cfg.TrackedPerSegment {
		out = out[:e.cfg.TrackedPerSegment]
	}
	return out
}

// isLeveraged 杠杆代币形如 BTCUP / ETHBULL：基础币以标记结尾，且标记前至少还有两个字符。
// 与"包含标记子串"的规则不同，JUPUSDT、SUPERUSDT 会保留
func isLeveraged(base string, markers []string) bool {
	for _, m := range markers {
		if strings.HasSuffix(base, m) && len(base) > len(m)+1 {
			return true
		}
	}
	return false
}
