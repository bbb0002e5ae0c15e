package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crypto-rsi-scanner/internal/api"
	"crypto-rsi-scanner/internal/metrics"
	"crypto-rsi-scanner/internal/model"
)

// groupState K 线连接组状态；只有 Open 状态下收到的消息会写入历史
type groupState int

const (
	groupPending groupState = iota
	groupOpen
	groupClosing
	groupClosed
)

func (s groupState) String() string {
	switch s {
	case groupPending:
		return "pending"
	case groupOpen:
		return "open"
	case groupClosing:
		return "closing"
	default:
		return "closed"
	}
}

// streamRef 一个 (symbol, timeframe) K 线流
type streamRef struct {
	Symbol    string
	Timeframe model.Timeframe
}

func (r streamRef) name() string {
	return api.StreamName(r.Symbol, r.Timeframe)
}

// candleGroup 一条组合流连接，最多承载 StreamsPerConnection 个 K 线流
type candleGroup struct {
	id      string
	index   int
	segment model.Segment
	e       *Engine
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   groupState
	conn    api.Conn
	streams []streamRef
}

func newCandleGroup(parent context.Context, e *Engine, index int, seg model.Segment, streams []streamRef) *candleGroup {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	metrics.CandleGroups.WithLabelValues(groupPending.String()).Inc()
	return &candleGroup{
		id:      id,
		index:   index,
		segment: seg,
		e:       e,
		log: e.log.With(zap.String("segment", string(seg)), zap.String("stream", "candles"),
			zap.String("group", id), zap.Int("index", index)),
		ctx:     ctx,
		cancel:  cancel,
		state:   groupPending,
		streams: streams,
	}
}

// transition 切换状态；Closing 只能进入 Closed，Closed 是终态
func (g *candleGroup) transition(to groupState, conn api.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	from := g.state
	if from == to {
		g.conn = conn
		return true
	}
	if from == groupClosed || (from == groupClosing && to != groupClosed) {
		return false
	}
	g.state = to
	g.conn = conn
	metrics.CandleGroups.WithLabelValues(from.String()).Dec()
	if to != groupClosed {
		metrics.CandleGroups.WithLabelValues(to.String()).Inc()
	}
	return true
}

// run 连接并读取消息；断开后只为仍在活跃集合中的交易对重建连接
func (g *candleGroup) run(ctx context.Context) {
	defer g.transition(groupClosed, nil)

	for {
		url := api.CombinedURL(g.e.streamURL(g.segment), g.streamNames())
		conn, err := g.e.dialer.Dial(ctx, url)
		if err == nil {
			if !g.transition(groupOpen, conn) {
				conn.Close()
				return
			}
			g.log.Info("Candle streams connected", zap.Int("streams", g.streamCount()))
			g.readLoop(ctx, conn)
		} else if ctx.Err() == nil {
			g.log.Warn("Candle stream connect failed", zap.Error(err))
		}

		if ctx.Err() != nil {
			return
		}
		if !g.transition(groupPending, nil) {
			return
		}

		remaining := g.e.retainActive(g.snapshotStreams())
		if len(remaining) == 0 {
			g.log.Info("No subscribed symbols left, dropping candle connection")
			g.e.removeGroup(g)
			return
		}
		g.mu.Lock()
		g.streams = remaining
		g.mu.Unlock()

		delay := g.e.cfg.RegroupDelay + time.Duration(g.index)*g.e.cfg.RegroupStagger
		metrics.Reconnects.WithLabelValues("candles", string(g.segment)).Inc()
		g.log.Warn("Candle stream closed, scheduling reconnect",
			zap.Duration("delay", delay), zap.Int("streams", len(remaining)))
		if !sleep(ctx, delay) {
			return
		}
	}
}

func (g *candleGroup) readLoop(ctx context.Context, conn api.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				g.log.Warn("Error reading candle stream", zap.Error(err))
			}
			return
		}
		g.handle(message)
	}
}

// handle 收盘 K 线只写入历史窗口，指标在下一次 ticker 更新时才重新计算
func (g *candleGroup) handle(message []byte) {
	if !g.accepting() {
		return
	}
	candle, err := api.ParseKline(message)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("candle", "malformed").Inc()
		g.log.Debug("Dropping malformed candle message", zap.Error(err))
		return
	}
	if !candle.Closed {
		metrics.MessagesTotal.WithLabelValues("candle", "open").Inc()
		return
	}
	if g.e.history.AppendClosed(candle) {
		metrics.MessagesTotal.WithLabelValues("candle", "ok").Inc()
	} else {
		metrics.MessagesTotal.WithLabelValues("candle", "stale").Inc()
	}
}

func (g *candleGroup) accepting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == groupOpen
}

// teardown 由再平衡器调用：先标记 Closing 再关闭连接，之后到达的消息会被忽略
func (g *candleGroup) teardown() {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()

	g.transition(groupClosing, nil)
	g.cancel()
	if conn != nil {
		conn.Close()
	}
}

func (g *candleGroup) streamNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, len(g.streams))
	for i, s := range g.streams {
		names[i] = s.name()
	}
	return names
}

func (g *candleGroup) snapshotStreams() []streamRef {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]streamRef(nil), g.streams...)
}

func (g *candleGroup) streamCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.streams)
}

func (g *candleGroup) status() model.GroupStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return model.GroupStatus{
		ID:      g.id,
		Segment: g.segment,
		Streams: len(g.streams),
		State:   g.state.String(),
	}
}
