package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"crypto-rsi-scanner/internal/api"
	"crypto-rsi-scanner/internal/data"
	"crypto-rsi-scanner/internal/model"
	"crypto-rsi-scanner/internal/service"
)

// KlineFetcher 历史 K 线拉取接口 (回填路径使用)
type KlineFetcher interface {
	Klines(ctx context.Context, seg model.Segment, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error)
}

// subscription 活跃订阅集合中的一项：交易对及其排名所在的分段
type subscription struct {
	Symbol  string
	Segment model.Segment
}

// Engine 行情采集与指标引擎。
// 拥有全部存储和连接；外部只通过 GetSnapshot / GetConnectionStatus 读取。
type Engine struct {
	cfg        service.EngineConfig
	exchange   service.ExchangeConfig
	log        *zap.Logger
	dialer     api.Dialer
	fetcher    KlineFetcher
	timeframes data.Timeframes

	history   *data.HistoryStore
	snapshots *data.SnapshotStore
	limiter   *rate.Limiter
	tickers   map[model.Segment]*tickerConn

	// 活跃订阅集合和 K 线连接组，只由再平衡器替换
	subMu  sync.RWMutex
	active map[string]model.Segment
	groups []*candleGroup

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	lifeMu  sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New 创建引擎；dialer 和 fetcher 可以替换为测试实现
func New(cfg *service.Config, dialer api.Dialer, fetcher KlineFetcher, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ec := cfg.Engine
	var tfs data.Timeframes
	for i, tf := range ec.Timeframes {
		tfs[i] = model.Timeframe(tf)
	}

	history := data.NewHistoryStore(ec.HistoryCapacity)
	e := &Engine{
		cfg:        ec,
		exchange:   cfg.Exchange,
		log:        logger.With(zap.String("component", "engine")),
		dialer:     dialer,
		fetcher:    fetcher,
		timeframes: tfs,
		history:    history,
		snapshots:  data.NewSnapshotStore(history, tfs, ec.RSIPeriod),
		limiter:    rate.NewLimiter(rate.Every(ec.FallbackSpacing), 1),
		tickers:    make(map[model.Segment]*tickerConn),
		active:     make(map[string]model.Segment),
		inflight:   make(map[string]struct{}),
	}
	for _, seg := range model.Segments {
		url := e.tickerURL(seg)
		if url == "" {
			continue
		}
		e.tickers[seg] = newTickerConn(e, seg, url)
	}
	return e, nil
}

// Start 打开每个分段的 ticker 连接并启动再平衡定时器
func (e *Engine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.started {
		return errors.New("engine already started")
	}
	if e.dialer == nil {
		return errors.New("engine has no stream dialer")
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.started = true

	for _, tc := range e.tickers {
		e.goTracked(e.ctx, tc.run)
	}
	e.goTracked(e.ctx, e.rebalanceLoop)

	e.log.Info("Engine started",
		zap.Int("segments", len(e.tickers)),
		zap.Strings("timeframes", e.cfg.Timeframes))
	return nil
}

// Stop 关闭全部连接、取消所有定时器并清空存储
func (e *Engine) Stop() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if !e.started {
		return
	}
	// 取消 ctx 会关闭所有连接并中断所有等待中的重连定时器
	e.cancel()
	e.wg.Wait()

	e.subMu.Lock()
	groups := e.groups
	e.groups = nil
	e.active = make(map[string]model.Segment)
	e.subMu.Unlock()
	for _, g := range groups {
		g.teardown()
	}

	e.history.Clear()
	e.snapshots.Clear()
	e.started = false
	e.log.Info("Engine stopped")
}

// goTracked 启动一个受 Stop 等待的 goroutine
func (e *Engine) goTracked(ctx context.Context, fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(ctx)
	}()
}

func (e *Engine) tickerURL(seg model.Segment) string {
	switch seg {
	case model.SegmentSpot:
		return e.exchange.SpotWSURL
	case model.SegmentDerivatives:
		return e.exchange.DerivativesWSURL
	}
	return ""
}

func (e *Engine) streamURL(seg model.Segment) string {
	switch seg {
	case model.SegmentSpot:
		return e.exchange.SpotStreamURL
	case model.SegmentDerivatives:
		return e.exchange.DerivativesStreamURL
	}
	return ""
}

// GetConnectionStatus 返回 ticker 连接、K 线连接组和活跃订阅集合的状态
func (e *Engine) GetConnectionStatus() model.ConnectionStatus {
	status := model.ConnectionStatus{
		Tickers: make(map[model.Segment]model.TickerStatus, len(e.tickers)),
	}
	for seg, tc := range e.tickers {
		status.Tickers[seg] = tc.status()
	}

	e.subMu.RLock()
	groups := append([]*candleGroup(nil), e.groups...)
	for symbol := range e.active {
		status.Subscriptions = append(status.Subscriptions, symbol)
	}
	e.subMu.RUnlock()
	sort.Strings(status.Subscriptions)

	for _, g := range groups {
		gs := g.status()
		status.Groups = append(status.Groups, gs)
		if gs.State == groupOpen.String() {
			status.CandleGroupsOpen++
		}
	}
	status.CandleGroups = len(groups)
	return status
}

// sleep 等待 d 或 ctx 结束；ctx 结束时返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
