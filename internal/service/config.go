// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 是进程的全部配置
type Config struct {
	Exchange ExchangeConfig `mapstructure:"Exchange"`
	Engine   EngineConfig   `mapstructure:"Engine"`
	Server   ServerConfig   `mapstructure:"Server"`
	Log      LogConfig      `mapstructure:"Log"`
}

// ExchangeConfig 定义了行情源的连接信息 (每个市场分段一组地址)
type ExchangeConfig struct {
	SpotWSURL            string // 全市场 ticker 流 (spot)
	DerivativesWSURL     string // 全市场 ticker 流 (derivatives)
	SpotStreamURL        string // 组合流前缀，K 线订阅使用
	DerivativesStreamURL string
	SpotRESTURL          string // 历史 K 线接口
	DerivativesRESTURL   string
}

// EngineConfig 定义了采集引擎的参数
type EngineConfig struct {
	QuoteCurrency        string
	LeveragedMarkers     []string
	TrackedPerSegment    int // 每条 ticker 消息写入快照的前 N 个交易对
	RankTopN             int // 再平衡时每个分段取前 N
	PriorityCap          int // 实际订阅 K 线的交易对上限
	StreamsPerConnection int // 单连接订阅数上限
	HistoryCapacity      int
	RSIPeriod            int
	Timeframes           []string // 短/中/长 周期

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RebalanceInterval time.Duration
	RebalanceDelay    time.Duration
	RegroupDelay      time.Duration
	RegroupStagger    time.Duration

	FallbackDelay      time.Duration
	FallbackTimeout    time.Duration
	FallbackLimit      int
	FallbackMinCandles int
	FallbackSpacing    time.Duration
}

// ServerConfig 查询接口监听地址
type ServerConfig struct {
	Addr string
}

// LogConfig 日志级别: debug | info | warn | error
type LogConfig struct {
	Level string
}

// SetDefaults 写入全部默认值，缺少配置文件时也能启动
func SetDefaults(v *viper.Viper) {
	v.SetDefault("Exchange.SpotWSURL", "wss://stream.binance.com:9443/ws/!ticker@arr")
	v.SetDefault("Exchange.DerivativesWSURL", "wss://fstream.binance.com/ws/!ticker@arr")
	v.SetDefault("Exchange.SpotStreamURL", "wss://stream.binance.com:9443/stream?streams=")
	v.SetDefault("Exchange.DerivativesStreamURL", "wss://fstream.binance.com/stream?streams=")
	v.SetDefault("Exchange.SpotRESTURL", "https://api.binance.com/api/v3/klines")
	v.SetDefault("Exchange.DerivativesRESTURL", "https://fapi.binance.com/fapi/v1/klines")

	v.SetDefault("Engine.QuoteCurrency", "USDT")
	v.SetDefault("Engine.LeveragedMarkers", []string{"UP", "DOWN", "BULL", "BEAR"})
	v.SetDefault("Engine.TrackedPerSegment", 50)
	v.SetDefault("Engine.RankTopN", 15)
	v.SetDefault("Engine.PriorityCap", 10)
	v.SetDefault("Engine.StreamsPerConnection", 30)
	v.SetDefault("Engine.HistoryCapacity", 100)
	v.SetDefault("Engine.RSIPeriod", 14)
	v.SetDefault("Engine.Timeframes", []string{"1h", "4h", "1d"})
	v.SetDefault("Engine.InitialBackoff", time.Second)
	v.SetDefault("Engine.MaxBackoff", 30*time.Second)
	v.SetDefault("Engine.RebalanceInterval", 10*time.Second)
	v.SetDefault("Engine.RebalanceDelay", 5*time.Second)
	v.SetDefault("Engine.RegroupDelay", 10*time.Second)
	v.SetDefault("Engine.RegroupStagger", 2*time.Second)
	v.SetDefault("Engine.FallbackDelay", 30*time.Second)
	v.SetDefault("Engine.FallbackTimeout", 9*time.Second)
	v.SetDefault("Engine.FallbackLimit", 100)
	v.SetDefault("Engine.FallbackMinCandles", 15)
	v.SetDefault("Engine.FallbackSpacing", 100*time.Millisecond)

	v.SetDefault("Server.Addr", ":8080")
	v.SetDefault("Log.Level", "info")
}

// LoadConfig 读取并解析配置文件；文件不存在时使用默认值 + 环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("config") // 文件名是 config
	v.SetConfigType("yaml")   // 文件类型是 yaml
	v.AddConfigPath(configPath)

	// SCANNER_ENGINE_RANKTOPN=20 覆盖 Engine.RankTopN
	v.SetEnvPrefix("SCANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查会导致引擎无法工作的配置，并把 Engine.Timeframes 统一为交易所写法
func (c *Config) Validate() error {
	e := c.Engine
	switch {
	case e.QuoteCurrency == "":
		return errors.New("config: Engine.QuoteCurrency is empty")
	case len(e.Timeframes) != 3:
		return fmt.Errorf("config: Engine.Timeframes needs exactly 3 entries, got %d", len(e.Timeframes))
	case e.TrackedPerSegment <= 0, e.RankTopN <= 0, e.PriorityCap <= 0, e.StreamsPerConnection <= 0:
		return errors.New("config: ranking and subscription limits must be positive")
	case e.HistoryCapacity <= e.RSIPeriod:
		return fmt.Errorf("config: Engine.HistoryCapacity (%d) must exceed Engine.RSIPeriod (%d)", e.HistoryCapacity, e.RSIPeriod)
	case e.RSIPeriod < 2:
		return fmt.Errorf("config: Engine.RSIPeriod must be at least 2, got %d", e.RSIPeriod)
	case e.InitialBackoff <= 0 || e.MaxBackoff < e.InitialBackoff:
		return errors.New("config: backoff must satisfy 0 < InitialBackoff <= MaxBackoff")
	case e.FallbackLimit < e.FallbackMinCandles:
		return fmt.Errorf("config: Engine.FallbackLimit (%d) is below Engine.FallbackMinCandles (%d)", e.FallbackLimit, e.FallbackMinCandles)
	}
	tfs, err := NormalizeTimeframes(e.Timeframes)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Engine.Timeframes = tfs
	return nil
}
