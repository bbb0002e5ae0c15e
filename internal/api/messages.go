package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"crypto-rsi-scanner/internal/model"
	"crypto-rsi-scanner/internal/service"
)

// tickerData 全市场 ticker 数组中的一项 (!ticker@arr)。
// encoding/json 的 key 匹配不区分大小写，大小写成对的字段 (E/e, C/c, L/l, P/p, Q/q) 必须都声明，
// 否则数字字段会落到同名的字符串字段上导致整条消息解析失败
type tickerData struct {
	EventType     string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	PriceChange   string `json:"p"`
	ChangePercent string `json:"P"`
	LastPrice     string `json:"c"`
	LastQty       string `json:"Q"`
	High          string `json:"h"`
	Low           string `json:"l"`
	Volume        string `json:"v"`
	QuoteVolume   string `json:"q"`
	OpenTime      int64  `json:"O"`
	CloseTime     int64  `json:"C"`
	FirstTradeID  int64  `json:"F"`
	LastTradeID   int64  `json:"L"`
	TradeCount    int64  `json:"n"`
}

// klineData K 线推送 (<symbol>@kline_<interval>)
type klineData struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Symbol    string `json:"s"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		Final     bool   `json:"x"`

		// 以下字段不使用，声明它们是为了不让 L/V/Q 落到 l/v/q 上
		FirstTradeID             int64  `json:"f"`
		LastTradeID              int64  `json:"L"`
		NumberOfTrades           int64  `json:"n"`
		QuoteAssetVolume         string `json:"q"`
		TakerBuyBaseAssetVolume  string `json:"V"`
		TakerBuyQuoteAssetVolume string `json:"Q"`
		Ignore                   string `json:"B"`
	} `json:"k"`
}

// combinedEnvelope 组合流 (/stream?streams=) 的外层结构
type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// unwrap 组合流消息取出 data，普通流消息原样返回
func unwrap(b []byte) ([]byte, error) {
	trimmed := bytes.TrimLeft(b, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, NewDecodeError(errors.New("empty message"))
	}
	if trimmed[0] != '{' {
		return trimmed, nil
	}
	var env combinedEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, NewDecodeError(err)
	}
	if env.Stream == "" || len(env.Data) == 0 {
		return trimmed, nil
	}
	return env.Data, nil
}

// ParseTickers 解析全市场 ticker 消息；单个字段无法解析的项会被跳过
func ParseTickers(b []byte) ([]model.Ticker, error) {
	payload, err := unwrap(b)
	if err != nil {
		return nil, err
	}
	var raw []tickerData
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, NewDecodeError(err)
	}

	tickers := make([]model.Ticker, 0, len(raw))
	for _, r := range raw {
		t, err := r.toTicker()
		if err != nil {
			continue
		}
		tickers = append(tickers, t)
	}
	return tickers, nil
}

func (r tickerData) toTicker() (model.Ticker, error) {
	if r.Symbol == "" {
		return model.Ticker{}, errors.New("missing symbol")
	}
	t := model.Ticker{Symbol: strings.ToUpper(r.Symbol)}
	err := parseFields(
		floatField{r.LastPrice, &t.Price},
		floatField{r.QuoteVolume, &t.QuoteVolume},
		floatField{r.ChangePercent, &t.ChangePercent},
		floatField{r.High, &t.High},
		floatField{r.Low, &t.Low},
	)
	if err != nil {
		return model.Ticker{}, err
	}
	return t, nil
}

// floatField 交易所以字符串下发数值
type floatField struct {
	raw string
	dst *float64
}

func parseFields(fields ...floatField) error {
	for _, f := range fields {
		v, err := service.StringToFloat(f.raw)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}

// ParseKline 解析一条 K 线推送
func ParseKline(b []byte) (model.Candle, error) {
	payload, err := unwrap(b)
	if err != nil {
		return model.Candle{}, err
	}
	var msg klineData
	if err := json.Unmarshal(payload, &msg); err != nil {
		return model.Candle{}, NewDecodeError(err)
	}
	if msg.EventType != "kline" {
		return model.Candle{}, NewDecodeError(fmt.Errorf("unexpected event type %q", msg.EventType))
	}

	k := msg.Kline
	symbol := msg.Symbol
	if symbol == "" {
		symbol = k.Symbol
	}
	c := model.Candle{
		Symbol:    strings.ToUpper(symbol),
		Timeframe: model.Timeframe(k.Interval),
		OpenTime:  k.OpenTime,
		CloseTime: k.CloseTime,
		Closed:    k.Final,
	}
	err = parseFields(
		floatField{k.Open, &c.Open},
		floatField{k.High, &c.High},
		floatField{k.Low, &c.Low},
		floatField{k.Close, &c.Close},
		floatField{k.Volume, &c.Volume},
	)
	if err != nil {
		return model.Candle{}, NewDecodeError(fmt.Errorf("kline %s: %w", c.Symbol, err))
	}
	return c, nil
}

// StreamName K 线流名称，例如 btcusdt@kline_1h
func StreamName(symbol string, tf model.Timeframe) string {
	return strings.ToLower(symbol) + "@kline_" + string(tf)
}

// CombinedURL 拼接组合流地址
func CombinedURL(base string, streams []string) string {
	return base + strings.Join(streams, "/")
}
