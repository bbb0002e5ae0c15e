package api

import (
	"testing"

	"crypto-rsi-scanner/internal/model"
)

// 完整的 !ticker@arr 推送，包含与使用字段大小写成对的 E/C/L/O/F/Q/p
const tickerArray = `[
 {"e":"24hrTicker","E":1700000000123,"s":"BTCUSDT","p":"1585.10","P":"2.50","w":"65210.44","x":"63415.00","c":"65000.1","Q":"0.015","b":"64999.9","B":"1.2","a":"65000.2","A":"0.8","o":"63415.00","h":"66000","l":"64000","v":"10","q":"650000000","O":1699913600123,"C":1700000000123,"F":3200000000,"L":3201234567,"n":1234568},
 {"e":"24hrTicker","E":1700000000123,"s":"ETHUSDT","p":"-39.25","P":"-1.25","w":"3120.10","x":"3139.25","c":"3100","Q":"0.5","b":"3099.9","B":"12","a":"3100.1","A":"7","o":"3139.25","h":"3200","l":"3000","v":"10","q":"31000000","O":1699913600123,"C":1700000000123,"F":1500000000,"L":1500456789,"n":456790},
 {"e":"24hrTicker","E":1700000000123,"s":"BADUSDT","p":"1","P":"x","w":"1","x":"1","c":"1","Q":"1","b":"1","B":"1","a":"1","A":"1","o":"1","h":"1","l":"1","v":"1","q":"1","O":1,"C":2,"F":1,"L":2,"n":2}
]`

func TestParseTickers(t *testing.T) {
	tickers, err := ParseTickers([]byte(tickerArray))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tickers) != 2 {
		t.Fatalf("expected malformed entry to be skipped, got %d tickers", len(tickers))
	}
	btc := tickers[0]
	if btc.Symbol != "BTCUSDT" || btc.Price != 65000.1 || btc.QuoteVolume != 650000000 ||
		btc.ChangePercent != 2.5 || btc.High != 66000 || btc.Low != 64000 {
		t.Errorf("unexpected ticker %+v", btc)
	}
}

func TestParseTickersKeepsCaseTwinsApart(t *testing.T) {
	tickers, err := ParseTickers([]byte(tickerArray))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eth := tickers[1]
	// p (绝对涨跌) 与 P (百分比)、L (成交 ID) 与 l (最低价) 不能互相覆盖
	if eth.ChangePercent != -1.25 || eth.Low != 3000 || eth.Price != 3100 {
		t.Errorf("case-twin fields leaked into %+v", eth)
	}

	// P 出现在 p 之前时结果相同
	reordered := `[{"e":"24hrTicker","E":1,"s":"SOLUSDT","P":"4.00","p":"6.00","c":"150","C":2,"h":"155","l":"140","L":9,"q":"100","Q":"1"}]`
	tickers, err = ParseTickers([]byte(reordered))
	if err != nil || len(tickers) != 1 {
		t.Fatalf("unexpected result %v, %v", tickers, err)
	}
	if tickers[0].ChangePercent != 4 || tickers[0].Low != 140 || tickers[0].QuoteVolume != 100 {
		t.Errorf("unexpected ticker %+v", tickers[0])
	}
}

func TestParseTickersCombinedEnvelope(t *testing.T) {
	msg := `{"stream":"!ticker@arr","data":` + tickerArray + `}`
	tickers, err := ParseTickers([]byte(msg))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tickers) != 2 {
		t.Errorf("expected 2 tickers, got %d", len(tickers))
	}
}

func TestParseTickersMalformed(t *testing.T) {
	for _, in := range []string{"", "not json", `{"result":null,"id":1}`} {
		if _, err := ParseTickers([]byte(in)); err == nil {
			t.Errorf("expected error for %q", in)
		} else if !IsCode(err, ErrorDecode) {
			t.Errorf("expected decode error for %q, got %v", in, err)
		}
	}
}

// 完整的组合流 K 线推送，L/V/Q/q 与 l/v 大小写成对
const klineMsg = `{"stream":"btcusdt@kline_1h","data":{"e":"kline","E":1700000000000,"s":"BTCUSDT",
"k":{"t":1699996400000,"T":1699999999999,"s":"BTCUSDT","i":"1h","f":100,"L":200,"o":"100","c":"101.5","h":"102","l":"99","v":"12.5","n":101,"x":true,"q":"1260.25","V":"7.25","Q":"731.5","B":"0"}}}`

func TestParseKline(t *testing.T) {
	c, err := ParseKline([]byte(klineMsg))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := model.Candle{
		Symbol: "BTCUSDT", Timeframe: "1h",
		Open: 100, High: 102, Low: 99, Close: 101.5, Volume: 12.5,
		OpenTime: 1699996400000, CloseTime: 1699999999999, Closed: true,
	}
	if c != want {
		t.Errorf("got %+v, want %+v", c, want)
	}
}

func TestParseKlineTakerVolumeDoesNotOverrideVolume(t *testing.T) {
	msg := `{"e":"kline","E":1,"s":"ETHUSDT","k":{"t":0,"T":59999,"s":"ETHUSDT","i":"1m","f":1,"L":2,"o":"1","c":"2","h":"3","l":"0.5","v":"40","n":2,"x":false,"q":"80","V":"15","Q":"30","B":"0"}}`
	c, err := ParseKline([]byte(msg))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Volume != 40 || c.Low != 0.5 || c.Closed {
		t.Errorf("unexpected candle %+v", c)
	}
}

func TestParseKlineRejectsOtherEvents(t *testing.T) {
	if _, err := ParseKline([]byte(`{"e":"aggTrade","s":"BTCUSDT"}`)); err == nil {
		t.Error("expected error for non-kline event")
	}
	if _, err := ParseKline([]byte(`{"e":"kline","s":"BTCUSDT","k":{"c":"abc"}}`)); err == nil {
		t.Error("expected error for bad price")
	}
}

func TestStreamNames(t *testing.T) {
	if got := StreamName("BTCUSDT", "4h"); got != "btcusdt@kline_4h" {
		t.Errorf("got %s", got)
	}
	got := CombinedURL("wss://x/stream?streams=", []string{"a@kline_1h", "b@kline_1d"})
	if got != "wss://x/stream?streams=a@kline_1h/b@kline_1d" {
		t.Errorf("got %s", got)
	}
}
