package stream

import (
	"context"
	"testing"
	"time"
)

func TestParseKlineFrame(t *testing.T) {
	raw := []byte(`{
		"stream": "btcusdt@kline_1m",
		"data": {
			"e": "kline", "E": 1700000060123, "s": "BTCUSDT",
			"k": {
				"t": 1700000040000, "T": 1700000099999, "s": "BTCUSDT", "i": "1m",
				"o": "37000.10", "c": "37012.50", "h": "37020.00", "l": "36990.00",
				"v": "153.271", "x": true
			}
		}
	}`)

	msg, ok, err := parseCombined(raw)
	if err != nil {
		t.Fatalf("parseCombined: %v", err)
	}
	if !ok || msg.Type != MessageKline {
		t.Fatalf("msg=%+v ok=%v, expected kline message", msg, ok)
	}
	if msg.Symbol != "BTCUSDT" {
		t.Fatalf("symbol=%q", msg.Symbol)
	}
	c := msg.Candle
	if !c.Closed {
		t.Fatal("candle should carry the closed flag")
	}
	if c.Open != 37000.10 || c.Close != 37012.50 || c.High != 37020 || c.Low != 36990 || c.Volume != 153.271 {
		t.Fatalf("candle fields off: %+v", c)
	}
	want := time.UnixMilli(1700000040000).UTC()
	if !c.OpenTime.Equal(want) {
		t.Fatalf("open time=%v, expected %v", c.OpenTime, want)
	}
}

func TestParseFormingKlineKeepsClosedFalse(t *testing.T) {
	raw := []byte(`{"stream":"ethusdt@kline_1m","data":{"e":"kline","s":"ETHUSDT","k":{"t":1700000040000,"o":"2000","c":"2001","h":"2002","l":"1999","v":"10","x":false}}}`)
	msg, ok, err := parseCombined(raw)
	if err != nil || !ok {
		t.Fatalf("parseCombined: ok=%v err=%v", ok, err)
	}
	if msg.Candle.Closed {
		t.Fatal("forming candle must not be marked closed")
	}
}

func TestParseMarkPriceFrame(t *testing.T) {
	raw := []byte(`{"stream":"solusdt@markPrice@1s","data":{"e":"markPriceUpdate","E":1700000001000,"s":"SOLUSDT","p":"58.4321"}}`)
	msg, ok, err := parseCombined(raw)
	if err != nil {
		t.Fatalf("parseCombined: %v", err)
	}
	if !ok || msg.Type != MessageMarkPrice {
		t.Fatalf("msg=%+v ok=%v, expected mark price message", msg, ok)
	}
	if msg.Symbol != "SOLUSDT" || msg.Price != 58.4321 {
		t.Fatalf("parsed %q %v", msg.Symbol, msg.Price)
	}
}

func TestParseIgnoresUnknownEvents(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@forceOrder","data":{"e":"forceOrder","s":"BTCUSDT"}}`)
	_, ok, err := parseCombined(raw)
	if err != nil {
		t.Fatalf("parseCombined: %v", err)
	}
	if ok {
		t.Fatal("unknown event types should be skipped, not surfaced")
	}
}

func TestStreamNames(t *testing.T) {
	if got := KlineStream("BTCUSDT"); got != "btcusdt@kline_1m" {
		t.Fatalf("kline stream=%q", got)
	}
	if got := MarkPriceStream("SOLUSDT"); got != "solusdt@markPrice@1s" {
		t.Fatalf("mark price stream=%q", got)
	}
}

func TestSetStreamsBatching(t *testing.T) {
	// A cancelled context makes each socket goroutine exit before
	// dialing, so only the batching bookkeeping runs.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager(Config{Testnet: true})
	defer m.Close()

	names := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		names = append(names, KlineStream(symbolN(i)))
	}
	m.SetStreams(ctx, names)

	m.mu.Lock()
	sockets := len(m.sockets)
	m.mu.Unlock()
	if sockets != 3 {
		t.Fatalf("sockets=%d for 120 streams, expected 3 batches", sockets)
	}

	// Same set again, different order: no rebuild.
	shuffled := append([]string(nil), names...)
	shuffled[0], shuffled[len(shuffled)-1] = shuffled[len(shuffled)-1], shuffled[0]
	m.SetStreams(ctx, shuffled)
	m.mu.Lock()
	same := len(m.sockets) == sockets
	m.mu.Unlock()
	if !same {
		t.Fatal("unchanged stream set must not rebuild sockets")
	}
}

func TestSetStreamsKeepsUnchangedBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager(Config{Testnet: true})
	defer m.Close()

	names := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		names = append(names, KlineStream(symbolN(i)))
	}
	m.SetStreams(ctx, names)

	m.mu.Lock()
	if len(m.sockets) != 2 {
		m.mu.Unlock()
		t.Fatalf("sockets=%d for 60 streams, expected 2", len(m.sockets))
	}
	first := m.sockets[0]
	m.mu.Unlock()

	// One extra stream sorting after every existing name touches only
	// the second batch; the first batch's connection must survive.
	withExtra := append(append([]string(nil), names...), "zzzusdt@markPrice@1s")
	m.SetStreams(ctx, withExtra)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sockets) != 2 {
		t.Fatalf("sockets=%d after adding one stream, expected 2", len(m.sockets))
	}
	if m.sockets[0] != first {
		t.Fatal("socket whose batch did not change was rebuilt")
	}
	if got := len(m.sockets[1].streams); got != 11 {
		t.Fatalf("second batch carries %d streams, expected 11", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.setDefaults()
	if c.BatchSize != 50 || c.IdleAfter != 60*time.Second || c.BackoffCap != 60*time.Second {
		t.Fatalf("defaults off: %+v", c)
	}

	c = Config{BatchSize: 25, IdleAfter: 30 * time.Second, BackoffCap: 2 * time.Minute}
	c.setDefaults()
	if c.BatchSize != 25 || c.IdleAfter != 30*time.Second || c.BackoffCap != 2*time.Minute {
		t.Fatalf("explicit values overridden: %+v", c)
	}
}

func symbolN(i int) string {
	return "S" + string(rune('A'+i%26)) + string(rune('A'+(i/26)%26)) + "USDT"
}
