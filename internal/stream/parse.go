package stream

import (
	"encoding/json"
	"strconv"
	"time"

	"momentum-core/internal/series"
)

// combinedFrame is the envelope of the /stream endpoint. The payload
// type is decided by data.e, so data stays raw until then.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type klineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Symbol    string `json:"s"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

type markPriceEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

// parseCombined decodes one combined-stream frame. ok is false for
// event types the engine does not consume.
func parseCombined(raw []byte) (Message, bool, error) {
	var frame combinedFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Message{}, false, err
	}
	var head struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"`
	}
	if err := json.Unmarshal(frame.Data, &head); err != nil {
		return Message{}, false, err
	}

	switch head.EventType {
	case "kline":
		var ev klineEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return Message{}, false, err
		}
		open := time.UnixMilli(ev.Kline.StartTime).UTC()
		return Message{
			Type:   MessageKline,
			Symbol: ev.Symbol,
			Time:   open,
			Candle: series.Candle{
				Symbol:   ev.Symbol,
				OpenTime: open,
				Open:     atof(ev.Kline.Open),
				High:     atof(ev.Kline.High),
				Low:      atof(ev.Kline.Low),
				Close:    atof(ev.Kline.Close),
				Volume:   atof(ev.Kline.Volume),
				Closed:   ev.Kline.Closed,
			},
		}, true, nil
	case "markPriceUpdate":
		var ev markPriceEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return Message{}, false, err
		}
		return Message{
			Type:   MessageMarkPrice,
			Symbol: ev.Symbol,
			Time:   time.UnixMilli(ev.EventTime).UTC(),
			Price:  atof(ev.MarkPrice),
		}, true, nil
	}
	return Message{}, false, nil
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
