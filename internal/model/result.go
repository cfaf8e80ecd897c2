package model

import (
	"encoding/json"
	"time"
)

// IndicatorResult holds one computed indicator value for an instrument.
// Value is NaN while the indicator is warming up (Ready=false); NaN warm-up
// output is a normal state, not an error.
type IndicatorResult struct {
	Name     string    `json:"name"` // e.g. "SMA_20", "EMA_9", "RSI_14"
	Exchange string    `json:"exchange"`
	Symbol   string    `json:"symbol"`
	Value    float64   `json:"value"`
	TS       time.Time `json:"ts"`    // timestamp of the tick that produced this value
	Ready    bool      `json:"ready"` // true once the minimum sample count is reached
}

// Key returns "exchange:symbol".
func (r *IndicatorResult) Key() string {
	return r.Exchange + ":" + r.Symbol
}

// ChannelKey returns the pub/sub channel for this result:
// "ind:{name}:{exchange}:{symbol}".
func (r *IndicatorResult) ChannelKey() string {
	return "ind:" + r.Name + ":" + r.Exchange + ":" + r.Symbol
}

// JSON returns the JSON-encoded result. NaN is not representable in JSON,
// so warm-up values are serialized with Value omitted.
func (r *IndicatorResult) JSON() []byte {
	if r.Value != r.Value { // NaN
		tmp := struct {
			Name     string    `json:"name"`
			Exchange string    `json:"exchange"`
			Symbol   string    `json:"symbol"`
			TS       time.Time `json:"ts"`
			Ready    bool      `json:"ready"`
		}{r.Name, r.Exchange, r.Symbol, r.TS, r.Ready}
		b, _ := json.Marshal(tmp)
		return b
	}
	b, _ := json.Marshal(r)
	return b
}
