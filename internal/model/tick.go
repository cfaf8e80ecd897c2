package model

import "time"

// TickKind discriminates the tick variants carried by Tick.
type TickKind uint8

const (
	KindLTP TickKind = iota + 1
	KindQuote
	KindDepth
)

// String returns the feed-protocol name of the tick kind.
func (k TickKind) String() string {
	switch k {
	case KindLTP:
		return "ltp"
	case KindQuote:
		return "quote"
	case KindDepth:
		return "depth"
	}
	return "unknown"
}

// Tick is one normalized market data update. Kind selects which fields are
// meaningful: LTP ticks carry Price only, Quote ticks carry OHLC + Price +
// Volume, Depth ticks carry the Depth snapshot and no price history.
// Prices are float64; ingestion guarantees they are finite and positive.
type Tick struct {
	Kind       TickKind   `json:"kind"`
	Instrument Instrument `json:"instrument"`
	TS         time.Time  `json:"ts"` // UTC, monotone non-decreasing per instrument

	Price float64 `json:"price,omitempty"` // last traded price (LTP and Quote)

	// Quote fields
	Open   float64 `json:"open,omitempty"`
	High   float64 `json:"high,omitempty"`
	Low    float64 `json:"low,omitempty"`
	Close  float64 `json:"close,omitempty"`
	Volume int64   `json:"volume,omitempty"`

	// Depth payload, nil for non-depth ticks. Ephemeral: consumed by the
	// depth analyzer and discarded, never buffered.
	Depth *DepthSnapshot `json:"depth,omitempty"`
}

// Key returns the instrument routing key "exchange:symbol".
func (t *Tick) Key() string {
	return t.Instrument.Key()
}

// BufferValue returns the value this tick contributes to the rolling close
// buffer: Close for quote ticks, Price for LTP ticks. Depth ticks contribute
// nothing and return false.
func (t *Tick) BufferValue() (float64, bool) {
	switch t.Kind {
	case KindLTP:
		return t.Price, true
	case KindQuote:
		return t.Close, true
	}
	return 0, false
}
