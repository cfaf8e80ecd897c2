package model

// RawEvent is the wire shape of one feed message, as decoded by the
// transport before normalization. Numeric fields are pointers so that a
// missing field is distinguishable from a zero value.
type RawEvent struct {
	Mode     string `json:"mode"` // "ltp", "quote" or "depth"
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`

	LTP    *float64 `json:"ltp,omitempty"`
	Open   *float64 `json:"open,omitempty"`
	High   *float64 `json:"high,omitempty"`
	Low    *float64 `json:"low,omitempty"`
	Close  *float64 `json:"close,omitempty"`
	Volume int64    `json:"volume,omitempty"`

	Bids         []RawLevel `json:"bids,omitempty"`
	Asks         []RawLevel `json:"asks,omitempty"`
	TotalBuyQty  int64      `json:"total_buy_qty,omitempty"`
	TotalSellQty int64      `json:"total_sell_qty,omitempty"`

	// Source timestamp in epoch milliseconds, 0 when the feed omits it.
	TimestampMs int64 `json:"timestamp_ms,omitempty"`
}

// RawLevel is one raw order-book level.
type RawLevel struct {
	Price float64 `json:"price"`
	Qty   int64   `json:"qty"`
}
