package model

import "time"

// BookLevels is the number of price levels per side in a depth snapshot (L5 book).
const BookLevels = 5

// PriceLevel is one order-book level: aggregate quantity resting at a price.
type PriceLevel struct {
	Price float64 `json:"price"`
	Qty   int64   `json:"qty"`
}

// DepthSnapshot is an L5 order-book snapshot for one instrument.
// It is ephemeral: analyzed on arrival and discarded, never retained.
// Bids are sorted best (highest) first, asks best (lowest) first; entries
// beyond the populated levels have zero Qty.
type DepthSnapshot struct {
	Instrument   Instrument            `json:"instrument"`
	TS           time.Time             `json:"ts"`
	Bids         [BookLevels]PriceLevel `json:"bids"`
	Asks         [BookLevels]PriceLevel `json:"asks"`
	TotalBuyQty  int64                 `json:"total_buy_qty"`
	TotalSellQty int64                 `json:"total_sell_qty"`
}

// BestBid returns the top bid level and whether the bid side is non-empty.
func (d *DepthSnapshot) BestBid() (PriceLevel, bool) {
	if d.Bids[0].Qty <= 0 {
		return PriceLevel{}, false
	}
	return d.Bids[0], true
}

// BestAsk returns the top ask level and whether the ask side is non-empty.
func (d *DepthSnapshot) BestAsk() (PriceLevel, bool) {
	if d.Asks[0].Qty <= 0 {
		return PriceLevel{}, false
	}
	return d.Asks[0], true
}
