// Package depth computes order-book metrics from L5 depth snapshots.
// Analysis is a pure function per update — depth has no history window, so
// snapshots bypass the rolling buffer entirely and are discarded after use.
package depth

import (
	"math"

	"indicator-enginev1/internal/model"
)

// Metrics holds the computed book metrics for one snapshot.
type Metrics struct {
	Spread         float64 `json:"spread"`    // best ask − best bid; NaN if either side empty
	MidPrice       float64 `json:"mid_price"` // (best bid + best ask) / 2; NaN if either side empty
	ImbalanceRatio float64 `json:"imbalance"` // buy qty / (buy qty + sell qty); NaN when both zero
}

// Analyze computes spread, mid price and buy/sell imbalance for a snapshot.
// O(1) in book depth (fixed at 5 levels). No retained state.
func Analyze(snap *model.DepthSnapshot) Metrics {
	m := Metrics{
		Spread:         math.NaN(),
		MidPrice:       math.NaN(),
		ImbalanceRatio: math.NaN(),
	}

	bid, bidOK := snap.BestBid()
	ask, askOK := snap.BestAsk()
	if bidOK && askOK {
		m.Spread = ask.Price - bid.Price
		m.MidPrice = (ask.Price + bid.Price) / 2
	}

	total := snap.TotalBuyQty + snap.TotalSellQty
	if total > 0 {
		m.ImbalanceRatio = float64(snap.TotalBuyQty) / float64(total)
	}
	return m
}
