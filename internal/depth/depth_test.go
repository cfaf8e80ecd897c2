package depth

import (
	"math"
	"testing"

	"indicator-enginev1/internal/model"
)

func TestAnalyze_SpreadAndImbalance(t *testing.T) {
	// Best bid 99.5 x 100, best ask 100.0 x 50, totals 1000/500:
	// spread = 0.5, mid = 99.75, imbalance = 1000/1500 ≈ 0.667.
	snap := &model.DepthSnapshot{
		Instrument:   model.NewInstrument("NSE", "SBIN"),
		TotalBuyQty:  1000,
		TotalSellQty: 500,
	}
	snap.Bids[0] = model.PriceLevel{Price: 99.5, Qty: 100}
	snap.Bids[1] = model.PriceLevel{Price: 99.0, Qty: 250}
	snap.Asks[0] = model.PriceLevel{Price: 100.0, Qty: 50}
	snap.Asks[1] = model.PriceLevel{Price: 100.5, Qty: 75}

	m := Analyze(snap)

	if math.Abs(m.Spread-0.5) > 1e-12 {
		t.Errorf("spread: got %v, want 0.5", m.Spread)
	}
	if math.Abs(m.MidPrice-99.75) > 1e-12 {
		t.Errorf("mid: got %v, want 99.75", m.MidPrice)
	}
	if math.Abs(m.ImbalanceRatio-1000.0/1500.0) > 1e-12 {
		t.Errorf("imbalance: got %v, want %v", m.ImbalanceRatio, 1000.0/1500.0)
	}
}

func TestAnalyze_EmptySideIsNaN(t *testing.T) {
	snap := &model.DepthSnapshot{TotalBuyQty: 10, TotalSellQty: 20}
	snap.Bids[0] = model.PriceLevel{Price: 99.5, Qty: 100}
	// Ask side empty.

	m := Analyze(snap)
	if !math.IsNaN(m.Spread) {
		t.Errorf("spread with empty ask side: got %v, want NaN", m.Spread)
	}
	if !math.IsNaN(m.MidPrice) {
		t.Errorf("mid with empty ask side: got %v, want NaN", m.MidPrice)
	}
	if math.IsNaN(m.ImbalanceRatio) {
		t.Error("imbalance should still be defined with nonzero totals")
	}
}

func TestAnalyze_ZeroTotalsIsNaN(t *testing.T) {
	snap := &model.DepthSnapshot{}
	m := Analyze(snap)
	if !math.IsNaN(m.ImbalanceRatio) {
		t.Errorf("imbalance with zero totals: got %v, want NaN", m.ImbalanceRatio)
	}
}
