package ingest

import (
	"errors"
	"math"
	"testing"
	"time"

	"indicator-enginev1/internal/depth"
	"indicator-enginev1/internal/model"
)

func f(v float64) *float64 { return &v }

func ltpEvent(price float64) model.RawEvent {
	return model.RawEvent{Mode: "ltp", Exchange: "nse", Symbol: "sbin", LTP: f(price)}
}

func TestNormalize_LTP(t *testing.T) {
	n := New()
	tick, err := n.Normalize(ltpEvent(812.55))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tick.Kind != model.KindLTP {
		t.Errorf("kind: got %v", tick.Kind)
	}
	if tick.Instrument.Exchange != "NSE" || tick.Instrument.Symbol != "SBIN" {
		t.Errorf("instrument not case-normalized: %+v", tick.Instrument)
	}
	if tick.Price != 812.55 {
		t.Errorf("price: got %v", tick.Price)
	}
	if tick.TS.IsZero() {
		t.Error("timestamp not attached")
	}
}

func TestNormalize_RejectsBadPrices(t *testing.T) {
	n := New()
	cases := []struct {
		name string
		raw  model.RawEvent
	}{
		{"nan ltp", ltpEvent(math.NaN())},
		{"inf ltp", ltpEvent(math.Inf(1))},
		{"zero ltp", ltpEvent(0)},
		{"negative ltp", ltpEvent(-5)},
		{"missing ltp", model.RawEvent{Mode: "ltp", Exchange: "NSE", Symbol: "SBIN"}},
		{"quote missing close", model.RawEvent{
			Mode: "quote", Exchange: "NSE", Symbol: "SBIN",
			Open: f(1), High: f(2), Low: f(0.5), LTP: f(1.5),
		}},
		{"quote nan high", model.RawEvent{
			Mode: "quote", Exchange: "NSE", Symbol: "SBIN",
			Open: f(1), High: f(math.NaN()), Low: f(0.5), Close: f(1.2), LTP: f(1.5),
		}},
		{"unknown mode", model.RawEvent{Mode: "ohlcv", Exchange: "NSE", Symbol: "SBIN"}},
		{"no instrument", model.RawEvent{Mode: "ltp", LTP: f(10)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := n.Normalize(tc.raw); err == nil {
				t.Fatal("expected rejection, got nil error")
			}
		})
	}
}

func TestNormalize_InvalidValueSentinel(t *testing.T) {
	n := New()
	_, err := n.Normalize(ltpEvent(math.NaN()))
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestNormalize_TimestampMonotone(t *testing.T) {
	n := New()
	base := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)
	n.now = func() time.Time { return base.Add(10 * time.Second) }

	e1 := ltpEvent(100)
	e1.TimestampMs = base.UnixMilli()
	t1, err := n.Normalize(e1)
	if err != nil {
		t.Fatal(err)
	}
	if !t1.TS.Equal(base) {
		t.Fatalf("expected source timestamp, got %v", t1.TS)
	}

	// Stale source timestamp: must not go backwards — the normalization
	// instant is attached instead.
	e2 := ltpEvent(101)
	e2.TimestampMs = base.Add(-5 * time.Second).UnixMilli()
	t2, err := n.Normalize(e2)
	if err != nil {
		t.Fatal(err)
	}
	if t2.TS.Before(t1.TS) {
		t.Fatalf("timestamp went backwards: %v < %v", t2.TS, t1.TS)
	}

	// Missing source timestamp: normalization instant.
	e3 := ltpEvent(102)
	t3, err := n.Normalize(e3)
	if err != nil {
		t.Fatal(err)
	}
	if t3.TS.Before(t2.TS) {
		t.Fatalf("timestamp went backwards: %v < %v", t3.TS, t2.TS)
	}
}

func TestNormalize_PerInstrumentClocks(t *testing.T) {
	// Monotonicity is tracked per instrument; an old timestamp on one symbol
	// must not constrain another.
	n := New()
	early := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	a := ltpEvent(100)
	a.TimestampMs = late.UnixMilli()
	if _, err := n.Normalize(a); err != nil {
		t.Fatal(err)
	}

	b := model.RawEvent{Mode: "ltp", Exchange: "NSE", Symbol: "INFY", LTP: f(50), TimestampMs: early.UnixMilli()}
	tick, err := n.Normalize(b)
	if err != nil {
		t.Fatal(err)
	}
	if !tick.TS.Equal(early) {
		t.Fatalf("INFY clock polluted by SBIN: got %v, want %v", tick.TS, early)
	}
}

func TestNormalize_Depth(t *testing.T) {
	n := New()
	raw := model.RawEvent{
		Mode: "depth", Exchange: "NSE", Symbol: "SBIN",
		Bids:        []model.RawLevel{{Price: 99.5, Qty: 100}, {Price: 99.0, Qty: 50}},
		Asks:        []model.RawLevel{{Price: 100.0, Qty: 50}},
		TotalBuyQty: 1000, TotalSellQty: 500,
	}
	tick, err := n.Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	if tick.Kind != model.KindDepth || tick.Depth == nil {
		t.Fatal("expected depth tick with snapshot")
	}
	if bid, ok := tick.Depth.BestBid(); !ok || bid.Price != 99.5 {
		t.Errorf("best bid: %+v ok=%v", bid, ok)
	}
	if _, ok := tick.BufferValue(); ok {
		t.Error("depth ticks must not contribute to the rolling buffer")
	}
}

func TestNormalize_DepthTruncatesToFiveLevels(t *testing.T) {
	n := New()
	levels := make([]model.RawLevel, 8)
	for i := range levels {
		levels[i] = model.RawLevel{Price: 100 - float64(i), Qty: 10}
	}
	raw := model.RawEvent{Mode: "depth", Exchange: "NSE", Symbol: "SBIN", Bids: levels}
	tick, err := n.Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	if tick.Depth.Bids[model.BookLevels-1].Qty != 10 {
		t.Error("fifth level missing")
	}
}

func TestNormalize_DepthCompactsPlaceholderLevels(t *testing.T) {
	n := New()
	// Feeds pad short books with zero-qty placeholders, sometimes ahead of
	// real levels; populated levels must compact to the front.
	raw := model.RawEvent{
		Mode: "depth", Exchange: "NSE", Symbol: "SBIN",
		Bids: []model.RawLevel{{Price: 0, Qty: 0}, {Price: 99.9, Qty: 50}},
		Asks: []model.RawLevel{{Price: 0, Qty: 0}, {Price: 100.1, Qty: 30}},
	}
	tick, err := n.Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	bid, ok := tick.Depth.BestBid()
	if !ok || bid.Price != 99.9 || bid.Qty != 50 {
		t.Fatalf("best bid = %+v ok=%v, want 99.9/50", bid, ok)
	}
	ask, ok := tick.Depth.BestAsk()
	if !ok || ask.Price != 100.1 {
		t.Fatalf("best ask = %+v ok=%v, want 100.1", ask, ok)
	}

	m := depth.Analyze(tick.Depth)
	if math.IsNaN(m.Spread) || math.IsNaN(m.MidPrice) {
		t.Fatalf("spread/mid must be finite with populated levels behind placeholders: %+v", m)
	}
	if math.Abs(m.Spread-0.2) > 1e-9 {
		t.Errorf("spread = %v, want 0.2", m.Spread)
	}
}

func TestNormalize_DepthRejectsNegativeQty(t *testing.T) {
	n := New()
	raw := model.RawEvent{
		Mode: "depth", Exchange: "NSE", Symbol: "SBIN",
		Bids: []model.RawLevel{{Price: 99.9, Qty: -5}},
	}
	if _, err := n.Normalize(raw); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
}
