// Package ingest converts raw feed events into canonical Ticks.
//
// Normalization validates field presence per tick kind, coerces prices to
// float64 and attaches a monotonically non-decreasing timestamp per
// instrument. Invalid ticks are rejected here and never reach a buffer.
package ingest

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"indicator-enginev1/internal/model"
)

// Rejection errors. All are non-fatal: the offending tick is dropped.
var (
	ErrInvalidValue = errors.New("invalid tick value")
	ErrMissingField = errors.New("missing required field")
	ErrUnknownMode  = errors.New("unknown tick mode")
)

// Normalizer validates raw events and stamps them with per-instrument
// monotone timestamps. The last-seen map is the only state; validation
// itself is pure.
type Normalizer struct {
	mu     sync.Mutex
	lastTS map[string]time.Time

	now func() time.Time // injectable clock for tests
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{
		lastTS: make(map[string]time.Time, 64),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Normalize converts one raw event into a canonical Tick, or rejects it.
func (n *Normalizer) Normalize(raw model.RawEvent) (model.Tick, error) {
	if raw.Exchange == "" || raw.Symbol == "" {
		return model.Tick{}, fmt.Errorf("%w: exchange/symbol", ErrMissingField)
	}
	inst := model.NewInstrument(raw.Exchange, raw.Symbol)

	tick := model.Tick{Instrument: inst}

	switch raw.Mode {
	case "ltp":
		tick.Kind = model.KindLTP
		if raw.LTP == nil {
			return model.Tick{}, fmt.Errorf("%w: ltp", ErrMissingField)
		}
		if err := checkPrice("ltp", *raw.LTP); err != nil {
			return model.Tick{}, err
		}
		tick.Price = *raw.LTP

	case "quote":
		tick.Kind = model.KindQuote
		fields := []struct {
			name string
			v    *float64
		}{
			{"open", raw.Open}, {"high", raw.High}, {"low", raw.Low},
			{"close", raw.Close}, {"ltp", raw.LTP},
		}
		for _, f := range fields {
			if f.v == nil {
				return model.Tick{}, fmt.Errorf("%w: %s", ErrMissingField, f.name)
			}
			if err := checkPrice(f.name, *f.v); err != nil {
				return model.Tick{}, err
			}
		}
		tick.Open, tick.High, tick.Low = *raw.Open, *raw.High, *raw.Low
		tick.Close, tick.Price = *raw.Close, *raw.LTP
		if raw.Volume < 0 {
			return model.Tick{}, fmt.Errorf("%w: negative volume %d", ErrInvalidValue, raw.Volume)
		}
		tick.Volume = raw.Volume

	case "depth":
		tick.Kind = model.KindDepth
		snap, err := normalizeDepth(inst, raw)
		if err != nil {
			return model.Tick{}, err
		}
		tick.Depth = snap

	default:
		return model.Tick{}, fmt.Errorf("%w: %q", ErrUnknownMode, raw.Mode)
	}

	tick.TS = n.stamp(inst.Key(), raw.TimestampMs)
	if tick.Depth != nil {
		tick.Depth.TS = tick.TS
	}
	return tick, nil
}

// stamp picks the source timestamp when it is present and not older than the
// last seen timestamp for the instrument; otherwise the normalization
// instant, clamped so per-instrument timestamps never go backwards.
func (n *Normalizer) stamp(key string, srcMs int64) time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()

	last := n.lastTS[key]
	ts := n.now()
	if srcMs > 0 {
		src := time.UnixMilli(srcMs).UTC()
		if !src.Before(last) {
			ts = src
		}
	}
	if ts.Before(last) {
		ts = last
	}
	n.lastTS[key] = ts
	return ts
}

// checkPrice rejects NaN, Inf and non-positive prices.
func checkPrice(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%w: %s=%v", ErrInvalidValue, field, v)
	}
	return nil
}

// normalizeDepth validates and truncates raw book levels into an L5 snapshot.
func normalizeDepth(inst model.Instrument, raw model.RawEvent) (*model.DepthSnapshot, error) {
	if raw.TotalBuyQty < 0 || raw.TotalSellQty < 0 {
		return nil, fmt.Errorf("%w: negative depth totals", ErrInvalidValue)
	}

	snap := &model.DepthSnapshot{
		Instrument:   inst,
		TotalBuyQty:  raw.TotalBuyQty,
		TotalSellQty: raw.TotalSellQty,
	}
	var err error
	if snap.Bids, err = normalizeSide("bid", raw.Bids); err != nil {
		return nil, err
	}
	if snap.Asks, err = normalizeSide("ask", raw.Asks); err != nil {
		return nil, err
	}
	return snap, nil
}

// normalizeSide compacts populated levels to the front of the fixed L5
// array. Zero-qty placeholders are skipped (feeds pad short books with
// them, anywhere in the array); negative quantities reject the event.
func normalizeSide(field string, levels []model.RawLevel) ([model.BookLevels]model.PriceLevel, error) {
	var out [model.BookLevels]model.PriceLevel
	n := 0
	for _, lvl := range levels {
		if n >= model.BookLevels {
			break
		}
		if lvl.Qty == 0 {
			continue
		}
		if lvl.Qty < 0 {
			return out, fmt.Errorf("%w: %s qty=%d", ErrInvalidValue, field, lvl.Qty)
		}
		if err := checkPrice(field, lvl.Price); err != nil {
			return out, err
		}
		out[n] = model.PriceLevel{Price: lvl.Price, Qty: lvl.Qty}
		n++
	}
	return out, nil
}
