// Package indicator provides incrementally-updatable technical indicators
// over a stream of closing prices.
//
// Every indicator is O(1) per update — no history rescans on the tick path.
// During warm-up (fewer than MinSamples values seen) Value() and Update()
// return NaN; NaN is the documented warm-up output, not an error. A NaN
// input propagates to a NaN output, never a silent zero.
package indicator

import (
	"errors"
	"fmt"
	"strconv"
)

// Indicator is the interface for all incremental indicator states.
type Indicator interface {
	// Name returns the indicator identity, e.g. "SMA_20", "RSI_14".
	Name() string

	// Update feeds the next closing value and returns the recalculated
	// indicator value, or NaN while warming up.
	Update(v float64) float64

	// Value returns the current value without mutating state.
	// Returns NaN while warming up.
	Value() float64

	// Ready reports whether MinSamples values have been observed.
	Ready() bool

	// MinSamples is the number of inputs required before the first
	// non-NaN value (period for the MA family, period+1 for RSI).
	MinSamples() int

	// Reset clears all state for reuse.
	Reset()
}

// Registration errors. Reported at setup time, never on the update path.
var (
	ErrPeriodExceedsCapacity = errors.New("indicator period exceeds buffer capacity")
	ErrInvalidPeriod         = errors.New("indicator period must be positive")
	ErrUnknownType           = errors.New("unknown indicator type")
)

// Spec describes one indicator to register.
type Spec struct {
	Type   string `yaml:"type" json:"type"` // "SMA", "EMA", "RSI", "STDDEV"
	Period int    `yaml:"period" json:"period"`
}

// Name returns the canonical "{TYPE}_{period}" identity for this spec.
func (s Spec) Name() string {
	return s.Type + "_" + strconv.Itoa(s.Period)
}

// New builds the indicator described by spec, validating it against the
// rolling-buffer capacity. A period the buffer cannot hold is a
// configuration error for that registration only.
func New(spec Spec, capacity int) (Indicator, error) {
	if spec.Period < 1 {
		return nil, fmt.Errorf("%s: %w", spec.Name(), ErrInvalidPeriod)
	}

	var ind Indicator
	switch spec.Type {
	case "SMA":
		ind = NewSMA(spec.Period)
	case "EMA":
		ind = NewEMA(spec.Period)
	case "RSI":
		ind = NewRSI(spec.Period)
	case "STDDEV":
		ind = NewStdDev(spec.Period)
	default:
		return nil, fmt.Errorf("%s: %w: %q", spec.Name(), ErrUnknownType, spec.Type)
	}

	if ind.MinSamples() > capacity {
		return nil, fmt.Errorf("%s: %w (need %d, capacity %d)",
			spec.Name(), ErrPeriodExceedsCapacity, ind.MinSamples(), capacity)
	}
	return ind, nil
}

// Bootstrap replays historical closes (oldest → newest) through a freshly
// reset indicator. Used when an indicator is registered after the rolling
// buffer has already warmed up, or when seeding from the history collaborator.
func Bootstrap(ind Indicator, history []float64) {
	ind.Reset()
	for _, v := range history {
		ind.Update(v)
	}
}
