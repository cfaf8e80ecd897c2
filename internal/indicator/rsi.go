package indicator

import "math"

// RSI calculates the Relative Strength Index using Wilder's smoothing.
// The first `period` deltas seed avgGain/avgLoss as simple means; afterwards
// avg = (avg*(period-1) + current) / period. Note Wilder smoothing is NOT
// the EMA recursion — the effective smoothing factor is 1/period.
//
// RSI operates on deltas, so it needs period+1 closes before the first value.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period, current: math.NaN()}
}

func (r *RSI) Name() string    { return "RSI_" + itoa(r.period) }
func (r *RSI) MinSamples() int { return r.period + 1 }
func (r *RSI) Ready() bool     { return r.count > r.period }

func (r *RSI) Update(v float64) float64 {
	r.count++

	if r.count == 1 {
		// First close — no delta yet.
		r.prevClose = v
		return r.Value()
	}

	delta := v - r.prevClose
	r.prevClose = v

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta // NaN delta lands here and propagates
	}

	if r.count <= r.period+1 {
		// Accumulation phase: build the seed averages.
		r.avgGain += gain
		r.avgLoss += loss
		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = r.rsi()
		}
		return r.Value()
	}

	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = r.rsi()
	return r.current
}

// rsi maps the current averages to [0, 100]. A window with zero losses and
// positive gains is exactly 100; a fully flat window (both averages zero)
// has no defined relative strength and yields NaN.
func (r *RSI) rsi() float64 {
	if r.avgLoss == 0 {
		if r.avgGain > 0 {
			return 100.0
		}
		return math.NaN()
	}
	rs := r.avgGain / r.avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

func (r *RSI) Value() float64 {
	if r.count <= r.period {
		return math.NaN()
	}
	return r.current
}

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.avgGain = 0
	r.avgLoss = 0
	r.current = math.NaN()
}
