package indicator

import "math"

// EMA calculates Exponential Moving Average.
// The first `period` values seed the average arithmetically; afterwards the
// recursion EMA = alpha*price + (1-alpha)*EMA applies. EMA deliberately
// performs no window eviction — exponential decay already discounts old data.
type EMA struct {
	period int
	alpha  float64
	value  float64
	count  int
	sum    float64
	seeded bool
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string    { return "EMA_" + itoa(e.period) }
func (e *EMA) MinSamples() int { return e.period }
func (e *EMA) Ready() bool     { return e.seeded }

func (e *EMA) Update(v float64) float64 {
	e.count++

	if !e.seeded {
		// Accumulate for the arithmetic-mean seed.
		e.sum += v
		if e.count == e.period {
			e.value = e.sum / float64(e.period)
			e.seeded = true
		}
		return e.Value()
	}

	e.value = v*e.alpha + e.value*(1-e.alpha)
	return e.value
}

func (e *EMA) Value() float64 {
	if !e.seeded {
		return math.NaN()
	}
	return e.value
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.value = 0
	e.count = 0
	e.sum = 0
	e.seeded = false
}
