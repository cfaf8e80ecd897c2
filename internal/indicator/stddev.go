package indicator

import (
	"math"

	"indicator-enginev1/internal/window"
)

// recomputeEvery bounds floating-point cancellation drift in the running
// sums: every this many updates the sums are rebuilt from the exact window.
const recomputeEvery = 1024

// StdDev calculates the population standard deviation over a fixed window.
// It keeps the window plus running sum and sum-of-squares, updating both on
// insertion and on eviction of the departing value. The periodic full
// recompute keeps long runs numerically honest without paying O(window) on
// every tick.
type StdDev struct {
	period  int
	win     *window.Buffer
	sum     float64
	sumSq   float64
	count   int
	updates int
}

// NewStdDev creates a rolling standard deviation over the given period.
func NewStdDev(period int) *StdDev {
	return &StdDev{
		period: period,
		win:    window.New(period),
	}
}

func (s *StdDev) Name() string    { return "STDDEV_" + itoa(s.period) }
func (s *StdDev) MinSamples() int { return s.period }
func (s *StdDev) Ready() bool     { return s.count >= s.period }

func (s *StdDev) Update(v float64) float64 {
	if evicted, ok := s.win.Push(v); ok {
		s.sum -= evicted
		s.sumSq -= evicted * evicted
	}
	s.sum += v
	s.sumSq += v * v
	s.count++

	s.updates++
	if s.updates%recomputeEvery == 0 {
		s.recompute()
	}
	return s.Value()
}

func (s *StdDev) Value() float64 {
	if s.count < s.period {
		return math.NaN()
	}
	n := float64(s.period)
	mean := s.sum / n
	variance := s.sumSq/n - mean*mean
	if variance < 0 {
		variance = 0 // cancellation noise on near-constant windows
	}
	return math.Sqrt(variance)
}

// recompute rebuilds the running sums from the exact window values.
func (s *StdDev) recompute() {
	s.sum = 0
	s.sumSq = 0
	for _, v := range s.win.Values() {
		s.sum += v
		s.sumSq += v * v
	}
}

// Reset clears the state for reuse.
func (s *StdDev) Reset() {
	s.win.Reset()
	s.sum = 0
	s.sumSq = 0
	s.count = 0
	s.updates = 0
}
