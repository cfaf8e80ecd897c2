package indicator

import (
	"math"

	"indicator-enginev1/internal/window"
)

// SMA calculates Simple Moving Average over a rolling window.
// It keeps its own exact window so the running sum drops precisely the value
// leaving the period, regardless of the history buffer's larger capacity.
type SMA struct {
	period int
	win    *window.Buffer
	sum    float64
	count  int
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		win:    window.New(period),
	}
}

func (s *SMA) Name() string    { return "SMA_" + itoa(s.period) }
func (s *SMA) MinSamples() int { return s.period }
func (s *SMA) Ready() bool     { return s.count >= s.period }

func (s *SMA) Update(v float64) float64 {
	if evicted, ok := s.win.Push(v); ok {
		s.sum -= evicted
	}
	s.sum += v
	s.count++
	return s.Value()
}

func (s *SMA) Value() float64 {
	if s.count < s.period {
		return math.NaN()
	}
	return s.sum / float64(s.period)
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.win.Reset()
	s.sum = 0
	s.count = 0
}
