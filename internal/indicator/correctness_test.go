package indicator

import (
	"math"
	"testing"

	talib "github.com/markcheno/go-talib"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

// naiveSMA recomputes the mean over the last `period` values the slow way.
func naiveSMA(values []float64, period int) float64 {
	if len(values) < period {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_HandCalculated(t *testing.T) {
	// Closes 1..10, SMA(3) after the full sequence = mean(8,9,10) = 9.0.
	// One more value (11) slides the window: mean(9,10,11) = 10.0.
	sma := NewSMA(3)
	for i := 1; i <= 10; i++ {
		sma.Update(float64(i))
	}
	assertClose(t, "SMA(3) after 1..10", sma.Value(), 9.0, 1e-12)

	sma.Update(11)
	assertClose(t, "SMA(3) after 11th value", sma.Value(), 10.0, 1e-12)
}

func TestSMA_MatchesNaiveRecomputation(t *testing.T) {
	// Round-trip against a naive O(n) recomputation on a pseudo-random walk.
	const period = 20
	sma := NewSMA(period)

	seen := make([]float64, 0, 500)
	price := 100.0
	for i := 0; i < 500; i++ {
		price += math.Sin(float64(i)*0.7) * 1.5 // deterministic wiggle
		seen = append(seen, price)
		got := sma.Update(price)

		want := naiveSMA(seen, period)
		if i+1 < period {
			if !math.IsNaN(got) {
				t.Fatalf("tick %d: expected NaN during warm-up, got %v", i, got)
			}
			continue
		}
		assertClose(t, "SMA vs naive", got, want, 1e-9)
	}
}

// ────────────────────────────────────────────────────────────
// Cross-checks against the TA-Lib reference implementation
// ────────────────────────────────────────────────────────────

func wigglySeries(n int) []float64 {
	out := make([]float64, n)
	price := 250.0
	for i := range out {
		price += math.Sin(float64(i)*1.3)*4 + math.Cos(float64(i)*0.2)*2
		out[i] = price
	}
	return out
}

func TestSMA_MatchesTALib(t *testing.T) {
	const period = 14
	closes := wigglySeries(300)
	ref := talib.Sma(closes, period)

	sma := NewSMA(period)
	for i, v := range closes {
		got := sma.Update(v)
		if i < period-1 {
			continue // talib lookback region
		}
		assertClose(t, "SMA vs talib", got, ref[i], 1e-8)
	}
}

func TestEMA_MatchesTALib(t *testing.T) {
	// TA-Lib EMA uses the same arithmetic-mean seed.
	const period = 20
	closes := wigglySeries(300)
	ref := talib.Ema(closes, period)

	ema := NewEMA(period)
	for i, v := range closes {
		got := ema.Update(v)
		if i < period-1 {
			continue
		}
		assertClose(t, "EMA vs talib", got, ref[i], 1e-8)
	}
}

func TestRSI_MatchesTALib(t *testing.T) {
	// TA-Lib RSI uses Wilder smoothing with an SMA seed over the first
	// `period` deltas — the same recursion implemented here.
	const period = 14
	closes := wigglySeries(300)
	ref := talib.Rsi(closes, period)

	rsi := NewRSI(period)
	for i, v := range closes {
		got := rsi.Update(v)
		if i < period {
			continue // RSI needs period+1 closes
		}
		assertClose(t, "RSI vs talib", got, ref[i], 1e-6)
	}
}

// ────────────────────────────────────────────────────────────
// RSI properties
// ────────────────────────────────────────────────────────────

func TestRSI_StaysInRange(t *testing.T) {
	rsi := NewRSI(14)
	price := 500.0
	for i := 0; i < 1000; i++ {
		price += math.Sin(float64(i)*2.1) * 7
		if price < 1 {
			price = 1
		}
		v := rsi.Update(price)
		if rsi.Ready() && (v < 0 || v > 100) {
			t.Fatalf("tick %d: RSI out of range: %v", i, v)
		}
	}
}

func TestRSI_AllGainsIs100(t *testing.T) {
	// Strictly rising closes: no losses in the window → RSI exactly 100.
	rsi := NewRSI(14)
	for i := 1; i <= 30; i++ {
		rsi.Update(float64(i * 10))
	}
	if rsi.Value() != 100.0 {
		t.Fatalf("expected RSI=100 for monotonically rising closes, got %v", rsi.Value())
	}
}

func TestRSI_AllLossesIsZero(t *testing.T) {
	rsi := NewRSI(14)
	for i := 30; i >= 1; i-- {
		rsi.Update(float64(i * 10))
	}
	assertClose(t, "RSI all losses", rsi.Value(), 0.0, 1e-12)
}

func TestRSI_HandCalculatedPeriod2(t *testing.T) {
	// Closes: 10, 11, 10, 12 with period=2.
	// Deltas: +1, -1, +2.
	// Seed after 3 closes: avgGain=(1+0)/2=0.5, avgLoss=(0+1)/2=0.5 → RSI=50.
	// 4th close: avgGain=(0.5*1+2)/2=1.25, avgLoss=(0.5*1+0)/2=0.25,
	//   RS=5 → RSI = 100 - 100/6 = 83.3333...
	rsi := NewRSI(2)
	rsi.Update(10)
	rsi.Update(11)
	rsi.Update(10)
	assertClose(t, "RSI(2) seed", rsi.Value(), 50.0, 1e-9)

	rsi.Update(12)
	assertClose(t, "RSI(2) wilder step", rsi.Value(), 100.0-100.0/6.0, 1e-9)
}

// ────────────────────────────────────────────────────────────
// StdDev
// ────────────────────────────────────────────────────────────

func TestStdDev_HandCalculated(t *testing.T) {
	// Window [2, 4, 4, 4, 5, 5, 7, 9]: population stdev = 2.
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	sd := NewStdDev(len(values))
	for _, v := range values {
		sd.Update(v)
	}
	assertClose(t, "stdev classic example", sd.Value(), 2.0, 1e-9)
}

func TestStdDev_WindowSlides(t *testing.T) {
	sd := NewStdDev(3)
	for _, v := range []float64{100, 100, 100} {
		sd.Update(v)
	}
	assertClose(t, "constant window", sd.Value(), 0.0, 1e-12)

	// Window becomes [100, 100, 103]: mean=101, variance=2 → stdev=sqrt(2).
	sd.Update(103)
	assertClose(t, "slid window", sd.Value(), math.Sqrt(2), 1e-9)
}

func TestStdDev_SurvivesLongRuns(t *testing.T) {
	// Drive well past the periodic recompute threshold and verify against
	// an exact recomputation of the final window.
	const period = 50
	sd := NewStdDev(period)

	var last []float64
	price := 10000.0
	for i := 0; i < 5000; i++ {
		price += math.Sin(float64(i)) * 0.25
		sd.Update(price)
		last = append(last, price)
	}

	win := last[len(last)-period:]
	mean := 0.0
	for _, v := range win {
		mean += v
	}
	mean /= period
	variance := 0.0
	for _, v := range win {
		variance += (v - mean) * (v - mean)
	}
	variance /= period

	assertClose(t, "stdev after 5000 updates", sd.Value(), math.Sqrt(variance), 1e-6)
}
