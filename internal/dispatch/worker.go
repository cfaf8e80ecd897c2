package dispatch

import (
	"context"
	"sync"
	"time"

	"indicator-enginev1/internal/depth"
	"indicator-enginev1/internal/indicator"
	"indicator-enginev1/internal/model"
	"indicator-enginev1/internal/ringbuf"
	"indicator-enginev1/internal/window"
)

// worker owns all mutable state for one instrument: the rolling history,
// the indicator set and the latest depth metrics. Exactly one goroutine
// (run) mutates that state; the state mutex exists only so Snapshot can take
// a consistent point-in-time copy between tick applications.
type worker struct {
	inst   model.Instrument
	queue  *ringbuf.Queue
	notify chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	history   *window.OHLCBuffer
	inds      []indicator.Indicator
	lastDepth *depth.Metrics
	lastTS    time.Time

	results chan<- model.IndicatorResult
	onApply func(time.Duration)
}

func newWorker(inst model.Instrument, capacity, queueDepth int, results chan<- model.IndicatorResult, onApply func(time.Duration)) *worker {
	return &worker{
		inst:    inst,
		queue:   ringbuf.New(queueDepth),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		history: window.NewOHLC(capacity),
		results: results,
		onApply: onApply,
	}
}

// enqueue offers a tick to the worker's mailbox. Returns false when the
// queue is full (tick dropped, drop-newest policy).
func (w *worker) enqueue(t model.Tick) bool {
	if !w.queue.Push(t) {
		return false
	}
	select {
	case w.notify <- struct{}{}:
	default:
	}
	return true
}

// run drains the mailbox until the context is cancelled. Once cancellation
// is observed, remaining queued ticks are dropped without touching state —
// teardown never leaves a partial mutation behind.
func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.notify:
			for {
				if ctx.Err() != nil {
					return
				}
				t, ok := w.queue.Pop()
				if !ok {
					break
				}
				w.apply(t)
			}
		}
	}
}

// apply folds one tick into the instrument state. The mutex is held for the
// whole application so a concurrent Snapshot never observes a half-updated
// indicator set. Cost is O(#indicators), independent of buffer size.
func (w *worker) apply(t model.Tick) {
	if w.onApply != nil {
		start := time.Now()
		defer func() { w.onApply(time.Since(start)) }()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastTS = t.TS

	if t.Kind == model.KindDepth {
		// Depth bypasses the rolling history; analysis is stateless.
		m := depth.Analyze(t.Depth)
		w.lastDepth = &m
		return
	}

	v, ok := t.BufferValue()
	if !ok {
		return
	}

	if t.Kind == model.KindQuote {
		w.history.PushQuote(t.High, t.Low, t.Close, t.Volume)
	} else {
		w.history.Close.Push(v)
	}

	for _, ind := range w.inds {
		val := ind.Update(v)
		if w.results == nil {
			continue
		}
		r := model.IndicatorResult{
			Name:     ind.Name(),
			Exchange: w.inst.Exchange,
			Symbol:   w.inst.Symbol,
			Value:    val,
			TS:       t.TS,
			Ready:    ind.Ready(),
		}
		select {
		case w.results <- r:
		default:
			// Slow consumer — projection is best-effort, state is not.
		}
	}
}

// snapshot returns a point-in-time copy of all indicator values.
func (w *worker) snapshot() map[string]float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]float64, len(w.inds))
	for _, ind := range w.inds {
		out[ind.Name()] = ind.Value()
	}
	return out
}

// depthMetrics returns the metrics of the most recent depth snapshot, if any.
func (w *worker) depthMetrics() (depth.Metrics, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastDepth == nil {
		return depth.Metrics{}, false
	}
	return *w.lastDepth, true
}

// register adds an indicator to a live worker, bootstrapping it from the
// already-accumulated close history.
func (w *worker) register(ind indicator.Indicator) {
	w.mu.Lock()
	defer w.mu.Unlock()
	indicator.Bootstrap(ind, w.history.Close.Values())
	w.inds = append(w.inds, ind)
}
