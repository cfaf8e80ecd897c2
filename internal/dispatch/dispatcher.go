// Package dispatch routes normalized ticks to per-instrument state.
//
// Concurrency model: one worker goroutine per subscribed instrument, fed
// through a bounded lock-free SPSC queue. All ticks for an instrument are
// applied in arrival order by its single worker; ticks for different
// instruments proceed fully in parallel since their state is disjoint.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"indicator-enginev1/internal/depth"
	"indicator-enginev1/internal/indicator"
	"indicator-enginev1/internal/model"
	"indicator-enginev1/internal/window"
)

// Dispatch errors. Unknown-instrument ticks are dropped, not returned as
// errors; these sentinels cover the control-plane operations.
var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrAlreadySubscribed = errors.New("instrument already subscribed")
	ErrNoDepthSnapshot   = errors.New("no depth snapshot seen yet")
)

const defaultQueueDepth = 1024

// Config tunes the dispatcher.
type Config struct {
	BufferCapacity int // rolling history depth per instrument (default 200)
	QueueDepth     int // per-instrument mailbox depth (default 1024, rounded to pow2)
}

// Dispatcher owns the instrument → worker routing table.
type Dispatcher struct {
	cfg     Config
	log     *slog.Logger
	results chan<- model.IndicatorResult

	// Worker contexts derive from baseCtx, never from a caller's context:
	// subscriptions outlive the call that created them (an HTTP request
	// context, for one, is cancelled the moment the handler returns).
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.RWMutex
	workers map[string]*worker

	// Metrics hooks (optional, set before the first Subscribe/OnTick).
	OnUnknownInstrument func()
	OnQueueOverflow     func()
	OnApply             func(d time.Duration) // per-tick state application latency
}

// New creates a Dispatcher. results may be nil when no projection consumer
// is attached (snapshots remain available either way).
func New(cfg Config, results chan<- model.IndicatorResult, log *slog.Logger) *Dispatcher {
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = window.DefaultCapacity
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if log == nil {
		log = slog.Default()
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:        cfg,
		log:        log,
		results:    results,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		workers:    make(map[string]*worker, 16),
	}
}

// Subscribe allocates buffer + indicator state for an instrument and starts
// its worker. history (oldest → newest closing values, may be nil) pre-warms
// the rolling buffer and bootstraps every indicator before live ticks begin.
// Indicator specs a period the buffer cannot hold fail the whole registration.
//
// ctx bounds only this registration call. The worker's lifetime belongs to
// the dispatcher: it runs until Unsubscribe or Close, regardless of what
// happens to ctx afterwards.
func (d *Dispatcher) Subscribe(ctx context.Context, inst model.Instrument, specs []indicator.Spec, history []float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("subscribe %s: %w", inst.Key(), err)
	}
	inds := make([]indicator.Indicator, 0, len(specs))
	for _, spec := range specs {
		ind, err := indicator.New(spec, d.cfg.BufferCapacity)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", inst.Key(), err)
		}
		inds = append(inds, ind)
	}

	w := newWorker(inst, d.cfg.BufferCapacity, d.cfg.QueueDepth, d.results, d.OnApply)

	// Keep only the most recent capacity values; older history cannot fit.
	if n := len(history); n > d.cfg.BufferCapacity {
		history = history[n-d.cfg.BufferCapacity:]
	}
	for _, v := range history {
		w.history.Close.Push(v)
	}
	for _, ind := range inds {
		indicator.Bootstrap(ind, history)
	}
	w.inds = inds

	d.mu.Lock()
	if _, exists := d.workers[inst.Key()]; exists {
		d.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", inst.Key(), ErrAlreadySubscribed)
	}
	wctx, cancel := context.WithCancel(d.baseCtx)
	w.cancel = cancel
	d.workers[inst.Key()] = w
	d.mu.Unlock()

	go w.run(wctx)

	d.log.Info("instrument subscribed",
		slog.String("instrument", inst.Key()),
		slog.Int("indicators", len(inds)),
		slog.Int("prewarm", len(history)))
	return nil
}

// Unsubscribe tears down an instrument. The worker is removed from the
// routing table before cancellation, so once this returns no further ticks
// for the instrument are dispatched; ticks still queued are dropped without
// partial state mutation. Safe to call concurrently with in-flight OnTick.
func (d *Dispatcher) Unsubscribe(inst model.Instrument) error {
	d.mu.Lock()
	w, ok := d.workers[inst.Key()]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("unsubscribe %s: %w", inst.Key(), ErrUnknownInstrument)
	}
	delete(d.workers, inst.Key())
	d.mu.Unlock()

	w.cancel()
	<-w.done

	d.log.Info("instrument unsubscribed", slog.String("instrument", inst.Key()))
	return nil
}

// OnTick routes one tick to its instrument worker. Ticks for unregistered
// instruments are dropped (logged, not fatal). Never blocks: a full worker
// queue drops the tick under the drop-newest policy.
func (d *Dispatcher) OnTick(t model.Tick) {
	d.mu.RLock()
	w, ok := d.workers[t.Key()]
	d.mu.RUnlock()

	if !ok {
		if d.OnUnknownInstrument != nil {
			d.OnUnknownInstrument()
		}
		d.log.Debug("tick for unknown instrument dropped", slog.String("instrument", t.Key()))
		return
	}

	if !w.enqueue(t) {
		if d.OnQueueOverflow != nil {
			d.OnQueueOverflow()
		}
		d.log.Warn("worker queue full, tick dropped", slog.String("instrument", t.Key()))
	}
}

// Snapshot returns a point-in-time copy of the instrument's indicator values
// (NaN during warm-up). The caller can never observe a partially-updated set.
func (d *Dispatcher) Snapshot(inst model.Instrument) (map[string]float64, error) {
	w, err := d.lookup(inst)
	if err != nil {
		return nil, err
	}
	return w.snapshot(), nil
}

// DepthMetrics returns the metrics computed from the instrument's most
// recent depth snapshot.
func (d *Dispatcher) DepthMetrics(inst model.Instrument) (depth.Metrics, error) {
	w, err := d.lookup(inst)
	if err != nil {
		return depth.Metrics{}, err
	}
	m, ok := w.depthMetrics()
	if !ok {
		return depth.Metrics{}, fmt.Errorf("depth %s: %w", inst.Key(), ErrNoDepthSnapshot)
	}
	return m, nil
}

// Register adds one more indicator to an already-subscribed instrument,
// bootstrapped from the rolling history accumulated so far.
func (d *Dispatcher) Register(inst model.Instrument, spec indicator.Spec) error {
	w, err := d.lookup(inst)
	if err != nil {
		return err
	}
	ind, err := indicator.New(spec, d.cfg.BufferCapacity)
	if err != nil {
		return fmt.Errorf("register %s on %s: %w", spec.Name(), inst.Key(), err)
	}
	w.register(ind)
	return nil
}

// History returns the buffered closing values oldest → newest.
func (d *Dispatcher) History(inst model.Instrument) ([]float64, error) {
	w, err := d.lookup(inst)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.history.Close.Values(), nil
}

// Instruments lists the currently subscribed instruments.
func (d *Dispatcher) Instruments() []model.Instrument {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Instrument, 0, len(d.workers))
	for _, w := range d.workers {
		out = append(out, w.inst)
	}
	return out
}

// QueueOverflowTotal sums dropped ticks across all live workers.
func (d *Dispatcher) QueueOverflowTotal() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var total uint64
	for _, w := range d.workers {
		total += w.queue.Overflow()
	}
	return total
}

// Close unsubscribes every instrument.
func (d *Dispatcher) Close() {
	for _, inst := range d.Instruments() {
		_ = d.Unsubscribe(inst)
	}
	d.baseCancel()
}

func (d *Dispatcher) lookup(inst model.Instrument) (*worker, error) {
	d.mu.RLock()
	w, ok := d.workers[inst.Key()]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", inst.Key(), ErrUnknownInstrument)
	}
	return w, nil
}
