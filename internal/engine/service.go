// Package engine is the top-level orchestrator: it wires the feed client,
// normalizer, dispatcher, stores, API and metrics together and manages
// their lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"indicator-enginev1/config"
	"indicator-enginev1/internal/api"
	"indicator-enginev1/internal/dispatch"
	"indicator-enginev1/internal/feed"
	"indicator-enginev1/internal/ingest"
	"indicator-enginev1/internal/metrics"
	"indicator-enginev1/internal/model"
	redisstore "indicator-enginev1/internal/store/redis"
	sqlitestore "indicator-enginev1/internal/store/sqlite"
)

const (
	rawChannelDepth    = 8192
	resultChannelDepth = 8192
	closeChannelDepth  = 4096
	livenessInterval   = 10 * time.Second
)

// Service owns every subsystem of the indicator engine.
type Service struct {
	cfg     *config.Config
	profile *config.Profile
	log     *slog.Logger

	prom   *metrics.Metrics
	health *metrics.HealthStatus

	disp       *dispatch.Dispatcher
	normalizer *ingest.Normalizer
	feed       *feed.Client

	store     *sqlitestore.Store // nil when sqlite is unavailable
	publisher *redisstore.Publisher
	stream    *api.Hub

	rawCh    chan model.RawEvent
	resultCh chan model.IndicatorResult
	closeCh  chan closeRecord
	httpSrv  *http.Server
}

type closeRecord struct {
	inst  model.Instrument
	ts    time.Time
	close float64
}

// New wires all collaborators. Redis and SQLite are best-effort: when
// either is unreachable the engine runs without publishing or persistence
// and says so loudly, because the computation core must not depend on
// infrastructure being up.
func New(cfg *config.Config, profile *config.Profile, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	svc := &Service{
		cfg:        cfg,
		profile:    profile,
		log:        log,
		prom:       metrics.New(),
		health:     metrics.NewHealthStatus(),
		normalizer: ingest.New(),
		stream:     api.NewHub(log),
		rawCh:      make(chan model.RawEvent, rawChannelDepth),
		resultCh:   make(chan model.IndicatorResult, resultChannelDepth),
		closeCh:    make(chan closeRecord, closeChannelDepth),
	}

	svc.disp = dispatch.New(dispatch.Config{
		BufferCapacity: cfg.BufferCapacity,
		QueueDepth:     cfg.QueueDepth,
	}, svc.resultCh, log)
	svc.disp.OnUnknownInstrument = svc.prom.UnknownInstTicks.Inc
	svc.disp.OnQueueOverflow = svc.prom.QueueOverflow.Inc
	svc.disp.OnApply = func(d time.Duration) { svc.prom.IndicatorComputeDur.Observe(d.Seconds()) }

	var err error
	svc.publisher, err = redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Warn("redis unavailable, results will not be published", slog.Any("error", err))
	} else {
		svc.publisher.OnPublish = svc.prom.ResultsPublished.Inc
	}

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			log.Warn("sqlite directory create failed", slog.String("dir", dir), slog.Any("error", mkErr))
		}
	}
	svc.store, err = sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		log.Warn("sqlite unavailable, running without persistence", slog.Any("error", err))
		svc.store = nil
	} else {
		svc.store.OnCommit = func(d time.Duration) { svc.prom.SQLiteCommitDur.Observe(d.Seconds()) }
	}

	svc.feed = feed.New(feed.Config{
		URL:        cfg.FeedURL,
		APIKey:     cfg.FeedAPIKey,
		ClientCode: cfg.FeedClientCode,
		TOTPSecret: cfg.FeedTOTPSecret,
		Subs:       feedSubscriptions(profile),
	})
	svc.feed.OnConnect = func() { svc.health.SetWSConnected(true) }
	svc.feed.OnReconnect = func() {
		svc.health.SetWSConnected(false)
		svc.prom.WSReconnects.Inc()
	}
	svc.feed.OnDropped = svc.prom.FeedDropped.Inc

	return svc, nil
}

// Run subscribes the profile's instruments, starts every subsystem and
// blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	if err := svc.subscribeProfile(ctx); err != nil {
		return err
	}

	go svc.normalizeLoop(ctx)
	go svc.fanOutResults(ctx)
	go svc.persistCloses(ctx)
	go func() {
		if err := svc.feed.Start(ctx, svc.rawCh); err != nil && !errors.Is(err, context.Canceled) {
			svc.log.Error("feed stopped", slog.Any("error", err))
		}
	}()
	svc.startHTTP()

	go metrics.Serve(ctx, svc.cfg.MetricsAddr, svc.health)
	if svc.publisher != nil && svc.store != nil {
		svc.health.StartLivenessChecker(ctx, svc.publisher.Client(), svc.store.DB(), livenessInterval)
	}

	svc.log.Info("indicator engine running",
		slog.Int("instruments", len(svc.profile.Instruments)),
		slog.String("http", svc.cfg.HTTPAddr),
		slog.String("metrics", svc.cfg.MetricsAddr))

	<-ctx.Done()
	svc.shutdown()
	return ctx.Err()
}

// subscribeProfile registers every configured instrument, pre-warming each
// from persisted history when available. One bad instrument fails startup;
// a missing history does not.
func (svc *Service) subscribeProfile(ctx context.Context) error {
	for _, ip := range svc.profile.Instruments {
		inst := model.NewInstrument(ip.Exchange, ip.Symbol)

		var history []float64
		if svc.store != nil && svc.cfg.HistoryPrewarm > 0 {
			h, err := svc.store.ReadCloses(ctx, inst, svc.cfg.HistoryPrewarm)
			if err != nil {
				svc.log.Warn("history pre-warm failed",
					slog.String("instrument", inst.Key()), slog.Any("error", err))
			} else {
				history = h
			}
		}

		if err := svc.disp.Subscribe(ctx, inst, ip.Indicators, history); err != nil {
			return fmt.Errorf("profile subscribe %s: %w", inst.Key(), err)
		}
	}
	svc.prom.SubscribedInstruments.Set(float64(len(svc.profile.Instruments)))
	return nil
}

// normalizeLoop converts raw feed events to ticks and routes them. Invalid
// events are counted and dropped; nothing here can stop the engine.
func (svc *Service) normalizeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-svc.rawCh:
			tick, err := svc.normalizer.Normalize(raw)
			if err != nil {
				svc.prom.InvalidTicks.Inc()
				svc.log.Debug("raw event rejected", slog.Any("error", err),
					slog.String("mode", raw.Mode), slog.String("symbol", raw.Symbol))
				continue
			}

			svc.prom.TicksTotal.WithLabelValues(tick.Kind.String()).Inc()
			svc.health.SetLastTickTime(tick.TS)
			if tick.Kind == model.KindDepth {
				svc.prom.DepthAnalyzed.Inc()
			}

			svc.disp.OnTick(tick)

			if v, ok := tick.BufferValue(); ok && svc.store != nil {
				select {
				case svc.closeCh <- closeRecord{inst: tick.Instrument, ts: tick.TS, close: v}:
				default:
					// Persistence is best-effort; never stall ingestion.
				}
			}
		}
	}
}

// fanOutResults duplicates the dispatcher's result stream to Redis and
// SQLite consumers. Each result is counted once regardless of sinks.
func (svc *Service) fanOutResults(ctx context.Context) {
	var sinks []model.ResultWriter
	if svc.publisher != nil {
		sinks = append(sinks, svc.publisher)
	}
	if svc.store != nil {
		sinks = append(sinks, svc.store)
	}

	chans := make([]chan model.IndicatorResult, len(sinks))
	for i, sink := range sinks {
		chans[i] = make(chan model.IndicatorResult, resultChannelDepth)
		go sink.Run(ctx, chans[i])
	}

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-svc.resultCh:
			svc.prom.IndicatorsTotal.Inc()
			svc.stream.Broadcast(r)
			for _, ch := range chans {
				select {
				case ch <- r:
				default: // sink backlog full — projection stays best-effort
				}
			}
		}
	}
}

// persistCloses writes accepted closing prices for later pre-warm reads.
func (svc *Service) persistCloses(ctx context.Context) {
	if svc.store == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-svc.closeCh:
			if err := svc.store.WriteClose(ctx, rec.inst, rec.ts, rec.close); err != nil {
				svc.log.Warn("close persist failed",
					slog.String("instrument", rec.inst.Key()), slog.Any("error", err))
			}
		}
	}
}

// startHTTP serves the query/control API.
func (svc *Service) startHTTP() {
	apiSrv := api.New(svc.disp, svc.historyReader(), svc.cfg.HistoryPrewarm, svc.log)
	apiSrv.AttachStream(svc.stream)
	svc.httpSrv = &http.Server{
		Addr:              svc.cfg.HTTPAddr,
		Handler:           apiSrv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := svc.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			svc.log.Error("http server stopped", slog.Any("error", err))
		}
	}()
}

func (svc *Service) historyReader() model.HistoryReader {
	if svc.store == nil {
		return nil
	}
	return svc.store
}

// shutdown stops accepting work and releases external resources.
func (svc *Service) shutdown() {
	svc.log.Info("shutting down")

	if svc.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		svc.httpSrv.Shutdown(shutdownCtx)
		cancel()
	}

	svc.disp.Close()

	if svc.publisher != nil {
		svc.publisher.Close()
	}
	if svc.store != nil {
		svc.store.Close()
	}
	svc.log.Info("shutdown complete",
		slog.Uint64("queue_overflow_total", svc.disp.QueueOverflowTotal()))
}

// feedSubscriptions flattens the profile into feed subscription requests.
func feedSubscriptions(p *config.Profile) []feed.Subscription {
	var subs []feed.Subscription
	for _, ip := range p.Instruments {
		modes := ip.Modes
		if len(modes) == 0 {
			modes = []string{"ltp"}
		}
		for _, mode := range modes {
			subs = append(subs, feed.Subscription{
				Exchange: ip.Exchange,
				Symbol:   ip.Symbol,
				Mode:     mode,
			})
		}
	}
	return subs
}
