package model

import "context"

// ── Collaborator Port Interfaces ──
// These interfaces decouple the engine core from concrete collaborators
// (SQLite history, Redis publication, WebSocket feed). Each implementation
// satisfies one or more of these interfaces.

// HistoryReader supplies past closing values used to pre-warm a rolling
// buffer and bootstrap indicator state before live ticks begin.
// Values are returned oldest → newest.
type HistoryReader interface {
	ReadCloses(ctx context.Context, inst Instrument, limit int) ([]float64, error)
}

// ResultWriter persists computed indicator values.
type ResultWriter interface {
	// Run reads results from resultCh and writes them.
	// Blocks until ctx is cancelled or resultCh is closed.
	Run(ctx context.Context, resultCh <-chan IndicatorResult)
	Close() error
}

// ResultPublisher pushes live indicator values to presentation consumers.
type ResultPublisher interface {
	Publish(ctx context.Context, r IndicatorResult)
	Close() error
}

// TickSource is the market-data transport collaborator. Implementations own
// the connection lifecycle (handshake, auth, resubscribe on reconnect) and
// deliver already-decoded raw events.
type TickSource interface {
	// Start connects and streams raw events into rawCh until ctx is done.
	Start(ctx context.Context, rawCh chan<- RawEvent) error
}
