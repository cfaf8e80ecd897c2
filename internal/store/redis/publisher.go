// Package redis publishes live indicator values to presentation consumers:
// a LATEST key per indicator (with TTL) plus a pub/sub channel per result.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"indicator-enginev1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultLatestTTL = 30 * time.Minute

// Config configures the Redis publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes indicator results to Redis.
type Publisher struct {
	client *goredis.Client

	// OnPublish is an optional metrics hook invoked per published result.
	OnPublish func()
}

var (
	_ model.ResultPublisher = (*Publisher)(nil)
	_ model.ResultWriter    = (*Publisher)(nil)
)

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// Run reads indicator results and publishes them until ctx is cancelled or
// the channel is closed. Implements model.ResultWriter semantics for the
// live path; publish failures are logged and skipped, never fatal.
func (p *Publisher) Run(ctx context.Context, resultCh <-chan model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-resultCh:
			if !ok {
				return
			}
			p.Publish(ctx, r)
		}
	}
}

// Publish writes one result: SET latest key + PUBLISH to the channel.
func (p *Publisher) Publish(ctx context.Context, r model.IndicatorResult) {
	payload := r.JSON()

	latestKey := "latest:" + r.ChannelKey()
	if err := p.client.Set(ctx, latestKey, payload, defaultLatestTTL).Err(); err != nil {
		log.Printf("[redis] set %s: %v", latestKey, err)
		return
	}
	if err := p.client.Publish(ctx, r.ChannelKey(), payload).Err(); err != nil {
		log.Printf("[redis] publish %s: %v", r.ChannelKey(), err)
		return
	}
	if p.OnPublish != nil {
		p.OnPublish()
	}
}

// Close releases the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
