package database

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream product events are appended to.
const DefaultStream = "stream:scraped_products"

// Publisher appends entries to a Redis stream.
type Publisher interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// EventStore is the queue the relay drains.
type EventStore interface {
	Due(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, e Event, cause error) error
	MarkDead(ctx context.Context, id uuid.UUID, cause error) error
	Stats(ctx context.Context) (Stats, error)
}

type RelayConfig struct {
	Stream       string
	PollInterval time.Duration
	BatchSize    int
}

// Relay moves PRODUCT_SCRAPED events from Postgres onto a Redis stream.
type Relay struct {
	store  EventStore
	pub    Publisher
	cfg    RelayConfig
	logger *slog.Logger
}

func NewRelay(store EventStore, pub Publisher, cfg RelayConfig, logger *slog.Logger) *Relay {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	return &Relay{
		store:  store,
		pub:    pub,
		cfg:    cfg,
		logger: logger.With("component", "relay", "stream", cfg.Stream),
	}
}

// Start drains due events once, then again on every poll tick until ctx is
// done.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("relay started", "interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		r.drain(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain publishes one batch and returns how many events reached the stream.
func (r *Relay) drain(ctx context.Context) int {
	events, err := r.store.Due(ctx, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("failed to load due events", "error", err)
		return 0
	}

	published := 0
	for _, e := range events {
		if ctx.Err() != nil {
			break
		}
		if r.deliver(ctx, e) {
			published++
		}
	}

	if published > 0 {
		r.logger.Debug("published product events", "count", published, "due", len(events))
	}
	return published
}

func (r *Relay) deliver(ctx context.Context, e Event) bool {
	log := r.logger.With("event_id", e.ID, "product_id", e.ProductID)

	product, err := e.Product()
	if err != nil {
		log.Error("dropping unreadable event", "error", err)
		if err := r.store.MarkDead(ctx, e.ID, err); err != nil {
			log.Error("failed to mark event dead", "error", err)
		}
		return false
	}

	args := &redis.XAddArgs{Stream: r.cfg.Stream, Values: streamValues(e, product)}
	if err := r.pub.XAdd(ctx, args).Err(); err != nil {
		log.Warn("failed to publish event", "attempt", e.Attempts+1, "error", err)
		if err := r.store.MarkFailed(ctx, e, err); err != nil {
			log.Error("failed to record failed publish", "error", err)
		}
		return false
	}

	if err := r.store.MarkPublished(ctx, e.ID); err != nil {
		// The entry is on the stream; the next drain will publish it again.
		log.Error("failed to mark event published", "error", err)
		return false
	}

	log.Info("product event published", "name", product.Name, "offers", product.Offers)
	return true
}

// streamValues flattens a product event into plain stream fields.
func streamValues(e Event, p ProductScraped) map[string]interface{} {
	return map[string]interface{}{
		"event_id":   e.ID.String(),
		"event_type": e.Type,
		"product_id": p.ProductID.String(),
		"name":       p.Name,
		"price":      p.Price,
		"offers":     strconv.Itoa(p.Offers),
		"scraped_at": p.ScrapedAt.UTC().Format(time.RFC3339),
	}
}

// Stats reports the backlog the relay is working through.
func (r *Relay) Stats(ctx context.Context) (Stats, error) {
	return r.store.Stats(ctx)
}
