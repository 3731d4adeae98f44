package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Delivery states of a product event.
const (
	EventPending   = "pending"
	EventPublished = "published"
	EventDead      = "dead"
)

const (
	EventTypeProductScraped = "PRODUCT_SCRAPED"

	// MaxAttempts failed publishes move an event to EventDead.
	MaxAttempts = 5

	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 5 * time.Minute
)

// ProductScraped announces a product that was just stored.
type ProductScraped struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Offers    int       `json:"offers"`
	ScrapedAt time.Time `json:"scrapedAt"`
}

// Event is a queued row of the product_events table. Columns are scanned in
// field order.
type Event struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Type      string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// Product decodes the PRODUCT_SCRAPED payload carried by e.
func (e Event) Product() (ProductScraped, error) {
	var p ProductScraped
	if e.Type != EventTypeProductScraped {
		return p, fmt.Errorf("unsupported event type %q", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode payload: %w", err)
	}
	if p.ProductID != e.ProductID {
		return p, fmt.Errorf("payload product %s does not match event product %s", p.ProductID, e.ProductID)
	}
	return p, nil
}

// Stats is a snapshot of the event backlog.
type Stats struct {
	Pending    int64 `json:"pending"`
	DeadLetter int64 `json:"deadLetter"`
}

// OutboxRepository queues product events next to the product rows and
// tracks their delivery.
type OutboxRepository struct {
	db *DB
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue queues msg inside tx, so the event exists exactly when the product
// row commits.
func (r *OutboxRepository) Enqueue(ctx context.Context, tx pgx.Tx, msg ProductScraped) (uuid.UUID, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	id := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO product_events (id, product_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, msg.ProductID, EventTypeProductScraped, payload, msg.ScrapedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue product event: %w", err)
	}

	return id, nil
}

// Due returns up to limit pending events whose next attempt is not in the
// future, oldest first.
func (r *OutboxRepository) Due(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, product_id, event_type, payload, attempts, created_at
		FROM product_events
		WHERE status = $1 AND next_attempt_at <= NOW()
		ORDER BY created_at ASC, id ASC
		LIMIT $2`,
		EventPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due events: %w", err)
	}

	events, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Event])
	if err != nil {
		return nil, fmt.Errorf("failed to read due events: %w", err)
	}
	return events, nil
}

// MarkPublished records that the event reached the stream.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE product_events
		SET status = $1, published_at = NOW(), last_error = NULL
		WHERE id = $2 AND status = $3`,
		EventPublished, id, EventPending)
	if err != nil {
		return fmt.Errorf("failed to mark event published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s is not pending", id)
	}
	return nil
}

// MarkFailed counts a failed publish of e. The event is retried after
// retryDelay until it has failed MaxAttempts times.
func (r *OutboxRepository) MarkFailed(ctx context.Context, e Event, cause error) error {
	attempts := e.Attempts + 1
	status := EventPending
	if attempts >= MaxAttempts {
		status = EventDead
	}

	_, err := r.db.pool.Exec(ctx, `
		UPDATE product_events
		SET status = $1, attempts = $2, last_error = $3, next_attempt_at = $4
		WHERE id = $5`,
		status, attempts, cause.Error(), time.Now().Add(retryDelay(attempts)), e.ID)
	if err != nil {
		return fmt.Errorf("failed to record failed publish: %w", err)
	}
	return nil
}

// MarkDead parks an event that can never be published.
func (r *OutboxRepository) MarkDead(ctx context.Context, id uuid.UUID, cause error) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE product_events SET status = $1, last_error = $2 WHERE id = $3`,
		EventDead, cause.Error(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event dead: %w", err)
	}
	return nil
}

// Stats counts events still waiting for delivery and events given up on.
func (r *OutboxRepository) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.db.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2)
		FROM product_events`,
		EventPending, EventDead,
	).Scan(&stats.Pending, &stats.DeadLetter)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get event stats: %w", err)
	}
	return stats, nil
}

// retryDelay doubles from baseRetryDelay per failed attempt, capped at
// maxRetryDelay.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		return baseRetryDelay
	}
	if attempt > 8 {
		return maxRetryDelay
	}
	d := baseRetryDelay << (attempt - 1)
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
