package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/amazon-offer-scraper/internal/models"
)

// ProductRepository stores scraped product records.
type ProductRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{
		db:     db,
		outbox: NewOutboxRepository(db),
	}
}

// Insert persists record under a new id and queues a PRODUCT_SCRAPED event
// in the same transaction.
func (r *ProductRepository) Insert(ctx context.Context, record *models.ProductRecord) (*models.StoredProduct, error) {
	record.Normalize()

	offers, err := json.Marshal(record.Offers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal offers: %w", err)
	}
	info, err := json.Marshal(record.ProductInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal product info: %w", err)
	}
	images, err := json.Marshal(record.Images)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal images: %w", err)
	}
	manufacturerImages, err := json.Marshal(record.ManufacturerImages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manufacturer images: %w", err)
	}

	stored := &models.StoredProduct{
		ID:            uuid.New(),
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
		ProductRecord: *record,
	}

	query := `
		INSERT INTO scraped_products (
			id, name, rating, number_of_ratings, price, discount,
			offers, about_item, product_info, images,
			manufacturer_images, ai_review_summary, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)`

	err = r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query,
			stored.ID, record.Name, record.Rating, record.NumberOfRatings,
			record.Price, record.Discount, offers, record.AboutItem, info,
			images, manufacturerImages, record.AIReviewSummary, stored.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert product: %w", err)
		}

		_, err := r.outbox.Enqueue(ctx, tx, ProductScraped{
			ProductID: stored.ID,
			Name:      record.Name,
			Price:     record.Price,
			Offers:    len(record.Offers),
			ScrapedAt: stored.CreatedAt,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// Get returns the product with id, or nil when there is none.
func (r *ProductRepository) Get(ctx context.Context, id uuid.UUID) (*models.StoredProduct, error) {
	query := `
		SELECT
			id, name, rating, number_of_ratings, price, discount,
			offers, about_item, product_info, images,
			manufacturer_images, ai_review_summary, created_at
		FROM scraped_products
		WHERE id = $1`

	var p models.StoredProduct
	var offers, info, images, manufacturerImages []byte
	err := r.db.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Rating, &p.NumberOfRatings, &p.Price, &p.Discount,
		&offers, &p.AboutItem, &info, &images,
		&manufacturerImages, &p.AIReviewSummary, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	for _, col := range []struct {
		name string
		raw  []byte
		dst  interface{}
	}{
		{"offers", offers, &p.Offers},
		{"product_info", info, &p.ProductInfo},
		{"images", images, &p.Images},
		{"manufacturer_images", manufacturerImages, &p.ManufacturerImages},
	} {
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", col.name, err)
		}
	}
	p.Normalize()

	return &p, nil
}

// List returns name/id pairs in insertion order.
func (r *ProductRepository) List(ctx context.Context, offset, limit int) ([]models.ProductSummary, error) {
	query := `
		SELECT name, id
		FROM scraped_products
		ORDER BY created_at ASC, id ASC
		OFFSET $1
		LIMIT $2`

	rows, err := r.db.pool.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]models.ProductSummary, 0)
	for rows.Next() {
		var s models.ProductSummary
		if err := rows.Scan(&s.Name, &s.ID); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}

// Count returns the number of stored products.
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM scraped_products").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}
