package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/maltedev/amazon-offer-scraper/internal/database"
	"github.com/maltedev/amazon-offer-scraper/internal/models"
	"github.com/maltedev/amazon-offer-scraper/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) Scrape(ctx context.Context, rawURL string) (*models.ProductRecord, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProductRecord), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Insert(ctx context.Context, record *models.ProductRecord) (*models.StoredProduct, error) {
	args := m.Called(ctx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StoredProduct), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, id uuid.UUID) (*models.StoredProduct, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StoredProduct), args.Error(1)
}

func (m *MockStore) List(ctx context.Context, offset, limit int) ([]models.ProductSummary, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProductSummary), args.Error(1)
}

func (m *MockStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockOutbox struct {
	mock.Mock
}

func (m *MockOutbox) Stats(ctx context.Context) (database.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(database.Stats), args.Error(1)
}

const productURL = "https://www.amazon.in/dp/B0C7BZ1Y2X"

func newTestRouter(s Scraper, store ProductStore, outbox OutboxStats) http.Handler {
	r := chi.NewRouter()
	h := NewHandlers(s, store, outbox, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.Register(r)
	return r
}

func do(t *testing.T, handler http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	return rec, payload
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestScrapeNew(t *testing.T) {
	t.Run("rejects foreign url without scraping", func(t *testing.T) {
		s := new(MockScraper)
		store := new(MockStore)
		router := newTestRouter(s, store, nil)

		rec, body := do(t, router, http.MethodPost, "/scrape/new", `{"url":"https://www.ebay.com/itm/123"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid Amazon India product URL", body["error"])
		s.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("rejects missing url and bad json", func(t *testing.T) {
		s := new(MockScraper)
		router := newTestRouter(s, new(MockStore), nil)

		for _, payload := range []string{`{}`, `{"url":`, ``} {
			rec, body := do(t, router, http.MethodPost, "/scrape/new", payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
			assert.Equal(t, "Invalid Amazon India product URL", body["error"])
		}
		s.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
	})

	t.Run("scrapes and stores", func(t *testing.T) {
		s := new(MockScraper)
		store := new(MockStore)
		router := newTestRouter(s, store, nil)

		record := models.NewProductRecord()
		record.Name = "Apple iPhone 15"
		stored := &models.StoredProduct{
			ID:            uuid.New(),
			CreatedAt:     time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
			ProductRecord: *record,
		}

		s.On("Scrape", mock.Anything, productURL).Return(record, nil)
		store.On("Insert", mock.Anything, record).Return(stored, nil)

		rec, body := do(t, router, http.MethodPost, "/scrape/new", `{"url":"`+productURL+`"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["success"])
		data := body["data"].(map[string]interface{})
		assert.Equal(t, "Apple iPhone 15", data["name"])
		assert.Equal(t, stored.ID.String(), data["id"])
		assert.Equal(t, "2024-03-01T10:30:00Z", data["createdAt"])
		assert.ElementsMatch(t, []string{
			"id", "createdAt", "name", "rating", "numberOfRatings", "price", "discount",
			"offers", "aboutItem", "productInfo", "images", "manufacturerImages", "aiReviewSummary",
		}, keys(data))
		assert.Equal(t, []interface{}{}, data["offers"])
		assert.Equal(t, map[string]interface{}{}, data["productInfo"])
		assert.Equal(t, models.NotAvailable, data["price"])

		s.AssertExpectations(t)
		store.AssertExpectations(t)
	})

	t.Run("scrape failure", func(t *testing.T) {
		s := new(MockScraper)
		store := new(MockStore)
		router := newTestRouter(s, store, nil)

		s.On("Scrape", mock.Anything, productURL).Return(nil, &scraper.ScrapeError{
			Stage: scraper.StageNavigation,
			URL:   productURL,
			Err:   errors.New("timeout"),
		})

		rec, body := do(t, router, http.MethodPost, "/scrape/new", `{"url":"`+productURL+`"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to scrape product details", body["error"])
		store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("persistence failure", func(t *testing.T) {
		s := new(MockScraper)
		store := new(MockStore)
		router := newTestRouter(s, store, nil)

		s.On("Scrape", mock.Anything, productURL).Return(models.NewProductRecord(), nil)
		store.On("Insert", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		rec, body := do(t, router, http.MethodPost, "/scrape/new", `{"url":"`+productURL+`"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Failed to save scraped product details", body["error"])
	})
}

func TestFetchAll(t *testing.T) {
	summaries := func(n int) []models.ProductSummary {
		out := make([]models.ProductSummary, n)
		for i := range out {
			out[i] = models.ProductSummary{Name: "Product", ID: uuid.New()}
		}
		return out
	}

	t.Run("second page of twelve", func(t *testing.T) {
		store := new(MockStore)
		router := newTestRouter(new(MockScraper), store, nil)

		store.On("Count", mock.Anything).Return(int64(12), nil)
		store.On("List", mock.Anything, 5, 5).Return(summaries(5), nil)

		rec, body := do(t, router, http.MethodPost, "/scrape/fetch-all?page=2&limit=5", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["data"], 5)
		assert.Equal(t, map[string]interface{}{
			"currentPage":   float64(2),
			"totalPages":    float64(3),
			"totalProducts": float64(12),
			"limit":         float64(5),
		}, body["pagination"])
		store.AssertExpectations(t)
	})

	t.Run("defaults for missing or bad params", func(t *testing.T) {
		for _, query := range []string{"", "?page=abc&limit=xyz", "?page=0&limit=-3"} {
			store := new(MockStore)
			router := newTestRouter(new(MockScraper), store, nil)

			store.On("Count", mock.Anything).Return(int64(3), nil)
			store.On("List", mock.Anything, 0, 10).Return(nil, nil)

			rec, body := do(t, router, http.MethodPost, "/scrape/fetch-all"+query, "")

			assert.Equal(t, http.StatusOK, rec.Code, query)
			assert.Equal(t, []interface{}{}, body["data"])
			pagination := body["pagination"].(map[string]interface{})
			assert.Equal(t, float64(1), pagination["currentPage"])
			assert.Equal(t, float64(10), pagination["limit"])
			assert.Equal(t, float64(1), pagination["totalPages"])
			store.AssertExpectations(t)
		}
	})

	t.Run("empty store is not listed", func(t *testing.T) {
		store := new(MockStore)
		router := newTestRouter(new(MockScraper), store, nil)

		store.On("Count", mock.Anything).Return(int64(0), nil)

		rec, body := do(t, router, http.MethodPost, "/scrape/fetch-all", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []interface{}{}, body["data"])
		assert.Equal(t, float64(0), body["pagination"].(map[string]interface{})["totalPages"])
		store.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("huge limit", func(t *testing.T) {
		store := new(MockStore)
		router := newTestRouter(new(MockScraper), store, nil)

		store.On("Count", mock.Anything).Return(int64(12), nil)
		store.On("List", mock.Anything, 0, math.MaxInt64).Return(summaries(12), nil)

		rec, body := do(t, router, http.MethodPost, "/scrape/fetch-all?page=1&limit=9223372036854775807", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["data"], 12)
		pagination := body["pagination"].(map[string]interface{})
		assert.Equal(t, float64(1), pagination["totalPages"])
		assert.Equal(t, float64(12), pagination["totalProducts"])
		store.AssertExpectations(t)
	})

	t.Run("page past the end of a huge limit", func(t *testing.T) {
		store := new(MockStore)
		router := newTestRouter(new(MockScraper), store, nil)

		store.On("Count", mock.Anything).Return(int64(12), nil)

		rec, body := do(t, router, http.MethodPost, "/scrape/fetch-all?page=2&limit=9223372036854775807", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []interface{}{}, body["data"])
		assert.Equal(t, float64(1), body["pagination"].(map[string]interface{})["totalPages"])
		store.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("page whose offset overflows", func(t *testing.T) {
		store := new(MockStore)
		router := newTestRouter(new(MockScraper), store, nil)

		store.On("Count", mock.Anything).Return(int64(12), nil)

		rec, body := do(t, router, http.MethodPost, "/scrape/fetch-all?page=4611686018427387904&limit=4", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []interface{}{}, body["data"])
		assert.Equal(t, float64(3), body["pagination"].(map[string]interface{})["totalPages"])
		store.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failure", func(t *testing.T) {
		store := new(MockStore)
		router := newTestRouter(new(MockScraper), store, nil)

		store.On("Count", mock.Anything).Return(int64(0), errors.New("db down"))

		rec, body := do(t, router, http.MethodPost, "/scrape/fetch-all", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to get scraped products", body["error"])
	})
}

func TestGetSingle(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store := new(MockStore)
		router := newTestRouter(new(MockScraper), store, nil)

		id := uuid.New()
		record := models.NewProductRecord()
		record.Name = "Boat Airdopes 141"
		store.On("Get", mock.Anything, id).Return(&models.StoredProduct{ID: id, ProductRecord: *record}, nil)

		rec, body := do(t, router, http.MethodGet, "/scrape/single/"+id.String(), "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Boat Airdopes 141", body["data"].(map[string]interface{})["name"])
	})

	t.Run("unknown id", func(t *testing.T) {
		store := new(MockStore)
		router := newTestRouter(new(MockScraper), store, nil)

		store.On("Get", mock.Anything, mock.Anything).Return(nil, nil)

		rec, body := do(t, router, http.MethodGet, "/scrape/single/"+uuid.New().String(), "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Product not found", body["error"])
	})

	t.Run("malformed id", func(t *testing.T) {
		store := new(MockStore)
		router := newTestRouter(new(MockScraper), store, nil)

		rec, body := do(t, router, http.MethodGet, "/scrape/single/64f1c2e9a1b2c3d4e5f60718", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Product not found", body["error"])
		store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("store failure", func(t *testing.T) {
		store := new(MockStore)
		router := newTestRouter(new(MockScraper), store, nil)

		store.On("Get", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		rec, body := do(t, router, http.MethodGet, "/scrape/single/"+uuid.New().String(), "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to get scraped product", body["error"])
	})
}

func TestLiveness(t *testing.T) {
	router := newTestRouter(new(MockScraper), new(MockStore), nil)

	for _, path := range []string{"/", "/scrape/"} {
		rec, body := do(t, router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "Up and running!", body["message"])
	}
}

func TestHealth(t *testing.T) {
	t.Run("relay disabled", func(t *testing.T) {
		router := newTestRouter(new(MockScraper), new(MockStore), nil)

		rec, body := do(t, router, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", body["status"])
	})

	tests := []struct {
		name   string
		stats  database.Stats
		code   int
		status string
	}{
		{"healthy", database.Stats{Pending: 3}, http.StatusOK, "ok"},
		{"backlog", database.Stats{Pending: 5000}, http.StatusOK, "warning"},
		{"dead letters", database.Stats{DeadLetter: 500}, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outbox := new(MockOutbox)
			outbox.On("Stats", mock.Anything).Return(tt.stats, nil)
			router := newTestRouter(new(MockScraper), new(MockStore), outbox)

			rec, body := do(t, router, http.MethodGet, "/health", "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.status, body["status"])
			assert.Equal(t, float64(tt.stats.Pending), body["outbox"].(map[string]interface{})["pending"])
		})
	}
}

func TestPageOffset(t *testing.T) {
	tests := []struct {
		page, limit int
		offset      int
		ok          bool
	}{
		{1, 10, 0, true},
		{3, 5, 10, true},
		{1, math.MaxInt, 0, true},
		{2, math.MaxInt, 0, false},
		{math.MaxInt, 2, 0, false},
	}

	for _, tt := range tests {
		offset, ok := pageOffset(tt.page, tt.limit)
		assert.Equal(t, tt.ok, ok, "page %d limit %d", tt.page, tt.limit)
		assert.Equal(t, tt.offset, offset, "page %d limit %d", tt.page, tt.limit)
	}
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, int64(0), totalPages(0, 10))
	assert.Equal(t, int64(3), totalPages(12, 5))
	assert.Equal(t, int64(2), totalPages(10, 5))
	assert.Equal(t, int64(1), totalPages(12, math.MaxInt))
}
