package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/maltedev/amazon-offer-scraper/internal/database"
	"github.com/maltedev/amazon-offer-scraper/internal/models"
	"github.com/maltedev/amazon-offer-scraper/internal/scraper"
)

const (
	defaultPage  = 1
	defaultLimit = 10

	// Outbox thresholds reported by /health.
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

// Scraper turns a product URL into a record.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string) (*models.ProductRecord, error)
}

// ProductStore persists and reads back scraped products.
type ProductStore interface {
	Insert(ctx context.Context, record *models.ProductRecord) (*models.StoredProduct, error)
	Get(ctx context.Context, id uuid.UUID) (*models.StoredProduct, error)
	List(ctx context.Context, offset, limit int) ([]models.ProductSummary, error)
	Count(ctx context.Context) (int64, error)
}

// OutboxStats reports the event relay backlog.
type OutboxStats interface {
	Stats(ctx context.Context) (database.Stats, error)
}

type Handlers struct {
	scraper Scraper
	store   ProductStore
	outbox  OutboxStats
	logger  *slog.Logger
}

// NewHandlers wires the HTTP handlers. outbox may be nil when the relay is
// disabled.
func NewHandlers(scraper Scraper, store ProductStore, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		scraper: scraper,
		store:   store,
		outbox:  outbox,
		logger:  logger.With("component", "api"),
	}
}

// Register mounts all routes on r.
func (h *Handlers) Register(r chi.Router) {
	r.Get("/", h.Liveness)
	r.Get("/health", h.Health)

	r.Route("/scrape", func(r chi.Router) {
		r.Get("/", h.Liveness)
		r.Post("/new", h.ScrapeNew)
		r.Post("/fetch-all", h.FetchAll)
		r.Get("/single/{id}", h.GetSingle)
	})
}

type ScrapeRequest struct {
	URL string `json:"url"`
}

type ScrapeResponse struct {
	Success bool                  `json:"success"`
	Data    *models.StoredProduct `json:"data"`
}

type Pagination struct {
	CurrentPage   int   `json:"currentPage"`
	TotalPages    int64 `json:"totalPages"`
	TotalProducts int64 `json:"totalProducts"`
	Limit         int   `json:"limit"`
}

type ListResponse struct {
	Success    bool                    `json:"success"`
	Data       []models.ProductSummary `json:"data"`
	Pagination Pagination              `json:"pagination"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ScrapeNew scrapes the posted URL and stores the result.
func (h *Handlers) ScrapeNew(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid Amazon India product URL")
		return
	}

	if _, err := scraper.ValidateURL(req.URL); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid Amazon India product URL")
		return
	}

	record, err := h.scraper.Scrape(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, scraper.ErrInvalidURL) {
			h.respondError(w, http.StatusBadRequest, "Invalid Amazon India product URL")
			return
		}
		attrs := []any{"error", err, "url", req.URL}
		var scrapeErr *scraper.ScrapeError
		if errors.As(err, &scrapeErr) {
			attrs = append(attrs, "stage", scrapeErr.Stage)
		}
		h.logger.Error("failed to scrape product", attrs...)
		h.respondError(w, http.StatusInternalServerError, "Failed to scrape product details")
		return
	}

	stored, err := h.store.Insert(r.Context(), record)
	if err != nil {
		h.logger.Error("failed to save scraped product", "error", err, "url", req.URL)
		h.respondJSON(w, http.StatusInternalServerError, failureResponse{
			Success: false,
			Error:   "Failed to save scraped product details",
		})
		return
	}

	h.respondJSON(w, http.StatusOK, ScrapeResponse{Success: true, Data: stored})
}

// FetchAll lists stored products page by page.
func (h *Handlers) FetchAll(w http.ResponseWriter, r *http.Request) {
	page := positiveQueryInt(r, "page", defaultPage)
	limit := positiveQueryInt(r, "limit", defaultLimit)

	total, err := h.store.Count(r.Context())
	if err != nil {
		h.logger.Error("failed to count products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to get scraped products")
		return
	}

	products := make([]models.ProductSummary, 0)
	if offset, ok := pageOffset(page, limit); ok && int64(offset) < total {
		products, err = h.store.List(r.Context(), offset, limit)
		if err != nil {
			h.logger.Error("failed to list products", "error", err, "page", page, "limit", limit)
			h.respondError(w, http.StatusInternalServerError, "Failed to get scraped products")
			return
		}
		if products == nil {
			products = make([]models.ProductSummary, 0)
		}
	}

	h.respondJSON(w, http.StatusOK, ListResponse{
		Success: true,
		Data:    products,
		Pagination: Pagination{
			CurrentPage:   page,
			TotalPages:    totalPages(total, limit),
			TotalProducts: total,
			Limit:         limit,
		},
	})
}

// pageOffset is the row offset of page, false when it does not fit an int.
func pageOffset(page, limit int) (int, bool) {
	if page-1 > math.MaxInt/limit {
		return 0, false
	}
	return (page - 1) * limit, true
}

func totalPages(total int64, limit int) int64 {
	l := int64(limit)
	pages := total / l
	if total%l != 0 {
		pages++
	}
	return pages
}

// GetSingle returns one stored product by id.
func (h *Handlers) GetSingle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Product not found")
		return
	}

	product, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "id", id)
		h.respondError(w, http.StatusInternalServerError, "Failed to get scraped product")
		return
	}
	if product == nil {
		h.respondError(w, http.StatusNotFound, "Product not found")
		return
	}

	h.respondJSON(w, http.StatusOK, ScrapeResponse{Success: true, Data: product})
}

func (h *Handlers) Liveness(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Up and running!"})
}

// Health reports outbox backlog when the relay is running.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.outbox == nil {
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	stats, err := h.outbox.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get outbox stats", "error", err)
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "Outbox unavailable",
		})
		return
	}

	health := map[string]interface{}{
		"status": "ok",
		"outbox": stats,
	}

	status := http.StatusOK
	if stats.Pending > pendingWarnThreshold {
		health["status"] = "warning"
		health["message"] = "High number of pending outbox events"
	}
	if stats.DeadLetter > deadLetterFailThreshold {
		health["status"] = "error"
		health["message"] = "High number of dead letter events"
		status = http.StatusServiceUnavailable
	}

	h.respondJSON(w, status, health)
}

// positiveQueryInt parses a query parameter, falling back for anything
// missing, non-numeric or below 1.
func positiveQueryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
