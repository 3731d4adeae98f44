package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/amazon-offer-scraper/internal/browser"
	"github.com/maltedev/amazon-offer-scraper/internal/extractor"
	"github.com/maltedev/amazon-offer-scraper/internal/models"
)

const amazonIndiaHost = "amazon.in"

// Service extracts product records from Amazon India product pages.
type Service struct {
	launcher browser.Launcher
	engine   *extractor.OfferEngine
	logger   *slog.Logger
}

func NewService(launcher browser.Launcher, timings extractor.Timings, logger *slog.Logger) *Service {
	return &Service{
		launcher: launcher,
		engine:   extractor.NewOfferEngine(timings, logger),
		logger:   logger.With("component", "scraper"),
	}
}

// ValidateURL accepts http(s) URLs on amazon.in or one of its subdomains.
func ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrInvalidURL
	}

	host := strings.ToLower(u.Hostname())
	if host != amazonIndiaHost && !strings.HasSuffix(host, "."+amazonIndiaHost) {
		return nil, ErrInvalidURL
	}

	return u, nil
}

// Scrape loads rawURL in a fresh browser session and assembles its record.
// The session is closed on every path.
func (s *Service) Scrape(ctx context.Context, rawURL string) (*models.ProductRecord, error) {
	target, err := ValidateURL(rawURL)
	if err != nil {
		return nil, newScrapeError(StageValidation, rawURL, err)
	}
	pageURL := target.String()

	start := time.Now()
	s.logger.Info("scraping product", "url", pageURL)

	session, err := s.launcher.NewSession(ctx)
	if err != nil {
		return nil, newScrapeError(StageSession, pageURL, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn("failed to close browser session", "url", pageURL, "error", err)
		}
	}()

	if err := session.Navigate(ctx, pageURL); err != nil {
		return nil, newScrapeError(StageNavigation, pageURL, err)
	}

	record, err := s.extract(ctx, session, pageURL)
	if err != nil {
		return nil, newScrapeError(StageExtraction, pageURL, err)
	}

	s.logger.Info("product scraped",
		"url", pageURL,
		"name", record.Name,
		"offers", len(record.Offers),
		"duration", time.Since(start))

	return record, nil
}

func (s *Service) extract(ctx context.Context, session browser.Session, pageURL string) (*models.ProductRecord, error) {
	html, err := session.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read page html: %w", err)
	}

	snap, err := extractor.NewSnapshot(html, pageURL)
	if err != nil {
		return nil, err
	}
	root := snap.Root()

	record := models.NewProductRecord()
	record.Name = extractor.Text(root, extractor.SelectorTitle)
	record.Rating = extractor.Text(root, extractor.SelectorRating)
	record.NumberOfRatings = extractor.Text(root, extractor.SelectorRatingCount)
	record.Price = extractor.Text(root, extractor.SelectorPrice)
	record.Discount = extractor.Text(root, extractor.SelectorDiscount)

	doc, err := session.Document()
	if err != nil {
		return nil, err
	}
	offers, err := s.engine.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to extract offers: %w", err)
	}
	record.Offers = offers

	record.AboutItem = extractor.Text(root, extractor.SelectorAboutItem)
	record.ProductInfo = extractor.Table(root, extractor.SelectorTechSpecRows)
	record.Images = extractor.Images(root, extractor.SelectorAltImages)
	record.ManufacturerImages = extractor.Images(root, extractor.SelectorImageBlock)
	record.AIReviewSummary = extractor.Text(root, extractor.SelectorAIReviewSummary)

	record.Normalize()
	if problems := record.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid record: %s", strings.Join(problems, "; "))
	}
	return record, nil
}
