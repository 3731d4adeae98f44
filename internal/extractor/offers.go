package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/amazon-offer-scraper/internal/models"
)

// Timings controls the suspension points of the offer side sheet
// interaction.
type Timings struct {
	// Settle is the pause after opening a side sheet.
	Settle time.Duration
	// Close is the pause after closing a side sheet.
	Close        time.Duration
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Settle:       2 * time.Second,
		Close:        1 * time.Second,
		WaitTimeout:  DefaultWaitTimeout,
		PollInterval: DefaultPollInterval,
	}
}

type offerKind int

const (
	offerGeneric offerKind = iota
	offerBank
	offerEMI
)

func (k offerKind) String() string {
	switch k {
	case offerBank:
		return "bank"
	case offerEMI:
		return "emi"
	default:
		return "generic"
	}
}

func classifyOffer(title string) offerKind {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "bank") && !strings.Contains(t, "emi"):
		return offerBank
	case strings.Contains(t, "emi"):
		return offerEMI
	default:
		return offerGeneric
	}
}

// OfferEngine walks the offer carousel of a live product page. Bank and EMI
// cards have their side sheet opened, read and closed before the next card
// is touched, so at most one sheet is open at a time.
type OfferEngine struct {
	timings Timings
	logger  *slog.Logger
}

func NewOfferEngine(timings Timings, logger *slog.Logger) *OfferEngine {
	return &OfferEngine{
		timings: timings,
		logger:  logger.With("component", "offer_engine"),
	}
}

// Extract returns one entry per emitted card, in carousel order. Missing
// elements only drop the affected card or row; an error means the page or
// browser itself failed.
func (e *OfferEngine) Extract(ctx context.Context, doc Node) ([]models.OfferEntry, error) {
	offers := make([]models.OfferEntry, 0)

	cards, err := doc.QuerySelectorAll(SelectorOfferCard)
	if err != nil {
		return nil, fmt.Errorf("failed to query offer cards: %w", err)
	}
	e.logger.Debug("offer cards found", "count", len(cards))

	for i, card := range cards {
		entry, ok, err := e.processCard(ctx, doc, card)
		if err != nil {
			return nil, fmt.Errorf("offer card %d: %w", i, err)
		}
		if ok {
			offers = append(offers, entry)
		}
	}

	e.logger.Debug("offers extracted", "count", len(offers))
	return offers, nil
}

func (e *OfferEngine) processCard(ctx context.Context, doc, card Node) (models.OfferEntry, bool, error) {
	titleEl, err := card.QuerySelector(SelectorOfferTitle)
	if err != nil {
		return models.OfferEntry{}, false, err
	}
	descEl, err := card.QuerySelector(SelectorOfferDescription)
	if err != nil {
		return models.OfferEntry{}, false, err
	}
	if titleEl == nil || descEl == nil {
		return models.OfferEntry{}, false, nil
	}

	entry := models.OfferEntry{
		Title:       nodeText(titleEl),
		Description: nodeText(descEl),
		Count:       childText(card, SelectorOfferCount),
	}
	if entry.Title == "" || entry.Description == "" {
		return models.OfferEntry{}, false, nil
	}

	kind := classifyOffer(entry.Title)
	e.logger.Debug("processing offer", "title", entry.Title, "kind", kind.String())

	switch kind {
	case offerBank:
		return e.bankFlow(ctx, doc, card, entry)
	case offerEMI:
		return e.emiFlow(ctx, doc, card, entry)
	default:
		return entry, true, nil
	}
}

// bankFlow emits the card only when the side sheet appears and yields rows.
func (e *OfferEngine) bankFlow(ctx context.Context, doc, card Node, entry models.OfferEntry) (models.OfferEntry, bool, error) {
	opened, err := e.openSideSheet(ctx, card)
	if err != nil || !opened {
		return entry, false, err
	}

	panel, err := WaitForElement(ctx, doc, SelectorBankPanel, e.timings.WaitTimeout, e.timings.PollInterval)
	if err != nil {
		return entry, false, err
	}

	emit := false
	if panel != nil {
		rows, err := panel.QuerySelectorAll(SelectorBankRow)
		if err != nil {
			return entry, false, err
		}
		details := harvestBankRows(rows)
		e.logger.Debug("bank side sheet read", "rows", len(rows), "offers", len(details))
		if len(details) > 0 {
			entry.DetailedOffers = details
			emit = true
		}
	} else {
		e.logger.Debug("bank side sheet not found", "title", entry.Title)
	}

	if err := e.closeSideSheet(ctx, doc); err != nil {
		return entry, false, err
	}

	return entry, emit, nil
}

// emiFlow emits the card whenever its trigger exists, with rows if the
// side sheet produced any.
func (e *OfferEngine) emiFlow(ctx context.Context, doc, card Node, entry models.OfferEntry) (models.OfferEntry, bool, error) {
	opened, err := e.openSideSheet(ctx, card)
	if err != nil || !opened {
		return entry, false, err
	}

	panel, err := WaitForElement(ctx, doc, SelectorEMIPanel, e.timings.WaitTimeout, e.timings.PollInterval)
	if err != nil {
		return entry, false, err
	}

	if panel != nil {
		// EMI rows are not always nested inside the sheet container.
		rows, err := doc.QuerySelectorAll(SelectorEMIRow)
		if err != nil {
			return entry, false, err
		}
		details := harvestEMIRows(rows)
		e.logger.Debug("emi side sheet read", "rows", len(rows), "offers", len(details))
		if len(details) > 0 {
			entry.DetailedOffers = details
		}
	} else {
		e.logger.Debug("emi side sheet not found", "title", entry.Title)
	}

	if err := e.closeSideSheet(ctx, doc); err != nil {
		return entry, false, err
	}

	return entry, true, nil
}

// openSideSheet clicks the card's side sheet trigger and lets the sheet
// render. It reports false when the card has no trigger.
func (e *OfferEngine) openSideSheet(ctx context.Context, card Node) (bool, error) {
	trigger, err := card.QuerySelector(SelectorSideSheetTrigger)
	if err != nil {
		return false, err
	}
	if trigger == nil {
		e.logger.Debug("offer has no side sheet trigger")
		return false, nil
	}

	if err := trigger.Click(); err != nil {
		return false, fmt.Errorf("failed to open side sheet: %w", err)
	}
	if err := sleep(ctx, e.timings.Settle); err != nil {
		return false, err
	}

	return true, nil
}

func (e *OfferEngine) closeSideSheet(ctx context.Context, doc Node) error {
	btn, err := doc.QuerySelector(SelectorSideSheetClose)
	if err != nil {
		return err
	}
	if btn == nil {
		return nil
	}

	if err := btn.Click(); err != nil {
		return fmt.Errorf("failed to close side sheet: %w", err)
	}
	return sleep(ctx, e.timings.Close)
}

func harvestBankRows(rows []Node) []models.DetailedOffer {
	var offers []models.DetailedOffer

	for _, row := range rows {
		bank := childText(row, SelectorBankName)
		details := childText(row, SelectorBankDetails)
		if bank == "" || details == "" {
			continue
		}

		offer := models.DetailedOffer{
			BankName:     bank,
			OfferDetails: details,
		}
		if el, err := row.QuerySelector(SelectorBankValidity); err == nil && el != nil {
			validity := nodeText(el)
			offer.Validity = &validity
		}
		offers = append(offers, offer)
	}

	return offers
}

func harvestEMIRows(rows []Node) []models.DetailedOffer {
	var offers []models.DetailedOffer

	for _, row := range rows {
		bank := childText(row, SelectorEMIBankName)
		details := childText(row, SelectorEMIDetails)
		if bank == "" || details == "" {
			continue
		}

		tenure := childText(row, SelectorEMITenure)
		offers = append(offers, models.DetailedOffer{
			BankName:     bank,
			OfferDetails: strings.TrimSpace(details + " " + tenure),
		})
	}

	return offers
}

// nodeText is the cleaned text of n, or "" when it cannot be read.
func nodeText(n Node) string {
	text, err := n.TextContent()
	if err != nil {
		return ""
	}
	return CleanText(text)
}
