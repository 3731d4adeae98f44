package models

import (
	"time"

	"github.com/google/uuid"
)

// NotAvailable is stored for any text field whose source element is missing.
const NotAvailable = "Not Available"

// ProductRecord is the assembled result of one product page extraction.
type ProductRecord struct {
	Name               string            `json:"name"`
	Rating             string            `json:"rating"`
	NumberOfRatings    string            `json:"numberOfRatings"`
	Price              string            `json:"price"`
	Discount           string            `json:"discount"`
	Offers             []OfferEntry      `json:"offers"`
	AboutItem          string            `json:"aboutItem"`
	ProductInfo        map[string]string `json:"productInfo"`
	Images             []string          `json:"images"`
	ManufacturerImages []string          `json:"manufacturerImages"`
	AIReviewSummary    string            `json:"aiReviewSummary"`
}

// OfferEntry is one promotional offer card.
type OfferEntry struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Count          string          `json:"count"`
	DetailedOffers []DetailedOffer `json:"detailedOffers,omitempty"`
}

// DetailedOffer is a single row read from an offer's side sheet.
type DetailedOffer struct {
	BankName     string  `json:"bankName"`
	OfferDetails string  `json:"offerDetails"`
	Validity     *string `json:"validity,omitempty"`
}

// StoredProduct is a ProductRecord as it comes back from the store.
type StoredProduct struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ProductRecord
}

// ProductSummary is the listing projection of a stored product.
type ProductSummary struct {
	Name string    `json:"name"`
	ID   uuid.UUID `json:"id"`
}

// NewProductRecord returns a record with every text field set to NotAvailable
// and every collection empty.
func NewProductRecord() *ProductRecord {
	return &ProductRecord{
		Name:               NotAvailable,
		Rating:             NotAvailable,
		NumberOfRatings:    NotAvailable,
		Price:              NotAvailable,
		Discount:           NotAvailable,
		Offers:             make([]OfferEntry, 0),
		AboutItem:          NotAvailable,
		ProductInfo:        make(map[string]string),
		Images:             make([]string, 0),
		ManufacturerImages: make([]string, 0),
		AIReviewSummary:    NotAvailable,
	}
}

// Normalize replaces nil collections with empty ones so the persisted shape
// never has holes. Text fields are left alone: an element that exists but
// carries no text stays "", only a missing one is NotAvailable.
func (p *ProductRecord) Normalize() {
	if p.Offers == nil {
		p.Offers = make([]OfferEntry, 0)
	}
	if p.ProductInfo == nil {
		p.ProductInfo = make(map[string]string)
	}
	if p.Images == nil {
		p.Images = make([]string, 0)
	}
	if p.ManufacturerImages == nil {
		p.ManufacturerImages = make([]string, 0)
	}
}

// Validate reports offers that break the card and side sheet invariants.
func (p *ProductRecord) Validate() []string {
	var errors []string

	for _, o := range p.Offers {
		if o.Title == "" || o.Description == "" {
			errors = append(errors, "offer without title or description")
		}
		if o.DetailedOffers != nil && len(o.DetailedOffers) == 0 {
			errors = append(errors, "offer has empty detailedOffers")
		}
		for _, d := range o.DetailedOffers {
			if d.BankName == "" || d.OfferDetails == "" {
				errors = append(errors, "detailed offer missing bank name or details")
			}
		}
	}

	return errors
}
