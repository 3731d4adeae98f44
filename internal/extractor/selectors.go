package extractor

// Product page selectors for amazon.in.
const (
	SelectorTitle           = "#productTitle"
	SelectorRating          = ".a-icon-alt"
	SelectorRatingCount     = "#acrCustomerReviewText"
	SelectorPrice           = ".a-price-whole"
	SelectorDiscount        = ".savingsPercentage"
	SelectorAboutItem       = "#feature-bullets"
	SelectorTechSpecRows    = "#productDetails_techSpec_section_1 tr"
	SelectorAltImages       = "#altImages img"
	SelectorImageBlock      = "#imageBlock img"
	SelectorAIReviewSummary = "#product-summary > p"
)

// Offer carousel and side sheet selectors.
const (
	SelectorOfferCard        = ".a-carousel-card"
	SelectorOfferTitle       = ".offers-items-title"
	SelectorOfferDescription = ".a-truncate-full"
	SelectorOfferCount       = ".vsx-offers-count"
	SelectorSideSheetTrigger = `[data-action="side-sheet"]`
	SelectorSideSheetClose   = ".vsx__offers-sideSheet-close"

	SelectorBankPanel    = "#InstantBankDiscount-sideSheet"
	SelectorBankRow      = ".vsx-offers-desktop-lv__item"
	SelectorBankName     = "h1"
	SelectorBankDetails  = "p"
	SelectorBankValidity = ".vsx-offers-desktop__footer-text"

	SelectorEMIPanel    = ".emi-options-box, .emi-table"
	SelectorEMIRow      = ".emi-option-row, .emi-bank-option"
	SelectorEMIBankName = ".emi-bank-name, .bank-name"
	SelectorEMIDetails  = ".emi-details, .monthly-payment"
	SelectorEMITenure   = ".emi-tenure"
)
