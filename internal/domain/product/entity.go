package product

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mercato/pkg/errors"
)

// B2BProduct is the originating business object on the supplier side.
// It is read-only to the negotiation engine.
type B2BProduct struct {
	ID         uuid.UUID `json:"id"`
	SupplierID uuid.UUID `json:"supplier_id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`

	Specifications map[string]string `json:"specifications,omitempty"`
	Certifications []string          `json:"certifications,omitempty"`

	Terms      CommercialTerms       `json:"commercial_terms"`
	Boundaries NegotiationBoundaries `json:"negotiation_boundaries"`
}

// CommercialTerms carries the supplier's published trading conditions
type CommercialTerms struct {
	Tiers         []PricingTier `json:"pricing_tiers"`
	PaymentTerms  string        `json:"payment_terms"`
	DeliveryTerms string        `json:"delivery_terms"`
	LeadTime      LeadTime      `json:"lead_time"`
	MOQ           int64         `json:"moq"`
	Currency      string        `json:"currency"`
}

// PricingTier is one quantity breakpoint of the published price ladder
type PricingTier struct {
	MinQuantity int64           `json:"min_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// LeadTime is the supplier's declared production/shipping window
type LeadTime struct {
	Min  int    `json:"min"`
	Max  int    `json:"max"`
	Unit string `json:"unit"` // days, weeks
}

// Days normalizes the lead time window to days
func (l LeadTime) Days() (int, int) {
	factor := 1
	if l.Unit == "weeks" {
		factor = 7
	}
	return l.Min * factor, l.Max * factor
}

// NegotiationBoundaries declares how far the supplier is willing to move
type NegotiationBoundaries struct {
	PriceFlexibilityPct     decimal.Decimal `json:"price_flexibility_pct"`
	QuantityFlexibilityPct  decimal.Decimal `json:"quantity_flexibility_pct"`
	DeliveryFlexibilityDays int             `json:"delivery_flexibility_days"`
	PaymentTermsFlexible    bool            `json:"payment_terms_flexible"`
}

// TierPriceFor returns the unit price of the tier matching the quantity:
// the tier with the largest breakpoint not exceeding qty. Quantities below
// every breakpoint price at the first tier.
func (p *B2BProduct) TierPriceFor(qty int64) decimal.Decimal {
	if len(p.Terms.Tiers) == 0 {
		return decimal.Zero
	}

	tiers := make([]PricingTier, len(p.Terms.Tiers))
	copy(tiers, p.Terms.Tiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinQuantity < tiers[j].MinQuantity })

	price := tiers[0].UnitPrice
	for _, t := range tiers {
		if qty >= t.MinQuantity {
			price = t.UnitPrice
		}
	}
	return price
}

// LowestTierPrice returns the cheapest published unit price across all tiers
func (p *B2BProduct) LowestTierPrice() decimal.Decimal {
	if len(p.Terms.Tiers) == 0 {
		return decimal.Zero
	}

	lowest := p.Terms.Tiers[0].UnitPrice
	for _, t := range p.Terms.Tiers[1:] {
		if t.UnitPrice.LessThan(lowest) {
			lowest = t.UnitPrice
		}
	}
	return lowest
}

// BasePrice returns the published unit price at the supplier's MOQ,
// the anchor for the supplier's opening offer
func (p *B2BProduct) BasePrice() decimal.Decimal {
	return p.TierPriceFor(p.Terms.MOQ)
}

// Validate fails fast on malformed products so a bad input never
// silently defaults into a negotiation
func (p *B2BProduct) Validate() error {
	if len(p.Terms.Tiers) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "product has no pricing tiers")
	}
	for i, t := range p.Terms.Tiers {
		if !t.UnitPrice.IsPositive() {
			return errors.Wrapf(errors.ErrInvalidInput, "pricing tier %d unit price must be positive, got %s", i, t.UnitPrice)
		}
		if t.MinQuantity < 0 {
			return errors.Wrapf(errors.ErrInvalidInput, "pricing tier %d min quantity must be >= 0, got %d", i, t.MinQuantity)
		}
	}
	if p.Terms.MOQ < 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "product MOQ must be >= 1, got %d", p.Terms.MOQ)
	}
	if p.Terms.Currency == "" {
		return errors.Wrap(errors.ErrInvalidInput, "product currency is required")
	}
	minLead, maxLead := p.Terms.LeadTime.Days()
	if minLead < 0 || maxLead < minLead {
		return errors.Wrapf(errors.ErrInvalidInput, "product lead time window invalid: [%d,%d] days", minLead, maxLead)
	}
	return nil
}
