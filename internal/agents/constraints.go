package agents

import (
	"time"

	"github.com/shopspring/decimal"

	"mercato/internal/domain/product"
	"mercato/internal/domain/request"
)

// supplierFloorFactor is the fraction of the published tier price a
// supplier will never counter below
const supplierFloorFactor = 0.95

// Constraints are the hard, non-negotiable limits derived from the
// originating business object. Counter-offer clamping always wins over
// any evaluator suggestion.
type Constraints struct {
	// Buyer side
	MaxUnitPrice         decimal.Decimal
	MaxDeliveryDays      int
	AcceptedPaymentTerms []string

	// Supplier side
	MinUnitPrice decimal.Decimal
	MinLeadDays  int
	MaxLeadDays  int

	// Shared
	MinQuantity int64
	MaxQuantity int64
}

// buyerConstraints derives the buyer's hard limits from its request.
// The acceptance window for delivery comes from the request deadline when
// present; urgency only shapes what the buyer asks for.
func buyerConstraints(req *request.BuyerRequest, now time.Time) Constraints {
	maxDelivery := req.Urgency.TargetDeliveryDays() * 2
	if req.Delivery.Deadline != nil {
		days := int(req.Delivery.Deadline.Sub(now).Hours() / 24)
		if days < 0 {
			days = 0
		}
		if days < maxDelivery {
			maxDelivery = days
		}
	}

	accepted := []string{}
	if req.PaymentPreference != "" {
		accepted = append(accepted, req.PaymentPreference)
	}

	return Constraints{
		MaxUnitPrice:         req.MaxUnitPrice(),
		MaxDeliveryDays:      maxDelivery,
		AcceptedPaymentTerms: accepted,
		MinQuantity:          req.Quantity.Min,
		MaxQuantity:          req.Quantity.Max,
	}
}

// supplierConstraints derives the supplier's hard limits from its product.
// The minimum acceptable price is the lowest published tier less the
// standing margin allowance.
func supplierConstraints(prod *product.B2BProduct) Constraints {
	minLead, maxLead := prod.Terms.LeadTime.Days()

	return Constraints{
		MinUnitPrice: prod.LowestTierPrice().Mul(decimal.NewFromFloat(supplierFloorFactor)),
		MinLeadDays:  minLead,
		MaxLeadDays:  maxLead,
		MinQuantity:  prod.Terms.MOQ,
		MaxQuantity:  0, // suppliers carry no quantity ceiling
	}
}

// clampQuantity pulls qty into the constraint's feasible range.
// A zero MaxQuantity means unbounded above.
func (c Constraints) clampQuantity(qty int64) int64 {
	if qty < c.MinQuantity {
		qty = c.MinQuantity
	}
	if c.MaxQuantity > 0 && qty > c.MaxQuantity {
		qty = c.MaxQuantity
	}
	return qty
}
