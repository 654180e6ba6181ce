package request

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mercato/pkg/errors"
)

// BuyerRequest is the originating business object on the buyer side.
// It is read-only to the negotiation engine.
type BuyerRequest struct {
	ID          uuid.UUID `json:"id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`

	Quantity QuantityRange        `json:"quantity"`
	Budget   Budget               `json:"budget"`
	Delivery DeliveryRequirements `json:"delivery"`

	PaymentPreference string  `json:"payment_preference"`
	Urgency           Urgency `json:"urgency"`
}

// QuantityRange bounds the acceptable order size
type QuantityRange struct {
	Min  int64  `json:"min"`
	Max  int64  `json:"max"`
	Unit string `json:"unit"`
}

// Budget bounds total spend for the request
type Budget struct {
	Min      decimal.Decimal `json:"min"`
	Max      decimal.Decimal `json:"max"`
	Currency string          `json:"currency"`
}

// DeliveryRequirements describes where and by when goods must arrive
type DeliveryRequirements struct {
	Location string     `json:"location"`
	Deadline *time.Time `json:"deadline,omitempty"`
	Terms    string     `json:"terms"`
}

// Urgency drives the buyer's delivery expectations
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
	UrgencyUrgent   Urgency = "urgent"
)

// Valid checks if urgency is valid
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical, UrgencyUrgent:
		return true
	}
	return false
}

// String returns string representation
func (u Urgency) String() string {
	return string(u)
}

// TargetDeliveryDays maps urgency to the delivery window the buyer opens with
func (u Urgency) TargetDeliveryDays() int {
	switch u {
	case UrgencyLow:
		return 30
	case UrgencyMedium:
		return 21
	case UrgencyHigh:
		return 14
	case UrgencyCritical, UrgencyUrgent:
		return 7
	default:
		return 21
	}
}

// MaxUnitPrice returns the highest affordable price per unit, budget max
// spread over the largest requested quantity
func (r *BuyerRequest) MaxUnitPrice() decimal.Decimal {
	if r.Quantity.Max == 0 {
		return decimal.Zero
	}
	return r.Budget.Max.Div(decimal.NewFromInt(r.Quantity.Max))
}

// Validate fails fast on malformed requests so a bad input never
// silently defaults into a negotiation
func (r *BuyerRequest) Validate() error {
	if r.Quantity.Min < 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "request quantity.min must be >= 1, got %d", r.Quantity.Min)
	}
	if r.Quantity.Max < r.Quantity.Min {
		return errors.Wrapf(errors.ErrInvalidInput, "request quantity.max %d below quantity.min %d", r.Quantity.Max, r.Quantity.Min)
	}
	if !r.Budget.Max.IsPositive() {
		return errors.Wrapf(errors.ErrInvalidInput, "request budget.max must be positive, got %s", r.Budget.Max)
	}
	if r.Budget.Min.IsNegative() || r.Budget.Min.GreaterThan(r.Budget.Max) {
		return errors.Wrapf(errors.ErrInvalidInput, "request budget range invalid: min %s max %s", r.Budget.Min, r.Budget.Max)
	}
	if r.Budget.Currency == "" {
		return errors.Wrap(errors.ErrInvalidInput, "request budget currency is required")
	}
	if !r.Urgency.Valid() {
		return errors.Wrapf(errors.ErrInvalidInput, "invalid urgency %q", r.Urgency)
	}
	return nil
}
