package offer

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mercato/pkg/errors"
)

// Offer represents one party's proposed terms for one negotiation round.
// Offers are value objects: once emitted they are never mutated.
type Offer struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	Role      Role      `json:"role"`
	Round     int       `json:"round"`
	CreatedAt time.Time `json:"created_at"`

	// Commercial terms
	UnitPrice    decimal.Decimal   `json:"unit_price"`
	Currency     string            `json:"currency"`
	Quantity     int64             `json:"quantity"`
	DeliveryDays int               `json:"delivery_days"`
	PaymentTerms string            `json:"payment_terms"`
	Warranty     *Warranty         `json:"warranty,omitempty"`
	CustomTerms  map[string]string `json:"custom_terms,omitempty"`

	// Decision metadata
	Reasoning      string     `json:"reasoning"`
	Confidence     float64    `json:"confidence"`
	IsCounterOffer bool       `json:"is_counter_offer"`
	InResponseTo   *uuid.UUID `json:"in_response_to,omitempty"`
}

// Warranty describes an optional warranty term attached to an offer
type Warranty struct {
	Duration int    `json:"duration"`
	Unit     string `json:"unit"` // months, years
}

// Role identifies which side of the negotiation authored an offer
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSupplier Role = "supplier"
)

// Valid checks if the role is valid
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSupplier
}

// String returns string representation
func (r Role) String() string {
	return string(r)
}

// Opposite returns the counterparty role
func (r Role) Opposite() Role {
	if r == RoleBuyer {
		return RoleSupplier
	}
	return RoleBuyer
}

// TotalPrice returns unit price multiplied by quantity
func (o *Offer) TotalPrice() decimal.Decimal {
	return o.UnitPrice.Mul(decimal.NewFromInt(o.Quantity))
}

// Validate checks the offer invariants
func (o *Offer) Validate() error {
	if !o.Role.Valid() {
		return errors.Wrapf(errors.ErrInvalidInput, "invalid offer role %q", o.Role)
	}
	if o.UnitPrice.IsNegative() {
		return errors.Wrapf(errors.ErrInvalidInput, "unit price must be >= 0, got %s", o.UnitPrice)
	}
	if o.Quantity < 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "quantity must be >= 1, got %d", o.Quantity)
	}
	if o.DeliveryDays < 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "delivery days must be >= 0, got %d", o.DeliveryDays)
	}
	if o.Round < 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "round must be >= 1, got %d", o.Round)
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "confidence must be in [0,1], got %f", o.Confidence)
	}
	return nil
}
