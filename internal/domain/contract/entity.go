package contract

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mercato/internal/domain/offer"
)

// Contract is the structured record derived from a final accepted offer
type Contract struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	RequestID uuid.UUID `json:"request_id"`
	ProductID uuid.UUID `json:"product_id"`

	BuyerID    uuid.UUID `json:"buyer_id"`
	SupplierID uuid.UUID `json:"supplier_id"`

	// Commercial terms
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Currency   string          `json:"currency"`
	Quantity   int64           `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`

	// Delivery
	DeliveryDays     int       `json:"delivery_days"`
	DeliveryDate     time.Time `json:"delivery_date"`
	DeliveryLocation string    `json:"delivery_location"`
	DeliveryTerms    string    `json:"delivery_terms"`

	// Payment & warranty
	PaymentTerms string          `json:"payment_terms"`
	Warranty     *offer.Warranty `json:"warranty,omitempty"`

	// Product passthrough
	Specifications map[string]string `json:"specifications,omitempty"`
	Certifications []string          `json:"certifications,omitempty"`

	// Approval lifecycle
	Status           Status    `json:"status"`
	BuyerApproved    bool      `json:"buyer_approved"`
	SupplierApproved bool      `json:"supplier_approved"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`

	// Rendered legal document
	Document string `json:"document"`
}

// Status is the contract approval state
type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
)

// Valid checks if status is valid
func (s Status) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}
