package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mercato/internal/domain/contract"
	"mercato/internal/domain/offer"
)

// Session is one negotiation instance. It is created per attempt, mutated
// only by its orchestrator, and discarded once the result is returned.
type Session struct {
	ID         uuid.UUID `json:"id"`
	RequestID  uuid.UUID `json:"request_id"`
	ProductID  uuid.UUID `json:"product_id"`
	SupplierID uuid.UUID `json:"supplier_id"`

	Buyer    Participant `json:"buyer"`
	Supplier Participant `json:"supplier"`

	Status       Status  `json:"status"`
	Phase        Phase   `json:"phase"`
	CurrentRound int     `json:"current_round"`
	Rounds       []Round `json:"rounds"`

	StartedAt      time.Time     `json:"started_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	MaxDuration    time.Duration `json:"max_duration"`

	FinalOffer       *offer.Offer `json:"final_offer,omitempty"`
	AgreementReached bool         `json:"agreement_reached"`
	FailureReason    string       `json:"failure_reason,omitempty"`
	Priority         int          `json:"priority"`
}

// Participant is the session's snapshot of one negotiating agent
type Participant struct {
	AgentID  string     `json:"agent_id"`
	Role     offer.Role `json:"role"`
	Strategy string     `json:"strategy"`
}

// Status is the session lifecycle state
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Valid checks if status is valid
func (s Status) Valid() bool {
	switch s {
	case StatusInitializing, StatusActive, StatusPaused, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the session can no longer advance
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Phase describes where in the protocol the session currently is
type Phase string

const (
	PhaseOpening    Phase = "opening"
	PhaseBargaining Phase = "bargaining"
	PhaseClosing    Phase = "closing"
)

// RoundStatus is the state of a single round
type RoundStatus string

const (
	RoundActive    RoundStatus = "active"
	RoundCompleted RoundStatus = "completed"
	RoundFailed    RoundStatus = "failed"
)

// Round is one full exchange between buyer and supplier
type Round struct {
	Number        int          `json:"number"`
	BuyerOffer    *offer.Offer `json:"buyer_offer,omitempty"`
	SupplierOffer *offer.Offer `json:"supplier_offer,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       *time.Time   `json:"ended_at,omitempty"`
	Status        RoundStatus  `json:"status"`
	Convergence   float64      `json:"convergence"`
}

// Deadline returns the wall-clock instant after which the session must terminate
func (s *Session) Deadline() time.Time {
	return s.StartedAt.Add(s.MaxDuration)
}

// Expired reports whether the wall-clock budget is exhausted at now
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.Deadline())
}

// LastOffer returns the most recent offer emitted by the given role, or nil
func (s *Session) LastOffer(role offer.Role) *offer.Offer {
	for i := len(s.Rounds) - 1; i >= 0; i-- {
		r := s.Rounds[i]
		if role == offer.RoleBuyer && r.BuyerOffer != nil {
			return r.BuyerOffer
		}
		if role == offer.RoleSupplier && r.SupplierOffer != nil {
			return r.SupplierOffer
		}
	}
	return nil
}

// PriceGap returns the absolute price distance between the two sides' most
// recent offers in the given round (1-based). Zero when either side is missing.
func (s *Session) PriceGap(roundNumber int) decimal.Decimal {
	if roundNumber < 1 || roundNumber > len(s.Rounds) {
		return decimal.Zero
	}
	r := s.Rounds[roundNumber-1]
	if r.BuyerOffer == nil || r.SupplierOffer == nil {
		return decimal.Zero
	}
	return r.SupplierOffer.UnitPrice.Sub(r.BuyerOffer.UnitPrice).Abs()
}

// Convergence scores how close two offers are across price, quantity and
// delivery: 1 − mean of the normalized axis distances, floored at 0.
// An offer compared to itself scores exactly 1.
func Convergence(a, b *offer.Offer) float64 {
	if a == nil || b == nil {
		return 0
	}

	price := axisDistance(a.UnitPrice.InexactFloat64(), b.UnitPrice.InexactFloat64())
	qty := axisDistance(float64(a.Quantity), float64(b.Quantity))
	delivery := axisDistance(float64(a.DeliveryDays), float64(b.DeliveryDays))

	score := 1 - (price+qty+delivery)/3
	if score < 0 {
		return 0
	}
	return score
}

func axisDistance(a, b float64) float64 {
	max := a
	if b > max {
		max = b
	}
	if max == 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff / max
}

// Result is the terminal output of a negotiation run
type Result struct {
	SessionID  uuid.UUID     `json:"session_id"`
	Success    bool          `json:"success"`
	FinalOffer *offer.Offer  `json:"final_offer,omitempty"`
	Rounds     []Round       `json:"rounds"`
	Duration   time.Duration `json:"duration"`
	Reason     string        `json:"reason"`
	Metrics    Metrics       `json:"metrics"`

	// Contract is set only on success; a failed assembly leaves it nil with
	// ContractError set, without affecting Success.
	Contract      *contract.Contract `json:"contract,omitempty"`
	ContractError string             `json:"contract_error,omitempty"`
}

// Metrics summarizes a completed negotiation
type Metrics struct {
	TotalRounds          int             `json:"total_rounds"`
	InitialBuyerOffer    decimal.Decimal `json:"initial_buyer_offer"`
	InitialSupplierOffer decimal.Decimal `json:"initial_supplier_offer"`
	FinalPrice           decimal.Decimal `json:"final_price"`
	BuyerSavingsPct      decimal.Decimal `json:"buyer_savings_pct"`
	SupplierMarginPct    decimal.Decimal `json:"supplier_margin_pct"`
	TimeToAgreement      time.Duration   `json:"time_to_agreement"`
	ConvergenceRate      float64         `json:"convergence_rate"`
	BuyerSatisfaction    float64         `json:"buyer_satisfaction"`
	SupplierSatisfaction float64         `json:"supplier_satisfaction"`
}
