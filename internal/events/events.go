package events

import (
	"time"

	"github.com/google/uuid"

	"mercato/internal/domain/offer"
)

// Type identifies a negotiation lifecycle event
type Type string

const (
	TypeSessionStarted       Type = "session_started"
	TypeOfferMade            Type = "offer_made"
	TypeOfferReceived        Type = "offer_received"
	TypeCounterOffer         Type = "counter_offer"
	TypeOfferAccepted        Type = "offer_accepted"
	TypeOfferRejected        Type = "offer_rejected"
	TypeNegotiationCompleted Type = "negotiation_completed"
	TypeNegotiationFailed    Type = "negotiation_failed"
	TypeAgentThinking        Type = "agent_thinking"
	TypePhaseChanged         Type = "phase_changed"
)

// Terminal reports whether the event ends its session's stream
func (t Type) Terminal() bool {
	return t == TypeNegotiationCompleted || t == TypeNegotiationFailed
}

// Event is one entry in a session's ordered lifecycle stream
type Event struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`

	Round int          `json:"round,omitempty"`
	Offer *offer.Offer `json:"offer,omitempty"`
}

// New builds an event with a fresh id and the current time
func New(sessionID uuid.UUID, t Type, message string) Event {
	return Event{
		ID:        uuid.New(),
		SessionID: sessionID,
		Type:      t,
		Timestamp: time.Now(),
		Message:   message,
	}
}

// WithRound attaches a round number
func (e Event) WithRound(round int) Event {
	e.Round = round
	return e
}

// WithOffer attaches an offer snapshot
func (e Event) WithOffer(o *offer.Offer) Event {
	e.Offer = o
	return e
}
