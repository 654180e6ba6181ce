package agents

import (
	"fmt"

	"github.com/shopspring/decimal"

	"mercato/internal/domain/offer"
)

// Axis score constants. In-range price scores sit on a plateau plus a
// headroom/margin bonus so that, with nominal quantity and delivery
// scores, an accept fires once the counterparty price is within 12.5%
// of the role's boundary-relative anchor.
const (
	priceScorePlateau = 0.6
	priceScoreBonus   = 0.4
	priceScoreOutCap  = 0.3

	quantityScoreInRange    = 0.8
	quantityScoreBelowFloor = 0.2
	quantityScoreAboveCeil  = 0.3

	deliveryScoreInWindow = 0.8
	deliveryScoreOutside  = 0.3

	confidenceBase = 0.5
	confidenceStep = 0.05
	confidenceCap  = 0.95
)

// Action is the evaluator's verdict on an incoming offer
type Action string

const (
	ActionAccept  Action = "accept"
	ActionCounter Action = "counter"
	ActionReject  Action = "reject"
)

// AxisScores are the per-dimension evaluation scores, each in [0,1]
type AxisScores struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Delivery float64 `json:"delivery"`
	Overall  float64 `json:"overall"`
}

// Decision is the evaluator output for one incoming offer
type Decision struct {
	Action     Action     `json:"action"`
	Reasoning  string     `json:"reasoning"`
	Confidence float64    `json:"confidence"`
	Scores     AxisScores `json:"scores"`

	// Suggested, set only on counter, nudges the weakest axis toward the
	// evaluating agent's preference. It is advisory: the owning agent's
	// constraint clamping finalizes every term.
	Suggested *offer.Offer `json:"suggested,omitempty"`
}

// EvaluateOffer scores an incoming offer along price, quantity and delivery
// for this agent's role and returns the accept/counter/reject decision.
func (a *Agent) EvaluateOffer(in *offer.Offer, ctx Context) Decision {
	scores := a.scoreOffer(in)
	action := decide(scores.Overall, a.Personality)

	d := Decision{
		Action:     action,
		Confidence: confidenceForRound(ctx.Round),
		Scores:     scores,
		Reasoning: fmt.Sprintf("%s: price %.2f, quantity %.2f, delivery %.2f, overall %.2f (accept >= %.2f, reject <= %.2f)",
			action, scores.Price, scores.Quantity, scores.Delivery, scores.Overall,
			a.Personality.AcceptThreshold(), a.Personality.RejectThreshold()),
	}

	if action == ActionCounter {
		d.Suggested = a.suggestImprovement(in, scores, ctx)
	}
	return d
}

func (a *Agent) scoreOffer(in *offer.Offer) AxisScores {
	var s AxisScores
	if a.Role == offer.RoleBuyer {
		s.Price = buyerPriceScore(in, a.Constraints)
		s.Quantity = quantityScore(in.Quantity, a.Constraints)
		s.Delivery = score(in.DeliveryDays <= a.Constraints.MaxDeliveryDays, deliveryScoreInWindow, deliveryScoreOutside)
	} else {
		s.Price = a.supplierPriceScore(in)
		s.Quantity = quantityScore(in.Quantity, a.Constraints)
		inWindow := in.DeliveryDays >= a.Constraints.MinLeadDays && in.DeliveryDays <= a.Constraints.MaxLeadDays
		s.Delivery = score(inWindow, deliveryScoreInWindow, deliveryScoreOutside)
	}
	s.Overall = (s.Price + s.Quantity + s.Delivery) / 3
	return s
}

// buyerPriceScore measures remaining budget headroom
func buyerPriceScore(in *offer.Offer, c Constraints) float64 {
	max := c.MaxUnitPrice
	if !max.IsPositive() {
		return 0
	}

	if in.UnitPrice.LessThanOrEqual(max) {
		headroom := max.Sub(in.UnitPrice).Div(max).InexactFloat64()
		return priceScorePlateau + priceScoreBonus*clamp01(headroom)
	}

	overshoot := in.UnitPrice.Sub(max).Div(max).InexactFloat64()
	return clamp01(priceScoreOutCap - overshoot)
}

// supplierPriceScore measures margin above the minimum acceptable price
// for the offer's quantity tier
func (a *Agent) supplierPriceScore(in *offer.Offer) float64 {
	minAcceptable := a.product.TierPriceFor(in.Quantity).Mul(decimal.NewFromFloat(supplierFloorFactor))
	if !minAcceptable.IsPositive() {
		return 0
	}

	if in.UnitPrice.GreaterThanOrEqual(minAcceptable) {
		margin := in.UnitPrice.Sub(minAcceptable).Div(minAcceptable).InexactFloat64()
		return min(1, priceScorePlateau+priceScoreBonus*clamp01(margin))
	}

	shortfall := minAcceptable.Sub(in.UnitPrice).Div(minAcceptable).InexactFloat64()
	return clamp01(priceScoreOutCap - shortfall)
}

func quantityScore(qty int64, c Constraints) float64 {
	if qty < c.MinQuantity {
		return quantityScoreBelowFloor
	}
	if c.MaxQuantity > 0 && qty > c.MaxQuantity {
		return quantityScoreAboveCeil
	}
	return quantityScoreInRange
}

// decide applies the role-agnostic threshold rule. Accept is inclusive at
// the threshold; reject is inclusive at its threshold; everything between
// is a counter.
func decide(overall float64, p Personality) Action {
	switch {
	case overall >= p.AcceptThreshold():
		return ActionAccept
	case overall <= p.RejectThreshold():
		return ActionReject
	default:
		return ActionCounter
	}
}

// suggestImprovement builds an advisory offer nudging the weakest axis in
// the direction that improves it for the evaluating agent
func (a *Agent) suggestImprovement(in *offer.Offer, scores AxisScores, ctx Context) *offer.Offer {
	// Advisory copy of the incoming offer, not a new protocol offer
	suggestion := *in

	weakest := weakestAxis(scores)
	switch weakest {
	case "price":
		if a.Role == offer.RoleBuyer {
			// Pull toward what the buyer can actually afford
			target := a.Constraints.MaxUnitPrice.Mul(decimal.NewFromFloat(0.9))
			if target.LessThan(in.UnitPrice) {
				suggestion.UnitPrice = target
			}
		} else {
			floor := a.product.TierPriceFor(in.Quantity)
			if floor.GreaterThan(in.UnitPrice) {
				suggestion.UnitPrice = floor
			}
		}
	case "quantity":
		suggestion.Quantity = a.Constraints.clampQuantity(in.Quantity)
	case "delivery":
		if a.Role == offer.RoleBuyer {
			suggestion.DeliveryDays = a.Constraints.MaxDeliveryDays
		} else {
			suggestion.DeliveryDays = a.Constraints.MinLeadDays
		}
	}
	return &suggestion
}

func weakestAxis(s AxisScores) string {
	weakest := "price"
	lowest := s.Price
	if s.Quantity < lowest {
		weakest, lowest = "quantity", s.Quantity
	}
	if s.Delivery < lowest {
		weakest = "delivery"
	}
	return weakest
}

// confidenceForRound grows with round number so agents become more decisive
// as the session ages
func confidenceForRound(round int) float64 {
	c := confidenceBase + confidenceStep*float64(round)
	if c > confidenceCap {
		return confidenceCap
	}
	return c
}

func score(ok bool, yes, no float64) float64 {
	if ok {
		return yes
	}
	return no
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
