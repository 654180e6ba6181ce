package agents

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mercato/internal/domain/offer"
	"mercato/internal/domain/product"
	"mercato/internal/domain/request"
	"mercato/pkg/errors"
)

// Counter-offer movement factors: the fraction of the price gap a side
// concedes per round, scaled by its price flexibility.
const (
	buyerConcessionFactor    = 0.5
	supplierConcessionFactor = 0.6

	// supplierDeliveryStepDays is how far a supplier nudges delivery toward
	// the incoming offer per counter
	supplierDeliveryStepDays = 2

	// buyerDeliverySlackDays is how far past its target a buyer will ask
	buyerDeliverySlackDays = 3
)

// Agent is one negotiating party. Both roles share the control flow; the
// numeric policy differs by role and personality.
type Agent struct {
	ID          string
	Role        offer.Role
	Personality Personality
	Constraints Constraints

	request *request.BuyerRequest
	product *product.B2BProduct
}

// Context carries everything an agent needs for one protocol step
type Context struct {
	SessionID  uuid.UUID
	Round      int
	Now        time.Time
	LastOwn    *offer.Offer
	Incoming   *offer.Offer
	Suggestion *offer.Offer
}

// NewBuyerAgent builds the buyer-side agent for one session
func NewBuyerAgent(id string, strategy Strategy, req *request.BuyerRequest, prod *product.B2BProduct, now time.Time) (*Agent, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(err, "buyer request")
	}
	if err := prod.Validate(); err != nil {
		return nil, errors.Wrap(err, "product")
	}

	return &Agent{
		ID:          id,
		Role:        offer.RoleBuyer,
		Personality: NewPersonality(strategy),
		Constraints: buyerConstraints(req, now),
		request:     req,
		product:     prod,
	}, nil
}

// NewSupplierAgent builds the supplier-side agent for one session
func NewSupplierAgent(id string, strategy Strategy, req *request.BuyerRequest, prod *product.B2BProduct) (*Agent, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(err, "buyer request")
	}
	if err := prod.Validate(); err != nil {
		return nil, errors.Wrap(err, "product")
	}

	return &Agent{
		ID:          id,
		Role:        offer.RoleSupplier,
		Personality: NewPersonality(strategy),
		Constraints: supplierConstraints(prod),
		request:     req,
		product:     prod,
	}, nil
}

// GenerateInitialOffer produces the agent's opening position. When the
// context carries an incoming offer the result is still anchored on the
// agent's own policy but is marked as a reply.
func (a *Agent) GenerateInitialOffer(ctx Context) *offer.Offer {
	var o *offer.Offer
	if a.Role == offer.RoleBuyer {
		o = a.initialBuyerOffer(ctx)
	} else {
		o = a.initialSupplierOffer(ctx)
	}

	if ctx.Incoming != nil {
		o.IsCounterOffer = true
		id := ctx.Incoming.ID
		o.InResponseTo = &id
	}
	return o
}

func (a *Agent) initialBuyerOffer(ctx Context) *offer.Offer {
	qty := a.request.Quantity.Max
	base := a.product.TierPriceFor(qty)

	price := base.Mul(decimal.NewFromFloat(a.Personality.initialPriceFraction()))
	if price.GreaterThan(a.Constraints.MaxUnitPrice) {
		price = a.Constraints.MaxUnitPrice
	}

	o := a.newOffer(ctx, price, qty, a.request.Urgency.TargetDeliveryDays(), a.request.PaymentPreference)
	o.Reasoning = fmt.Sprintf("opening at %.0f%% of the published price for %d units, %s urgency",
		a.Personality.initialPriceFraction()*100, qty, a.request.Urgency)

	if a.Personality.QualityFocus > 0.7 {
		o.Warranty = &offer.Warranty{Duration: 12, Unit: "months"}
	}
	return o
}

func (a *Agent) initialSupplierOffer(ctx Context) *offer.Offer {
	qty := a.product.Terms.MOQ
	base := a.product.BasePrice()

	price := base.Mul(decimal.NewFromFloat(a.Personality.initialPriceMultiplier()))
	if price.LessThan(a.Constraints.MinUnitPrice) {
		price = a.Constraints.MinUnitPrice
	}

	minLead, maxLead := a.Constraints.MinLeadDays, a.Constraints.MaxLeadDays
	delivery := (minLead + maxLead) / 2

	o := a.newOffer(ctx, price, qty, delivery, a.product.Terms.PaymentTerms)
	o.Reasoning = fmt.Sprintf("opening at %.0f%% of the published MOQ price, %d day delivery",
		a.Personality.initialPriceMultiplier()*100, delivery)
	return o
}

// GenerateCounterOffer moves the agent's position toward the incoming offer
// by its concession policy. An evaluator suggestion, if present, seeds the
// quantity and delivery candidates; the agent's hard constraints always
// finalize every term, and price authority never leaves the agent.
func (a *Agent) GenerateCounterOffer(ctx Context) *offer.Offer {
	if ctx.LastOwn == nil {
		return a.GenerateInitialOffer(ctx)
	}

	in := ctx.Incoming
	own := ctx.LastOwn

	var price decimal.Decimal
	if a.Role == offer.RoleBuyer {
		step := decimal.NewFromFloat(a.Personality.PriceFlexibility * buyerConcessionFactor)
		price = own.UnitPrice.Add(in.UnitPrice.Sub(own.UnitPrice).Mul(step))
		if price.GreaterThan(a.Constraints.MaxUnitPrice) {
			price = a.Constraints.MaxUnitPrice
		}
	} else {
		step := decimal.NewFromFloat(a.Personality.PriceFlexibility * supplierConcessionFactor)
		price = own.UnitPrice.Sub(own.UnitPrice.Sub(in.UnitPrice).Mul(step))
		floor := a.product.TierPriceFor(in.Quantity).Mul(decimal.NewFromFloat(supplierFloorFactor))
		if price.LessThan(floor) {
			price = floor
		}
	}

	qty := own.Quantity + (in.Quantity-own.Quantity)/2
	if ctx.Suggestion != nil && ctx.Suggestion.Quantity > 0 {
		qty = ctx.Suggestion.Quantity
	}
	qty = a.Constraints.clampQuantity(qty)

	delivery := a.counterDelivery(own, in, ctx.Suggestion)

	payment := own.PaymentTerms
	if a.product.Boundaries.PaymentTermsFlexible && in.PaymentTerms != "" {
		payment = in.PaymentTerms
	}

	o := a.newOffer(ctx, price, qty, delivery, payment)
	o.Warranty = own.Warranty
	o.IsCounterOffer = true
	id := in.ID
	o.InResponseTo = &id
	o.Reasoning = fmt.Sprintf("moved price from %s toward counterparty's %s (flexibility %.2f)",
		own.UnitPrice.StringFixed(2), in.UnitPrice.StringFixed(2), a.Personality.PriceFlexibility)
	return o
}

func (a *Agent) counterDelivery(own, in *offer.Offer, suggestion *offer.Offer) int {
	if a.Role == offer.RoleBuyer {
		candidate := in.DeliveryDays
		if suggestion != nil {
			candidate = suggestion.DeliveryDays
		}
		limit := a.request.Urgency.TargetDeliveryDays() + buyerDeliverySlackDays
		if candidate > limit {
			candidate = limit
		}
		if candidate < 0 {
			candidate = 0
		}
		return candidate
	}

	candidate := in.DeliveryDays
	if suggestion != nil {
		candidate = suggestion.DeliveryDays
	}

	// Move a bounded step from the last own position toward the candidate
	delivery := own.DeliveryDays
	switch {
	case candidate > delivery:
		delivery += min(supplierDeliveryStepDays, candidate-delivery)
	case candidate < delivery:
		delivery -= min(supplierDeliveryStepDays, delivery-candidate)
	}

	if delivery < a.Constraints.MinLeadDays {
		delivery = a.Constraints.MinLeadDays
	}
	if delivery > a.Constraints.MaxLeadDays {
		delivery = a.Constraints.MaxLeadDays
	}
	return delivery
}

// WidenPriceFlexibility is the anti-deadlock rule: +0.1 flexibility,
// capped at 1.0. Flexibility is never reduced.
func (a *Agent) WidenPriceFlexibility() {
	a.Personality.PriceFlexibility += 0.1
	if a.Personality.PriceFlexibility > 1.0 {
		a.Personality.PriceFlexibility = 1.0
	}
}

func (a *Agent) newOffer(ctx Context, price decimal.Decimal, qty int64, deliveryDays int, payment string) *offer.Offer {
	currency := a.request.Budget.Currency
	if a.Role == offer.RoleSupplier {
		currency = a.product.Terms.Currency
	}

	return &offer.Offer{
		ID:           uuid.New(),
		SessionID:    ctx.SessionID,
		AgentID:      a.ID,
		Role:         a.Role,
		Round:        ctx.Round,
		CreatedAt:    ctx.Now,
		UnitPrice:    price.Round(2),
		Currency:     currency,
		Quantity:     qty,
		DeliveryDays: deliveryDays,
		PaymentTerms: payment,
		Confidence:   confidenceForRound(ctx.Round),
	}
}
