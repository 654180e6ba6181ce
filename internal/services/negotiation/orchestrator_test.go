package negotiation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercato/internal/agents"
	"mercato/internal/domain/contract"
	"mercato/internal/domain/product"
	"mercato/internal/domain/request"
	"mercato/internal/domain/session"
	"mercato/internal/events"
	"mercato/pkg/errors"
)

// fixedClock freezes time so the duration budget never interferes
type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// stepClock advances by a fixed step on every reading
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func overlapRequest() *request.BuyerRequest {
	return &request.BuyerRequest{
		ID:      uuid.New(),
		BuyerID: uuid.New(),
		Title:   "Industrial sensors",
		Quantity: request.QuantityRange{
			Min: 80, Max: 100, Unit: "pieces",
		},
		Budget: request.Budget{
			Min:      decimal.NewFromInt(6000),
			Max:      decimal.NewFromInt(10000),
			Currency: "USD",
		},
		Delivery: request.DeliveryRequirements{
			Location: "Rotterdam, NL",
			Terms:    "DAP",
		},
		PaymentPreference: "net_30",
		Urgency:           request.UrgencyMedium,
	}
}

func overlapProduct() *product.B2BProduct {
	return &product.B2BProduct{
		ID:         uuid.New(),
		SupplierID: uuid.New(),
		Name:       "PT100 Sensor",
		Terms: product.CommercialTerms{
			Tiers: []product.PricingTier{
				{MinQuantity: 1, UnitPrice: decimal.NewFromInt(100)},
				{MinQuantity: 50, UnitPrice: decimal.NewFromInt(90)},
				{MinQuantity: 100, UnitPrice: decimal.NewFromInt(80)},
			},
			PaymentTerms:  "net_15",
			DeliveryTerms: "DAP",
			LeadTime:      product.LeadTime{Min: 2, Max: 4, Unit: "weeks"},
			MOQ:           100,
			Currency:      "USD",
		},
		Boundaries: product.NegotiationBoundaries{
			PriceFlexibilityPct:    decimal.NewFromFloat(0.10),
			QuantityFlexibilityPct: decimal.NewFromFloat(0.20),
			PaymentTermsFlexible:   true,
		},
	}
}

func testOrchestrator(bus *events.Broadcaster, clock Clock) *Orchestrator {
	opts := DefaultOptions()
	opts.Clock = clock
	opts.Pacer = NoopPacer()
	return New(bus, contract.NewAssembler(), opts)
}

func TestRun_ConvergesWithinBudget(t *testing.T) {
	clock := fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	orch := testOrchestrator(nil, clock)

	result, err := orch.Run(context.Background(), Params{
		Request:          overlapRequest(),
		Product:          overlapProduct(),
		BuyerStrategy:    agents.StrategyBalanced,
		SupplierStrategy: agents.StrategyBalanced,
	})
	require.NoError(t, err)
	require.True(t, result.Success, "overlapping ranges must converge: %s", result.Reason)

	t.Run("protocol trace", func(t *testing.T) {
		assert.Equal(t, 2, len(result.Rounds))
		require.NotNil(t, result.FinalOffer)
		assert.True(t, result.FinalOffer.UnitPrice.Equal(decimal.NewFromFloat(82.60)),
			"got %s", result.FinalOffer.UnitPrice)
		assert.Equal(t, int64(100), result.FinalOffer.Quantity)
		assert.Equal(t, 21, result.FinalOffer.DeliveryDays)

		// The agreed price lies strictly inside the opening anchors
		assert.True(t, result.FinalOffer.UnitPrice.GreaterThan(decimal.NewFromInt(64)))
		assert.True(t, result.FinalOffer.UnitPrice.LessThan(decimal.NewFromInt(88)))
	})

	t.Run("round history", func(t *testing.T) {
		first := result.Rounds[0]
		require.NotNil(t, first.BuyerOffer)
		require.NotNil(t, first.SupplierOffer)
		assert.True(t, first.BuyerOffer.UnitPrice.Equal(decimal.NewFromInt(64)))
		assert.True(t, first.SupplierOffer.UnitPrice.Equal(decimal.NewFromInt(88)))
		assert.Equal(t, session.RoundCompleted, first.Status)
		require.NotNil(t, first.EndedAt)

		last := result.Rounds[len(result.Rounds)-1]
		assert.Equal(t, 1.0, last.Convergence, "accepted round converges fully")
	})

	t.Run("metrics", func(t *testing.T) {
		m := result.Metrics
		assert.Equal(t, 2, m.TotalRounds)
		assert.True(t, m.InitialBuyerOffer.Equal(decimal.NewFromInt(64)))
		assert.True(t, m.InitialSupplierOffer.Equal(decimal.NewFromInt(88)))
		assert.True(t, m.FinalPrice.Equal(decimal.NewFromFloat(82.60)))
		assert.True(t, m.BuyerSavingsPct.Equal(decimal.NewFromFloat(6.14)), "got %s", m.BuyerSavingsPct)
		assert.True(t, m.SupplierMarginPct.Equal(decimal.NewFromFloat(29.06)), "got %s", m.SupplierMarginPct)
		assert.InDelta(t, 0.5, m.ConvergenceRate, 1e-9)
	})

	t.Run("contract", func(t *testing.T) {
		assert.Empty(t, result.ContractError)
		require.NotNil(t, result.Contract)
		assert.True(t, result.Contract.TotalPrice.Equal(decimal.NewFromInt(8260)),
			"got %s", result.Contract.TotalPrice)
		assert.Equal(t, contract.StatusPendingApproval, result.Contract.Status)
	})
}

func TestRun_AcceptsOpeningOffer(t *testing.T) {
	clock := fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	orch := testOrchestrator(nil, clock)

	result, err := orch.Run(context.Background(), Params{
		Request:          overlapRequest(),
		Product:          overlapProduct(),
		BuyerStrategy:    agents.StrategyTimeSensitive,
		SupplierStrategy: agents.StrategyTimeSensitive,
	})
	require.NoError(t, err)
	require.True(t, result.Success, result.Reason)

	assert.Equal(t, 1, len(result.Rounds), "supplier accepts the buyer opening")
	require.NotNil(t, result.FinalOffer)
	assert.True(t, result.FinalOffer.UnitPrice.Equal(decimal.NewFromInt(72)), "got %s", result.FinalOffer.UnitPrice)

	// The supplier never countered, so its effective opening is the final price
	assert.True(t, result.Metrics.InitialSupplierOffer.Equal(decimal.NewFromInt(72)))
	assert.True(t, result.Metrics.BuyerSavingsPct.IsZero())
}

func TestRun_NoOverlapExhaustsRounds(t *testing.T) {
	clock := fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	orch := testOrchestrator(nil, clock)

	req := overlapRequest()
	req.Budget.Min = decimal.NewFromInt(1000)
	req.Budget.Max = decimal.NewFromInt(2000) // 20/unit cap, floor is 76

	result, err := orch.Run(context.Background(), Params{
		Request:          req,
		Product:          overlapProduct(),
		BuyerStrategy:    agents.StrategyBalanced,
		SupplierStrategy: agents.StrategyBalanced,
	})
	require.NoError(t, err, "a failed negotiation is a result, not an error")

	assert.False(t, result.Success)
	assert.Equal(t, errors.ErrMaxRoundsExceeded.Error(), result.Reason)
	assert.Equal(t, DefaultOptions().MaxRounds, len(result.Rounds))
	assert.Nil(t, result.FinalOffer)
	assert.Nil(t, result.Contract)

	// Hard constraints held throughout
	for _, r := range result.Rounds {
		require.NotNil(t, r.BuyerOffer)
		assert.True(t, r.BuyerOffer.UnitPrice.LessThanOrEqual(decimal.NewFromInt(20)),
			"round %d buyer price %s exceeds the affordable maximum", r.Number, r.BuyerOffer.UnitPrice)
		require.NotNil(t, r.SupplierOffer)
		assert.True(t, r.SupplierOffer.UnitPrice.GreaterThanOrEqual(decimal.NewFromInt(76)),
			"round %d supplier price %s below the tier floor", r.Number, r.SupplierOffer.UnitPrice)
	}
}

func TestRun_UrgentBuyerDeliveryDriven(t *testing.T) {
	clock := fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	orch := testOrchestrator(nil, clock)

	// Urgent buyer wants 7 days; the supplier cannot deliver in under two
	// weeks, so the loop is driven by the delivery axis until the supplier
	// walks down to its minimum lead time
	req := overlapRequest()
	req.Urgency = request.UrgencyUrgent

	result, err := orch.Run(context.Background(), Params{
		Request:          req,
		Product:          overlapProduct(),
		BuyerStrategy:    agents.StrategyBalanced,
		SupplierStrategy: agents.StrategyBalanced,
	})
	require.NoError(t, err)
	require.True(t, result.Success, "deal closes once delivery reaches the buyer window: %s", result.Reason)

	require.Equal(t, 5, len(result.Rounds))
	require.NotNil(t, result.FinalOffer)
	assert.True(t, result.FinalOffer.UnitPrice.Equal(decimal.RequireFromString("77.495228125")),
		"got %s", result.FinalOffer.UnitPrice)
	assert.Equal(t, int64(100), result.FinalOffer.Quantity)
	assert.Equal(t, 14, result.FinalOffer.DeliveryDays, "supplier's minimum lead time")

	// Supplier walks delivery from its lead-window midpoint toward the
	// buyer's target, two days per round, clamped at its minimum lead
	wantSupplierDelivery := []int{21, 19, 17, 15, 14}
	for i, r := range result.Rounds {
		require.NotNil(t, r.SupplierOffer, "round %d", r.Number)
		assert.Equal(t, wantSupplierDelivery[i], r.SupplierOffer.DeliveryDays, "round %d", r.Number)
	}

	// The buyer opens at its urgency target and never asks past target+slack
	require.NotNil(t, result.Rounds[0].BuyerOffer)
	assert.Equal(t, 7, result.Rounds[0].BuyerOffer.DeliveryDays)
	for _, r := range result.Rounds[1:] {
		require.NotNil(t, r.BuyerOffer)
		assert.Equal(t, 10, r.BuyerOffer.DeliveryDays, "round %d", r.Number)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	clock := fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	orch := testOrchestrator(nil, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := orch.Run(ctx, Params{
		Request:          overlapRequest(),
		Product:          overlapProduct(),
		BuyerStrategy:    agents.StrategyBalanced,
		SupplierStrategy: agents.StrategyBalanced,
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, errors.ErrSessionCancelled.Error(), result.Reason)
	assert.Empty(t, result.Rounds, "cancelled before the first round")
}

func TestRun_DurationBudgetExpires(t *testing.T) {
	clock := &stepClock{
		t:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		step: 10 * time.Minute,
	}
	orch := testOrchestrator(nil, clock)

	req := overlapRequest()
	req.Budget.Min = decimal.NewFromInt(1000)
	req.Budget.Max = decimal.NewFromInt(2000) // keep the sides apart so rounds keep going

	result, err := orch.Run(context.Background(), Params{
		Request:          req,
		Product:          overlapProduct(),
		BuyerStrategy:    agents.StrategyBalanced,
		SupplierStrategy: agents.StrategyBalanced,
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, errors.ErrMaxDurationExceeded.Error(), result.Reason)
	assert.NotEmpty(t, result.Rounds)
	assert.Less(t, len(result.Rounds), DefaultOptions().MaxRounds)
}

func TestRun_InvalidInputs(t *testing.T) {
	orch := testOrchestrator(nil, fixedClock{t: time.Now()})

	_, err := orch.Run(context.Background(), Params{})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	req := overlapRequest()
	req.Quantity.Min = 0
	_, err = orch.Run(context.Background(), Params{Request: req, Product: overlapProduct()})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	prod := overlapProduct()
	prod.Terms.Tiers = nil
	_, err = orch.Run(context.Background(), Params{Request: overlapRequest(), Product: prod})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestRun_EventStream(t *testing.T) {
	bus := events.NewBroadcaster(256)
	defer bus.Close()

	sub, cancel := bus.Subscribe()
	defer cancel()

	clock := fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	orch := testOrchestrator(bus, clock)

	result, err := orch.Run(context.Background(), Params{
		Request:          overlapRequest(),
		Product:          overlapProduct(),
		BuyerStrategy:    agents.StrategyBalanced,
		SupplierStrategy: agents.StrategyBalanced,
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	var stream []events.Event
	for len(sub) > 0 {
		stream = append(stream, <-sub)
	}
	require.NotEmpty(t, stream)

	assert.Equal(t, events.TypeSessionStarted, stream[0].Type)

	terminal := stream[len(stream)-1]
	assert.Equal(t, events.TypeNegotiationCompleted, terminal.Type)
	require.NotNil(t, terminal.Offer, "terminal event carries the agreed offer")
	assert.True(t, terminal.Offer.UnitPrice.Equal(result.FinalOffer.UnitPrice))

	seen := make(map[events.Type]bool)
	for _, e := range stream {
		assert.Equal(t, result.SessionID, e.SessionID)
		seen[e.Type] = true
	}
	assert.True(t, seen[events.TypeOfferMade])
	assert.True(t, seen[events.TypeCounterOffer])
	assert.True(t, seen[events.TypeOfferAccepted])
	assert.True(t, seen[events.TypePhaseChanged])
}

func TestRun_MissingDeliveryLocation(t *testing.T) {
	clock := fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	orch := testOrchestrator(nil, clock)

	req := overlapRequest()
	req.Delivery.Location = ""

	result, err := orch.Run(context.Background(), Params{
		Request:          req,
		Product:          overlapProduct(),
		BuyerStrategy:    agents.StrategyBalanced,
		SupplierStrategy: agents.StrategyBalanced,
	})
	require.NoError(t, err)

	// Assembly failure does not retract the agreement
	assert.True(t, result.Success)
	assert.Nil(t, result.Contract)
	assert.Contains(t, result.ContractError, errors.ErrMissingDeliveryLocation.Error())
}

func TestActiveSessions(t *testing.T) {
	orch := testOrchestrator(nil, fixedClock{t: time.Now()})
	assert.Equal(t, 0, orch.ActiveSessions())

	_, err := orch.Run(context.Background(), Params{
		Request:          overlapRequest(),
		Product:          overlapProduct(),
		BuyerStrategy:    agents.StrategyBalanced,
		SupplierStrategy: agents.StrategyBalanced,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, orch.ActiveSessions(), "sessions deregister on completion")
}

func TestSessionLookup(t *testing.T) {
	orch := testOrchestrator(nil, fixedClock{t: time.Now()})

	t.Run("unknown id", func(t *testing.T) {
		_, err := orch.Session(uuid.New())
		assert.True(t, errors.Is(err, errors.ErrSessionNotFound))
	})

	sess := &session.Session{ID: uuid.New(), Status: session.StatusActive}
	orch.register(sess)
	defer orch.deregister(sess)

	t.Run("running session", func(t *testing.T) {
		got, err := orch.Session(sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
	})

	t.Run("terminal session still indexed", func(t *testing.T) {
		sess.Status = session.StatusFailed
		_, err := orch.Session(sess.ID)
		assert.True(t, errors.Is(err, errors.ErrSessionClosed))
	})
}
