package agents

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercato/internal/domain/offer"
)

func TestDecide_ThresholdsAreInclusive(t *testing.T) {
	balanced := NewPersonality(StrategyBalanced)

	assert.Equal(t, ActionAccept, decide(0.75, balanced), "accept at exactly the threshold")
	assert.Equal(t, ActionCounter, decide(0.7499, balanced))
	assert.Equal(t, ActionReject, decide(0.30, balanced), "reject at exactly the threshold")
	assert.Equal(t, ActionCounter, decide(0.3001, balanced))
	assert.Equal(t, ActionCounter, decide(0.5, balanced))

	aggressive := NewPersonality(StrategyAggressive)
	assert.Equal(t, ActionAccept, decide(0.85, aggressive))
	assert.Equal(t, ActionCounter, decide(0.84, aggressive))
	assert.Equal(t, ActionReject, decide(0.40, aggressive))

	timeSensitive := NewPersonality(StrategyTimeSensitive)
	assert.Equal(t, ActionAccept, decide(0.60, timeSensitive))
}

func TestBuyerPriceScore(t *testing.T) {
	c := Constraints{MaxUnitPrice: decimal.NewFromInt(100)}
	in := func(price int64) *offer.Offer {
		return &offer.Offer{UnitPrice: decimal.NewFromInt(price)}
	}

	assert.InDelta(t, 0.68, buyerPriceScore(in(80), c), 1e-9, "20% headroom")
	assert.InDelta(t, 0.60, buyerPriceScore(in(100), c), 1e-9, "at the boundary")
	assert.InDelta(t, 1.00, buyerPriceScore(in(0), c), 1e-9, "full headroom")
	assert.InDelta(t, 0.20, buyerPriceScore(in(110), c), 1e-9, "10% over budget")
	assert.Equal(t, 0.0, buyerPriceScore(in(150), c), "far over budget")
	assert.Equal(t, 0.0, buyerPriceScore(in(50), Constraints{}), "no affordable maximum")
}

func TestSupplierPriceScore(t *testing.T) {
	a := newTestSupplier(t, StrategyBalanced)
	in := func(price float64, qty int64) *offer.Offer {
		return &offer.Offer{UnitPrice: decimal.NewFromFloat(price), Quantity: qty}
	}

	// Minimum acceptable at 100 units is 80 * 0.95 = 76
	assert.InDelta(t, 0.6631578947, a.supplierPriceScore(in(88, 100)), 1e-9)
	assert.InDelta(t, 0.60, a.supplierPriceScore(in(76, 100)), 1e-9, "at the floor")
	assert.InDelta(t, 0.1421052632, a.supplierPriceScore(in(64, 100)), 1e-9, "below floor")
	assert.Equal(t, 0.0, a.supplierPriceScore(in(10, 100)), "far below floor")
	assert.Equal(t, 1.0, a.supplierPriceScore(in(200, 100)), "margin bonus is capped")
}

func TestQuantityScore(t *testing.T) {
	c := Constraints{MinQuantity: 80, MaxQuantity: 100}

	assert.Equal(t, quantityScoreInRange, quantityScore(90, c))
	assert.Equal(t, quantityScoreBelowFloor, quantityScore(50, c))
	assert.Equal(t, quantityScoreAboveCeil, quantityScore(150, c))

	unbounded := Constraints{MinQuantity: 80}
	assert.Equal(t, quantityScoreInRange, quantityScore(1_000_000, unbounded), "zero max means no ceiling")
}

func TestEvaluateOffer(t *testing.T) {
	ctx := Context{SessionID: uuid.New(), Round: 1, Now: time.Now()}

	t.Run("supplier counters a below-floor buyer opening", func(t *testing.T) {
		a := newTestSupplier(t, StrategyBalanced)
		in := &offer.Offer{
			UnitPrice:    decimal.NewFromInt(64),
			Quantity:     100,
			DeliveryDays: 21,
			Role:         offer.RoleBuyer,
		}

		d := a.EvaluateOffer(in, ctx)
		assert.Equal(t, ActionCounter, d.Action)
		assert.InDelta(t, 0.5807017544, d.Scores.Overall, 1e-9)
		assert.NotEmpty(t, d.Reasoning)

		// Price is the weakest axis, so the suggestion pulls it to the tier price
		require.NotNil(t, d.Suggested)
		assert.True(t, d.Suggested.UnitPrice.Equal(decimal.NewFromInt(80)),
			"got %s", d.Suggested.UnitPrice)
	})

	t.Run("buyer accepts a well-priced counter", func(t *testing.T) {
		a := newTestBuyer(t, StrategyBalanced)
		in := &offer.Offer{
			UnitPrice:    decimal.NewFromInt(70), // 30% headroom -> 0.72 price score
			Quantity:     100,
			DeliveryDays: 21,
			Role:         offer.RoleSupplier,
		}

		d := a.EvaluateOffer(in, ctx)
		assert.Equal(t, ActionAccept, d.Action)
		assert.Nil(t, d.Suggested, "accepted offers carry no suggestion")
	})

	t.Run("buyer suggestion targets late delivery", func(t *testing.T) {
		a := newTestBuyer(t, StrategyBalanced)
		in := &offer.Offer{
			UnitPrice:    decimal.NewFromInt(70),
			Quantity:     100,
			DeliveryDays: 60, // outside the 42 day acceptance window
			Role:         offer.RoleSupplier,
		}

		d := a.EvaluateOffer(in, ctx)
		assert.Equal(t, ActionCounter, d.Action)
		require.NotNil(t, d.Suggested)
		assert.Equal(t, 42, d.Suggested.DeliveryDays)
	})
}

func TestConfidenceForRound(t *testing.T) {
	assert.InDelta(t, 0.55, confidenceForRound(1), 1e-9)
	assert.InDelta(t, 0.75, confidenceForRound(5), 1e-9)
	assert.Equal(t, 0.95, confidenceForRound(9), "capped")
	assert.Equal(t, 0.95, confidenceForRound(50))
}

func TestWeakestAxis(t *testing.T) {
	assert.Equal(t, "price", weakestAxis(AxisScores{Price: 0.1, Quantity: 0.8, Delivery: 0.8}))
	assert.Equal(t, "quantity", weakestAxis(AxisScores{Price: 0.8, Quantity: 0.2, Delivery: 0.8}))
	assert.Equal(t, "delivery", weakestAxis(AxisScores{Price: 0.8, Quantity: 0.8, Delivery: 0.3}))
	assert.Equal(t, "price", weakestAxis(AxisScores{Price: 0.5, Quantity: 0.5, Delivery: 0.5}), "ties go to price")
}
