package negotiation

import (
	"time"

	"github.com/shopspring/decimal"

	"mercato/internal/domain/session"
)

var hundred = decimal.NewFromInt(100)

// calculateMetrics derives the summary analytics from the completed round
// history. Percentage formulas return 0, never NaN or infinity, when their
// denominator is 0.
func (o *Orchestrator) calculateMetrics(sess *session.Session, success bool, duration time.Duration) session.Metrics {
	m := session.Metrics{
		TotalRounds:     len(sess.Rounds),
		TimeToAgreement: duration,
	}

	if success {
		m.BuyerSatisfaction = o.opts.SuccessSatisfaction
		m.SupplierSatisfaction = o.opts.SuccessSatisfaction
	} else {
		m.BuyerSatisfaction = o.opts.FailureSatisfaction
		m.SupplierSatisfaction = o.opts.FailureSatisfaction
	}

	if len(sess.Rounds) == 0 {
		return m
	}
	m.ConvergenceRate = 1 / float64(len(sess.Rounds))

	if sess.FinalOffer != nil {
		m.FinalPrice = sess.FinalOffer.UnitPrice
	}

	first := sess.Rounds[0]
	if first.BuyerOffer != nil {
		m.InitialBuyerOffer = first.BuyerOffer.UnitPrice
	}
	if first.SupplierOffer != nil {
		m.InitialSupplierOffer = first.SupplierOffer.UnitPrice
	} else {
		// The supplier never spoke in round one (accepted outright):
		// its effective opening position is the final price
		m.InitialSupplierOffer = m.FinalPrice
	}

	if m.InitialSupplierOffer.IsPositive() {
		m.BuyerSavingsPct = m.InitialSupplierOffer.Sub(m.FinalPrice).
			Div(m.InitialSupplierOffer).Mul(hundred).Round(2)
	}
	if m.InitialBuyerOffer.IsPositive() {
		m.SupplierMarginPct = m.FinalPrice.Sub(m.InitialBuyerOffer).
			Div(m.InitialBuyerOffer).Mul(hundred).Round(2)
	}

	return m
}
