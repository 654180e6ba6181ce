package agents

// Strategy names a negotiation disposition profile
type Strategy string

const (
	StrategyAggressive     Strategy = "aggressive"
	StrategyBalanced       Strategy = "balanced"
	StrategyConservative   Strategy = "conservative"
	StrategyTimeSensitive  Strategy = "time_sensitive"
	StrategyPriceFocused   Strategy = "price_focused"
	StrategyQualityFocused Strategy = "quality_focused"
)

// Valid checks if the strategy is a known profile
func (s Strategy) Valid() bool {
	switch s {
	case StrategyAggressive, StrategyBalanced, StrategyConservative,
		StrategyTimeSensitive, StrategyPriceFocused, StrategyQualityFocused:
		return true
	}
	return false
}

// String returns string representation
func (s Strategy) String() string {
	return string(s)
}

// Personality is an agent's numeric disposition, fixed at session creation.
// The only field that ever changes afterwards is PriceFlexibility, and only
// upwards, through the anti-deadlock widening rule.
type Personality struct {
	Strategy          Strategy
	PriceFlexibility  float64
	TimeConstraint    float64
	QualityFocus      float64
	RelationshipFocus float64
	RiskTolerance     float64
}

// NewPersonality builds the disposition table for a strategy.
// Unknown strategies fall back to balanced.
func NewPersonality(strategy Strategy) Personality {
	switch strategy {
	case StrategyAggressive:
		return Personality{strategy, 0.3, 0.4, 0.5, 0.3, 0.8}
	case StrategyConservative:
		return Personality{strategy, 0.4, 0.3, 0.6, 0.7, 0.2}
	case StrategyTimeSensitive:
		return Personality{strategy, 0.7, 0.9, 0.4, 0.4, 0.6}
	case StrategyPriceFocused:
		return Personality{strategy, 0.3, 0.4, 0.3, 0.3, 0.5}
	case StrategyQualityFocused:
		return Personality{strategy, 0.6, 0.4, 0.9, 0.6, 0.4}
	default:
		return Personality{StrategyBalanced, 0.5, 0.5, 0.5, 0.5, 0.5}
	}
}

// AcceptThreshold is the minimum overall score at which the agent accepts.
// The comparison is inclusive.
func (p Personality) AcceptThreshold() float64 {
	t := 0.75
	switch p.Strategy {
	case StrategyAggressive:
		t += 0.10
	case StrategyConservative:
		t -= 0.10
	case StrategyTimeSensitive:
		t -= 0.15
	}
	return t
}

// RejectThreshold is the maximum overall score at which the agent walks away
func (p Personality) RejectThreshold() float64 {
	t := 0.30
	switch p.Strategy {
	case StrategyAggressive:
		t += 0.10
	case StrategyConservative:
		t -= 0.05
	case StrategyPriceFocused:
		t += 0.15
	}
	return t
}

// initialPriceFraction anchors the buyer's opening price as a fraction of
// the product's published tier price
func (p Personality) initialPriceFraction() float64 {
	switch p.Strategy {
	case StrategyAggressive:
		return 0.70
	case StrategyPriceFocused:
		return 0.60
	case StrategyTimeSensitive:
		return 0.90
	default:
		return 0.80
	}
}

// initialPriceMultiplier anchors the supplier's opening price as a multiple
// of its published price at MOQ
func (p Personality) initialPriceMultiplier() float64 {
	switch p.Strategy {
	case StrategyAggressive:
		return 1.20
	case StrategyPriceFocused:
		return 1.15
	case StrategyTimeSensitive:
		return 0.95
	default:
		return 1.10
	}
}
