package negotiation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercato/internal/agents"
	"mercato/internal/domain/contract"
	"mercato/internal/domain/offer"
	"mercato/internal/domain/product"
	"mercato/internal/domain/request"
	"mercato/internal/domain/session"
	"mercato/internal/events"
	"mercato/internal/metrics"
	"mercato/pkg/errors"
	"mercato/pkg/logger"
)

// gapShrinkThreshold is the minimum relative price-gap improvement expected
// every three rounds before the anti-deadlock widening rule kicks in
const gapShrinkThreshold = 0.10

// Options bound and tune a negotiation run
type Options struct {
	MaxRounds   int
	MaxDuration time.Duration
	RoundPacing time.Duration

	// Satisfaction placeholders reported in the metrics block. Deliberately
	// crude constants; override per deployment if a downstream consumer
	// starts depending on them.
	SuccessSatisfaction float64
	FailureSatisfaction float64

	Clock Clock
	Pacer Pacer
}

// DefaultOptions returns the protocol defaults: 8 rounds, a 30 minute
// wall-clock budget, and no pacing delay
func DefaultOptions() Options {
	return Options{
		MaxRounds:           8,
		MaxDuration:         30 * time.Minute,
		RoundPacing:         0,
		SuccessSatisfaction: 0.8,
		FailureSatisfaction: 0.2,
		Clock:               RealClock(),
		Pacer:               SleepPacer(),
	}
}

// Params identify one negotiation attempt
type Params struct {
	Request          *request.BuyerRequest
	Product          *product.B2BProduct
	BuyerStrategy    agents.Strategy
	SupplierStrategy agents.Strategy
	Priority         int
}

// Orchestrator drives negotiation sessions. Sessions are independent: each
// Run owns its session exclusively, so N sessions may run concurrently with
// no shared mutable state beyond the event broadcaster and the active-session
// index.
type Orchestrator struct {
	opts      Options
	bus       *events.Broadcaster
	assembler *contract.Assembler
	log       *logger.Logger

	mu     sync.RWMutex
	active map[uuid.UUID]*session.Session
}

// New creates an orchestrator publishing to bus
func New(bus *events.Broadcaster, assembler *contract.Assembler, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Pacer == nil {
		opts.Pacer = SleepPacer()
	}
	if opts.MaxRounds < 1 {
		opts.MaxRounds = DefaultOptions().MaxRounds
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultOptions().MaxDuration
	}

	return &Orchestrator{
		opts:      opts,
		bus:       bus,
		assembler: assembler,
		log:       logger.Get().With("component", "negotiation"),
		active:    make(map[uuid.UUID]*session.Session),
	}
}

// ActiveSessions returns the number of sessions currently running
func (o *Orchestrator) ActiveSessions() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// Session looks up a running session by id. A session that has already
// reached its terminal status reports ErrSessionClosed until its Run
// returns and removes it from the index.
func (o *Orchestrator) Session(id uuid.UUID) (*session.Session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	sess, ok := o.active[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "session %s", id)
	}
	if sess.Status.Terminal() {
		return nil, errors.Wrapf(errors.ErrSessionClosed, "session %s", id)
	}
	return sess, nil
}

// Run executes one full negotiation and returns its terminal result.
// Malformed inputs fail fast before a session is created; every ordinary
// negotiation outcome, including rejection and exhaustion, is a normal
// Result, not an error.
func (o *Orchestrator) Run(ctx context.Context, p Params) (*session.Result, error) {
	if p.Request == nil || p.Product == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "request and product are required")
	}
	if err := p.Request.Validate(); err != nil {
		return nil, err
	}
	if err := p.Product.Validate(); err != nil {
		return nil, err
	}

	now := o.opts.Clock.Now()

	buyer, err := agents.NewBuyerAgent("buyer-"+p.Request.BuyerID.String(), p.BuyerStrategy, p.Request, p.Product, now)
	if err != nil {
		return nil, err
	}
	supplier, err := agents.NewSupplierAgent("supplier-"+p.Product.SupplierID.String(), p.SupplierStrategy, p.Request, p.Product)
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		ID:         uuid.New(),
		RequestID:  p.Request.ID,
		ProductID:  p.Product.ID,
		SupplierID: p.Product.SupplierID,
		Buyer: session.Participant{
			AgentID:  buyer.ID,
			Role:     offer.RoleBuyer,
			Strategy: buyer.Personality.Strategy.String(),
		},
		Supplier: session.Participant{
			AgentID:  supplier.ID,
			Role:     offer.RoleSupplier,
			Strategy: supplier.Personality.Strategy.String(),
		},
		Status:         session.StatusActive,
		Phase:          session.PhaseOpening,
		StartedAt:      now,
		LastActivityAt: now,
		MaxDuration:    o.opts.MaxDuration,
		Priority:       p.Priority,
	}

	o.register(sess)
	defer o.deregister(sess)

	metrics.SessionsStarted.Inc()

	o.log.Infow("negotiation started",
		"session_id", sess.ID,
		"request_id", sess.RequestID,
		"product_id", sess.ProductID,
		"buyer_strategy", sess.Buyer.Strategy,
		"supplier_strategy", sess.Supplier.Strategy,
	)
	o.publish(events.New(sess.ID, events.TypeSessionStarted,
		fmt.Sprintf("negotiation between %s and %s started", sess.Buyer.AgentID, sess.Supplier.AgentID)))

	run := &runState{sess: sess, buyer: buyer, supplier: supplier}
	return o.runLoop(ctx, p, run)
}

// runState is the per-run working set, owned by one goroutine
type runState struct {
	sess     *session.Session
	buyer    *agents.Agent
	supplier *agents.Agent

	lastBuyerOffer    *offer.Offer
	lastSupplierOffer *offer.Offer

	// buyerSuggestion carries the buyer evaluator's advisory offer into the
	// buyer's next counter
	buyerSuggestion *offer.Offer
}

func (o *Orchestrator) runLoop(ctx context.Context, p Params, run *runState) (*session.Result, error) {
	sess := run.sess

	for round := 1; round <= o.opts.MaxRounds; round++ {
		if ctx.Err() != nil {
			return o.finish(p, run, terminalCancelled, errors.ErrSessionCancelled.Error()), nil
		}
		if sess.Expired(o.opts.Clock.Now()) {
			return o.finish(p, run, terminalExpired, errors.ErrMaxDurationExceeded.Error()), nil
		}

		o.beginRound(run, round)

		// Step 1: buyer emits its offer for the round
		buyerOffer := o.buyerOffer(run, round)

		// Step 2: supplier evaluates it
		decision := o.evaluate(run, run.supplier, buyerOffer, round)
		switch decision.Action {
		case agents.ActionAccept:
			o.acceptOffer(run, run.supplier, buyerOffer, decision)
			return o.finish(p, run, terminalAgreed, decision.Reasoning), nil
		case agents.ActionReject:
			o.rejectOffer(run, run.supplier, buyerOffer, decision)
			return o.finish(p, run, terminalRejected, decision.Reasoning), nil
		}

		// Step 3: supplier counters, merging its evaluator's suggestion
		supplierOffer := o.supplierCounter(run, round, buyerOffer, decision.Suggested)

		// Step 4: buyer evaluates the counter
		decision = o.evaluate(run, run.buyer, supplierOffer, round)
		switch decision.Action {
		case agents.ActionAccept:
			o.acceptOffer(run, run.buyer, supplierOffer, decision)
			return o.finish(p, run, terminalAgreed, decision.Reasoning), nil
		case agents.ActionReject:
			o.rejectOffer(run, run.buyer, supplierOffer, decision)
			return o.finish(p, run, terminalRejected, decision.Reasoning), nil
		}
		run.buyerSuggestion = decision.Suggested

		o.completeRound(run, round)

		if err := o.opts.Pacer.Pace(ctx, o.opts.RoundPacing); err != nil {
			return o.finish(p, run, terminalCancelled, errors.ErrSessionCancelled.Error()), nil
		}
	}

	return o.finish(p, run, terminalExhausted, errors.ErrMaxRoundsExceeded.Error()), nil
}

func (o *Orchestrator) beginRound(run *runState, round int) {
	sess := run.sess
	sess.CurrentRound = round
	sess.LastActivityAt = o.opts.Clock.Now()
	sess.Rounds = append(sess.Rounds, session.Round{
		Number:    round,
		StartedAt: sess.LastActivityAt,
		Status:    session.RoundActive,
	})

	if round > 1 && sess.Phase != session.PhaseBargaining {
		sess.Phase = session.PhaseBargaining
		o.publish(events.New(sess.ID, events.TypePhaseChanged, "entering bargaining phase").WithRound(round))
	}
}

func (o *Orchestrator) currentRound(run *runState) *session.Round {
	return &run.sess.Rounds[len(run.sess.Rounds)-1]
}

func (o *Orchestrator) buyerOffer(run *runState, round int) *offer.Offer {
	sess := run.sess
	actx := agents.Context{
		SessionID:  sess.ID,
		Round:      round,
		Now:        o.opts.Clock.Now(),
		LastOwn:    run.lastBuyerOffer,
		Incoming:   run.lastSupplierOffer,
		Suggestion: run.buyerSuggestion,
	}

	var buyerOffer *offer.Offer
	if run.lastBuyerOffer == nil {
		buyerOffer = run.buyer.GenerateInitialOffer(actx)
	} else {
		buyerOffer = run.buyer.GenerateCounterOffer(actx)
	}
	run.lastBuyerOffer = buyerOffer
	run.buyerSuggestion = nil
	o.currentRound(run).BuyerOffer = buyerOffer

	eventType := events.TypeOfferMade
	if buyerOffer.IsCounterOffer {
		eventType = events.TypeCounterOffer
	}
	o.publish(events.New(sess.ID, eventType,
		fmt.Sprintf("buyer offers %s %s for %d units, delivery in %d days",
			buyerOffer.Currency, buyerOffer.UnitPrice.StringFixed(2), buyerOffer.Quantity, buyerOffer.DeliveryDays)).
		WithRound(round).WithOffer(buyerOffer))
	o.publish(events.New(sess.ID, events.TypeOfferReceived, "supplier received buyer offer").WithRound(round))

	return buyerOffer
}

func (o *Orchestrator) supplierCounter(run *runState, round int, incoming *offer.Offer, suggestion *offer.Offer) *offer.Offer {
	sess := run.sess
	actx := agents.Context{
		SessionID:  sess.ID,
		Round:      round,
		Now:        o.opts.Clock.Now(),
		LastOwn:    run.lastSupplierOffer,
		Incoming:   incoming,
		Suggestion: suggestion,
	}

	counter := run.supplier.GenerateCounterOffer(actx)
	run.lastSupplierOffer = counter
	o.currentRound(run).SupplierOffer = counter

	o.publish(events.New(sess.ID, events.TypeCounterOffer,
		fmt.Sprintf("supplier counters at %s %s for %d units, delivery in %d days",
			counter.Currency, counter.UnitPrice.StringFixed(2), counter.Quantity, counter.DeliveryDays)).
		WithRound(round).WithOffer(counter))
	o.publish(events.New(sess.ID, events.TypeOfferReceived, "buyer received supplier offer").WithRound(round))

	return counter
}

func (o *Orchestrator) evaluate(run *runState, agent *agents.Agent, in *offer.Offer, round int) agents.Decision {
	o.publish(events.New(run.sess.ID, events.TypeAgentThinking,
		fmt.Sprintf("%s evaluating %s offer", agent.Role, in.Role)).WithRound(round))

	decision := agent.EvaluateOffer(in, agents.Context{
		SessionID: run.sess.ID,
		Round:     round,
		Now:       o.opts.Clock.Now(),
	})

	o.log.Debugw("offer evaluated",
		"session_id", run.sess.ID,
		"round", round,
		"evaluator", agent.Role,
		"action", decision.Action,
		"overall", decision.Scores.Overall,
	)
	return decision
}

func (o *Orchestrator) acceptOffer(run *runState, agent *agents.Agent, accepted *offer.Offer, decision agents.Decision) {
	sess := run.sess
	sess.FinalOffer = accepted
	sess.AgreementReached = true

	// Terminal round: the agreed offer compared to itself, convergence 1
	round := o.currentRound(run)
	round.Convergence = session.Convergence(accepted, accepted)
	round.Status = session.RoundCompleted
	o.endRound(round)

	o.publish(events.New(sess.ID, events.TypeOfferAccepted,
		fmt.Sprintf("%s accepted: %s", agent.Role, decision.Reasoning)).
		WithRound(round.Number).WithOffer(accepted))
}

func (o *Orchestrator) rejectOffer(run *runState, agent *agents.Agent, rejected *offer.Offer, decision agents.Decision) {
	sess := run.sess

	round := o.currentRound(run)
	round.Convergence = session.Convergence(round.BuyerOffer, round.SupplierOffer)
	round.Status = session.RoundFailed
	o.endRound(round)

	o.publish(events.New(sess.ID, events.TypeOfferRejected,
		fmt.Sprintf("%s rejected: %s", agent.Role, decision.Reasoning)).
		WithRound(round.Number).WithOffer(rejected))
}

func (o *Orchestrator) completeRound(run *runState, round int) {
	sess := run.sess
	r := o.currentRound(run)
	r.Convergence = session.Convergence(r.BuyerOffer, r.SupplierOffer)
	r.Status = session.RoundCompleted
	o.endRound(r)

	// Anti-deadlock widening: every three rounds, if the price gap has
	// closed by less than 10% of the opening gap, both sides loosen up
	if round%3 == 0 {
		firstGap := sess.PriceGap(1)
		currentGap := sess.PriceGap(round)
		if firstGap.IsPositive() {
			shrink := firstGap.Sub(currentGap).Div(firstGap).InexactFloat64()
			if shrink < gapShrinkThreshold {
				run.buyer.WidenPriceFlexibility()
				run.supplier.WidenPriceFlexibility()
				o.log.Debugw("price flexibility widened",
					"session_id", sess.ID,
					"round", round,
					"gap_shrink", shrink,
				)
			}
		}
	}
}

func (o *Orchestrator) endRound(r *session.Round) {
	t := o.opts.Clock.Now()
	r.EndedAt = &t
}

// terminalKind classifies how a session ended, for metrics and status
type terminalKind string

const (
	terminalAgreed    terminalKind = "agreed"
	terminalRejected  terminalKind = "rejected"
	terminalExhausted terminalKind = "exhausted"
	terminalExpired   terminalKind = "expired"
	terminalCancelled terminalKind = "cancelled"
)

func (o *Orchestrator) finish(p Params, run *runState, kind terminalKind, reason string) *session.Result {
	sess := run.sess
	now := o.opts.Clock.Now()
	duration := now.Sub(sess.StartedAt)

	success := kind == terminalAgreed
	if success {
		sess.Status = session.StatusCompleted
	} else {
		sess.Status = session.StatusFailed
		sess.FailureReason = reason
	}
	sess.Phase = session.PhaseClosing
	sess.LastActivityAt = now

	result := &session.Result{
		SessionID:  sess.ID,
		Success:    success,
		FinalOffer: sess.FinalOffer,
		Rounds:     sess.Rounds,
		Duration:   duration,
		Reason:     reason,
		Metrics:    o.calculateMetrics(sess, success, duration),
	}

	if success && o.assembler != nil {
		c, err := o.assembler.Assemble(sess.FinalOffer, p.Request, p.Product)
		if err != nil {
			// Assembly problems are reported independently; the negotiation
			// itself still succeeded
			result.ContractError = err.Error()
			metrics.ContractsAssembled.WithLabelValues("error").Inc()
			o.log.Warnw("contract assembly failed",
				"session_id", sess.ID,
				"error", err,
			)
		} else {
			result.Contract = c
			metrics.ContractsAssembled.WithLabelValues("success").Inc()
		}
	}

	metrics.SessionsFinished.WithLabelValues(string(kind)).Inc()
	metrics.RoundsPerSession.Observe(float64(len(sess.Rounds)))
	metrics.SessionDuration.Observe(duration.Seconds())

	if success {
		o.publish(events.New(sess.ID, events.TypeNegotiationCompleted,
			fmt.Sprintf("agreement reached at %s %s after %d rounds",
				sess.FinalOffer.Currency, sess.FinalOffer.UnitPrice.StringFixed(2), len(sess.Rounds))).
			WithOffer(sess.FinalOffer))
	} else {
		o.publish(events.New(sess.ID, events.TypeNegotiationFailed, reason))
	}

	o.log.Infow("negotiation finished",
		"session_id", sess.ID,
		"outcome", kind,
		"rounds", len(sess.Rounds),
		"duration", duration,
	)
	return result
}

func (o *Orchestrator) register(sess *session.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[sess.ID] = sess
	metrics.ActiveSessions.Set(float64(len(o.active)))
}

func (o *Orchestrator) deregister(sess *session.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, sess.ID)
	metrics.ActiveSessions.Set(float64(len(o.active)))
}

func (o *Orchestrator) publish(e events.Event) {
	if o.bus != nil {
		o.bus.Publish(e)
	}
}
