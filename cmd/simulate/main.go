package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"mercato/internal/agents"
	"mercato/internal/domain/contract"
	"mercato/internal/domain/product"
	"mercato/internal/domain/request"
	"mercato/internal/domain/session"
	"mercato/internal/events"
	"mercato/internal/services/negotiation"
	"mercato/pkg/logger"
)

// simulate runs one negotiation against built-in demo fixtures and prints
// the outcome. Useful for tuning strategies without standing up the server.
func main() {
	var (
		buyerStrategy    = flag.String("buyer", "balanced", "buyer strategy: aggressive|balanced|conservative|time_sensitive|price_focused|quality_focused")
		supplierStrategy = flag.String("supplier", "balanced", "supplier strategy")
		urgency          = flag.String("urgency", "medium", "buyer urgency: low|medium|high|critical")
		pacing           = flag.Duration("pacing", 0, "delay between rounds")
		verbose          = flag.Bool("v", false, "stream negotiation events")
		showContract     = flag.Bool("contract", false, "print the rendered contract document")
	)
	flag.Parse()

	if err := logger.Init("warn", "development"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	bStrat := agents.Strategy(*buyerStrategy)
	sStrat := agents.Strategy(*supplierStrategy)
	if !bStrat.Valid() || !sStrat.Valid() {
		fmt.Fprintln(os.Stderr, "unknown strategy")
		os.Exit(2)
	}
	urg := request.Urgency(*urgency)
	if !urg.Valid() {
		fmt.Fprintln(os.Stderr, "unknown urgency")
		os.Exit(2)
	}

	bus := events.NewBroadcaster(events.DefaultBufferLen)
	defer bus.Close()

	if *verbose {
		sub, cancel := bus.Subscribe()
		defer cancel()
		go streamEvents(sub)
	}

	opts := negotiation.DefaultOptions()
	opts.RoundPacing = *pacing

	orch := negotiation.New(bus, contract.NewAssembler(), opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := orch.Run(ctx, negotiation.Params{
		Request:          demoRequest(urg),
		Product:          demoProduct(),
		BuyerStrategy:    bStrat,
		SupplierStrategy: sStrat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "negotiation failed to run: %v\n", err)
		os.Exit(1)
	}

	printReport(result, *showContract)
	if !result.Success {
		os.Exit(1)
	}
}

func streamEvents(sub <-chan events.Event) {
	for e := range sub {
		line := fmt.Sprintf("[%s] round %d: %s", e.Type, e.Round, e.Message)
		if e.Offer != nil {
			line += fmt.Sprintf(" (%s %s x %d, %d days)",
				e.Offer.UnitPrice.StringFixed(2), e.Offer.Currency, e.Offer.Quantity, e.Offer.DeliveryDays)
		}
		fmt.Println(line)
	}
}

func printReport(r *session.Result, showContract bool) {
	fmt.Println()
	if r.Success {
		fmt.Println("=== AGREEMENT REACHED ===")
	} else {
		fmt.Println("=== NO AGREEMENT ===")
	}
	fmt.Printf("Reason:      %s\n", r.Reason)
	fmt.Printf("Rounds:      %d\n", r.Metrics.TotalRounds)
	fmt.Printf("Duration:    %s\n", r.Duration.Round(time.Millisecond))

	if r.FinalOffer != nil {
		total := r.FinalOffer.TotalPrice()
		fmt.Printf("Final offer: %s %s x %s units = %s %s in %d days\n",
			r.FinalOffer.UnitPrice.StringFixed(2), r.FinalOffer.Currency,
			humanize.Comma(r.FinalOffer.Quantity),
			humanize.CommafWithDigits(total.InexactFloat64(), 2), r.FinalOffer.Currency,
			r.FinalOffer.DeliveryDays)
	}

	fmt.Printf("Opening gap: buyer %s vs supplier %s\n",
		r.Metrics.InitialBuyerOffer.StringFixed(2), r.Metrics.InitialSupplierOffer.StringFixed(2))
	if r.Success {
		fmt.Printf("Buyer savings:   %s%%\n", r.Metrics.BuyerSavingsPct.StringFixed(2))
		fmt.Printf("Supplier margin: %s%%\n", r.Metrics.SupplierMarginPct.StringFixed(2))
	}

	if r.ContractError != "" {
		fmt.Printf("Contract error: %s\n", r.ContractError)
	}
	if showContract && r.Contract != nil {
		fmt.Println()
		fmt.Println(r.Contract.Document)
	}
}

// demoRequest is a buyer sourcing 100 industrial sensors on a $10,000 budget
func demoRequest(urg request.Urgency) *request.BuyerRequest {
	return &request.BuyerRequest{
		ID:          uuid.New(),
		BuyerID:     uuid.New(),
		Title:       "Industrial temperature sensors",
		Description: "PT100 probes for assembly line retrofit",
		Category:    "electronics",
		Quantity:    request.QuantityRange{Min: 80, Max: 100, Unit: "pieces"},
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
		Urgency:           urg,
	}
}

// demoProduct publishes a three-tier ladder with a $80 price at full quantity
func demoProduct() *product.B2BProduct {
	return &product.B2BProduct{
		ID:         uuid.New(),
		SupplierID: uuid.New(),
		Name:       "PT100 Temperature Sensor",
		Category:   "electronics",
		Specifications: map[string]string{
			"range":    "-50C to 400C",
			"accuracy": "class A",
		},
		Certifications: []string{"ISO 9001", "CE"},
		Terms: product.CommercialTerms{
			Tiers: []product.PricingTier{
				{MinQuantity: 1, UnitPrice: decimal.NewFromInt(100)},
				{MinQuantity: 50, UnitPrice: decimal.NewFromInt(90)},
				{MinQuantity: 100, UnitPrice: decimal.NewFromInt(80)},
			},
			PaymentTerms:  "net_15",
			DeliveryTerms: "DAP",
			LeadTime:      product.LeadTime{Min: 2, Max: 4, Unit: "weeks"},
			MOQ:           50,
			Currency:      "USD",
		},
		Boundaries: product.NegotiationBoundaries{
			PriceFlexibilityPct:     decimal.NewFromFloat(0.10),
			QuantityFlexibilityPct:  decimal.NewFromFloat(0.20),
			DeliveryFlexibilityDays: 7,
			PaymentTermsFlexible:    true,
		},
	}
}
