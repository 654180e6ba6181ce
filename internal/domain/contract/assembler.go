package contract

import (
	"bytes"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"mercato/internal/domain/offer"
	"mercato/internal/domain/product"
	"mercato/internal/domain/request"
	"mercato/pkg/errors"
)

// approvalWindow is how long both parties have to countersign
const approvalWindow = 30 * 24 * time.Hour

// Assembler maps a final accepted offer plus its originating request and
// product into a contract record and a rendered legal document. It performs
// no negotiation logic; assembly failures are independent of the
// negotiation outcome.
type Assembler struct {
	now func() time.Time
	tpl *template.Template
}

// NewAssembler creates an assembler using the wall clock
func NewAssembler() *Assembler {
	return NewAssemblerWithClock(time.Now)
}

// NewAssemblerWithClock creates an assembler with an injectable clock for tests
func NewAssemblerWithClock(now func() time.Time) *Assembler {
	return &Assembler{
		now: now,
		tpl: template.Must(template.New("contract").Funcs(template.FuncMap{
			"money": func(v interface{ InexactFloat64() float64 }) string {
				return humanize.CommafWithDigits(v.InexactFloat64(), 2)
			},
		}).Parse(documentTemplate)),
	}
}

// Assemble builds the contract for a final offer
func (a *Assembler) Assemble(final *offer.Offer, req *request.BuyerRequest, prod *product.B2BProduct) (*Contract, error) {
	if final == nil {
		return nil, errors.Wrap(errors.ErrContractAssembly, "final offer is nil")
	}
	if err := final.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrContractAssembly, err.Error())
	}
	if req == nil || prod == nil {
		return nil, errors.Wrap(errors.ErrContractAssembly, "request and product are required")
	}
	if req.Delivery.Location == "" {
		return nil, errors.Wrap(errors.ErrContractAssembly, errors.ErrMissingDeliveryLocation.Error())
	}

	now := a.now()

	c := &Contract{
		ID:        uuid.New(),
		SessionID: final.SessionID,
		RequestID: req.ID,
		ProductID: prod.ID,

		BuyerID:    req.BuyerID,
		SupplierID: prod.SupplierID,

		UnitPrice:  final.UnitPrice,
		Currency:   final.Currency,
		Quantity:   final.Quantity,
		TotalPrice: final.TotalPrice(),

		DeliveryDays:     final.DeliveryDays,
		DeliveryDate:     now.AddDate(0, 0, final.DeliveryDays),
		DeliveryLocation: req.Delivery.Location,
		DeliveryTerms:    prod.Terms.DeliveryTerms,

		PaymentTerms: final.PaymentTerms,
		Warranty:     final.Warranty,

		Specifications: prod.Specifications,
		Certifications: prod.Certifications,

		Status:    StatusPendingApproval,
		CreatedAt: now,
		ExpiresAt: now.Add(approvalWindow),
	}

	doc, err := a.renderDocument(c, req, prod)
	if err != nil {
		return nil, errors.Wrap(errors.ErrContractAssembly, err.Error())
	}
	c.Document = doc

	return c, nil
}

func (a *Assembler) renderDocument(c *Contract, req *request.BuyerRequest, prod *product.B2BProduct) (string, error) {
	var buf bytes.Buffer
	err := a.tpl.Execute(&buf, map[string]interface{}{
		"Contract": c,
		"Request":  req,
		"Product":  prod,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentTemplate = `SUPPLY AGREEMENT {{.Contract.ID}}

This agreement is entered into between buyer {{.Contract.BuyerID}} and supplier {{.Contract.SupplierID}} for "{{.Product.Name}}" ({{.Product.Category}}), originating from request "{{.Request.Title}}".

1. COMMERCIAL TERMS
   Unit price:  {{.Contract.Currency}} {{money .Contract.UnitPrice}}
   Quantity:    {{.Contract.Quantity}} {{.Request.Quantity.Unit}}
   Total price: {{.Contract.Currency}} {{money .Contract.TotalPrice}}
   Payment:     {{.Contract.PaymentTerms}}

2. SPECIFICATIONS
{{- range $key, $value := .Contract.Specifications}}
   - {{$key}}: {{$value}}
{{- else}}
   - As published by the supplier.
{{- end}}

3. DELIVERY TERMS
   Deliver to {{.Contract.DeliveryLocation}} within {{.Contract.DeliveryDays}} days (no later than {{.Contract.DeliveryDate.Format "2006-01-02"}}).
   Terms: {{.Contract.DeliveryTerms}}
{{- if .Contract.Warranty}}

4. WARRANTY
   {{.Contract.Warranty.Duration}} {{.Contract.Warranty.Unit}} from delivery.
{{- end}}

COMPLIANCE
{{- range .Contract.Certifications}}
   - {{.}}
{{- else}}
   - None declared.
{{- end}}

This agreement is valid for signature until {{.Contract.ExpiresAt.Format "2006-01-02"}} and becomes binding once approved by both parties.
`
