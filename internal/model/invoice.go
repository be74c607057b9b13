package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ExtractedInvoice is the output of the upstream extraction step. The engine
// treats it as immutable; corrections are applied to a working copy of Fields.
type ExtractedInvoice struct {
	InvoiceID  string          `json:"invoiceId" yaml:"invoiceId"`
	Vendor     string          `json:"vendor" yaml:"vendor"`
	Fields     ExtractedFields `json:"fields" yaml:"fields"`
	Confidence float64         `json:"confidence" yaml:"confidence"`
	RawText    string          `json:"rawText" yaml:"rawText"`
}

// ExtractedFields holds the structured invoice fields.
type ExtractedFields struct {
	InvoiceNumber string        `json:"invoiceNumber" yaml:"invoiceNumber"`
	InvoiceDate   string        `json:"invoiceDate" yaml:"invoiceDate"` // ISO date (YYYY-MM-DD)
	ServiceDate   string        `json:"serviceDate,omitempty" yaml:"serviceDate,omitempty"`
	Currency      string        `json:"currency,omitempty" yaml:"currency,omitempty"`
	PONumber      string        `json:"poNumber,omitempty" yaml:"poNumber,omitempty"`
	NetTotal      float64       `json:"netTotal" yaml:"netTotal"`
	TaxRate       float64       `json:"taxRate" yaml:"taxRate"`
	TaxTotal      float64       `json:"taxTotal" yaml:"taxTotal"`
	GrossTotal    float64       `json:"grossTotal" yaml:"grossTotal"`
	PaymentTerms  *PaymentTerms `json:"paymentTerms,omitempty" yaml:"paymentTerms,omitempty"`
	LineItems     []LineItem    `json:"lineItems" yaml:"lineItems"`
}

// LineItem is one invoice line. Items are never mutated in place; rules that
// change an item produce a corrected copy in the working fields.
type LineItem struct {
	SKU         string  `json:"sku,omitempty" yaml:"sku,omitempty"`
	Description string  `json:"description" yaml:"description"`
	Qty         float64 `json:"qty" yaml:"qty"`
	UnitPrice   float64 `json:"unitPrice" yaml:"unitPrice"`
}

// PaymentTerms holds structured payment conditions recovered from raw text.
type PaymentTerms struct {
	Skonto *SkontoTerms `json:"skonto,omitempty" yaml:"skonto,omitempty"`
}

// SkontoTerms is an early-payment discount: Percent off if paid within Days.
type SkontoTerms struct {
	Percent int `json:"percent" yaml:"percent"`
	Days    int `json:"days" yaml:"days"`
}

// Clone returns a deep copy of the fields, suitable as the working copy the
// engine writes corrections into.
func (f ExtractedFields) Clone() ExtractedFields {
	out := f
	if f.LineItems != nil {
		out.LineItems = make([]LineItem, len(f.LineItems))
		copy(out.LineItems, f.LineItems)
	}
	if f.PaymentTerms != nil {
		pt := *f.PaymentTerms
		if f.PaymentTerms.Skonto != nil {
			sk := *f.PaymentTerms.Skonto
			pt.Skonto = &sk
		}
		out.PaymentTerms = &pt
	}
	return out
}

// ErrValidation marks boundary pre-condition failures so callers can map
// them to a 4xx response or a usage error.
var ErrValidation = eris.New("invalid invoice")

// Validate checks the pre-conditions the engine assumes hold. Callers at the
// boundary (CLI, HTTP) run it before handing the invoice to the engine.
func (inv ExtractedInvoice) Validate() error {
	switch {
	case inv.InvoiceID == "":
		return eris.Wrap(ErrValidation, "missing invoiceId")
	case inv.Vendor == "":
		return eris.Wrap(ErrValidation, "missing vendor")
	case inv.Fields.InvoiceNumber == "":
		return eris.Wrap(ErrValidation, "missing invoiceNumber")
	case inv.Fields.InvoiceDate == "":
		return eris.Wrap(ErrValidation, "missing invoiceDate")
	}
	if _, err := time.Parse("2006-01-02", inv.Fields.InvoiceDate); err != nil {
		return eris.Wrapf(ErrValidation, "invoiceDate %q is not an ISO date", inv.Fields.InvoiceDate)
	}
	if inv.Confidence < 0 || inv.Confidence > 1 {
		return eris.Wrapf(ErrValidation, "confidence %v outside [0,1]", inv.Confidence)
	}
	return nil
}

// HumanCorrection is a reviewer's correction for a processed invoice. It is
// consumed by the learning handlers and not persisted verbatim.
type HumanCorrection struct {
	InvoiceID     string            `json:"invoiceId" yaml:"invoiceId"`
	Vendor        string            `json:"vendor" yaml:"vendor"`
	Corrections   []FieldCorrection `json:"corrections" yaml:"corrections"`
	FinalDecision string            `json:"finalDecision" yaml:"finalDecision"`
}

// FieldCorrection is one corrected field within a HumanCorrection.
type FieldCorrection struct {
	Field  string `json:"field" yaml:"field"`
	From   any    `json:"from" yaml:"from"`
	To     any    `json:"to" yaml:"to"`
	Reason string `json:"reason" yaml:"reason"`
}

// DecisionResult is the engine's verdict for one invoice.
type DecisionResult struct {
	NormalizedFields    ExtractedFields `json:"normalizedFields"`
	ProposedCorrections []string        `json:"proposedCorrections"`
	RequiresHumanReview bool            `json:"requiresHumanReview"`
	Reasoning           string          `json:"reasoning"`
	ConfidenceScore     float64         `json:"confidenceScore"`
	MemoryUpdates       []string        `json:"memoryUpdates"`
	AuditTrail          []AuditEntry    `json:"auditTrail"`
}
