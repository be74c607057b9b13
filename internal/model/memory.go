package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// MemoryType classifies why a memory exists.
type MemoryType string

const (
	MemoryTypeVendor     MemoryType = "VENDOR"
	MemoryTypeCorrection MemoryType = "CORRECTION"
	MemoryTypeResolution MemoryType = "RESOLUTION"
)

// Well-known memory keys. Keys are namespaced; each namespace has one payload
// shape (see the value types below).
const (
	KeyLabelMappingLeistungsdatum = "label_mapping:Leistungsdatum"
	KeyTaxBehaviorVATInclusive    = "tax_behavior:VAT_INCLUSIVE"
	KeyPaymentTermsSkonto         = "payment_terms:skonto"
	KeySKUMappingFreight          = "sku_mapping:freight"
	KeyCurrencyDefault            = "currency_default"
)

// MemoryEntry is the unit of learned vendor knowledge. Entries are created
// once and thereafter only reinforced; the engine never deletes them.
type MemoryEntry struct {
	ID                     int64           `json:"id"`
	VendorName             string          `json:"vendorName,omitempty"` // empty applies to all vendors
	Type                   MemoryType      `json:"type"`
	Key                    string          `json:"key"`
	Value                  json.RawMessage `json:"value"`
	Confidence             float64         `json:"confidence"`
	PositiveReinforcements int             `json:"positiveReinforcements"`
	NegativeReinforcements int             `json:"negativeReinforcements"`
	LastUsedAt             *time.Time      `json:"lastUsedAt,omitempty"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// DecodeValue unmarshals the entry's payload into the shape its key
// namespace dictates.
func (m MemoryEntry) DecodeValue(v any) error {
	if err := json.Unmarshal(m.Value, v); err != nil {
		return eris.Wrapf(err, "memory: decode value for key %s", m.Key)
	}
	return nil
}

// EncodeValue serializes a typed payload for storage in a MemoryEntry.
func EncodeValue(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "memory: encode value")
	}
	return raw, nil
}

// LabelMapping maps a vendor-specific document label to a target field.
// Payload for the label_mapping namespace.
type LabelMapping struct {
	TargetField string `json:"targetField"`
}

// TaxBehavior records how a vendor states totals. Payload for tax_behavior.
type TaxBehavior struct {
	Strategy string `json:"strategy"` // e.g. RECOMPUTE_FROM_GROSS
}

// SKUMapping maps recognized line-item descriptions to a catalog SKU.
// Payload for the sku_mapping namespace.
type SKUMapping struct {
	SKU string `json:"sku"`
}

// CurrencyDefault records the vendor's default invoice currency.
type CurrencyDefault struct {
	Currency string `json:"currency"`
}

// AuditStep identifies the pipeline stage that produced an audit entry.
type AuditStep string

const (
	StepRecall AuditStep = "recall"
	StepApply  AuditStep = "apply"
	StepDecide AuditStep = "decide"
	StepLearn  AuditStep = "learn"
)

// AuditEntry is one append-only record in an invoice's audit trail.
type AuditEntry struct {
	Step      AuditStep `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// InvoiceRef identifies a previously processed invoice, as returned by
// duplicate lookups.
type InvoiceRef struct {
	ID          string `json:"id"`
	InvoiceDate string `json:"invoiceDate"`
}
