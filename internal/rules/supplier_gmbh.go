package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/invoice-memory/internal/model"
	"github.com/sells-group/invoice-memory/internal/store"
)

// VendorSupplierGmbH is the vendor name the label-mapping handler matches.
const VendorSupplierGmbH = "Supplier GmbH"

const leistungsdatumLabel = "Leistungsdatum:"

var leistungsdatumRe = regexp.MustCompile(`Leistungsdatum:\s*([0-9.]+)`)

// SupplierGmbH applies and learns label mappings for German-language
// invoices, currently "Leistungsdatum" to the service date.
type SupplierGmbH struct{}

// NewSupplierGmbH returns the Supplier GmbH handler.
func NewSupplierGmbH() *SupplierGmbH { return &SupplierGmbH{} }

func (h *SupplierGmbH) Vendor() string { return VendorSupplierGmbH }

func (h *SupplierGmbH) Apply(ctx context.Context, a *ApplyContext) error {
	mem := a.Memory(model.KeyLabelMappingLeistungsdatum)
	hasLabel := strings.Contains(a.Invoice.RawText, leistungsdatumLabel)

	if mem != nil && hasLabel && a.Fields.ServiceDate == "" {
		var mapping model.LabelMapping
		if err := mem.DecodeValue(&mapping); err != nil {
			return err
		}
		if mapping.TargetField != "serviceDate" {
			// A mapping we don't know how to apply yet.
			a.AddReasoning(fmt.Sprintf("Memory maps Leistungsdatum to unsupported field %q; kept for human review.", mapping.TargetField))
			return nil
		}

		m := leistungsdatumRe.FindStringSubmatch(a.Invoice.RawText)
		if m == nil {
			a.AddReasoning("Could not parse service date from Leistungsdatum; left for human review.")
			return nil
		}
		iso, ok := toISODate(m[1])
		if !ok {
			a.AddReasoning("Found Leistungsdatum but date format was unexpected; left for human review.")
			return nil
		}

		a.Fields.ServiceDate = iso
		a.AddCorrection(fmt.Sprintf("Set serviceDate=%s based on vendor memory for Leistungsdatum", iso))
		a.Boost(0.15)
		a.AddReasoning(`Applied learned mapping: "Leistungsdatum" → serviceDate for Supplier GmbH.`)
	} else if hasLabel && a.Fields.ServiceDate == "" {
		a.AddReasoning(`Found "Leistungsdatum" in rawText but no vendor memory yet; kept for human review.`)
	}

	return nil
}

func (h *SupplierGmbH) Learn(ctx context.Context, st store.Store, c model.HumanCorrection) ([]string, error) {
	var updates []string

	if correctionFor(c, "serviceDate") == nil {
		return updates, nil
	}

	existing, err := findMemory(ctx, st, VendorSupplierGmbH, model.KeyLabelMappingLeistungsdatum)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		saved, err := reinforce(ctx, st, *existing)
		if err != nil {
			return nil, err
		}
		updates = append(updates, fmt.Sprintf("Reinforced vendor memory #%d for Supplier GmbH: Leistungsdatum -> serviceDate", saved.ID))
	} else {
		saved, err := createMemory(ctx, st, VendorSupplierGmbH, model.KeyLabelMappingLeistungsdatum,
			model.LabelMapping{TargetField: "serviceDate"}, 0.6)
		if err != nil {
			return nil, err
		}
		updates = append(updates, fmt.Sprintf("Created vendor memory #%d for Supplier GmbH: Leistungsdatum -> serviceDate", saved.ID))
	}

	err = st.RecordAudit(ctx, c.InvoiceID, model.AuditEntry{
		Step:      model.StepLearn,
		Timestamp: time.Now().UTC(),
		Details:   `Learned/reinforced vendor-specific label mapping from human correction: "Leistungsdatum" → serviceDate.`,
	})
	if err != nil {
		return nil, err
	}
	return updates, nil
}

// toISODate converts a DD.MM.YYYY date to YYYY-MM-DD.
func toISODate(raw string) (string, bool) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return "", false
	}
	t, err := time.Parse("2.1.2006", raw)
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}
