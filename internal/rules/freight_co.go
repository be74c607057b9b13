package rules

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/invoice-memory/internal/model"
	"github.com/sells-group/invoice-memory/internal/store"
)

// VendorFreightCo is the vendor name the discount-terms handler matches.
const VendorFreightCo = "Freight & Co"

var (
	skontoRe        = regexp.MustCompile(`(?i)(\d+)%\s+Skonto.*?(\d+)\s+days?`)
	freightKeywords = []string{"seefracht", "shipping", "transport"}
)

// FreightCo handles Skonto payment terms and freight SKU mappings.
type FreightCo struct{}

// NewFreightCo returns the Freight & Co handler.
func NewFreightCo() *FreightCo { return &FreightCo{} }

func (h *FreightCo) Vendor() string { return VendorFreightCo }

func (h *FreightCo) Apply(ctx context.Context, a *ApplyContext) error {
	raw := a.Invoice.RawText

	// Skonto terms extract directly from raw text; no memory required.
	if m := skontoRe.FindStringSubmatch(raw); m != nil {
		percent, _ := strconv.Atoi(m[1])
		days, _ := strconv.Atoi(m[2])
		if a.Fields.PaymentTerms == nil {
			a.Fields.PaymentTerms = &model.PaymentTerms{}
		}
		a.Fields.PaymentTerms.Skonto = &model.SkontoTerms{Percent: percent, Days: days}
		a.AddCorrection(fmt.Sprintf("Extracted Skonto terms: %d%% if paid within %d days.", percent, days))
		a.Boost(0.1)
		a.AddReasoning("Detected and structured Skonto payment terms for Freight & Co.")
	} else if a.Memory(model.KeyPaymentTermsSkonto) != nil {
		// Memory confirms the pattern applies to this vendor but the text
		// itself had no direct match; descriptive only.
		a.AddReasoning("Applied known Skonto payment pattern from memory for Freight & Co.")
	}

	freightMem := a.Memory(model.KeySKUMappingFreight)
	mappedSKU := "FREIGHT"
	if freightMem != nil {
		var mapping model.SKUMapping
		if err := freightMem.DecodeValue(&mapping); err != nil {
			return err
		}
		if mapping.SKU != "" {
			mappedSKU = mapping.SKU
		}
	}

	for i, item := range a.Fields.LineItems {
		desc := strings.ToLower(item.Description)
		looksFreight := false
		for _, kw := range freightKeywords {
			if strings.Contains(desc, kw) {
				looksFreight = true
				break
			}
		}
		if !looksFreight {
			continue
		}

		if freightMem != nil {
			corrected := item
			corrected.SKU = mappedSKU
			a.Fields.LineItems[i] = corrected
			a.AddCorrection(fmt.Sprintf("Mapped line %d %q to SKU %s.", i+1, item.Description, mappedSKU))
			a.Boost(0.1)
			a.AddReasoning("Applied learned freight SKU mapping for Freight & Co.")
		} else {
			a.AddReasoning("Detected freight-like description but no SKU mapping yet; kept for human review.")
		}
	}

	return nil
}

func (h *FreightCo) Learn(ctx context.Context, st store.Store, c model.HumanCorrection) ([]string, error) {
	var updates []string

	if skontoCorr := correctionFor(c, "discountTerms", "paymentTerms.skonto"); skontoCorr != nil {
		existing, err := findMemory(ctx, st, VendorFreightCo, model.KeyPaymentTermsSkonto)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			saved, err := reinforce(ctx, st, *existing)
			if err != nil {
				return nil, err
			}
			updates = append(updates, fmt.Sprintf("Reinforced vendor memory #%d for Freight & Co: Skonto terms.", saved.ID))
		} else {
			// The corrected value is stored as-is; reviewers phrase terms in
			// free text (e.g. "2% Skonto 10 days").
			saved, err := createMemory(ctx, st, VendorFreightCo, model.KeyPaymentTermsSkonto, skontoCorr.To, 0.7)
			if err != nil {
				return nil, err
			}
			updates = append(updates, fmt.Sprintf("Created vendor memory #%d for Freight & Co: Skonto terms.", saved.ID))
		}

		err = st.RecordAudit(ctx, c.InvoiceID, model.AuditEntry{
			Step:      model.StepLearn,
			Timestamp: time.Now().UTC(),
			Details:   "Learned/reinforced Skonto payment terms for Freight & Co from human correction.",
		})
		if err != nil {
			return nil, err
		}
	}

	if skuCorr := correctionFor(c, "lineItems0.sku", "freightSku"); skuCorr != nil {
		to, ok := asString(skuCorr.To)
		if !ok || to != "FREIGHT" {
			return updates, nil
		}

		existing, err := findMemory(ctx, st, VendorFreightCo, model.KeySKUMappingFreight)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			saved, err := reinforce(ctx, st, *existing)
			if err != nil {
				return nil, err
			}
			updates = append(updates, fmt.Sprintf("Reinforced vendor memory #%d for Freight & Co: FREIGHT SKU mapping.", saved.ID))
		} else {
			saved, err := createMemory(ctx, st, VendorFreightCo, model.KeySKUMappingFreight,
				model.SKUMapping{SKU: "FREIGHT"}, 0.6)
			if err != nil {
				return nil, err
			}
			updates = append(updates, fmt.Sprintf("Created vendor memory #%d for Freight & Co: FREIGHT SKU mapping.", saved.ID))
		}

		err = st.RecordAudit(ctx, c.InvoiceID, model.AuditEntry{
			Step:      model.StepLearn,
			Timestamp: time.Now().UTC(),
			Details:   "Learned/reinforced freight SKU mapping for Freight & Co from human correction.",
		})
		if err != nil {
			return nil, err
		}
	}

	return updates, nil
}
