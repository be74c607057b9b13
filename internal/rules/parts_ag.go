package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/currency"

	"github.com/sells-group/invoice-memory/internal/model"
	"github.com/sells-group/invoice-memory/internal/store"
)

// VendorPartsAG is the vendor name the inclusive-tax handler matches.
const VendorPartsAG = "Parts AG"

var (
	vatInclusivePhrases = []string{"MwSt. inkl.", "Prices incl. VAT"}
	currencyCodeRe      = regexp.MustCompile(`\b(EUR|USD|GBP)\b`)
)

// PartsAG handles VAT-inclusive pricing and currency recovery.
type PartsAG struct{}

// NewPartsAG returns the Parts AG handler.
func NewPartsAG() *PartsAG { return &PartsAG{} }

func (h *PartsAG) Vendor() string { return VendorPartsAG }

func (h *PartsAG) Apply(ctx context.Context, a *ApplyContext) error {
	raw := a.Invoice.RawText

	vatInclusive := false
	for _, phrase := range vatInclusivePhrases {
		if strings.Contains(raw, phrase) {
			vatInclusive = true
			break
		}
	}

	if vatInclusive {
		if a.Memory(model.KeyTaxBehaviorVATInclusive) != nil {
			a.AddReasoning(`Detected "MwSt. inkl." / "Prices incl. VAT" and vendor memory VAT_INCLUSIVE for Parts AG.`)
			a.AddCorrection("Recompute net and tax from gross because prices are VAT-inclusive (Parts AG strategy).")
			a.Boost(0.15)
		} else {
			a.AddReasoning(`Detected "MwSt. inkl." / "Prices incl. VAT" for Parts AG but no stored strategy yet; flag for human review.`)
		}
	}

	if a.Fields.Currency == "" {
		code := recoverCurrency(raw)
		if code != "" {
			a.Fields.Currency = code
			a.AddCorrection(fmt.Sprintf("Recovered missing currency from raw text: %s", code))
			a.Boost(0.1)
			a.AddReasoning(fmt.Sprintf("Recovered currency %q for Parts AG from raw text.", code))
		} else {
			a.AddReasoning("Currency missing and not found in raw text; keep for human review.")
		}
	}

	return nil
}

// recoverCurrency scans raw text for a known 3-letter code and verifies it
// against the ISO 4217 table before returning it.
func recoverCurrency(raw string) string {
	m := currencyCodeRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	unit, err := currency.ParseISO(m[1])
	if err != nil {
		return ""
	}
	return unit.String()
}

func (h *PartsAG) Learn(ctx context.Context, st store.Store, c model.HumanCorrection) ([]string, error) {
	var updates []string

	// Any correction touching VAT-sensitive fields counts as VAT-inclusive
	// feedback.
	if vatCorr := correctionFor(c, "vatBehavior", "grossTotal", "taxTotal"); vatCorr != nil {
		existing, err := findMemory(ctx, st, VendorPartsAG, model.KeyTaxBehaviorVATInclusive)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			saved, err := reinforce(ctx, st, *existing)
			if err != nil {
				return nil, err
			}
			updates = append(updates, fmt.Sprintf("Reinforced vendor memory #%d for Parts AG: VAT inclusive behavior.", saved.ID))
		} else if to, ok := asString(vatCorr.To); ok && to == "VAT_INCLUSIVE" {
			saved, err := createMemory(ctx, st, VendorPartsAG, model.KeyTaxBehaviorVATInclusive,
				model.TaxBehavior{Strategy: "RECOMPUTE_FROM_GROSS"}, 0.7)
			if err != nil {
				return nil, err
			}
			updates = append(updates, fmt.Sprintf("Created vendor memory #%d for Parts AG: VAT inclusive behavior.", saved.ID))
		}

		err = st.RecordAudit(ctx, c.InvoiceID, model.AuditEntry{
			Step:      model.StepLearn,
			Timestamp: time.Now().UTC(),
			Details:   "Learned/reinforced VAT inclusive tax behavior for Parts AG from human correction.",
		})
		if err != nil {
			return nil, err
		}
	}

	if currCorr := correctionFor(c, "currency"); currCorr != nil {
		to, ok := asString(currCorr.To)
		if !ok {
			return updates, nil
		}

		existing, err := findMemory(ctx, st, VendorPartsAG, model.KeyCurrencyDefault)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			saved, err := reinforce(ctx, st, *existing)
			if err != nil {
				return nil, err
			}
			updates = append(updates, fmt.Sprintf("Reinforced vendor memory #%d for Parts AG: default currency %s.", saved.ID, to))
		} else {
			saved, err := createMemory(ctx, st, VendorPartsAG, model.KeyCurrencyDefault,
				model.CurrencyDefault{Currency: to}, 0.7)
			if err != nil {
				return nil, err
			}
			updates = append(updates, fmt.Sprintf("Created vendor memory #%d for Parts AG: default currency %s.", saved.ID, to))
		}

		err = st.RecordAudit(ctx, c.InvoiceID, model.AuditEntry{
			Step:      model.StepLearn,
			Timestamp: time.Now().UTC(),
			Details:   "Learned/reinforced default currency for Parts AG from human correction.",
		})
		if err != nil {
			return nil, err
		}
	}

	return updates, nil
}
