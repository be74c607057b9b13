// Package report renders decision results for reviewers: console summaries
// and an Excel review sheet.
package report

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/invoice-memory/internal/model"
)

var amounts = message.NewPrinter(language.English)

// FormatAmount renders a monetary amount with thousand separators and the
// invoice currency, e.g. "2,975.00 EUR".
func FormatAmount(amount float64, currencyCode string) string {
	if currencyCode == "" {
		return amounts.Sprintf("%.2f", amount)
	}
	return amounts.Sprintf("%.2f %s", amount, currencyCode)
}

// PrintDecision writes one invoice's decision in full.
func PrintDecision(w io.Writer, inv model.ExtractedInvoice, res *model.DecisionResult) {
	fmt.Fprintf(w, "%s  %s\n", inv.InvoiceID, inv.Vendor)
	fmt.Fprintf(w, "  gross: %s  confidence: %.2f  review: %t\n",
		FormatAmount(res.NormalizedFields.GrossTotal, res.NormalizedFields.Currency),
		res.ConfidenceScore, res.RequiresHumanReview)
	for _, c := range res.ProposedCorrections {
		fmt.Fprintf(w, "  fix: %s\n", c)
	}
	if res.Reasoning != "" {
		fmt.Fprintf(w, "  reasoning: %s\n", res.Reasoning)
	}
}

// PrintSummaryLine writes the compact one-line form used in batch output.
func PrintSummaryLine(w io.Writer, inv model.ExtractedInvoice, res *model.DecisionResult) {
	fixes := "none"
	if len(res.ProposedCorrections) > 0 {
		fixes = strings.Join(res.ProposedCorrections, "; ")
	}
	fmt.Fprintf(w, "%-12s %-14s review=%-5t conf=%.2f fixes: %s\n",
		inv.InvoiceID, inv.Vendor, res.RequiresHumanReview, res.ConfidenceScore, fixes)
}

// PrintAuditTrail writes an invoice's audit entries in order.
func PrintAuditTrail(w io.Writer, invoiceID string, entries []model.AuditEntry) {
	fmt.Fprintf(w, "audit trail for %s (%d entries)\n", invoiceID, len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "  %s  %-6s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Step, e.Details)
	}
}

// PrintMemories writes a vendor's memory entries.
func PrintMemories(w io.Writer, vendor string, memories []model.MemoryEntry) {
	fmt.Fprintf(w, "%d memories for vendor %s\n", len(memories), vendor)
	for _, m := range memories {
		scope := m.VendorName
		if scope == "" {
			scope = "(all vendors)"
		}
		fmt.Fprintf(w, "  #%-4d %-32s conf=%.2f +%d/-%d %s\n",
			m.ID, m.Key, m.Confidence, m.PositiveReinforcements, m.NegativeReinforcements, scope)
	}
}
