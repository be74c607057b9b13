package report

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/invoice-memory/internal/model"
)

// ReviewRow pairs a processed invoice with its decision for export.
type ReviewRow struct {
	Invoice model.ExtractedInvoice
	Result  *model.DecisionResult
}

var reviewHeader = []string{
	"Invoice ID", "Vendor", "Invoice Number", "Invoice Date",
	"Gross Total", "Currency", "Confidence", "Requires Review",
	"Proposed Corrections", "Reasoning",
}

// WriteReviewSheet writes the decisions to an Excel worksheet for the AP
// review queue.
func WriteReviewSheet(path string, rows []ReviewRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Review")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range reviewHeader {
		header.AddCell().Value = h
	}

	for _, r := range rows {
		res := r.Result
		row := sheet.AddRow()
		row.AddCell().Value = r.Invoice.InvoiceID
		row.AddCell().Value = r.Invoice.Vendor
		row.AddCell().Value = res.NormalizedFields.InvoiceNumber
		row.AddCell().Value = res.NormalizedFields.InvoiceDate
		row.AddCell().SetFloat(res.NormalizedFields.GrossTotal)
		row.AddCell().Value = res.NormalizedFields.Currency
		row.AddCell().SetFloat(res.ConfidenceScore)
		if res.RequiresHumanReview {
			row.AddCell().Value = "yes"
		} else {
			row.AddCell().Value = "no"
		}
		row.AddCell().Value = strings.Join(res.ProposedCorrections, "; ")
		row.AddCell().Value = res.Reasoning
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}
