package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/invoice-memory/internal/engine"
	"github.com/sells-group/invoice-memory/internal/model"
	"github.com/sells-group/invoice-memory/internal/report"
)

var (
	batchCorrectionsFile string
	batchReset           bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <invoices-file>",
	Short: "Process an invoice batch, learn from corrections, reprocess",
	Long:  "Processes every invoice in the file. With --corrections, afterwards feeds the reviewer corrections to the learning handlers and reprocesses the batch to show the effect of the new memories.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		invoices, err := loadInvoices(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if batchReset {
			if err := st.Reset(ctx); err != nil {
				return err
			}
			zap.L().Info("store reset before batch run")
		}

		eng := engine.New(st, nil)

		zap.L().Info("processing batch", zap.Int("invoices", len(invoices)))
		results, err := processAll(ctx, eng, invoices)
		if err != nil {
			return err
		}
		for i, inv := range invoices {
			report.PrintSummaryLine(os.Stdout, inv, results[i])
		}

		if batchCorrectionsFile == "" {
			return nil
		}

		corrections, err := loadCorrections(batchCorrectionsFile)
		if err != nil {
			return err
		}
		for _, c := range corrections {
			updates, err := eng.Learn(ctx, c)
			if err != nil {
				return err
			}
			for _, u := range updates {
				zap.L().Info("memory update", zap.String("invoice_id", c.InvoiceID), zap.String("update", u))
			}
		}

		zap.L().Info("reprocessing batch with learned memories")
		results, err = processAll(ctx, eng, invoices)
		if err != nil {
			return err
		}
		for i, inv := range invoices {
			report.PrintSummaryLine(os.Stdout, inv, results[i])
		}
		return nil
	},
}

// processAll runs the engine over the batch with one worker per vendor.
// Invoices for the same vendor stay strictly sequential so memory reads
// never race a concurrent learn or meta write for that vendor.
func processAll(ctx context.Context, eng *engine.Engine, invoices []model.ExtractedInvoice) ([]*model.DecisionResult, error) {
	byVendor := make(map[string][]int)
	for i, inv := range invoices {
		byVendor[inv.Vendor] = append(byVendor[inv.Vendor], i)
	}

	results := make([]*model.DecisionResult, len(invoices))
	g, gctx := errgroup.WithContext(ctx)
	for _, indices := range byVendor {
		g.Go(func() error {
			for _, i := range indices {
				res, err := eng.Process(gctx, invoices[i])
				if err != nil {
					return err
				}
				results[i] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchCorrectionsFile, "corrections", "", "reviewer corrections file (json or yaml)")
	batchCmd.Flags().BoolVar(&batchReset, "reset", false, "clear all memories, audit entries and invoice metadata first")
	rootCmd.AddCommand(batchCmd)
}
