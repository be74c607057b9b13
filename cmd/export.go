package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-memory/internal/engine"
	"github.com/sells-group/invoice-memory/internal/report"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <invoices-file>",
	Short: "Process invoices and export the decisions as an Excel review sheet",
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

		eng := engine.New(st, nil)
		rows := make([]report.ReviewRow, 0, len(invoices))
		for _, inv := range invoices {
			res, err := eng.Process(ctx, inv)
			if err != nil {
				return err
			}
			rows = append(rows, report.ReviewRow{Invoice: inv, Result: res})
			report.PrintSummaryLine(os.Stdout, inv, res)
		}

		if err := report.WriteReviewSheet(exportOutput, rows); err != nil {
			return err
		}
		zap.L().Info("review sheet written", zap.String("path", exportOutput), zap.Int("rows", len(rows)))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "review.xlsx", "output xlsx path")
	rootCmd.AddCommand(exportCmd)
}
