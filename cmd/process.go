package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-memory/internal/engine"
	"github.com/sells-group/invoice-memory/internal/report"
)

var processCmd = &cobra.Command{
	Use:   "process <invoices-file>",
	Short: "Process extracted invoices and print decisions",
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
		for _, inv := range invoices {
			res, err := eng.Process(ctx, inv)
			if err != nil {
				return err
			}
			report.PrintDecision(os.Stdout, inv, res)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
