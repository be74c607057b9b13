package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-memory/internal/report"
)

var auditCmd = &cobra.Command{
	Use:   "audit <invoice-id>",
	Short: "Print the audit trail for an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListAudit(ctx, args[0])
		if err != nil {
			return err
		}
		report.PrintAuditTrail(os.Stdout, args[0], entries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
