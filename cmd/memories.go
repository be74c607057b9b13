package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-memory/internal/report"
)

var memoriesMinConfidence float64

var memoriesCmd = &cobra.Command{
	Use:   "memories <vendor>",
	Short: "List learned memories for a vendor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		memories, err := st.GetVendorMemories(ctx, args[0], memoriesMinConfidence)
		if err != nil {
			return err
		}
		report.PrintMemories(os.Stdout, args[0], memories)
		return nil
	},
}

func init() {
	memoriesCmd.Flags().Float64Var(&memoriesMinConfidence, "min-confidence", 0, "only list memories at or above this confidence")
	rootCmd.AddCommand(memoriesCmd)
}
