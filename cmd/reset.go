package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all memories, audit entries and invoice metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Reset(ctx); err != nil {
			return err
		}
		zap.L().Info("store reset")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
