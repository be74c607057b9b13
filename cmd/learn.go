package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-memory/internal/engine"
)

var learnCmd = &cobra.Command{
	Use:   "learn <corrections-file>",
	Short: "Feed reviewer corrections to the learning handlers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		corrections, err := loadCorrections(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		eng := engine.New(st, nil)
		for _, c := range corrections {
			updates, err := eng.Learn(ctx, c)
			if err != nil {
				return err
			}
			if len(updates) == 0 {
				fmt.Fprintf(os.Stdout, "%s: nothing learned\n", c.InvoiceID)
				continue
			}
			for _, u := range updates {
				fmt.Fprintf(os.Stdout, "%s: %s\n", c.InvoiceID, u)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(learnCmd)
}
