package cmd

import (
	"context"
	"fmt"

	container "github.com/inference-gateway/chatledger/internal/container"
	money "github.com/inference-gateway/chatledger/internal/money"
	cobra "github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Ledger integrity checks",
}

var verifyCmd = &cobra.Command{
	Use:   "verify <identity>",
	Short: "Check that a balance equals the sum of its transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *container.ServiceContainer) error {
			rec, err := c.GetLedger().Reconcile(context.Background(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "balance:    %s\nledger sum: %s\n", money.Format(rec.Balance), money.Format(rec.LedgerSum))
			if !rec.Balanced {
				return fmt.Errorf("ledger of %s is out of balance by %s", rec.User.Identity,
					money.Format(money.Sub(rec.Balance, rec.LedgerSum)))
			}
			fmt.Fprintln(out, "OK")
			return nil
		})
	},
}

func init() {
	ledgerCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(ledgerCmd)
}
