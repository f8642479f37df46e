package cmd

import (
	"context"
	"fmt"

	container "github.com/inference-gateway/chatledger/internal/container"
	cobra "github.com/spf13/cobra"
)

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Inspect and replay billing events that failed to persist",
}

var deadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "List unresolved dead-lettered billing events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withContainer(func(c *container.ServiceContainer) error {
			letters, err := c.GetBillingPipeline().PendingDeadLetters(context.Background(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(letters) == 0 {
				fmt.Fprintln(out, "No pending dead letters")
				return nil
			}
			for _, l := range letters {
				fmt.Fprintf(out, "%s  %s  exchange=%s attempts=%d\n  error: %s\n",
					l.CreatedAt.Local().Format("2006-01-02 15:04:05"), l.Kind, l.ExchangeID, l.Attempts, l.Error)
			}
			return nil
		})
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay pending dead letters",
	Long: `Replay pending dead letters through the billing pipeline. Exchanges that
were already recorded are resolved without a second debit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withContainer(func(c *container.ServiceContainer) error {
			if limit <= 0 {
				limit = c.GetConfig().Billing.ReplayBatch
			}
			report, err := c.GetBillingPipeline().Replay(context.Background(), limit)
			if report != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "replayed: %d, already recorded: %d, failed: %d\n",
					report.Replayed, report.Duplicate, report.Failed)
			}
			return err
		})
	},
}

func init() {
	deadLettersCmd.Flags().Int("limit", 50, "maximum number of dead letters to list")
	replayCmd.Flags().Int("limit", 0, "maximum number of dead letters to replay (default billing.replay_batch)")

	billingCmd.AddCommand(deadLettersCmd)
	billingCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(billingCmd)
}
