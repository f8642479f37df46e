package cmd

import (
	"context"
	"errors"
	"fmt"

	config "github.com/inference-gateway/chatledger/config"
	container "github.com/inference-gateway/chatledger/internal/container"
	domain "github.com/inference-gateway/chatledger/internal/domain"
	money "github.com/inference-gateway/chatledger/internal/money"
	cobra "github.com/spf13/cobra"
)

var rechargeCmd = &cobra.Command{
	Use:   "recharge <identity> <amount>",
	Short: "Credit a user's balance on behalf of an admin",
	Long: `Credit a user's balance. The operator must be on admin.identities;
without --operator the first configured admin is used.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		operator, _ := cmd.Flags().GetString("operator")
		return withContainer(func(c *container.ServiceContainer) error {
			if operator == "" {
				operator = firstAdmin(c)
			}
			if operator == "" {
				return errors.New("no operator given and admin.identities is empty")
			}
			res, err := c.GetLedger().Recharge(context.Background(), operator, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recharged %s: +%s CA (%s -> %s)\n",
				res.Target.Identity, money.Format(res.Amount), money.Format(res.Before), money.Format(res.After))
			return nil
		})
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance <identity>",
	Short: "Show a user's balance and recent transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withContainer(func(c *container.ServiceContainer) error {
			ctx := context.Background()
			if _, err := c.GetLedger().Find(ctx, args[0]); err != nil {
				return err
			}
			view, err := c.GetLedger().Balance(ctx, args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s [%s/%s]: %s CA\n", view.User.Identity, view.User.Role, view.User.Status, money.Format(view.User.Balance))
			for _, tx := range view.Transactions {
				fmt.Fprintf(out, "  %s  %-8s %16s  %s\n",
					tx.CreatedAt.Local().Format("2006-01-02 15:04"), tx.Kind, money.Format(tx.Amount), tx.Description)
			}
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <identity>",
	Short: "List a user's conversations, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		return withContainer(func(c *container.ServiceContainer) error {
			ctx := context.Background()
			user, err := c.GetLedger().Find(ctx, args[0])
			if err != nil {
				return err
			}
			hist, err := c.GetConversationService().History(ctx, user, page, c.GetConfig().History.PageSize)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Conversations of %s (page %d/%d, %d total)\n", user.Identity, hist.Page, hist.TotalPages, hist.Total)
			for _, e := range hist.Entries {
				fmt.Fprintf(out, "- %s %s [%s] %d messages\n  Q: %s\n  A: %s\n",
					e.Conversation.CreatedAt.Local().Format("2006-01-02 15:04"), e.Conversation.ModelName,
					e.Conversation.Status, e.MessageCount, e.FirstQuestion, e.FirstAnswer)
			}
			return nil
		})
	},
}

var userStatusCmd = &cobra.Command{
	Use:   "user-status <identity> <normal|banned>",
	Short: "Set a user's account status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := domain.ParseUserStatus(args[1])
		if err != nil {
			return err
		}
		return withContainer(func(c *container.ServiceContainer) error {
			ctx := context.Background()
			user, err := c.GetLedger().Find(ctx, args[0])
			if err != nil {
				return err
			}
			if user, err = c.GetLedger().SetStatus(ctx, user, status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s is now %s\n", user.Identity, user.Status)
			return nil
		})
	},
}

func init() {
	rechargeCmd.Flags().String("operator", "", "admin identity performing the recharge")
	balanceCmd.Flags().Int("limit", 5, "number of recent transactions to show")
	historyCmd.Flags().Int("page", 1, "page to show")

	rootCmd.AddCommand(rechargeCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(userStatusCmd)
}

func firstAdmin(c *container.ServiceContainer) string {
	if V != nil {
		if ids := config.NewAdminDirectory(V).Identities(); len(ids) > 0 {
			return ids[0]
		}
		return ""
	}
	if ids := c.GetConfig().Admin.Identities; len(ids) > 0 {
		return ids[0]
	}
	return ""
}
