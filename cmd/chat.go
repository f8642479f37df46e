package cmd

import (
	"context"
	"fmt"
	"strings"

	commands "github.com/inference-gateway/chatledger/internal/commands"
	container "github.com/inference-gateway/chatledger/internal/container"
	cobra "github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the bot from the terminal",
}

var chatSendCmd = &cobra.Command{
	Use:   "send <text...>",
	Short: "Send one message as a user and print the reply",
	Long: `Send one message through the same command router the Telegram bot uses,
for example:

  chatledger chat send --as 42 /balance
  chatledger chat send --as 42 /chat openai/gpt-4o what is a ledger?

Billing runs synchronously, so the reply and the debit are final when the
command returns.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, _ := cmd.Flags().GetString("as")
		group, _ := cmd.Flags().GetBool("group")
		return withContainer(func(c *container.ServiceContainer) error {
			reply, err := c.GetRouter().Handle(context.Background(), commands.Inbound{
				Identity:    identity,
				DisplayName: identity,
				Text:        strings.Join(args, " "),
				Private:     !group,
			})
			if err != nil {
				return err
			}
			if reply == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "(no reply)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
			return nil
		})
	},
}

func init() {
	chatSendCmd.Flags().String("as", "", "identity of the sending user")
	chatSendCmd.Flags().Bool("group", false, "send as a group chat message")
	_ = chatSendCmd.MarkFlagRequired("as")

	chatCmd.AddCommand(chatSendCmd)
	rootCmd.AddCommand(chatCmd)
}
