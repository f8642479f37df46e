package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	money "github.com/inference-gateway/chatledger/internal/money"
	services "github.com/inference-gateway/chatledger/internal/services"
)

// BalanceCommand shows the caller's balance and recent transactions
type BalanceCommand struct {
	catalog *services.ModelCatalog
	ledger  *services.Ledger
	limit   int
}

func NewBalanceCommand(d Deps) *BalanceCommand {
	return &BalanceCommand{catalog: d.Catalog, ledger: d.Ledger, limit: d.Options.TransactionLimit}
}

func (c *BalanceCommand) GetName() string               { return "balance" }
func (c *BalanceCommand) GetDescription() string        { return "Show your CA balance" }
func (c *BalanceCommand) GetUsage() string              { return "/balance" }
func (c *BalanceCommand) CanExecute(args []string) bool { return len(args) == 0 }

func (c *BalanceCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	view, err := c.ledger.Balance(ctx, req.Caller.Identity, c.limit)
	if err != nil {
		return failure(ctx, c.catalog, err)
	}

	var b strings.Builder
	b.WriteString("CA balance\n")
	fmt.Fprintf(&b, "User: %s\n", view.User.Identity)
	fmt.Fprintf(&b, "Balance: %s CA\n", money.Format(view.User.Balance))

	if len(view.Transactions) == 0 {
		b.WriteString("\nNo transactions yet")
		return CommandResult{Output: b.String(), Success: true}, nil
	}

	fmt.Fprintf(&b, "\nLast %d transactions:\n", len(view.Transactions))
	for i, tx := range view.Transactions {
		amount := money.Format(tx.Amount)
		if tx.Amount.IsPositive() {
			amount = "+" + amount
		}
		fmt.Fprintf(&b, "%d. %s %s CA (%s)\n   %s", i+1, tx.Kind, amount, tx.CreatedAt.Format(timeFormat), tx.Description)
		if i < len(view.Transactions)-1 {
			b.WriteString("\n")
		}
	}
	return CommandResult{Output: b.String(), Success: true}, nil
}

// HistoryCommand pages through the caller's conversations
type HistoryCommand struct {
	catalog *services.ModelCatalog
	convs   *services.ConversationService
	opts    Options
}

func NewHistoryCommand(d Deps) *HistoryCommand {
	return &HistoryCommand{catalog: d.Catalog, convs: d.Conversations, opts: d.Options}
}

func (c *HistoryCommand) GetName() string        { return "history" }
func (c *HistoryCommand) GetDescription() string { return "Show your conversation history" }
func (c *HistoryCommand) GetUsage() string       { return "/history [page]" }
func (c *HistoryCommand) CanExecute(args []string) bool {
	if len(args) == 0 {
		return true
	}
	_, err := strconv.Atoi(args[0])
	return len(args) == 1 && err == nil
}

func (c *HistoryCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	page := 1
	if len(req.Args) == 1 {
		page, _ = strconv.Atoi(req.Args[0])
	}

	hist, err := c.convs.History(ctx, req.Caller, page, c.opts.PageSize)
	if err != nil {
		return failure(ctx, c.catalog, err)
	}

	var b strings.Builder
	b.WriteString("Conversation history\n====================\n")
	if hist.Total == 0 {
		b.WriteString("No conversations yet")
		return CommandResult{Output: b.String(), Success: true}, nil
	}

	for i, entry := range hist.Entries {
		index := (hist.Page-1)*c.opts.PageSize + i + 1
		fmt.Fprintf(&b, "%d. Model: %s", index, entry.Conversation.ModelName)
		if entry.Conversation.Status == domain.ConversationStatusActive {
			b.WriteString(" (active)")
		}
		fmt.Fprintf(&b, "\n   Time: %s\n", entry.Conversation.CreatedAt.Format(timeFormat))
		if entry.MessageCount == 0 {
			b.WriteString("   No messages\n")
		} else {
			fmt.Fprintf(&b, "   Q: %s\n", preview(entry.FirstQuestion, c.opts.PreviewLength))
			if entry.FirstAnswer != "" {
				fmt.Fprintf(&b, "   A: %s\n", preview(entry.FirstAnswer, c.opts.PreviewLength))
			}
		}
		if i < len(hist.Entries)-1 {
			b.WriteString(separator + "\n")
		}
	}

	fmt.Fprintf(&b, "\nPage %d/%d, %d conversations", hist.Page, hist.TotalPages, hist.Total)
	if hist.Page < hist.TotalPages {
		fmt.Fprintf(&b, "\nUse /history %d for the next page", hist.Page+1)
	}
	return CommandResult{Output: b.String(), Success: true}, nil
}

// RechargeCommand credits a user. Admin only.
type RechargeCommand struct {
	catalog *services.ModelCatalog
	ledger  *services.Ledger
}

func NewRechargeCommand(d Deps) *RechargeCommand {
	return &RechargeCommand{catalog: d.Catalog, ledger: d.Ledger}
}

func (c *RechargeCommand) GetName() string               { return "recharge" }
func (c *RechargeCommand) GetDescription() string        { return "Credit CA to a user (admin)" }
func (c *RechargeCommand) GetUsage() string              { return "/recharge [identity] <amount>" }
func (c *RechargeCommand) CanExecute(args []string) bool { return len(args) == 1 || len(args) == 2 }

func (c *RechargeCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	target, amount := "", req.Args[0]
	if len(req.Args) == 2 {
		target, amount = req.Args[0], req.Args[1]
	}

	result, err := c.ledger.Recharge(ctx, req.Caller.Identity, target, amount)
	if err != nil {
		return failure(ctx, c.catalog, err)
	}

	var b strings.Builder
	b.WriteString("Recharge successful\n")
	fmt.Fprintf(&b, "Target: %s\n", result.Target.Identity)
	fmt.Fprintf(&b, "Amount: %s CA\n", money.Format(result.Amount))
	fmt.Fprintf(&b, "Before: %s CA\n", money.Format(result.Before))
	fmt.Fprintf(&b, "After: %s CA", money.Format(result.After))
	return CommandResult{Output: b.String(), Success: true}, nil
}
