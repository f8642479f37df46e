package commands

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	services "github.com/inference-gateway/chatledger/internal/services"
)

// ShutdownCommand stops the service after a two-step confirmation. Admin only.
type ShutdownCommand struct {
	catalog       *services.ModelCatalog
	ledger        *services.Ledger
	confirmations *services.ConfirmationService
}

func NewShutdownCommand(d Deps) *ShutdownCommand {
	return &ShutdownCommand{catalog: d.Catalog, ledger: d.Ledger, confirmations: d.Confirmations}
}

func (c *ShutdownCommand) GetName() string               { return "shutdown" }
func (c *ShutdownCommand) GetDescription() string        { return "Shut the service down (admin)" }
func (c *ShutdownCommand) GetUsage() string              { return "/shutdown [code]" }
func (c *ShutdownCommand) CanExecute(args []string) bool { return len(args) <= 1 }

func (c *ShutdownCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	if !c.ledger.IsAdmin(req.Caller) {
		return failure(ctx, c.catalog, domain.ErrPermissionDenied)
	}

	if len(req.Args) == 0 {
		code, err := c.confirmations.Issue(ctx, req.Caller.Identity)
		if err != nil {
			return failure(ctx, c.catalog, err)
		}
		return CommandResult{
			Output: fmt.Sprintf("Please confirm the shutdown.\nYour confirmation code is: %s\n"+
				"Within %d minutes, send:\n/shutdown %s",
				code, int(c.confirmations.TTL().Minutes()), code),
			Success: true,
		}, nil
	}

	if err := c.confirmations.Verify(ctx, req.Caller.Identity, req.Args[0]); err != nil {
		if !errors.Is(err, domain.ErrInvalidConfirmationCode) {
			logger.Error("confirmation check failed", "identity", req.Caller.Identity, "error", err)
		}
		return failure(ctx, c.catalog, err)
	}

	logger.Warn("shutdown confirmed", "identity", req.Caller.Identity)
	return CommandResult{
		Output:     fmt.Sprintf("Confirmation accepted, shutting down...\nAdmin %s requested the shutdown.", req.Caller.Identity),
		Success:    true,
		SideEffect: SideEffectShutdown,
	}, nil
}

// HelpCommand lists the registered commands
type HelpCommand struct {
	registry *Registry
}

func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{registry: registry}
}

func (c *HelpCommand) GetName() string               { return "help" }
func (c *HelpCommand) GetDescription() string        { return "Show available commands" }
func (c *HelpCommand) GetUsage() string              { return "/help" }
func (c *HelpCommand) CanExecute(args []string) bool { return len(args) == 0 }

func (c *HelpCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	output := "Available commands:\n"
	for _, cmd := range c.registry.GetAll() {
		output += fmt.Sprintf("  %s - %s\n", cmd.GetUsage(), cmd.GetDescription())
	}
	output += "\nIn private chat with continuous mode on, plain messages go to your default model."
	return CommandResult{Output: output, Success: true}, nil
}
