package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	money "github.com/inference-gateway/chatledger/internal/money"
	services "github.com/inference-gateway/chatledger/internal/services"
)

// ChatCommand sends a question to a model
type ChatCommand struct {
	catalog *services.ModelCatalog
	chat    *services.ChatService
}

func NewChatCommand(d Deps) *ChatCommand {
	return &ChatCommand{catalog: d.Catalog, chat: d.Chat}
}

func (c *ChatCommand) GetName() string { return "chat" }
func (c *ChatCommand) GetDescription() string {
	return "Ask a model; without a model the active conversation or default model is used"
}
func (c *ChatCommand) GetUsage() string              { return "/chat [model] <question>" }
func (c *ChatCommand) CanExecute(args []string) bool { return len(args) > 0 }

func (c *ChatCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	modelName, question := "", strings.Join(req.Args, " ")
	if len(req.Args) > 1 {
		if _, err := c.catalog.FindByName(ctx, req.Args[0]); err == nil {
			modelName, question = req.Args[0], strings.Join(req.Args[1:], " ")
		} else if !errors.Is(err, domain.ErrNotFound) {
			return failure(ctx, c.catalog, err)
		}
	}
	return c.Ask(ctx, req.Caller, modelName, question)
}

// Ask runs one exchange and formats the answer
func (c *ChatCommand) Ask(ctx context.Context, caller *domain.User, modelName, question string) (CommandResult, error) {
	reply, err := c.chat.Ask(ctx, caller, modelName, question)
	if err != nil {
		return failure(ctx, c.catalog, err)
	}
	if reply.Failed {
		return CommandResult{
			Output:  fmt.Sprintf("The AI service failed to answer: %s\nYou were not charged.", reply.ErrorMessage),
			Success: false,
		}, nil
	}

	var b strings.Builder
	if reply.Started && modelName == "" {
		fmt.Fprintf(&b, "[new conversation with %s]\n", reply.Model.Name)
	}
	b.WriteString(reply.Answer)
	return CommandResult{Output: b.String(), Success: true}, nil
}

// EndCommand closes the active conversation
type EndCommand struct {
	catalog *services.ModelCatalog
	convs   *services.ConversationService
}

func NewEndCommand(d Deps) *EndCommand {
	return &EndCommand{catalog: d.Catalog, convs: d.Conversations}
}

func (c *EndCommand) GetName() string               { return "end" }
func (c *EndCommand) GetDescription() string        { return "End the current conversation" }
func (c *EndCommand) GetUsage() string              { return "/end" }
func (c *EndCommand) CanExecute(args []string) bool { return len(args) == 0 }

func (c *EndCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	conv, err := c.convs.GetActive(ctx, req.Caller)
	if errors.Is(err, domain.ErrNotFound) {
		return CommandResult{Output: "You have no active conversation.", Success: true}, nil
	}
	if err != nil {
		return failure(ctx, c.catalog, err)
	}
	if _, err := c.convs.Close(ctx, conv); err != nil {
		return failure(ctx, c.catalog, err)
	}
	return CommandResult{
		Output:  fmt.Sprintf("Conversation with %s ended. The next message starts a new one.", conv.ModelName),
		Success: true,
	}, nil
}

// ContinuousCommand toggles continuous chat
type ContinuousCommand struct {
	catalog *services.ModelCatalog
	convs   *services.ConversationService
}

func NewContinuousCommand(d Deps) *ContinuousCommand {
	return &ContinuousCommand{catalog: d.Catalog, convs: d.Conversations}
}

func (c *ContinuousCommand) GetName() string { return "continuous" }
func (c *ContinuousCommand) GetDescription() string {
	return "Chat without commands in private messages"
}
func (c *ContinuousCommand) GetUsage() string { return "/continuous on [model] | off | status" }
func (c *ContinuousCommand) CanExecute(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return len(args) <= 2
	case "off", "status":
		return len(args) == 1
	}
	return false
}

func (c *ContinuousCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	switch strings.ToLower(req.Args[0]) {
	case "on":
		modelName := ""
		if len(req.Args) == 2 {
			modelName = req.Args[1]
		}
		_, model, err := c.convs.EnableContinuous(ctx, req.Caller, modelName)
		if err != nil {
			return failure(ctx, c.catalog, err)
		}
		return CommandResult{
			Output: fmt.Sprintf("Continuous chat enabled with %s (about %s CA per message).\n"+
				"Send messages directly in private chat. Use /end to start a new topic and /continuous off to stop.",
				model.Name, money.Format(c.catalog.EstimateCost(model))),
			Success: true,
		}, nil

	case "off":
		_, closed, err := c.convs.DisableContinuous(ctx, req.Caller)
		if errors.Is(err, domain.ErrContinuousNotEnabled) {
			return CommandResult{Output: "Continuous chat is not enabled.", Success: true}, nil
		}
		if err != nil {
			return failure(ctx, c.catalog, err)
		}
		return CommandResult{
			Output:  fmt.Sprintf("Continuous chat disabled. %d conversation(s) closed.", closed),
			Success: true,
		}, nil

	default:
		if !req.Caller.ContinuousChat {
			return CommandResult{Output: "Continuous chat is off.", Success: true}, nil
		}
		status := fmt.Sprintf("Continuous chat is on with %s.", req.Caller.DefaultModel)
		if conv, err := c.convs.GetActive(ctx, req.Caller); err == nil {
			status += fmt.Sprintf("\nActive conversation started %s.", conv.CreatedAt.Format(timeFormat))
		}
		return CommandResult{Output: status, Success: true}, nil
	}
}

// SetModelCommand sets the default model and starts a new conversation on it
type SetModelCommand struct {
	catalog *services.ModelCatalog
	ledger  *services.Ledger
	convs   *services.ConversationService
}

func NewSetModelCommand(d Deps) *SetModelCommand {
	return &SetModelCommand{catalog: d.Catalog, ledger: d.Ledger, convs: d.Conversations}
}

func (c *SetModelCommand) GetName() string               { return "setmodel" }
func (c *SetModelCommand) GetDescription() string        { return "Set your default model" }
func (c *SetModelCommand) GetUsage() string              { return "/setmodel <model>" }
func (c *SetModelCommand) CanExecute(args []string) bool { return len(args) == 1 }

func (c *SetModelCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	model, err := c.catalog.FindActive(ctx, req.Args[0])
	if err != nil {
		return failure(ctx, c.catalog, err)
	}
	user, err := c.ledger.SetDefaultModel(ctx, req.Caller, model.Name)
	if err != nil {
		return failure(ctx, c.catalog, err)
	}
	if _, err := c.convs.StartTopic(ctx, user, model); err != nil {
		return failure(ctx, c.catalog, err)
	}
	return CommandResult{
		Output: fmt.Sprintf("Default model set to %s\nEstimated cost: %s CA/request\nA new conversation has started. You can now use /chat <question>",
			model.Name, money.Format(c.catalog.EstimateCost(model))),
		Success: true,
	}, nil
}

// DefaultModelCommand shows the default model
type DefaultModelCommand struct {
	catalog *services.ModelCatalog
}

func NewDefaultModelCommand(d Deps) *DefaultModelCommand {
	return &DefaultModelCommand{catalog: d.Catalog}
}

func (c *DefaultModelCommand) GetName() string               { return "defaultmodel" }
func (c *DefaultModelCommand) GetDescription() string        { return "Show your default model" }
func (c *DefaultModelCommand) GetUsage() string              { return "/defaultmodel" }
func (c *DefaultModelCommand) CanExecute(args []string) bool { return len(args) == 0 }

func (c *DefaultModelCommand) Execute(ctx context.Context, req Request) (CommandResult, error) {
	if !req.Caller.HasDefaultModel() {
		return CommandResult{
			Output:  "You have no default model.\nUse /setmodel <model> to set one, or /chat <model> <question> to start a conversation.",
			Success: true,
		}, nil
	}
	model, err := c.catalog.FindByName(ctx, req.Caller.DefaultModel)
	if err != nil {
		return failure(ctx, c.catalog, err)
	}

	var b strings.Builder
	b.WriteString("Your default model:\n")
	writeModel(&b, c.catalog, model)
	if !model.IsActive() {
		b.WriteString("This model is currently disabled.")
	}
	return CommandResult{Output: strings.TrimRight(b.String(), "\n"), Success: true}, nil
}
