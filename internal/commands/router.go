package commands

import (
	"context"
	"errors"
	"strings"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	metrics "github.com/inference-gateway/chatledger/internal/metrics"
	services "github.com/inference-gateway/chatledger/internal/services"
)

// Inbound is one message received from a chat transport
type Inbound struct {
	Identity    string
	DisplayName string
	Text        string
	Private     bool
}

// Reply is what the transport sends back. A nil reply means stay silent.
type Reply struct {
	Text       string
	SideEffect SideEffectType
}

// Router maps inbound chat messages onto commands
type Router struct {
	registry *Registry
	ledger   *services.Ledger
	catalog  *services.ModelCatalog
	chat     *ChatCommand
}

// NewRouter creates a router over registry. Plain private messages from
// users in continuous mode are sent through chat.
func NewRouter(registry *Registry, d Deps) *Router {
	return &Router{registry: registry, ledger: d.Ledger, catalog: d.Catalog, chat: NewChatCommand(d)}
}

// Registry returns the command registry
func (r *Router) Registry() *Registry {
	return r.registry
}

// Handle processes one inbound message
func (r *Router) Handle(ctx context.Context, in Inbound) (*Reply, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" || in.Identity == "" {
		return nil, nil
	}
	isCommand := strings.HasPrefix(text, "/")
	if !isCommand && !in.Private {
		return nil, nil
	}

	ctx = logger.WithIdentity(ctx, in.Identity)
	user, err := r.ledger.GetOrCreate(ctx, in.Identity)
	if err != nil {
		return nil, err
	}
	if user.Status == domain.UserStatusBanned {
		return r.address(in, describeError(ctx, r.catalog, domain.ErrUserBanned), SideEffectNone), nil
	}

	if !isCommand {
		if !user.ContinuousChat {
			return r.address(in, "Send /help to see what I can do, or /continuous on to chat without commands.", SideEffectNone), nil
		}
		result, err := r.chat.Ask(ctx, user, "", text)
		r.observe("continuous", result, err)
		if err != nil {
			return nil, err
		}
		return r.address(in, result.Output, result.SideEffect), nil
	}

	name, args, err := r.registry.ParseCommand(text)
	if err != nil {
		return r.address(in, err.Error(), SideEffectNone), nil
	}

	result, err := r.registry.Execute(ctx, name, Request{Caller: user, Args: args, Private: in.Private})
	if errors.Is(err, ErrUnknownCommand) {
		metrics.CommandsHandled.WithLabelValues("unknown", "rejected").Inc()
		if !in.Private {
			return nil, nil
		}
		return r.address(in, "Unknown command /"+name+". Send /help for the list.", SideEffectNone), nil
	}
	r.observe(name, result, err)
	if err != nil {
		logger.Sugar(ctx).Errorw("command failed", "command", name, "error", err)
		return nil, err
	}
	return r.address(in, result.Output, result.SideEffect), nil
}

func (r *Router) observe(name string, result CommandResult, err error) {
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case !result.Success:
		status = "rejected"
	}
	metrics.CommandsHandled.WithLabelValues(name, status).Inc()
}

// address prefixes group replies with a mention of the caller
func (r *Router) address(in Inbound, text string, effect SideEffectType) *Reply {
	if !in.Private {
		mention := in.DisplayName
		if mention == "" {
			mention = in.Identity
		}
		text = "@" + mention + "\n" + text
	}
	return &Reply{Text: text, SideEffect: effect}
}
