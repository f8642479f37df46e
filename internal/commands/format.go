package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	money "github.com/inference-gateway/chatledger/internal/money"
	services "github.com/inference-gateway/chatledger/internal/services"
)

const (
	timeFormat = "2006-01-02 15:04:05"
	separator  = "--------------------"
)

// preview shortens s to limit characters, marking the cut with "..."
func preview(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

func availableModels(ctx context.Context, catalog *services.ModelCatalog) string {
	models, err := catalog.ListActive(ctx)
	if err != nil || len(models) == 0 {
		return "none"
	}
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Name)
	}
	return strings.Join(names, ", ")
}

func writeModel(b *strings.Builder, catalog *services.ModelCatalog, m *domain.Model) {
	fmt.Fprintf(b, "■ %s\n", m.Name)
	fmt.Fprintf(b, "  Prompt: %s CA/1K tokens\n", money.Format(m.PromptRate))
	fmt.Fprintf(b, "  Completion: %s CA/1K tokens\n", money.Format(m.CompletionRate))
	fmt.Fprintf(b, "  Multiplier: %s\n", m.Multiplier.String())
	fmt.Fprintf(b, "  Estimated: %s CA/request\n", money.Format(catalog.EstimateCost(m)))
	if m.Description != "" {
		fmt.Fprintf(b, "  Description: %s\n", m.Description)
	}
}

// describeError turns a service error into a reply for the caller
func describeError(ctx context.Context, catalog *services.ModelCatalog, err error) string {
	var insufficient *domain.InsufficientBalanceError
	var notFound *domain.NotFoundError

	switch {
	case errors.As(err, &insufficient):
		return fmt.Sprintf("Insufficient CA balance!\nCurrent balance: %s\nRequired: %s",
			money.Format(insufficient.Balance), money.Format(insufficient.Required))
	case errors.As(err, &notFound) && notFound.Entity == "model":
		return fmt.Sprintf("Model not found: %s\nAvailable models: %s", notFound.Key, availableModels(ctx, catalog))
	case errors.Is(err, domain.ErrModelUnavailable):
		return fmt.Sprintf("%s\nAvailable models: %s", err.Error(), availableModels(ctx, catalog))
	case errors.Is(err, domain.ErrNoDefaultModel):
		return "You have no default model.\nUse /setmodel <model> to choose one, or /chat <model> <question>.\nAvailable models: " +
			availableModels(ctx, catalog)
	case errors.Is(err, domain.ErrPermissionDenied):
		return "Permission denied: only admins can do this."
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrNonPositiveAmount):
		return "Invalid amount: " + err.Error()
	case errors.Is(err, domain.ErrUserBanned):
		return "Your account is banned."
	case errors.Is(err, domain.ErrContinuousNotEnabled):
		return "Continuous chat is not enabled."
	case errors.Is(err, domain.ErrInvalidConfirmationCode):
		return "The confirmation code is wrong or expired.\nSend /shutdown to get a new one."
	case errors.Is(err, domain.ErrDuplicateModelName):
		return "A model with that name already exists."
	default:
		return "An error occurred while processing the request: " + err.Error()
	}
}

func failure(ctx context.Context, catalog *services.ModelCatalog, err error) (CommandResult, error) {
	return CommandResult{Output: describeError(ctx, catalog, err), Success: false}, nil
}
