package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	metrics "github.com/inference-gateway/chatledger/internal/metrics"
	sdk "github.com/inference-gateway/sdk"
)

// GatewayOptions configures the inference gateway client
type GatewayOptions struct {
	URL          string
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	SystemPrompt string
}

// SDKClientAdapter answers questions through the inference gateway
type SDKClientAdapter struct {
	client       sdk.Client
	systemPrompt string
}

// NewSDKClient creates a gateway client with retries and a request timeout
func NewSDKClient(opts GatewayOptions) *SDKClientAdapter {
	baseURL := opts.URL
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	client := sdk.NewClient(&sdk.ClientOptions{
		BaseURL:     baseURL,
		APIKey:      opts.APIKey,
		Timeout:     timeout,
		RetryConfig: retryConfig(opts.MaxRetries),
	})
	return NewSDKClientAdapter(client, opts.SystemPrompt)
}

// NewSDKClientAdapter wraps an existing SDK client
func NewSDKClientAdapter(client sdk.Client, systemPrompt string) *SDKClientAdapter {
	return &SDKClientAdapter{client: client, systemPrompt: systemPrompt}
}

func retryConfig(maxRetries int) *sdk.RetryConfig {
	cfg := &sdk.RetryConfig{
		Enabled:           maxRetries > 0,
		MaxAttempts:       maxRetries + 1,
		InitialBackoffSec: 1,
		MaxBackoffSec:     30,
		BackoffMultiplier: 2,
	}
	if cfg.Enabled {
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Warn("Retrying gateway request",
				"attempt", attempt,
				"error", err.Error(),
				"delay", delay.String())
		}
	}
	return cfg
}

// SplitModel splits "provider/model" into its parts
func SplitModel(model string) (sdk.Provider, string, error) {
	provider, name, ok := strings.Cut(model, "/")
	if !ok || provider == "" || name == "" {
		return "", "", fmt.Errorf("invalid model format %q, expected 'provider/model'", model)
	}
	return sdk.Provider(provider), name, nil
}

// BuildMessages turns prior turns and the new question into gateway messages
func (a *SDKClientAdapter) BuildMessages(history []domain.ChatTurn, question string) []sdk.Message {
	messages := make([]sdk.Message, 0, len(history)+2)
	if a.systemPrompt != "" {
		messages = append(messages, sdk.Message{Role: sdk.System, Content: sdk.NewMessageContent(a.systemPrompt)})
	}
	for _, turn := range history {
		role := sdk.User
		if turn.Role == domain.MessageRoleAssistant {
			role = sdk.Assistant
		}
		messages = append(messages, sdk.Message{Role: role, Content: sdk.NewMessageContent(turn.Content)})
	}
	return append(messages, sdk.Message{Role: sdk.User, Content: sdk.NewMessageContent(question)})
}

// Complete sends one question with its history and returns the answer.
// Usage is nil when the gateway does not report it.
func (a *SDKClientAdapter) Complete(ctx context.Context, model string, history []domain.ChatTurn, question string) (*domain.Completion, error) {
	provider, name, err := SplitModel(model)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	response, err := a.client.
		WithMiddlewareOptions(&sdk.MiddlewareOptions{SkipMCP: true}).
		GenerateContent(ctx, provider, name, a.BuildMessages(history, question))
	metrics.AIRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AIRequests.WithLabelValues(model, "error").Inc()
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	completion, err := toCompletion(response)
	if err != nil {
		metrics.AIRequests.WithLabelValues(model, "error").Inc()
		return nil, err
	}

	metrics.AIRequests.WithLabelValues(model, "ok").Inc()
	if completion.Usage != nil {
		metrics.AITokens.WithLabelValues(model, "prompt").Add(float64(completion.Usage.PromptTokens))
		metrics.AITokens.WithLabelValues(model, "completion").Add(float64(completion.Usage.CompletionTokens))
	}
	logger.Debug("gateway answered", "model", model, "duration", time.Since(start).String())
	return completion, nil
}

func toCompletion(response *sdk.CreateChatCompletionResponse) (*domain.Completion, error) {
	if response == nil || len(response.Choices) == 0 {
		return nil, errors.New("gateway returned no choices")
	}
	content, err := response.Choices[0].Message.Content.AsMessageContent0()
	if err != nil {
		return nil, fmt.Errorf("failed to extract response content: %w", err)
	}

	completion := &domain.Completion{Content: strings.TrimSpace(content)}
	if response.Usage != nil {
		completion.Usage = &domain.Usage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
		}
	}
	return completion, nil
}
