package services

import (
	"context"
	"time"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	decimal "github.com/shopspring/decimal"
)

// ChatReply is the outcome of one exchange as shown to the caller
type ChatReply struct {
	Conversation *domain.Conversation
	Model        *domain.Model
	Answer       string
	Estimated    decimal.Decimal
	Started      bool
	Failed       bool
	ErrorMessage string
}

// DeadLetterSink keeps billing events that could not be delivered
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, event domain.BillingEvent, cause error) error
}

// ChatService runs a single exchange: resolve the conversation, check the
// balance against the estimate, call the AI and publish the billing event.
// No ledger lock is held during the AI call.
type ChatService struct {
	ledger       *Ledger
	catalog      *ModelCatalog
	convs        *ConversationService
	ai           domain.AIClient
	publisher    domain.BillingPublisher
	deadLetters  DeadLetterSink
	historyLimit int
	now          func() time.Time
}

// NewChatService creates a chat service. Events the publisher refuses go
// to deadLetters. historyLimit bounds the prior turns sent as context;
// zero sends all of them.
func NewChatService(ledger *Ledger, catalog *ModelCatalog, convs *ConversationService, ai domain.AIClient, publisher domain.BillingPublisher, deadLetters DeadLetterSink, historyLimit int) *ChatService {
	return &ChatService{
		ledger:       ledger,
		catalog:      catalog,
		convs:        convs,
		ai:           ai,
		publisher:    publisher,
		deadLetters:  deadLetters,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// Ask sends question for user. A non-empty modelName always opens a new
// conversation on that model; otherwise the active conversation or the
// default model is used.
func (s *ChatService) Ask(ctx context.Context, user *domain.User, modelName, question string) (*ChatReply, error) {
	if user.Status == domain.UserStatusBanned {
		return nil, domain.ErrUserBanned
	}

	var (
		model *domain.Model
		err   error
	)
	if modelName != "" {
		if model, err = s.catalog.FindActive(ctx, modelName); err != nil {
			return nil, err
		}
	}

	fresh, err := s.ledger.Find(ctx, user.Identity)
	if err != nil {
		return nil, err
	}

	var (
		conv    *domain.Conversation
		started bool
	)
	if model == nil {
		if conv, model, err = s.convs.ImplicitTarget(ctx, fresh); err != nil {
			return nil, err
		}
	}

	estimate := s.catalog.EstimateCost(model)
	if err := s.ledger.CheckAffordable(fresh, estimate); err != nil {
		return nil, err
	}

	if conv == nil {
		if conv, err = s.convs.Create(ctx, fresh, model); err != nil {
			return nil, err
		}
		started = true
	}

	msgs, err := s.convs.Messages(ctx, conv)
	if err != nil {
		return nil, err
	}
	history := ChatHistory(msgs, s.historyLimit)

	reply := &ChatReply{Conversation: conv, Model: model, Estimated: estimate, Started: started}
	ctx = logger.WithIdentity(ctx, fresh.Identity)

	completion, aiErr := s.ai.Complete(ctx, model.Name, history, question)
	if aiErr != nil {
		logger.Sugar(ctx).Warnw("AI exchange failed", "model", model.Name, "error", aiErr)
		reply.Failed = true
		reply.ErrorMessage = aiErr.Error()
		s.publish(ctx, domain.ChatExchangeFailed{
			ExchangeID:     domain.NewID(),
			UserID:         fresh.ID,
			Identity:       fresh.Identity,
			ConversationID: conv.ID,
			ModelName:      model.Name,
			Question:       question,
			ErrorMessage:   aiErr.Error(),
			Timestamp:      s.now().UTC(),
		})
		return reply, nil
	}

	reply.Answer = completion.Content
	event := domain.ChatExchangeCompleted{
		ExchangeID:     domain.NewID(),
		UserID:         fresh.ID,
		Identity:       fresh.Identity,
		ConversationID: conv.ID,
		ModelName:      model.Name,
		Question:       question,
		Answer:         completion.Content,
		EstimatedCost:  estimate,
		Timestamp:      s.now().UTC(),
	}
	if completion.Usage != nil {
		prompt, compl := completion.Usage.PromptTokens, completion.Usage.CompletionTokens
		event.PromptTokens = &prompt
		event.CompletionTokens = &compl
	}
	s.publish(ctx, event)
	return reply, nil
}

// publish hands event to the publisher. The answer has already been
// produced, so a refused event is dead-lettered for replay.
func (s *ChatService) publish(ctx context.Context, event domain.BillingEvent) {
	err := s.publisher.Publish(ctx, event)
	if err == nil {
		return
	}
	logger.Error("billing event not published", "exchange", event.GetExchangeID().String(),
		"identity", event.GetIdentity(), "error", err)
	if s.deadLetters == nil {
		return
	}
	_ = s.deadLetters.DeadLetter(context.WithoutCancel(ctx), event, err)
}
