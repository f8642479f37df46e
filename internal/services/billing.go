package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	storage "github.com/inference-gateway/chatledger/internal/infra/storage"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	metrics "github.com/inference-gateway/chatledger/internal/metrics"
	money "github.com/inference-gateway/chatledger/internal/money"
	decimal "github.com/shopspring/decimal"
)

// ReplayReport summarizes a dead letter replay
type ReplayReport struct {
	Replayed  int
	Duplicate int
	Failed    int
}

// BillingPipeline turns finished exchanges into persisted messages and,
// for successful ones, exactly one debit with its ledger row
type BillingPipeline struct {
	store   storage.Store
	ledger  *Ledger
	catalog *ModelCatalog
	now     func() time.Time

	mu          sync.RWMutex
	subscribers []domain.ReceiptSubscriber
}

// NewBillingPipeline creates a billing pipeline
func NewBillingPipeline(store storage.Store, ledger *Ledger, catalog *ModelCatalog) *BillingPipeline {
	return &BillingPipeline{store: store, ledger: ledger, catalog: catalog, now: time.Now}
}

// Subscribe registers a receiver for every billing receipt
func (p *BillingPipeline) Subscribe(s domain.ReceiptSubscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, s)
}

func (p *BillingPipeline) notify(receipt domain.BillingReceipt) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.subscribers {
		s.OnReceipt(receipt)
	}
}

// Handle routes an event to its handler
func (p *BillingPipeline) Handle(ctx context.Context, event domain.BillingEvent) (*domain.BillingReceipt, error) {
	switch ev := event.(type) {
	case domain.ChatExchangeCompleted:
		return p.HandleCompleted(ctx, ev)
	case *domain.ChatExchangeCompleted:
		return p.HandleCompleted(ctx, *ev)
	case domain.ChatExchangeFailed:
		return p.HandleFailed(ctx, ev)
	case *domain.ChatExchangeFailed:
		return p.HandleFailed(ctx, *ev)
	default:
		return nil, fmt.Errorf("unsupported billing event %T", event)
	}
}

// RealizedCost prices a completed exchange against the conversation's
// bound model. Without usage or without the model, the estimate applies.
func (p *BillingPipeline) RealizedCost(model *domain.Model, ev domain.ChatExchangeCompleted) decimal.Decimal {
	if model == nil || ev.PromptTokens == nil || ev.CompletionTokens == nil {
		return money.Round(ev.EstimatedCost)
	}
	return p.catalog.ActualCost(model, ev.PromptTokens, ev.CompletionTokens)
}

// HandleCompleted persists both messages, debits the realized cost and
// records the consume transaction in one unit of work
func (p *BillingPipeline) HandleCompleted(ctx context.Context, ev domain.ChatExchangeCompleted) (*domain.BillingReceipt, error) {
	start := time.Now()
	defer func() {
		metrics.BillingDuration.WithLabelValues(string(domain.DeadLetterKindCompleted)).Observe(time.Since(start).Seconds())
	}()

	conv, err := p.store.Repos().Conversations.GetByID(ctx, ev.ConversationID)
	if err != nil {
		return nil, err
	}

	modelName := conv.ModelName
	model, err := p.catalog.FindByName(ctx, modelName)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		logger.Warn("billing with estimate, model missing", "model", modelName, "exchange", ev.ExchangeID.String())
		model = nil
	}
	cost := p.RealizedCost(model, ev)

	description := "chat usage - model: " + modelName
	if total, ok := ev.TotalTokens(); ok {
		description = fmt.Sprintf("%s, tokens: %d", description, total)
	}

	now := p.now().UTC()
	exchangeID := ev.ExchangeID
	convID := conv.ID

	posted, err := p.ledger.Post(ctx, Entry{
		UserID:         ev.UserID,
		Amount:         cost.Neg(),
		Kind:           domain.TransactionKindConsume,
		Description:    description,
		ConversationID: &convID,
		ExchangeID:     &exchangeID,
		Extra: func(ctx context.Context, repos storage.Repositories) error {
			if err := ensureNewExchange(ctx, repos, ev); err != nil {
				return err
			}
			question := &domain.Message{
				ID:             domain.NewID(),
				UserID:         ev.UserID,
				ConversationID: conv.ID,
				ExchangeID:     ev.ExchangeID,
				Content:        ev.Question,
				Role:           domain.MessageRoleUser,
				TokenCount:     ev.PromptTokens,
				CreatedAt:      now,
			}
			if err := repos.Messages.Append(ctx, question); err != nil {
				return err
			}
			answer := &domain.Message{
				ID:             domain.NewID(),
				UserID:         ev.UserID,
				ConversationID: conv.ID,
				ExchangeID:     ev.ExchangeID,
				Content:        ev.Answer,
				Role:           domain.MessageRoleAssistant,
				TokenCount:     ev.CompletionTokens,
				Cost:           &cost,
				CreatedAt:      now,
			}
			return repos.Messages.Append(ctx, answer)
		},
	})
	if err != nil {
		return nil, err
	}

	metrics.BillingEvents.WithLabelValues(string(domain.DeadLetterKindCompleted), "billed").Inc()
	metrics.CreditsConsumed.WithLabelValues(modelName).Add(cost.InexactFloat64())

	logger.Info("exchange billed", "identity", ev.Identity, "model", modelName,
		"estimated", money.Format(ev.EstimatedCost), "cost", money.Format(cost),
		"balance", money.Format(posted.User.Balance))

	receipt := domain.BillingReceipt{
		ExchangeID:     ev.ExchangeID,
		Identity:       ev.Identity,
		ConversationID: conv.ID,
		ModelName:      modelName,
		Cost:           cost,
		BalanceAfter:   posted.User.Balance,
		Timestamp:      now,
	}
	p.notify(receipt)
	return &receipt, nil
}

// HandleFailed persists the question and an error-flagged answer. The
// balance and the ledger are never touched.
func (p *BillingPipeline) HandleFailed(ctx context.Context, ev domain.ChatExchangeFailed) (*domain.BillingReceipt, error) {
	start := time.Now()
	defer func() {
		metrics.BillingDuration.WithLabelValues(string(domain.DeadLetterKindFailed)).Observe(time.Since(start).Seconds())
	}()

	now := p.now().UTC()
	err := p.store.InTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
		if err := ensureNewExchange(ctx, repos, ev); err != nil {
			return err
		}
		question := &domain.Message{
			ID:             domain.NewID(),
			UserID:         ev.UserID,
			ConversationID: ev.ConversationID,
			ExchangeID:     ev.ExchangeID,
			Content:        ev.Question,
			Role:           domain.MessageRoleUser,
			CreatedAt:      now,
		}
		if err := repos.Messages.Append(ctx, question); err != nil {
			return err
		}
		return repos.Messages.Append(ctx, &domain.Message{
			ID:             domain.NewID(),
			UserID:         ev.UserID,
			ConversationID: ev.ConversationID,
			ExchangeID:     ev.ExchangeID,
			Content:        ev.ErrorMessage,
			Role:           domain.MessageRoleAssistant,
			IsError:        true,
			CreatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.BillingEvents.WithLabelValues(string(domain.DeadLetterKindFailed), "recorded").Inc()
	logger.Info("failed exchange recorded", "identity", ev.Identity, "model", ev.ModelName, "error", ev.ErrorMessage)

	receipt := domain.BillingReceipt{
		ExchangeID:     ev.ExchangeID,
		Identity:       ev.Identity,
		ConversationID: ev.ConversationID,
		ModelName:      ev.ModelName,
		Cost:           money.Zero,
		Failed:         true,
		Timestamp:      now,
	}
	p.notify(receipt)
	return &receipt, nil
}

func ensureNewExchange(ctx context.Context, repos storage.Repositories, ev domain.BillingEvent) error {
	seen, err := repos.Messages.ExistsForExchange(ctx, ev.GetExchangeID())
	if err != nil {
		return err
	}
	if seen {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateExchange, ev.GetExchangeID())
	}
	return nil
}

// DeadLetter stores an event whose handling failed so it can be replayed
func (p *BillingPipeline) DeadLetter(ctx context.Context, event domain.BillingEvent, cause error) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode billing event: %w", err)
	}
	now := p.now().UTC()
	letter := &domain.DeadLetter{
		ID:         domain.NewID(),
		ExchangeID: event.GetExchangeID(),
		Kind:       event.Kind(),
		Payload:    payload,
		Error:      cause.Error(),
		Attempts:   1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.store.Repos().DeadLetters.Add(ctx, letter); err != nil {
		logger.Error("billing event lost", "exchange", event.GetExchangeID().String(),
			"payload", string(payload), "cause", cause.Error(), "error", err)
		return err
	}
	metrics.BillingEvents.WithLabelValues(string(event.Kind()), "dead_lettered").Inc()
	logger.Warn("billing event dead-lettered", "exchange", event.GetExchangeID().String(), "cause", cause.Error())
	return nil
}

// PendingDeadLetters lists unresolved dead letters, oldest first
func (p *BillingPipeline) PendingDeadLetters(ctx context.Context, limit int) ([]*domain.DeadLetter, error) {
	return p.store.Repos().DeadLetters.ListPending(ctx, limit)
}

// DecodeDeadLetter restores the billing event held by a dead letter
func DecodeDeadLetter(letter *domain.DeadLetter) (domain.BillingEvent, error) {
	switch letter.Kind {
	case domain.DeadLetterKindCompleted:
		var ev domain.ChatExchangeCompleted
		if err := json.Unmarshal(letter.Payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode dead letter %s: %w", letter.ID, err)
		}
		return ev, nil
	case domain.DeadLetterKindFailed:
		var ev domain.ChatExchangeFailed
		if err := json.Unmarshal(letter.Payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode dead letter %s: %w", letter.ID, err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown dead letter kind %q", letter.Kind)
	}
}

// Replay re-runs pending dead letters. Exchanges that were recorded in the
// meantime are resolved without a second debit.
func (p *BillingPipeline) Replay(ctx context.Context, limit int) (*ReplayReport, error) {
	letters, err := p.PendingDeadLetters(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &ReplayReport{}
	repo := p.store.Repos().DeadLetters
	for _, letter := range letters {
		event, err := DecodeDeadLetter(letter)
		if err == nil {
			_, err = p.Handle(ctx, event)
		}

		now := p.now().UTC()
		switch {
		case err == nil:
			report.Replayed++
		case errors.Is(err, domain.ErrDuplicateExchange):
			report.Duplicate++
		default:
			report.Failed++
			if recErr := repo.RecordAttempt(ctx, letter.ID, err.Error(), now); recErr != nil {
				return report, recErr
			}
			logger.Warn("dead letter replay failed", "id", letter.ID.String(), "attempts", letter.Attempts+1, "error", err)
			continue
		}
		if err := repo.MarkResolved(ctx, letter.ID, now); err != nil {
			return report, err
		}
	}
	return report, nil
}
