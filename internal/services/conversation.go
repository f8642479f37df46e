package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	domain "github.com/inference-gateway/chatledger/internal/domain"
	storage "github.com/inference-gateway/chatledger/internal/infra/storage"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	metrics "github.com/inference-gateway/chatledger/internal/metrics"
)

// HistoryEntry is one conversation with its opening exchange
type HistoryEntry struct {
	Conversation  *domain.Conversation
	FirstQuestion string
	FirstAnswer   string
	MessageCount  int
}

// HistoryPage is one page of a user's conversations, newest first
type HistoryPage struct {
	Entries    []HistoryEntry
	Page       int
	TotalPages int
	Total      int
}

// ConversationService is the conversation state machine
type ConversationService struct {
	store   storage.Store
	ledger  *Ledger
	catalog *ModelCatalog
	now     func() time.Time
}

// NewConversationService creates a conversation service
func NewConversationService(store storage.Store, ledger *Ledger, catalog *ModelCatalog) *ConversationService {
	return &ConversationService{store: store, ledger: ledger, catalog: catalog, now: time.Now}
}

// Create opens a new active conversation bound to model. Other active
// conversations of the user are left untouched.
func (s *ConversationService) Create(ctx context.Context, user *domain.User, model *domain.Model) (*domain.Conversation, error) {
	now := s.now().UTC()
	conv := &domain.Conversation{
		ID:        domain.NewID(),
		UserID:    user.ID,
		ModelName: model.Name,
		Status:    domain.ConversationStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Repos().Conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	metrics.ActiveConversations.Inc()
	logger.Debug("conversation created", "identity", user.Identity, "conversation", conv.ID.String(), "model", model.Name)
	return conv, nil
}

// GetActive returns the most recently created active conversation, or
// domain.ErrNotFound when there is none
func (s *ConversationService) GetActive(ctx context.Context, user *domain.User) (*domain.Conversation, error) {
	active, err := s.store.Repos().Conversations.ListActive(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, domain.NewNotFound("active conversation", user.Identity)
	}
	return active[0], nil
}

// FindByID returns a conversation by id
func (s *ConversationService) FindByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return s.store.Repos().Conversations.GetByID(ctx, id)
}

// Close closes a conversation. Closing a closed conversation is a no-op.
func (s *ConversationService) Close(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	if !conv.IsActive() {
		return conv, nil
	}
	conv.Status = domain.ConversationStatusClosed
	conv.UpdatedAt = s.now().UTC()
	if err := s.store.Repos().Conversations.Update(ctx, conv); err != nil {
		return nil, err
	}
	metrics.ActiveConversations.Dec()
	return conv, nil
}

// CloseAllActive closes every active conversation of user
func (s *ConversationService) CloseAllActive(ctx context.Context, user *domain.User) (int, error) {
	n, err := s.store.Repos().Conversations.CloseAllActive(ctx, user.ID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	metrics.ActiveConversations.Sub(float64(n))
	return n, nil
}

// StartTopic closes the current active conversation, if any, and opens a
// new one bound to model
func (s *ConversationService) StartTopic(ctx context.Context, user *domain.User, model *domain.Model) (*domain.Conversation, error) {
	current, err := s.GetActive(ctx, user)
	switch {
	case err == nil:
		if _, err := s.Close(ctx, current); err != nil {
			return nil, err
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return s.Create(ctx, user, model)
}

// EnableContinuous turns continuous chat on. A named model becomes the
// user's default; without one the existing default is required.
func (s *ConversationService) EnableContinuous(ctx context.Context, user *domain.User, modelName string) (*domain.User, *domain.Model, error) {
	if modelName == "" {
		if !user.HasDefaultModel() {
			return nil, nil, domain.ErrNoDefaultModel
		}
		modelName = user.DefaultModel
	}

	model, err := s.catalog.FindActive(ctx, modelName)
	if err != nil {
		return nil, nil, err
	}

	if user.DefaultModel != model.Name {
		if user, err = s.ledger.SetDefaultModel(ctx, user, model.Name); err != nil {
			return nil, nil, err
		}
	}
	if user, err = s.ledger.SetContinuousChat(ctx, user, true); err != nil {
		return nil, nil, err
	}
	return user, model, nil
}

// DisableContinuous turns continuous chat off and closes every active
// conversation, returning how many were closed
func (s *ConversationService) DisableContinuous(ctx context.Context, user *domain.User) (*domain.User, int, error) {
	if !user.ContinuousChat {
		return user, 0, domain.ErrContinuousNotEnabled
	}
	user, err := s.ledger.SetContinuousChat(ctx, user, false)
	if err != nil {
		return nil, 0, err
	}
	closed, err := s.CloseAllActive(ctx, user)
	if err != nil {
		return nil, 0, err
	}
	return user, closed, nil
}

// ImplicitTarget finds where a message sent without a model goes without
// creating anything: the active conversation with its model, or a nil
// conversation and the user's default model.
func (s *ConversationService) ImplicitTarget(ctx context.Context, user *domain.User) (*domain.Conversation, *domain.Model, error) {
	conv, err := s.GetActive(ctx, user)
	switch {
	case err == nil:
		model, err := s.catalog.FindActive(ctx, conv.ModelName)
		if err != nil {
			return nil, nil, err
		}
		return conv, model, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, nil, err
	}
	if !user.HasDefaultModel() {
		return nil, nil, domain.ErrNoDefaultModel
	}
	model, err := s.catalog.FindActive(ctx, user.DefaultModel)
	if err != nil {
		return nil, nil, err
	}
	return nil, model, nil
}

// ResolveImplicit returns the conversation that receives a message sent
// without a model: the active one, or a new one on the default model.
// The bool reports whether a conversation was started.
func (s *ConversationService) ResolveImplicit(ctx context.Context, user *domain.User) (*domain.Conversation, bool, error) {
	conv, model, err := s.ImplicitTarget(ctx, user)
	if err != nil {
		return nil, false, err
	}
	if conv != nil {
		return conv, false, nil
	}
	conv, err = s.Create(ctx, user, model)
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// Messages returns the messages of a conversation in order
func (s *ConversationService) Messages(ctx context.Context, conv *domain.Conversation) ([]*domain.Message, error) {
	return s.store.Repos().Messages.ListByConversation(ctx, conv.ID)
}

// History pages through the user's conversations, newest first, with the
// first question and answer of each. Out of range pages clamp.
func (s *ConversationService) History(ctx context.Context, user *domain.User, page, size int) (*HistoryPage, error) {
	repos := s.store.Repos()
	total, err := repos.Conversations.CountByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	start, end, page, pages := paginate(total, page, size)
	result := &HistoryPage{Page: page, TotalPages: pages, Total: total}
	if end == start {
		return result, nil
	}

	convs, err := repos.Conversations.ListByUser(ctx, user.ID, end-start, start)
	if err != nil {
		return nil, err
	}
	for _, conv := range convs {
		msgs, err := repos.Messages.ListByConversation(ctx, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load messages of %s: %w", conv.ID, err)
		}
		entry := HistoryEntry{Conversation: conv, MessageCount: len(msgs)}
		for _, m := range msgs {
			if m.Role == domain.MessageRoleUser && entry.FirstQuestion == "" {
				entry.FirstQuestion = m.Content
			}
			if m.Role == domain.MessageRoleAssistant && entry.FirstAnswer == "" {
				entry.FirstAnswer = m.Content
			}
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

// ChatHistory converts stored messages into AI context, skipping failed answers
func ChatHistory(msgs []*domain.Message, limit int) []domain.ChatTurn {
	turns := make([]domain.ChatTurn, 0, len(msgs))
	for i, m := range msgs {
		if m.IsError {
			continue
		}
		if m.Role == domain.MessageRoleUser && i+1 < len(msgs) && msgs[i+1].IsError {
			continue
		}
		turns = append(turns, domain.ChatTurn{Role: m.Role, Content: m.Content})
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}
