package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	storage "github.com/inference-gateway/chatledger/internal/infra/storage"
	money "github.com/inference-gateway/chatledger/internal/money"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

type stubAI struct {
	mu      sync.Mutex
	answer  string
	usage   *domain.Usage
	err     error
	history [][]domain.ChatTurn
}

func (s *stubAI) Complete(_ context.Context, _ string, history []domain.ChatTurn, _ string) (*domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, history)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Completion{Content: s.answer, Usage: s.usage}, nil
}

func newChatFixture(t *testing.T, ai domain.AIClient) (*fixture, *ChatService) {
	t.Helper()
	f := newFixture(t, storage.NewMemoryStore())
	dispatcher := NewDispatcher(f.pipeline, 1, 0)
	return f, NewChatService(f.ledger, f.catalog, f.convs, ai, dispatcher, f.pipeline, 10)
}

func TestChatService_Ask(t *testing.T) {
	ai := &stubAI{answer: "42", usage: &domain.Usage{PromptTokens: 500, CompletionTokens: 500, TotalTokens: 1000}}
	f, chat := newChatFixture(t, ai)
	ctx := context.Background()
	u := f.user(t, "1001", "10")
	f.model(t, "openai/gpt-4o", "1.0", "2.0")

	reply, err := chat.Ask(ctx, u, "openai/gpt-4o", "meaning of life?")
	require.NoError(t, err)
	assert.Equal(t, "42", reply.Answer)
	assert.True(t, reply.Started)
	assert.Equal(t, "3.850000000", money.Format(reply.Estimated))

	found, err := f.ledger.Find(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, "8.350000000", money.Format(found.Balance))

	t.Run("explicit model always opens a new conversation", func(t *testing.T) {
		again, err := chat.Ask(ctx, u, "openai/gpt-4o", "and again?")
		require.NoError(t, err)
		assert.NotEqual(t, reply.Conversation.ID, again.Conversation.ID)
	})

	t.Run("implicit chat continues the active conversation", func(t *testing.T) {
		next, err := chat.Ask(ctx, u, "", "follow up")
		require.NoError(t, err)
		assert.False(t, next.Started)
		last := ai.history[len(ai.history)-1]
		require.Len(t, last, 2)
		assert.Equal(t, "and again?", last[0].Content)
	})

	f.requireBalanced(t, "1001")
}

func TestChatService_InsufficientBalance(t *testing.T) {
	ai := &stubAI{answer: "unused"}
	f, chat := newChatFixture(t, ai)
	ctx := context.Background()
	u := f.user(t, "1001", "3")
	f.model(t, "openai/gpt-4o", "1.0", "2.0")

	_, err := chat.Ask(ctx, u, "openai/gpt-4o", "hello")
	var insufficient *domain.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "3.850000000", money.Format(insufficient.Required))
	assert.Empty(t, ai.history, "AI must not be called")

	_, err = f.convs.GetActive(ctx, u)
	assert.ErrorIs(t, err, domain.ErrNotFound, "no conversation opened")
}

func TestChatService_FailedExchange(t *testing.T) {
	f, chat := newChatFixture(t, &stubAI{err: errors.New("gateway timeout")})
	ctx := context.Background()
	u := f.user(t, "1001", "10")
	f.model(t, "openai/gpt-4o", "1.0", "2.0")

	reply, err := chat.Ask(ctx, u, "openai/gpt-4o", "hello")
	require.NoError(t, err)
	assert.True(t, reply.Failed)
	assert.Equal(t, "gateway timeout", reply.ErrorMessage)

	msgs, err := f.convs.Messages(ctx, reply.Conversation)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsError)

	found, err := f.ledger.Find(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, "10.000000000", money.Format(found.Balance))
}

func TestChatService_Rejections(t *testing.T) {
	f, chat := newChatFixture(t, &stubAI{answer: "ok"})
	ctx := context.Background()
	u := f.user(t, "1001", "10")
	f.model(t, "openai/gpt-4o", "1.0", "2.0")

	_, err := chat.Ask(ctx, u, "missing/model", "hello")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = chat.Ask(ctx, u, "", "hello")
	assert.ErrorIs(t, err, domain.ErrNoDefaultModel)

	_, err = f.catalog.SetStatus(ctx, "openai/gpt-4o", domain.ModelStatusDisabled)
	require.NoError(t, err)
	_, err = chat.Ask(ctx, u, "openai/gpt-4o", "hello")
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)

	banned, err := f.ledger.SetStatus(ctx, u, domain.UserStatusBanned)
	require.NoError(t, err)
	_, err = chat.Ask(ctx, banned, "openai/gpt-4o", "hello")
	assert.ErrorIs(t, err, domain.ErrUserBanned)
}

func TestChatService_ImplicitInsufficientBalanceOpensNothing(t *testing.T) {
	ai := &stubAI{answer: "unused"}
	f, chat := newChatFixture(t, ai)
	ctx := context.Background()
	u := f.user(t, "1001", "1")
	f.model(t, "openai/gpt-4o", "1.0", "2.0")
	u, err := f.ledger.SetDefaultModel(ctx, u, "openai/gpt-4o")
	require.NoError(t, err)

	_, err = chat.Ask(ctx, u, "", "hello")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Empty(t, ai.history)

	_, err = f.convs.GetActive(ctx, u)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChatService_UndeliveredEventIsDeadLettered(t *testing.T) {
	ai := &stubAI{answer: "42", usage: &domain.Usage{PromptTokens: 500, CompletionTokens: 500, TotalTokens: 1000}}
	f := newFixture(t, storage.NewMemoryStore())
	dispatcher := NewDispatcher(f.pipeline, 1, 0)
	dispatcher.Start(context.Background())
	dispatcher.Stop()
	chat := NewChatService(f.ledger, f.catalog, f.convs, ai, dispatcher, f.pipeline, 10)

	ctx := context.Background()
	u := f.user(t, "1001", "10")
	f.model(t, "openai/gpt-4o", "1.0", "2.0")

	reply, err := chat.Ask(ctx, u, "openai/gpt-4o", "meaning of life?")
	require.NoError(t, err)
	assert.Equal(t, "42", reply.Answer)

	letters, err := f.pipeline.PendingDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, domain.DeadLetterKindCompleted, letters[0].Kind)
	assert.Contains(t, letters[0].Error, ErrDispatcherStopped.Error())

	report, err := f.pipeline.Replay(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Replayed)

	found, err := f.ledger.Find(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, "8.350000000", money.Format(found.Balance))
	f.requireBalanced(t, "1001")
}
