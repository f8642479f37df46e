package services

import (
	"context"
	"fmt"
	"testing"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	storage "github.com/inference-gateway/chatledger/internal/infra/storage"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

func TestConversationService_Lifecycle(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		u := f.user(t, "1001", "0")
		m := f.model(t, "openai/gpt-4o", "1", "2")

		_, err := f.convs.GetActive(ctx, u)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		first, err := f.convs.Create(ctx, u, m)
		require.NoError(t, err)
		second, err := f.convs.Create(ctx, u, m)
		require.NoError(t, err)

		active, err := f.convs.GetActive(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, second.ID, active.ID, "newest active conversation wins")

		closed, err := f.convs.Close(ctx, second)
		require.NoError(t, err)
		assert.False(t, closed.IsActive())

		again, err := f.convs.Close(ctx, closed)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversationStatusClosed, again.Status)

		active, err = f.convs.GetActive(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, first.ID, active.ID)

		third, err := f.convs.StartTopic(ctx, u, m)
		require.NoError(t, err)
		reloaded, err := f.convs.FindByID(ctx, first.ID)
		require.NoError(t, err)
		assert.False(t, reloaded.IsActive())

		_, err = f.convs.Create(ctx, u, m)
		require.NoError(t, err)
		n, err := f.convs.CloseAllActive(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = f.convs.CloseAllActive(ctx, u)
		require.NoError(t, err)
		assert.Zero(t, n)

		reloaded, err = f.convs.FindByID(ctx, third.ID)
		require.NoError(t, err)
		assert.False(t, reloaded.IsActive())
	})
}

func TestConversationService_Continuous(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		u := f.user(t, "1001", "0")
		f.model(t, "openai/gpt-4o", "1", "2")

		_, _, err := f.convs.EnableContinuous(ctx, u, "")
		assert.ErrorIs(t, err, domain.ErrNoDefaultModel)

		_, _, err = f.convs.EnableContinuous(ctx, u, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		u, m, err := f.convs.EnableContinuous(ctx, u, "openai/gpt-4o")
		require.NoError(t, err)
		assert.True(t, u.ContinuousChat)
		assert.Equal(t, "openai/gpt-4o", u.DefaultModel)
		assert.Equal(t, m.Name, u.DefaultModel)

		conv, started, err := f.convs.ResolveImplicit(ctx, u)
		require.NoError(t, err)
		assert.True(t, started)
		assert.Equal(t, "openai/gpt-4o", conv.ModelName)

		same, started, err := f.convs.ResolveImplicit(ctx, u)
		require.NoError(t, err)
		assert.False(t, started)
		assert.Equal(t, conv.ID, same.ID)

		u, closed, err := f.convs.DisableContinuous(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, 1, closed)
		assert.False(t, u.ContinuousChat)

		_, _, err = f.convs.DisableContinuous(ctx, u)
		assert.ErrorIs(t, err, domain.ErrContinuousNotEnabled)
	})
}

func TestConversationService_ResolveImplicitWithoutDefault(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore())
	u := f.user(t, "1001", "0")

	_, _, err := f.convs.ResolveImplicit(context.Background(), u)
	assert.ErrorIs(t, err, domain.ErrNoDefaultModel)
}

func TestConversationService_History(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		u := f.user(t, "1001", "100")
		m := f.model(t, "openai/gpt-4o", "1", "2")

		for i := range 7 {
			conv, err := f.convs.Create(ctx, u, m)
			require.NoError(t, err)
			ev := completedEvent(u, conv, tokens(10), tokens(10), f.catalog.EstimateCost(m))
			ev.Question = fmt.Sprintf("question %d", i)
			ev.Answer = fmt.Sprintf("answer %d", i)
			_, err = f.pipeline.HandleCompleted(ctx, ev)
			require.NoError(t, err)
		}

		page, err := f.convs.History(ctx, u, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, 7, page.Total)
		assert.Equal(t, 2, page.TotalPages)
		require.Len(t, page.Entries, 5)
		assert.Equal(t, "question 6", page.Entries[0].FirstQuestion)
		assert.Equal(t, "answer 6", page.Entries[0].FirstAnswer)
		assert.Equal(t, 2, page.Entries[0].MessageCount)

		last, err := f.convs.History(ctx, u, 5, 5)
		require.NoError(t, err)
		assert.Equal(t, 2, last.Page)
		require.Len(t, last.Entries, 2)
		assert.Equal(t, "question 0", last.Entries[1].FirstQuestion)
	})
}

func TestChatHistory(t *testing.T) {
	msgs := []*domain.Message{
		{Role: domain.MessageRoleUser, Content: "q1"},
		{Role: domain.MessageRoleAssistant, Content: "a1"},
		{Role: domain.MessageRoleUser, Content: "q2"},
		{Role: domain.MessageRoleAssistant, Content: "timeout", IsError: true},
		{Role: domain.MessageRoleUser, Content: "q3"},
		{Role: domain.MessageRoleAssistant, Content: "a3"},
	}

	turns := ChatHistory(msgs, 0)
	require.Len(t, turns, 4)
	assert.Equal(t, "q1", turns[0].Content)
	assert.Equal(t, "a3", turns[3].Content)

	limited := ChatHistory(msgs, 2)
	assert.Equal(t, []domain.ChatTurn{
		{Role: domain.MessageRoleUser, Content: "q3"},
		{Role: domain.MessageRoleAssistant, Content: "a3"},
	}, limited)
}
