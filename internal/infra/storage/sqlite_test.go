package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	uuid "github.com/google/uuid"
	domain "github.com/inference-gateway/chatledger/internal/domain"
	decimal "github.com/shopspring/decimal"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) (*SQLStore, func()) {
	tempDir, err := os.MkdirTemp("", "sqlite_test_*")
	require.NoError(t, err)

	store, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(tempDir, "test.db")})
	require.NoError(t, err)

	cleanup := func() {
		_ = store.Close()
		_ = os.RemoveAll(tempDir)
	}

	return store, cleanup
}

// eachStore runs the same assertions against every embedded backend
func eachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("sqlite", func(t *testing.T) {
		store, cleanup := setupTestStorage(t)
		defer cleanup()
		fn(t, store)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
}

func newTestUser(identity string) *domain.User {
	now := time.Now().UTC()
	return &domain.User{
		ID:        domain.NewID(),
		Identity:  identity,
		Balance:   decimal.Zero,
		Role:      domain.RoleStandard,
		Status:    domain.UserStatusNormal,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestModel(name string) *domain.Model {
	now := time.Now().UTC()
	return &domain.Model{
		ID:             domain.NewID(),
		Name:           name,
		PromptRate:     decimal.RequireFromString("1.0"),
		CompletionRate: decimal.RequireFromString("2.0"),
		Multiplier:     decimal.RequireFromString("1.1"),
		Status:         domain.ModelStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestStore_Users(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		repos := store.Repos()

		require.NoError(t, store.Health(ctx))

		u := newTestUser("1001")
		require.NoError(t, repos.Users.Create(ctx, u))

		t.Run("lookup by identity", func(t *testing.T) {
			got, err := repos.Users.GetByIdentity(ctx, "1001")
			require.NoError(t, err)
			assert.Equal(t, u.ID, got.ID)
			assert.Equal(t, domain.RoleStandard, got.Role)
			assert.True(t, got.Balance.IsZero())
		})

		t.Run("missing user", func(t *testing.T) {
			_, err := repos.Users.GetByIdentity(ctx, "nobody")
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})

		t.Run("balance keeps nine digits", func(t *testing.T) {
			require.NoError(t, repos.Users.UpdateBalance(ctx, u.ID, decimal.RequireFromString("8.350000001"), time.Now()))
			got, err := repos.Users.GetByID(ctx, u.ID)
			require.NoError(t, err)
			assert.Equal(t, "8.350000001", got.Balance.StringFixed(9))
		})

		t.Run("update preferences", func(t *testing.T) {
			u.DefaultModel = "openai/gpt-4o"
			u.ContinuousChat = true
			u.UpdatedAt = time.Now()
			require.NoError(t, repos.Users.Update(ctx, u))

			got, err := repos.Users.GetForUpdate(ctx, u.ID)
			require.NoError(t, err)
			assert.Equal(t, "openai/gpt-4o", got.DefaultModel)
			assert.True(t, got.ContinuousChat)
		})
	})
}

func TestStore_Models(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		repos := store.Repos()

		first := newTestModel("b-model")
		require.NoError(t, repos.Models.Create(ctx, first))
		second := newTestModel("a-model")
		second.CreatedAt = first.CreatedAt.Add(time.Millisecond)
		require.NoError(t, repos.Models.Create(ctx, second))

		err := repos.Models.Create(ctx, newTestModel("b-model"))
		assert.ErrorIs(t, err, domain.ErrDuplicateModelName)

		second.Status = domain.ModelStatusDisabled
		require.NoError(t, repos.Models.Update(ctx, second))

		active, err := repos.Models.List(ctx, domain.ModelStatusActive)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "b-model", active[0].Name)

		all, err := repos.Models.List(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "b-model", all[0].Name)
		assert.Equal(t, "a-model", all[1].Name)

		got, err := repos.Models.GetByName(ctx, "a-model")
		require.NoError(t, err)
		assert.True(t, got.Multiplier.Equal(decimal.RequireFromString("1.1")))
	})
}

func TestStore_ConversationsAndMessages(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		repos := store.Repos()

		u := newTestUser("2002")
		require.NoError(t, repos.Users.Create(ctx, u))

		base := time.Now().UTC()
		var ids []uuid.UUID
		for i := 0; i < 3; i++ {
			c := &domain.Conversation{
				ID:        domain.NewID(),
				UserID:    u.ID,
				ModelName: "m",
				Status:    domain.ConversationStatusActive,
				CreatedAt: base.Add(time.Duration(i) * time.Second),
				UpdatedAt: base,
			}
			require.NoError(t, repos.Conversations.Create(ctx, c))
			ids = append(ids, c.ID)
		}

		active, err := repos.Conversations.ListActive(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, active, 3)
		assert.Equal(t, ids[2], active[0].ID)

		page, err := repos.Conversations.ListByUser(ctx, u.ID, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, ids[0], page[0].ID)

		exchange := domain.NewID()
		tokens := int64(500)
		cost := decimal.RequireFromString("1.65")
		require.NoError(t, repos.Messages.Append(ctx, &domain.Message{
			ID: domain.NewID(), UserID: u.ID, ConversationID: ids[0], ExchangeID: exchange,
			Content: "q", Role: domain.MessageRoleUser, TokenCount: &tokens, CreatedAt: base,
		}))
		require.NoError(t, repos.Messages.Append(ctx, &domain.Message{
			ID: domain.NewID(), UserID: u.ID, ConversationID: ids[0], ExchangeID: exchange,
			Content: "a", Role: domain.MessageRoleAssistant, Cost: &cost, CreatedAt: base.Add(time.Millisecond),
		}))

		msgs, err := repos.Messages.ListByConversation(ctx, ids[0])
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, domain.MessageRoleUser, msgs[0].Role)
		require.NotNil(t, msgs[0].TokenCount)
		assert.Equal(t, int64(500), *msgs[0].TokenCount)
		assert.Nil(t, msgs[0].Cost)
		require.NotNil(t, msgs[1].Cost)
		assert.True(t, msgs[1].Cost.Equal(cost))

		seen, err := repos.Messages.ExistsForExchange(ctx, exchange)
		require.NoError(t, err)
		assert.True(t, seen)

		closed, err := repos.Conversations.CloseAllActive(ctx, u.ID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 3, closed)

		closed, err = repos.Conversations.CloseAllActive(ctx, u.ID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, closed)

		total, err := repos.Conversations.CountByUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
	})
}

func TestStore_TransactionsRollback(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		u := newTestUser("3003")
		require.NoError(t, store.Repos().Users.Create(ctx, u))

		exchange := domain.NewID()
		boom := errors.New("boom")
		err := store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
			require.NoError(t, repos.Users.UpdateBalance(ctx, u.ID, decimal.RequireFromString("-1.65"), time.Now()))
			require.NoError(t, repos.Transactions.Append(ctx, &domain.Transaction{
				ID: domain.NewID(), UserID: u.ID, Amount: decimal.RequireFromString("-1.65"),
				Kind: domain.TransactionKindConsume, ExchangeID: &exchange, CreatedAt: time.Now(),
			}))
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := store.Repos().Users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.IsZero())

		sum, err := store.Repos().Transactions.SumByUser(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, sum.IsZero())

		seen, err := store.Repos().Transactions.ExistsForExchange(ctx, exchange)
		require.NoError(t, err)
		assert.False(t, seen)
	})
}

func TestStore_TransactionLedger(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		repos := store.Repos()
		u := newTestUser("4004")
		require.NoError(t, repos.Users.Create(ctx, u))

		exchange := domain.NewID()
		base := time.Now().UTC()
		amounts := []string{"10", "-1.65", "0.000000001"}
		for i, a := range amounts {
			tx := &domain.Transaction{
				ID: domain.NewID(), UserID: u.ID, Amount: decimal.RequireFromString(a),
				Kind: domain.TransactionKindRecharge, CreatedAt: base.Add(time.Duration(i) * time.Second),
			}
			if i == 1 {
				tx.Kind = domain.TransactionKindConsume
				tx.ExchangeID = &exchange
			}
			require.NoError(t, repos.Transactions.Append(ctx, tx))
		}

		sum, err := repos.Transactions.SumByUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "8.350000001", sum.StringFixed(9))

		recent, err := repos.Transactions.ListByUser(ctx, u.ID, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "0.000000001", recent[0].Amount.StringFixed(9))
		require.NotNil(t, recent[1].ExchangeID)
		assert.Equal(t, exchange, *recent[1].ExchangeID)

		dup := &domain.Transaction{
			ID: domain.NewID(), UserID: u.ID, Amount: decimal.RequireFromString("-1.65"),
			Kind: domain.TransactionKindConsume, ExchangeID: &exchange, CreatedAt: time.Now(),
		}
		assert.ErrorIs(t, repos.Transactions.Append(ctx, dup), domain.ErrDuplicateExchange)
	})
}

func TestStore_DeadLetters(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		repos := store.Repos()
		now := time.Now().UTC()

		letter := &domain.DeadLetter{
			ID: domain.NewID(), ExchangeID: domain.NewID(), Kind: domain.DeadLetterKindCompleted,
			Payload: []byte(`{"question":"hi"}`), Error: "disk full", Attempts: 1,
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, repos.DeadLetters.Add(ctx, letter))

		pending, err := repos.DeadLetters.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.JSONEq(t, `{"question":"hi"}`, string(pending[0].Payload))

		require.NoError(t, repos.DeadLetters.RecordAttempt(ctx, letter.ID, "still broken", now))
		got, err := repos.DeadLetters.Get(ctx, letter.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Attempts)
		assert.Equal(t, "still broken", got.Error)

		require.NoError(t, repos.DeadLetters.MarkResolved(ctx, letter.ID, now))
		pending, err = repos.DeadLetters.ListPending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
