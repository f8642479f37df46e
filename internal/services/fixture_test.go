package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	uuid "github.com/google/uuid"
	domain "github.com/inference-gateway/chatledger/internal/domain"
	storage "github.com/inference-gateway/chatledger/internal/infra/storage"
	money "github.com/inference-gateway/chatledger/internal/money"
	decimal "github.com/shopspring/decimal"
	require "github.com/stretchr/testify/require"
)

type fixture struct {
	store    storage.Store
	ledger   *Ledger
	catalog  *ModelCatalog
	convs    *ConversationService
	pipeline *BillingPipeline
}

func newFixture(t *testing.T, store storage.Store, admins ...string) *fixture {
	t.Helper()
	ledger := NewLedger(store, domain.StaticAdmins(admins))
	catalog := NewModelCatalog(store, DefaultCatalogOptions())
	return &fixture{
		store:    store,
		ledger:   ledger,
		catalog:  catalog,
		convs:    NewConversationService(store, ledger, catalog),
		pipeline: NewBillingPipeline(store, ledger, catalog),
	}
}

func newSQLiteStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewSQLiteStore(storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// eachBackend runs fn against the sqlite and memory stores
func eachBackend(t *testing.T, fn func(t *testing.T, f *fixture), admins ...string) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newFixture(t, newSQLiteStore(t), admins...))
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, newFixture(t, storage.NewMemoryStore(), admins...))
	})
}

func (f *fixture) user(t *testing.T, identity, balance string) *domain.User {
	t.Helper()
	ctx := context.Background()
	u, err := f.ledger.GetOrCreate(ctx, identity)
	require.NoError(t, err)
	if amount := money.MustParse(balance); amount.IsPositive() {
		posted, err := f.ledger.Grant(ctx, u.ID, amount, "opening balance")
		require.NoError(t, err)
		u = posted.User
	}
	return u
}

func (f *fixture) model(t *testing.T, name, promptRate, completionRate string) *domain.Model {
	t.Helper()
	m, err := f.catalog.Create(context.Background(), name,
		decimal.RequireFromString(promptRate), decimal.RequireFromString(completionRate), "")
	require.NoError(t, err)
	return m
}

func (f *fixture) requireBalanced(t *testing.T, identity string) {
	t.Helper()
	rec, err := f.ledger.Reconcile(context.Background(), identity)
	require.NoError(t, err)
	require.True(t, rec.Balanced, "balance %s != ledger %s", rec.Balance, rec.LedgerSum)
}

func completedEvent(u *domain.User, conv *domain.Conversation, prompt, completion *int64, estimate decimal.Decimal) domain.ChatExchangeCompleted {
	return domain.ChatExchangeCompleted{
		ExchangeID:       uuid.New(),
		UserID:           u.ID,
		Identity:         u.Identity,
		ConversationID:   conv.ID,
		ModelName:        conv.ModelName,
		Question:         "what is a ledger?",
		Answer:           "a record of transactions",
		PromptTokens:     prompt,
		CompletionTokens: completion,
		EstimatedCost:    estimate,
		Timestamp:        time.Now(),
	}
}

func tokens(n int64) *int64 { return &n }
