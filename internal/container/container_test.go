package container

import (
	"context"
	"testing"
	"time"

	config "github.com/inference-gateway/chatledger/config"
	commands "github.com/inference-gateway/chatledger/internal/commands"
	domain "github.com/inference-gateway/chatledger/internal/domain"
	money "github.com/inference-gateway/chatledger/internal/money"
	decimal "github.com/shopspring/decimal"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

type fixedAI struct{}

func (fixedAI) Complete(_ context.Context, model string, _ []domain.ChatTurn, question string) (*domain.Completion, error) {
	return &domain.Completion{
		Content: "answer to " + question,
		Usage:   &domain.Usage{PromptTokens: 500, CompletionTokens: 500, TotalTokens: 1000},
	}, nil
}

type receiptCollector struct{ receipts []domain.BillingReceipt }

func (r *receiptCollector) OnReceipt(receipt domain.BillingReceipt) {
	r.receipts = append(r.receipts, receipt)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.Type = "memory"
	cfg.Admin.Identities = []string{"9000"}
	return cfg
}

func TestContainerWiresChatToBilling(t *testing.T) {
	c, err := NewServiceContainer(testConfig(), nil, WithAIClient(fixedAI{}))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	collector := &receiptCollector{}
	c.GetBillingPipeline().Subscribe(collector)

	_, err = c.GetCatalog().Create(ctx, "gpt-4o", decimal.RequireFromString("1"), decimal.RequireFromString("2"), "")
	require.NoError(t, err)

	reply, err := c.GetRouter().Handle(ctx, commands.Inbound{Identity: "9000", Text: "/recharge 42 10", Private: true})
	require.NoError(t, err)
	require.NotNil(t, reply)

	reply, err = c.GetRouter().Handle(ctx, commands.Inbound{Identity: "42", Text: "/chat gpt-4o hello", Private: true})
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Contains(t, reply.Text, "answer to hello")

	user, err := c.GetLedger().Find(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "8.350000000", money.Format(user.Balance))

	require.Len(t, collector.receipts, 1)
	assert.Equal(t, "1.650000000", money.Format(collector.receipts[0].Cost))
	assert.NoError(t, c.Health(ctx))
}

func TestContainerDispatcherDrainsOnStop(t *testing.T) {
	c, err := NewServiceContainer(testConfig(), nil, WithAIClient(fixedAI{}))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	_, err = c.GetCatalog().Create(ctx, "gpt-4o", decimal.RequireFromString("1"), decimal.RequireFromString("2"), "")
	require.NoError(t, err)
	u, err := c.GetLedger().GetOrCreate(ctx, "42")
	require.NoError(t, err)
	_, err = c.GetLedger().Grant(ctx, u.ID, money.MustParse("10"), "opening balance")
	require.NoError(t, err)

	c.GetDispatcher().Start(ctx)
	for range 3 {
		_, err := c.GetChatService().Ask(ctx, u, "gpt-4o", "hi")
		require.NoError(t, err)
	}
	c.GetDispatcher().Stop()

	rec, err := c.GetLedger().Reconcile(ctx, "42")
	require.NoError(t, err)
	assert.True(t, rec.Balanced)
	assert.Equal(t, "5.050000000", money.Format(rec.Balance))
}

func TestRewardPlans(t *testing.T) {
	cfg := testConfig()
	c, err := NewServiceContainer(cfg, nil, WithAIClient(fixedAI{}))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	assert.Empty(t, c.RewardPlans())

	cfg.Reward.Enabled = true
	cfg.Reward.Amount = "1"
	cfg.Reward.IntervalMinutes = 60
	cfg.Reward.WeeklyAmount = "2"
	plans := c.RewardPlans()
	require.Len(t, plans, 2)
	assert.Equal(t, "daily login reward", plans[0].Description)
	assert.Equal(t, time.Hour, plans[0].Every)
	assert.Equal(t, "weekly extra reward", plans[1].Description)
	assert.Equal(t, 7*24*time.Hour, plans[1].Every)
}

func TestInvalidMultiplierFails(t *testing.T) {
	cfg := testConfig()
	cfg.Billing.DefaultMultiplier = "zero"
	_, err := NewServiceContainer(cfg, nil, WithAIClient(fixedAI{}))
	require.Error(t, err)
}
