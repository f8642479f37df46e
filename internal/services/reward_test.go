package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	money "github.com/inference-gateway/chatledger/internal/money"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

func TestRewardScheduler_Run(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.user(t, "1001", "0")
		f.user(t, "1002", "1")
		banned := f.user(t, "1003", "0")
		_, err := f.ledger.SetStatus(ctx, banned, domain.UserStatusBanned)
		require.NoError(t, err)

		weekly := WeeklyRewardPlan(money.MustParse("2"))
		scheduler := NewRewardScheduler(f.ledger, DailyRewardPlan(money.MustParse("1"), 24*time.Hour), weekly)

		run, err := scheduler.Run(ctx, weekly)
		require.NoError(t, err)
		assert.Equal(t, 2, run.Granted)
		assert.Zero(t, run.Failed)

		view, err := f.ledger.Balance(ctx, "1002", 1)
		require.NoError(t, err)
		assert.Equal(t, "3.000000000", money.Format(view.User.Balance))
		assert.Equal(t, "weekly extra reward", view.Transactions[0].Description)

		skipped, err := f.ledger.Find(ctx, "1003")
		require.NoError(t, err)
		assert.True(t, skipped.Balance.IsZero())

		for _, id := range []string{"1001", "1002", "1003"} {
			f.requireBalanced(t, id)
		}
	})
}

func TestRewardScheduler_StartStop(t *testing.T) {
	scheduler := NewRewardScheduler(nil, RewardPlan{Name: "never", Amount: money.Zero, Every: time.Hour})
	scheduler.Start(context.Background())
	scheduler.Stop()
}
