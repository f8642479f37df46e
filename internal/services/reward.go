package services

import (
	"context"
	"sync"
	"time"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	metrics "github.com/inference-gateway/chatledger/internal/metrics"
	money "github.com/inference-gateway/chatledger/internal/money"
	decimal "github.com/shopspring/decimal"
)

// RewardPlan grants Amount to every normal user once per Every
type RewardPlan struct {
	Name        string
	Amount      decimal.Decimal
	Every       time.Duration
	Description string
}

// DailyRewardPlan is the recurring login reward
func DailyRewardPlan(amount decimal.Decimal, every time.Duration) RewardPlan {
	return RewardPlan{Name: "daily", Amount: amount, Every: every, Description: "daily login reward"}
}

// WeeklyRewardPlan is the extra weekly reward
func WeeklyRewardPlan(amount decimal.Decimal) RewardPlan {
	return RewardPlan{Name: "weekly", Amount: amount, Every: 7 * 24 * time.Hour, Description: "weekly extra reward"}
}

// RewardRun summarizes one grant round
type RewardRun struct {
	Plan    string
	Granted int
	Failed  int
}

// RewardScheduler periodically credits every user in normal status
type RewardScheduler struct {
	ledger *Ledger
	plans  []RewardPlan

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRewardScheduler creates a scheduler for plans
func NewRewardScheduler(ledger *Ledger, plans ...RewardPlan) *RewardScheduler {
	return &RewardScheduler{ledger: ledger, plans: plans}
}

// Run grants plan once to every normal user. A failure for one user is
// logged and the run continues.
func (s *RewardScheduler) Run(ctx context.Context, plan RewardPlan) (*RewardRun, error) {
	users, err := s.ledger.ListByStatus(ctx, domain.UserStatusNormal)
	if err != nil {
		return nil, err
	}

	run := &RewardRun{Plan: plan.Name}
	for _, u := range users {
		if _, err := s.ledger.Grant(ctx, u.ID, plan.Amount, plan.Description); err != nil {
			run.Failed++
			metrics.RewardGrants.WithLabelValues(plan.Name, "failed").Inc()
			logger.Error("reward grant failed", "plan", plan.Name, "identity", u.Identity, "error", err)
			continue
		}
		run.Granted++
		metrics.RewardGrants.WithLabelValues(plan.Name, "granted").Inc()
	}

	logger.Info("reward run finished", "plan", plan.Name, "amount", money.Format(plan.Amount),
		"granted", run.Granted, "failed", run.Failed)
	return run, nil
}

// Start runs each plan on its own ticker until Stop or ctx is done
func (s *RewardScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, plan := range s.plans {
		if plan.Every <= 0 || !plan.Amount.IsPositive() {
			logger.Warn("reward plan skipped", "plan", plan.Name)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(plan.Every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := s.Run(ctx, plan); err != nil {
						logger.Error("reward run failed", "plan", plan.Name, "error", err)
					}
				}
			}
		}()
	}
	logger.Info("reward scheduler started", "plans", len(s.plans))
}

// Stop halts the tickers and waits for running grants to finish
func (s *RewardScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
