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
	money "github.com/inference-gateway/chatledger/internal/money"
	decimal "github.com/shopspring/decimal"
)

// Entry is one balance mutation together with its ledger row. Extra runs
// in the same storage transaction before the balance changes.
type Entry struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Kind           domain.TransactionKind
	Description    string
	ConversationID *uuid.UUID
	ExchangeID     *uuid.UUID
	Extra          storage.TxFunc
}

// PostResult is the state after a posted entry
type PostResult struct {
	User        *domain.User
	Before      decimal.Decimal
	Transaction *domain.Transaction
}

// RechargeResult describes an admin credit
type RechargeResult struct {
	Operator    *domain.User
	Target      *domain.User
	Amount      decimal.Decimal
	Before      decimal.Decimal
	After       decimal.Decimal
	Transaction *domain.Transaction
}

// BalanceView is a user's balance with recent activity
type BalanceView struct {
	User         *domain.User
	Transactions []*domain.Transaction
}

// Reconciliation compares a balance with the sum of its ledger
type Reconciliation struct {
	User      *domain.User
	Balance   decimal.Decimal
	LedgerSum decimal.Decimal
	Balanced  bool
}

// Ledger owns user balances. Every balance change goes through Post, which
// serializes per user and writes the transaction row in the same unit.
type Ledger struct {
	store  storage.Store
	admins domain.AdminDirectory
	locks  *keyedMutex
	now    func() time.Time
}

// NewLedger creates a ledger
func NewLedger(store storage.Store, admins domain.AdminDirectory) *Ledger {
	if admins == nil {
		admins = domain.StaticAdmins(nil)
	}
	return &Ledger{store: store, admins: admins, locks: newKeyedMutex(), now: time.Now}
}

// GetOrCreate returns the user for identity, creating it with a zero balance
func (l *Ledger) GetOrCreate(ctx context.Context, identity string) (*domain.User, error) {
	users := l.store.Repos().Users
	u, err := users.GetByIdentity(ctx, identity)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	unlock := l.locks.Lock("identity:" + identity)
	defer unlock()

	if u, err := users.GetByIdentity(ctx, identity); err == nil {
		return u, nil
	}

	now := l.now().UTC()
	u = &domain.User{
		ID:        domain.NewID(),
		Identity:  identity,
		Balance:   money.Zero,
		Role:      domain.RoleStandard,
		Status:    domain.UserStatusNormal,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if l.admins.IsAdmin(identity) {
		u.Role = domain.RoleAdmin
	}
	if err := users.Create(ctx, u); err != nil {
		if existing, getErr := users.GetByIdentity(ctx, identity); getErr == nil {
			return existing, nil
		}
		return nil, err
	}

	logger.Info("user created", "identity", identity, "role", string(u.Role))
	return u, nil
}

// Find returns an existing user without creating one
func (l *Ledger) Find(ctx context.Context, identity string) (*domain.User, error) {
	return l.store.Repos().Users.GetByIdentity(ctx, identity)
}

// IsAdmin reports admin privilege from the stored role or the live allow-list
func (l *Ledger) IsAdmin(u *domain.User) bool {
	return u.Role == domain.RoleAdmin || l.admins.IsAdmin(u.Identity)
}

// ApplyDelta locks the user row and stores round(balance + delta). Negative
// results are allowed. Must run inside a storage transaction.
func (l *Ledger) ApplyDelta(ctx context.Context, repos storage.Repositories, userID uuid.UUID, delta decimal.Decimal) (*domain.User, decimal.Decimal, error) {
	u, err := repos.Users.GetForUpdate(ctx, userID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	before := u.Balance
	u.Balance = money.Add(u.Balance, delta)
	u.UpdatedAt = l.now().UTC()
	if err := repos.Users.UpdateBalance(ctx, userID, u.Balance, u.UpdatedAt); err != nil {
		return nil, decimal.Zero, err
	}
	return u, before, nil
}

// RecordTransaction appends a ledger row. Must run inside the same storage
// transaction as the matching ApplyDelta.
func (l *Ledger) RecordTransaction(ctx context.Context, repos storage.Repositories, tx *domain.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = domain.NewID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.now().UTC()
	}
	tx.Amount = money.Round(tx.Amount)
	return repos.Transactions.Append(ctx, tx)
}

// Post applies entry atomically and serialized against other mutations of
// the same user
func (l *Ledger) Post(ctx context.Context, entry Entry) (*PostResult, error) {
	unlock := l.locks.Lock("user:" + entry.UserID.String())
	defer unlock()

	var result PostResult
	err := l.store.InTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
		if entry.Extra != nil {
			if err := entry.Extra(ctx, repos); err != nil {
				return err
			}
		}

		u, before, err := l.ApplyDelta(ctx, repos, entry.UserID, entry.Amount)
		if err != nil {
			return err
		}

		tx := &domain.Transaction{
			UserID:         entry.UserID,
			Amount:         entry.Amount,
			Kind:           entry.Kind,
			Description:    entry.Description,
			ConversationID: entry.ConversationID,
			ExchangeID:     entry.ExchangeID,
			CreatedAt:      u.UpdatedAt,
		}
		if err := l.RecordTransaction(ctx, repos, tx); err != nil {
			return err
		}

		result = PostResult{User: u, Before: before, Transaction: tx}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LedgerPostings.WithLabelValues(string(entry.Kind)).Inc()
	logger.FromContext(ctx).Sugar().Debugw("ledger entry posted",
		"user_id", entry.UserID.String(), "kind", string(entry.Kind),
		"amount", money.Format(entry.Amount), "balance", money.Format(result.User.Balance))
	return &result, nil
}

// Recharge credits target on behalf of operator. Only admins may recharge.
func (l *Ledger) Recharge(ctx context.Context, operatorIdentity, targetIdentity, amountText string) (*RechargeResult, error) {
	operator, err := l.GetOrCreate(ctx, operatorIdentity)
	if err != nil {
		return nil, err
	}
	if !l.IsAdmin(operator) {
		return nil, domain.ErrPermissionDenied
	}

	amount, err := money.ParsePositive(amountText)
	if err != nil {
		return nil, err
	}

	target := operator
	if targetIdentity != "" && targetIdentity != operatorIdentity {
		if target, err = l.GetOrCreate(ctx, targetIdentity); err != nil {
			return nil, err
		}
	}

	description := "admin self recharge"
	if target.Identity != operator.Identity {
		description = "admin recharge by " + operator.Identity
	}

	posted, err := l.Post(ctx, Entry{
		UserID:      target.ID,
		Amount:      amount,
		Kind:        domain.TransactionKindRecharge,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("balance recharged", "operator", operator.Identity, "target", target.Identity,
		"amount", money.Format(amount), "balance", money.Format(posted.User.Balance))

	return &RechargeResult{
		Operator:    operator,
		Target:      posted.User,
		Amount:      amount,
		Before:      posted.Before,
		After:       posted.User.Balance,
		Transaction: posted.Transaction,
	}, nil
}

// Grant credits a user without an operator, e.g. for scheduled rewards
func (l *Ledger) Grant(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (*PostResult, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrNonPositiveAmount
	}
	return l.Post(ctx, Entry{
		UserID:      userID,
		Amount:      amount,
		Kind:        domain.TransactionKindRecharge,
		Description: description,
	})
}

// Balance returns the user's balance and most recent transactions
func (l *Ledger) Balance(ctx context.Context, identity string, limit int) (*BalanceView, error) {
	u, err := l.GetOrCreate(ctx, identity)
	if err != nil {
		return nil, err
	}
	txs, err := l.store.Repos().Transactions.ListByUser(ctx, u.ID, limit)
	if err != nil {
		return nil, err
	}
	return &BalanceView{User: u, Transactions: txs}, nil
}

// CheckAffordable fails when the balance does not cover cost
func (l *Ledger) CheckAffordable(u *domain.User, cost decimal.Decimal) error {
	if u.Balance.LessThan(cost) {
		return &domain.InsufficientBalanceError{Balance: u.Balance, Required: cost}
	}
	return nil
}

func (l *Ledger) update(ctx context.Context, u *domain.User, mutate func(u *domain.User)) (*domain.User, error) {
	unlock := l.locks.Lock("user:" + u.ID.String())
	defer unlock()

	var updated *domain.User
	err := l.store.InTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
		cur, err := repos.Users.GetForUpdate(ctx, u.ID)
		if err != nil {
			return err
		}
		mutate(cur)
		cur.UpdatedAt = l.now().UTC()
		if err := repos.Users.Update(ctx, cur); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	return updated, err
}

// SetDefaultModel records the model used for implicit chats
func (l *Ledger) SetDefaultModel(ctx context.Context, u *domain.User, modelName string) (*domain.User, error) {
	return l.update(ctx, u, func(cur *domain.User) { cur.DefaultModel = modelName })
}

// SetContinuousChat toggles continuous chat mode
func (l *Ledger) SetContinuousChat(ctx context.Context, u *domain.User, enabled bool) (*domain.User, error) {
	return l.update(ctx, u, func(cur *domain.User) { cur.ContinuousChat = enabled })
}

// SetRole changes a user's stored role
func (l *Ledger) SetRole(ctx context.Context, u *domain.User, role domain.Role) (*domain.User, error) {
	return l.update(ctx, u, func(cur *domain.User) { cur.Role = role })
}

// SetStatus bans or reinstates a user
func (l *Ledger) SetStatus(ctx context.Context, u *domain.User, status domain.UserStatus) (*domain.User, error) {
	return l.update(ctx, u, func(cur *domain.User) { cur.Status = status })
}

// ListByStatus returns users with the given status
func (l *Ledger) ListByStatus(ctx context.Context, status domain.UserStatus) ([]*domain.User, error) {
	return l.store.Repos().Users.ListByStatus(ctx, status)
}

// Reconcile checks that the balance equals the sum of the user's ledger
func (l *Ledger) Reconcile(ctx context.Context, identity string) (*Reconciliation, error) {
	u, err := l.Find(ctx, identity)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.Lock("user:" + u.ID.String())
	defer unlock()

	var rec Reconciliation
	err = l.store.InTx(ctx, func(ctx context.Context, repos storage.Repositories) error {
		cur, err := repos.Users.GetForUpdate(ctx, u.ID)
		if err != nil {
			return err
		}
		sum, err := repos.Transactions.SumByUser(ctx, u.ID)
		if err != nil {
			return err
		}
		rec = Reconciliation{User: cur, Balance: cur.Balance, LedgerSum: money.Round(sum)}
		rec.Balanced = rec.Balance.Equal(rec.LedgerSum)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile %s: %w", identity, err)
	}
	if !rec.Balanced {
		logger.Error("ledger out of balance", "identity", identity,
			"balance", money.Format(rec.Balance), "ledger_sum", money.Format(rec.LedgerSum))
	}
	return &rec, nil
}
