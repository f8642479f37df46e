package storage

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	domain "github.com/inference-gateway/chatledger/internal/domain"
	decimal "github.com/shopspring/decimal"
)

type memState struct {
	users        map[uuid.UUID]domain.User
	identities   map[string]uuid.UUID
	models       map[string]domain.Model
	convs        map[uuid.UUID]domain.Conversation
	messages     []domain.Message
	transactions []domain.Transaction
	deadLetters  map[uuid.UUID]domain.DeadLetter
}

func newMemState() *memState {
	return &memState{
		users:       make(map[uuid.UUID]domain.User),
		identities:  make(map[string]uuid.UUID),
		models:      make(map[string]domain.Model),
		convs:       make(map[uuid.UUID]domain.Conversation),
		deadLetters: make(map[uuid.UUID]domain.DeadLetter),
	}
}

func (s *memState) clone() *memState {
	return &memState{
		users:        maps.Clone(s.users),
		identities:   maps.Clone(s.identities),
		models:       maps.Clone(s.models),
		convs:        maps.Clone(s.convs),
		messages:     append([]domain.Message(nil), s.messages...),
		transactions: append([]domain.Transaction(nil), s.transactions...),
		deadLetters:  maps.Clone(s.deadLetters),
	}
}

// MemoryStore keeps everything in process memory. Transactions are fully
// serialized and roll back by restoring a snapshot.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// Dialect returns "memory"
func (s *MemoryStore) Dialect() string { return "memory" }

// Health always succeeds
func (s *MemoryStore) Health(ctx context.Context) error { return nil }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// Repos returns repositories that lock the store per operation
func (s *MemoryStore) Repos() Repositories {
	return s.bind(false)
}

// InTx runs fn while holding the store lock and restores the previous state on error
func (s *MemoryStore) InTx(ctx context.Context, fn TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(ctx, s.bind(true)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) bind(held bool) Repositories {
	c := memConn{store: s, held: held}
	return Repositories{
		Users:         memUsers{c},
		Models:        memModels{c},
		Conversations: memConversations{c},
		Messages:      memMessages{c},
		Transactions:  memTransactions{c},
		DeadLetters:   memDeadLetters{c},
	}
}

type memConn struct {
	store *MemoryStore
	held  bool
}

func (c memConn) do(fn func(st *memState) error) error {
	if !c.held {
		c.store.mu.Lock()
		defer c.store.mu.Unlock()
	}
	return fn(c.store.state)
}

// users

type memUsers struct{ memConn }

func (r memUsers) GetByIdentity(ctx context.Context, identity string) (*domain.User, error) {
	var out *domain.User
	err := r.do(func(st *memState) error {
		id, ok := st.identities[identity]
		if !ok {
			return domain.NewNotFound("user", identity)
		}
		u := st.users[id]
		out = &u
		return nil
	})
	return out, err
}

func (r memUsers) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var out *domain.User
	err := r.do(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return domain.NewNotFound("user", id.String())
		}
		out = &u
		return nil
	})
	return out, err
}

func (r memUsers) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.GetByID(ctx, id)
}

func (r memUsers) Create(ctx context.Context, u *domain.User) error {
	return r.do(func(st *memState) error {
		if _, ok := st.identities[u.Identity]; ok {
			return fmt.Errorf("user %s already exists", u.Identity)
		}
		st.users[u.ID] = *u
		st.identities[u.Identity] = u.ID
		return nil
	})
}

func (r memUsers) Update(ctx context.Context, u *domain.User) error {
	return r.do(func(st *memState) error {
		cur, ok := st.users[u.ID]
		if !ok {
			return domain.NewNotFound("user", u.ID.String())
		}
		cur.Role = u.Role
		cur.Status = u.Status
		cur.DefaultModel = u.DefaultModel
		cur.ContinuousChat = u.ContinuousChat
		cur.UpdatedAt = u.UpdatedAt
		st.users[u.ID] = cur
		return nil
	})
}

func (r memUsers) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error {
	return r.do(func(st *memState) error {
		cur, ok := st.users[id]
		if !ok {
			return domain.NewNotFound("user", id.String())
		}
		cur.Balance = balance
		cur.UpdatedAt = at
		st.users[id] = cur
		return nil
	})
}

func (r memUsers) ListByStatus(ctx context.Context, status domain.UserStatus) ([]*domain.User, error) {
	var out []*domain.User
	err := r.do(func(st *memState) error {
		for _, u := range st.users {
			if u.Status == status {
				u := u
				out = append(out, &u)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return lessByCreation(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, err
}

// models

type memModels struct{ memConn }

func (r memModels) GetByName(ctx context.Context, name string) (*domain.Model, error) {
	var out *domain.Model
	err := r.do(func(st *memState) error {
		m, ok := st.models[name]
		if !ok {
			return domain.NewNotFound("model", name)
		}
		out = &m
		return nil
	})
	return out, err
}

func (r memModels) Create(ctx context.Context, m *domain.Model) error {
	return r.do(func(st *memState) error {
		if _, ok := st.models[m.Name]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateModelName, m.Name)
		}
		st.models[m.Name] = *m
		return nil
	})
}

func (r memModels) Update(ctx context.Context, m *domain.Model) error {
	return r.do(func(st *memState) error {
		if _, ok := st.models[m.Name]; !ok {
			return domain.NewNotFound("model", m.Name)
		}
		st.models[m.Name] = *m
		return nil
	})
}

func (r memModels) List(ctx context.Context, status domain.ModelStatus) ([]*domain.Model, error) {
	var out []*domain.Model
	err := r.do(func(st *memState) error {
		for _, m := range st.models {
			if status == "" || m.Status == status {
				m := m
				out = append(out, &m)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return lessByCreation(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, err
}

// conversations

type memConversations struct{ memConn }

func (r memConversations) Create(ctx context.Context, c *domain.Conversation) error {
	return r.do(func(st *memState) error {
		st.convs[c.ID] = *c
		return nil
	})
}

func (r memConversations) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	var out *domain.Conversation
	err := r.do(func(st *memState) error {
		c, ok := st.convs[id]
		if !ok {
			return domain.NewNotFound("conversation", id.String())
		}
		out = &c
		return nil
	})
	return out, err
}

func (r memConversations) filter(pred func(c domain.Conversation) bool) ([]*domain.Conversation, error) {
	var out []*domain.Conversation
	err := r.do(func(st *memState) error {
		for _, c := range st.convs {
			if pred(c) {
				c := c
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return lessByCreation(out[j].CreatedAt, out[j].ID, out[i].CreatedAt, out[i].ID) })
	return out, err
}

func (r memConversations) ListActive(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	return r.filter(func(c domain.Conversation) bool {
		return c.UserID == userID && c.Status == domain.ConversationStatusActive
	})
}

func (r memConversations) Update(ctx context.Context, c *domain.Conversation) error {
	return r.do(func(st *memState) error {
		cur, ok := st.convs[c.ID]
		if !ok {
			return domain.NewNotFound("conversation", c.ID.String())
		}
		cur.Status = c.Status
		cur.UpdatedAt = c.UpdatedAt
		st.convs[c.ID] = cur
		return nil
	})
}

func (r memConversations) CloseAllActive(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	closed := 0
	err := r.do(func(st *memState) error {
		for id, c := range st.convs {
			if c.UserID == userID && c.Status == domain.ConversationStatusActive {
				c.Status = domain.ConversationStatusClosed
				c.UpdatedAt = at
				st.convs[id] = c
				closed++
			}
		}
		return nil
	})
	return closed, err
}

func (r memConversations) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error) {
	all, err := r.filter(func(c domain.Conversation) bool { return c.UserID == userID })
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (r memConversations) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	all, err := r.filter(func(c domain.Conversation) bool { return c.UserID == userID })
	return len(all), err
}

// messages

type memMessages struct{ memConn }

func (r memMessages) Append(ctx context.Context, m *domain.Message) error {
	return r.do(func(st *memState) error {
		for _, existing := range st.messages {
			if existing.ExchangeID == m.ExchangeID && existing.Role == m.Role {
				return fmt.Errorf("%w: %s", domain.ErrDuplicateExchange, m.ExchangeID)
			}
		}
		st.messages = append(st.messages, *m)
		return nil
	})
}

func (r memMessages) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	var out []*domain.Message
	err := r.do(func(st *memState) error {
		for _, m := range st.messages {
			if m.ConversationID == conversationID {
				m := m
				out = append(out, &m)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return lessByCreation(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, err
}

func (r memMessages) ExistsForExchange(ctx context.Context, exchangeID uuid.UUID) (bool, error) {
	found := false
	err := r.do(func(st *memState) error {
		for _, m := range st.messages {
			if m.ExchangeID == exchangeID {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// transactions

type memTransactions struct{ memConn }

func (r memTransactions) Append(ctx context.Context, t *domain.Transaction) error {
	return r.do(func(st *memState) error {
		if t.ExchangeID != nil {
			for _, existing := range st.transactions {
				if existing.ExchangeID != nil && *existing.ExchangeID == *t.ExchangeID {
					return fmt.Errorf("%w: %s", domain.ErrDuplicateExchange, *t.ExchangeID)
				}
			}
		}
		st.transactions = append(st.transactions, *t)
		return nil
	})
}

func (r memTransactions) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	err := r.do(func(st *memState) error {
		for i := len(st.transactions) - 1; i >= 0 && len(out) < limit; i-- {
			if t := st.transactions[i]; t.UserID == userID {
				out = append(out, &t)
			}
		}
		return nil
	})
	return out, err
}

func (r memTransactions) SumByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := r.do(func(st *memState) error {
		for _, t := range st.transactions {
			if t.UserID == userID {
				sum = sum.Add(t.Amount)
			}
		}
		return nil
	})
	return sum, err
}

func (r memTransactions) ExistsForExchange(ctx context.Context, exchangeID uuid.UUID) (bool, error) {
	found := false
	err := r.do(func(st *memState) error {
		for _, t := range st.transactions {
			if t.ExchangeID != nil && *t.ExchangeID == exchangeID {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// dead letters

type memDeadLetters struct{ memConn }

func (r memDeadLetters) Add(ctx context.Context, d *domain.DeadLetter) error {
	return r.do(func(st *memState) error {
		st.deadLetters[d.ID] = *d
		return nil
	})
}

func (r memDeadLetters) Get(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error) {
	var out *domain.DeadLetter
	err := r.do(func(st *memState) error {
		d, ok := st.deadLetters[id]
		if !ok {
			return domain.NewNotFound("dead letter", id.String())
		}
		out = &d
		return nil
	})
	return out, err
}

func (r memDeadLetters) ListPending(ctx context.Context, limit int) ([]*domain.DeadLetter, error) {
	var out []*domain.DeadLetter
	err := r.do(func(st *memState) error {
		for _, d := range st.deadLetters {
			if !d.Resolved {
				d := d
				out = append(out, &d)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return lessByCreation(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r memDeadLetters) update(id uuid.UUID, fn func(d *domain.DeadLetter)) error {
	return r.do(func(st *memState) error {
		d, ok := st.deadLetters[id]
		if !ok {
			return domain.NewNotFound("dead letter", id.String())
		}
		fn(&d)
		st.deadLetters[id] = d
		return nil
	})
}

func (r memDeadLetters) MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(id, func(d *domain.DeadLetter) {
		d.Resolved = true
		d.UpdatedAt = at
	})
}

func (r memDeadLetters) RecordAttempt(ctx context.Context, id uuid.UUID, errText string, at time.Time) error {
	return r.update(id, func(d *domain.DeadLetter) {
		d.Attempts++
		d.Error = errText
		d.UpdatedAt = at
	})
}

func lessByCreation(at time.Time, id uuid.UUID, bt time.Time, bid uuid.UUID) bool {
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return strings.Compare(id.String(), bid.String()) < 0
}
