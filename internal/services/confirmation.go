package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	logger "github.com/inference-gateway/chatledger/internal/logger"
)

const (
	confirmationAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	confirmationLength   = 6
)

// DefaultConfirmationTTL is how long an issued code stays valid
const DefaultConfirmationTTL = 5 * time.Minute

// ConfirmationStore keeps at most one pending code per owner. Consume
// removes the pending code only when it equals code, atomically, and
// reports whether it did.
type ConfirmationStore interface {
	Save(ctx context.Context, owner, code string, ttl time.Duration) error
	Consume(ctx context.Context, owner, code string) (bool, error)
}

type memoryCode struct {
	code    string
	expires time.Time
}

// MemoryConfirmationStore is an expiring in-process ConfirmationStore
type MemoryConfirmationStore struct {
	mu    sync.Mutex
	codes map[string]memoryCode
	now   func() time.Time
}

// NewMemoryConfirmationStore creates an empty in-memory code store
func NewMemoryConfirmationStore() *MemoryConfirmationStore {
	return &MemoryConfirmationStore{codes: make(map[string]memoryCode), now: time.Now}
}

func (s *MemoryConfirmationStore) Save(_ context.Context, owner, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[owner] = memoryCode{code: code, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryConfirmationStore) Consume(_ context.Context, owner, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.codes[owner]
	if !ok {
		return false, nil
	}
	if !s.now().Before(entry.expires) {
		delete(s.codes, owner)
		return false, nil
	}
	if entry.code != code {
		return false, nil
	}
	delete(s.codes, owner)
	return true, nil
}

// ConfirmationService issues and checks codes guarding destructive admin commands
type ConfirmationService struct {
	store ConfirmationStore
	ttl   time.Duration
}

// NewConfirmationService creates a confirmation service. A non-positive
// ttl falls back to DefaultConfirmationTTL.
func NewConfirmationService(store ConfirmationStore, ttl time.Duration) *ConfirmationService {
	if ttl <= 0 {
		ttl = DefaultConfirmationTTL
	}
	return &ConfirmationService{store: store, ttl: ttl}
}

// TTL returns how long issued codes stay valid
func (s *ConfirmationService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a new code for owner, replacing any pending one
func (s *ConfirmationService) Issue(ctx context.Context, owner string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	if err := s.store.Save(ctx, owner, code, s.ttl); err != nil {
		return "", fmt.Errorf("failed to store confirmation code: %w", err)
	}
	logger.Info("confirmation code issued", "owner", owner)
	return code, nil
}

// Verify consumes owner's pending code when candidate matches it. A wrong
// candidate leaves the pending code in place.
func (s *ConfirmationService) Verify(ctx context.Context, owner, candidate string) error {
	candidate = strings.ToUpper(strings.TrimSpace(candidate))
	if candidate == "" {
		return domain.ErrInvalidConfirmationCode
	}
	ok, err := s.store.Consume(ctx, owner, candidate)
	if err != nil {
		return fmt.Errorf("failed to consume confirmation code: %w", err)
	}
	if !ok {
		return domain.ErrInvalidConfirmationCode
	}
	return nil
}

func generateCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(confirmationAlphabet)))
	for range confirmationLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate confirmation code: %w", err)
		}
		b.WriteByte(confirmationAlphabet[n.Int64()])
	}
	return b.String(), nil
}
