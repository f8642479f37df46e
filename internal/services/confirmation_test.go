package services

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

func TestConfirmationService(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConfirmationStore()
	svc := NewConfirmationService(store, 0)
	assert.Equal(t, DefaultConfirmationTTL, svc.TTL())

	code, err := svc.Issue(ctx, "9000")
	require.NoError(t, err)
	require.Len(t, code, confirmationLength)
	for _, r := range code {
		assert.Contains(t, confirmationAlphabet, string(r))
	}

	t.Run("wrong code keeps the pending one", func(t *testing.T) {
		assert.ErrorIs(t, svc.Verify(ctx, "9000", "WRONG1"), domain.ErrInvalidConfirmationCode)
		assert.ErrorIs(t, svc.Verify(ctx, "9001", code), domain.ErrInvalidConfirmationCode)
	})

	t.Run("case insensitive and single use", func(t *testing.T) {
		require.NoError(t, svc.Verify(ctx, "9000", " "+strings.ToLower(code)+" "))
		assert.ErrorIs(t, svc.Verify(ctx, "9000", code), domain.ErrInvalidConfirmationCode)
	})

	t.Run("reissue replaces", func(t *testing.T) {
		old, err := svc.Issue(ctx, "9000")
		require.NoError(t, err)
		fresh, err := svc.Issue(ctx, "9000")
		require.NoError(t, err)
		if old != fresh {
			assert.ErrorIs(t, svc.Verify(ctx, "9000", old), domain.ErrInvalidConfirmationCode)
		}
		assert.NoError(t, svc.Verify(ctx, "9000", fresh))
	})
}

func TestMemoryConfirmationStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConfirmationStore()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "9000", "ABC234", time.Minute))
	ok, err := store.Consume(ctx, "9000", "ZZZ999")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, err = store.Consume(ctx, "9000", "ABC234")
	require.NoError(t, err)
	assert.False(t, ok, "expired code must not be accepted")
}

// slowConfirmationStore widens the window between a caller's request and
// the store's decision
type slowConfirmationStore struct {
	ConfirmationStore
	delay time.Duration
}

func (s slowConfirmationStore) Consume(ctx context.Context, owner, code string) (bool, error) {
	time.Sleep(s.delay)
	return s.ConfirmationStore.Consume(ctx, owner, code)
}

func TestConfirmationService_ConcurrentVerify(t *testing.T) {
	ctx := context.Background()
	svc := NewConfirmationService(slowConfirmationStore{ConfirmationStore: NewMemoryConfirmationStore(), delay: 20 * time.Millisecond}, 0)

	code, err := svc.Issue(ctx, "9000")
	require.NoError(t, err)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.Verify(ctx, "9000", code) == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load(), "a code must verify exactly once")
}
