package services

import (
	"context"
	"testing"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	storage "github.com/inference-gateway/chatledger/internal/infra/storage"
	money "github.com/inference-gateway/chatledger/internal/money"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

func TestModelCatalog_Costs(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore())
	m := f.model(t, "openai/gpt-4o", "1.0", "2.0")

	tests := []struct {
		name       string
		prompt     *int64
		completion *int64
		want       string
	}{
		{"reported usage", tokens(500), tokens(500), "1.650000000"},
		{"estimate split", tokens(500), tokens(1500), "3.850000000"},
		{"missing usage falls back to estimate", nil, tokens(10), "3.850000000"},
		{"zero tokens", tokens(0), tokens(0), "0.000000000"},
		{"sub precision sides round before multiplier", tokens(1), tokens(0), "0.001100000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, money.Format(f.catalog.ActualCost(m, tt.prompt, tt.completion)))
		})
	}

	t.Run("estimate equals actual at the nominal split", func(t *testing.T) {
		assert.True(t, f.catalog.EstimateCost(m).Equal(f.catalog.ActualCost(m, tokens(500), tokens(1500))))
	})
}

func TestModelCatalog_Listing(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		for _, name := range []string{"openai/gpt-4o", "anthropic/claude", "openai/gpt-4o-mini"} {
			f.model(t, name, "1", "2")
		}

		_, err := f.catalog.Create(ctx, "openai/gpt-4o", money.Zero, money.Zero, "")
		assert.ErrorIs(t, err, domain.ErrDuplicateModelName)

		disabled, err := f.catalog.SetStatus(ctx, "anthropic/claude", domain.ModelStatusDisabled)
		require.NoError(t, err)
		assert.False(t, disabled.IsActive())

		active, err := f.catalog.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "openai/gpt-4o", active[0].Name)

		all, err := f.catalog.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		_, err = f.catalog.FindActive(ctx, "anthropic/claude")
		assert.ErrorIs(t, err, domain.ErrModelUnavailable)
		_, err = f.catalog.FindActive(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		found, err := f.catalog.SearchByKeyword(ctx, "MINI")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "openai/gpt-4o-mini", found[0].Name)

		page, err := f.catalog.ListActivePage(ctx, 9, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, 2, page.TotalPages)
		require.Len(t, page.Models, 1)
		assert.Equal(t, "openai/gpt-4o-mini", page.Models[0].Name)
	})
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name                          string
		total, page, size             int
		start, end, clamped, numPages int
	}{
		{"empty", 0, 1, 5, 0, 0, 1, 1},
		{"first page", 12, 1, 5, 0, 5, 1, 3},
		{"last partial page", 12, 3, 5, 10, 12, 3, 3},
		{"page below range", 12, -4, 5, 0, 5, 1, 3},
		{"page above range", 12, 99, 5, 10, 12, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, clamped, pages := paginate(tt.total, tt.page, tt.size)
			assert.Equal(t, []int{tt.start, tt.end, tt.clamped, tt.numPages}, []int{start, end, clamped, pages})
		})
	}
}
