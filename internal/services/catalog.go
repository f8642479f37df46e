package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	storage "github.com/inference-gateway/chatledger/internal/infra/storage"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	money "github.com/inference-gateway/chatledger/internal/money"
	decimal "github.com/shopspring/decimal"
)

// tokensPerRateUnit is the token count a rate is quoted for
const tokensPerRateUnit = 1000

// CatalogOptions configures pricing
type CatalogOptions struct {
	DefaultMultiplier        decimal.Decimal
	EstimatePromptTokens     int64
	EstimateCompletionTokens int64
}

// DefaultCatalogOptions returns a 1.1 multiplier and a 500/1500 estimate split
func DefaultCatalogOptions() CatalogOptions {
	return CatalogOptions{
		DefaultMultiplier:        decimal.RequireFromString("1.1"),
		EstimatePromptTokens:     500,
		EstimateCompletionTokens: 1500,
	}
}

// ModelPage is one page of the active model listing
type ModelPage struct {
	Models     []*domain.Model
	Page       int
	TotalPages int
	Total      int
}

// ModelCatalog owns billable models and their pricing
type ModelCatalog struct {
	store storage.Store
	opts  CatalogOptions
	now   func() time.Time
}

// NewModelCatalog creates a model catalog
func NewModelCatalog(store storage.Store, opts CatalogOptions) *ModelCatalog {
	return &ModelCatalog{store: store, opts: opts, now: time.Now}
}

// FindByName returns the model with exactly this name, in any status
func (c *ModelCatalog) FindByName(ctx context.Context, name string) (*domain.Model, error) {
	return c.store.Repos().Models.GetByName(ctx, name)
}

// FindActive returns the named model when it is offered to users
func (c *ModelCatalog) FindActive(ctx context.Context, name string) (*domain.Model, error) {
	m, err := c.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !m.IsActive() {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelUnavailable, name)
	}
	return m, nil
}

// ListActive returns active models in insertion order
func (c *ModelCatalog) ListActive(ctx context.Context) ([]*domain.Model, error) {
	return c.store.Repos().Models.List(ctx, domain.ModelStatusActive)
}

// ListAll returns every model in insertion order
func (c *ModelCatalog) ListAll(ctx context.Context) ([]*domain.Model, error) {
	return c.store.Repos().Models.List(ctx, "")
}

// ListActivePage pages through active models. Out of range pages clamp.
func (c *ModelCatalog) ListActivePage(ctx context.Context, page, size int) (*ModelPage, error) {
	models, err := c.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	start, end, page, pages := paginate(len(models), page, size)
	return &ModelPage{Models: models[start:end], Page: page, TotalPages: pages, Total: len(models)}, nil
}

// SearchByKeyword matches active model names case-insensitively
func (c *ModelCatalog) SearchByKeyword(ctx context.Context, keyword string) ([]*domain.Model, error) {
	models, err := c.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	var matched []*domain.Model
	for _, m := range models {
		if strings.Contains(strings.ToLower(m.Name), keyword) {
			matched = append(matched, m)
		}
	}
	return matched, nil
}

// Create adds an active model priced with the default multiplier
func (c *ModelCatalog) Create(ctx context.Context, name string, promptRate, completionRate decimal.Decimal, description string) (*domain.Model, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("model name must not be empty")
	}
	if promptRate.IsNegative() || completionRate.IsNegative() {
		return nil, fmt.Errorf("%w: rates must not be negative", domain.ErrInvalidAmount)
	}

	now := c.now().UTC()
	m := &domain.Model{
		ID:             domain.NewID(),
		Name:           name,
		PromptRate:     money.Round(promptRate),
		CompletionRate: money.Round(completionRate),
		Multiplier:     money.Round(c.opts.DefaultMultiplier),
		Status:         domain.ModelStatusActive,
		Description:    description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.store.Repos().Models.Create(ctx, m); err != nil {
		return nil, err
	}

	logger.Info("model created", "model", name,
		"prompt_rate", money.Format(m.PromptRate), "completion_rate", money.Format(m.CompletionRate))
	return m, nil
}

// SetStatus enables or disables a model
func (c *ModelCatalog) SetStatus(ctx context.Context, name string, status domain.ModelStatus) (*domain.Model, error) {
	m, err := c.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	m.Status = status
	m.UpdatedAt = c.now().UTC()
	if err := c.store.Repos().Models.Update(ctx, m); err != nil {
		return nil, err
	}
	logger.Info("model status changed", "model", name, "status", string(status))
	return m, nil
}

// EstimateCost prices a nominal exchange before the AI call
func (c *ModelCatalog) EstimateCost(m *domain.Model) decimal.Decimal {
	prompt, completion := c.opts.EstimatePromptTokens, c.opts.EstimateCompletionTokens
	return c.ActualCost(m, &prompt, &completion)
}

// ActualCost prices an exchange from reported token usage. Each side is
// rounded before the multiplier is applied. Missing usage falls back to
// the estimate.
func (c *ModelCatalog) ActualCost(m *domain.Model, promptTokens, completionTokens *int64) decimal.Decimal {
	if promptTokens == nil || completionTokens == nil {
		return c.EstimateCost(m)
	}
	promptCost := money.DivRound(m.PromptRate.Mul(decimal.NewFromInt(*promptTokens)), tokensPerRateUnit)
	completionCost := money.DivRound(m.CompletionRate.Mul(decimal.NewFromInt(*completionTokens)), tokensPerRateUnit)
	return money.Mul(promptCost.Add(completionCost), m.Multiplier)
}

// paginate clamps a 1-based page into range and returns slice bounds
func paginate(total, page, size int) (start, end, clamped, pages int) {
	if size < 1 {
		size = 1
	}
	pages = (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	clamped = min(max(page, 1), pages)
	start = min((clamped-1)*size, total)
	end = min(start+size, total)
	return start, end, clamped, pages
}
