package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	config "github.com/inference-gateway/chatledger/config"
	commands "github.com/inference-gateway/chatledger/internal/commands"
	domain "github.com/inference-gateway/chatledger/internal/domain"
	adapters "github.com/inference-gateway/chatledger/internal/infra/adapters"
	storage "github.com/inference-gateway/chatledger/internal/infra/storage"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	money "github.com/inference-gateway/chatledger/internal/money"
	services "github.com/inference-gateway/chatledger/internal/services"
	httpapi "github.com/inference-gateway/chatledger/internal/transport/http"
	telegram "github.com/inference-gateway/chatledger/internal/transport/telegram"
	viper "github.com/spf13/viper"
)

// ServiceContainer manages all application dependencies
type ServiceContainer struct {
	// Configuration
	viper  *viper.Viper
	config *config.Config
	admins domain.AdminDirectory

	// Storage
	store     storage.Store
	codeStore *storage.RedisCodeStore

	// Domain services
	ledger        *services.Ledger
	catalog       *services.ModelCatalog
	conversations *services.ConversationService
	pipeline      *services.BillingPipeline
	dispatcher    *services.Dispatcher
	confirmations *services.ConfirmationService
	ai            domain.AIClient
	chatService   *services.ChatService
	rewards       *services.RewardScheduler

	// Chat surface
	registry *commands.Registry
	router   *commands.Router
	events   *httpapi.EventHub
}

// Option overrides a collaborator, mainly for tests
type Option func(c *ServiceContainer)

// WithStore uses store instead of opening the configured backend
func WithStore(store storage.Store) Option {
	return func(c *ServiceContainer) { c.store = store }
}

// WithAIClient uses ai instead of the gateway SDK client
func WithAIClient(ai domain.AIClient) Option {
	return func(c *ServiceContainer) { c.ai = ai }
}

// NewServiceContainer creates a new service container with all dependencies
func NewServiceContainer(cfg *config.Config, v *viper.Viper, opts ...Option) (*ServiceContainer, error) {
	container := &ServiceContainer{
		config: cfg,
		viper:  v,
	}
	for _, opt := range opts {
		opt(container)
	}

	if v != nil {
		container.admins = config.NewAdminDirectory(v)
	} else {
		container.admins = domain.StaticAdmins(cfg.Admin.Identities)
	}

	if err := container.initializeStorage(); err != nil {
		return nil, err
	}
	if err := container.initializeDomainServices(); err != nil {
		_ = container.Close()
		return nil, err
	}
	container.initializeChatSurface()

	return container, nil
}

func (c *ServiceContainer) initializeStorage() error {
	if c.store == nil {
		store, err := storage.NewStore(c.config.Storage)
		if err != nil {
			return fmt.Errorf("failed to open %s storage: %w", c.config.Storage.Type, err)
		}
		c.store = store
	}

	if c.config.Redis.Enabled {
		codes, err := storage.NewRedisCodeStore(c.config.Redis)
		if err != nil {
			_ = c.store.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.codeStore = codes
	}
	return nil
}

// initializeDomainServices creates and wires domain service implementations
func (c *ServiceContainer) initializeDomainServices() error {
	catalogOpts, err := c.catalogOptions()
	if err != nil {
		return err
	}

	c.ledger = services.NewLedger(c.store, c.admins)
	c.catalog = services.NewModelCatalog(c.store, catalogOpts)
	c.conversations = services.NewConversationService(c.store, c.ledger, c.catalog)

	c.events = httpapi.NewEventHub()
	c.pipeline = services.NewBillingPipeline(c.store, c.ledger, c.catalog)
	c.pipeline.Subscribe(c.events)
	c.dispatcher = services.NewDispatcher(c.pipeline, c.config.Billing.Workers, c.config.Billing.BufferSize)

	var codes services.ConfirmationStore = services.NewMemoryConfirmationStore()
	if c.codeStore != nil {
		codes = c.codeStore
	}
	c.confirmations = services.NewConfirmationService(codes, time.Duration(c.config.Admin.ConfirmationTTL)*time.Second)

	if c.ai == nil {
		c.ai = adapters.NewSDKClient(adapters.GatewayOptions{
			URL:          c.config.Gateway.URL,
			APIKey:       c.config.Gateway.APIKey,
			Timeout:      time.Duration(c.config.Gateway.Timeout) * time.Second,
			MaxRetries:   c.config.Gateway.MaxRetries,
			SystemPrompt: c.config.Gateway.SystemPrompt,
		})
	}
	c.chatService = services.NewChatService(c.ledger, c.catalog, c.conversations, c.ai, c.dispatcher, c.pipeline, c.config.Gateway.HistoryLimit)

	c.rewards = services.NewRewardScheduler(c.ledger, c.RewardPlans()...)
	return nil
}

func (c *ServiceContainer) catalogOptions() (services.CatalogOptions, error) {
	opts := services.DefaultCatalogOptions()
	if c.config.Billing.DefaultMultiplier != "" {
		multiplier, err := money.ParsePositive(c.config.Billing.DefaultMultiplier)
		if err != nil {
			return opts, fmt.Errorf("billing.default_multiplier: %w", err)
		}
		opts.DefaultMultiplier = multiplier
	}
	opts.EstimatePromptTokens = c.config.Billing.EstimatePromptTokens
	opts.EstimateCompletionTokens = c.config.Billing.EstimateCompletionTokens
	return opts, nil
}

// initializeChatSurface registers the chat commands
func (c *ServiceContainer) initializeChatSurface() {
	deps := commands.Deps{
		Ledger:        c.ledger,
		Catalog:       c.catalog,
		Conversations: c.conversations,
		Chat:          c.chatService,
		Confirmations: c.confirmations,
		Options: commands.Options{
			PageSize:         c.config.History.PageSize,
			PreviewLength:    c.config.History.PreviewLength,
			TransactionLimit: c.config.History.TransactionLimit,
			ModelPageSize:    c.config.History.ModelPageSize,
		},
	}
	c.registry = commands.NewRegistry()
	commands.RegisterDefaults(c.registry, deps)
	c.router = commands.NewRouter(c.registry, deps)
}

// RewardPlans returns the configured reward plans, none when rewards are off
func (c *ServiceContainer) RewardPlans() []services.RewardPlan {
	if !c.config.Reward.Enabled {
		return nil
	}
	var plans []services.RewardPlan
	if amount, err := money.ParsePositive(c.config.Reward.Amount); err == nil {
		every := time.Duration(c.config.Reward.IntervalMinutes) * time.Minute
		plans = append(plans, services.DailyRewardPlan(amount, every))
	}
	if c.config.Reward.WeeklyAmount != "" {
		if amount, err := money.ParsePositive(c.config.Reward.WeeklyAmount); err == nil {
			plans = append(plans, services.WeeklyRewardPlan(amount))
		}
	}
	return plans
}

// NewTelegramTransport creates the Telegram bot. onShutdown runs after an
// admin confirmed /shutdown.
func (c *ServiceContainer) NewTelegramTransport(onShutdown func()) (*telegram.Transport, error) {
	return telegram.New(c.router, telegram.Options{
		Token:      c.config.Telegram.Token,
		RateLimit:  c.config.Telegram.RateLimit,
		Burst:      c.config.Telegram.Burst,
		OnShutdown: onShutdown,
	})
}

// NewAPIServer creates the HTTP API server
func (c *ServiceContainer) NewAPIServer() *httpapi.Server {
	return httpapi.NewServer(c.config.API.Address, httpapi.Deps{
		Health:           c.store,
		Ledger:           c.ledger,
		Catalog:          c.catalog,
		Conversations:    c.conversations,
		Events:           c.events,
		PageSize:         c.config.History.PageSize,
		TransactionLimit: c.config.History.TransactionLimit,
	})
}

// Health checks every backing service
func (c *ServiceContainer) Health(ctx context.Context) error {
	var errs []error
	if err := c.store.Health(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", c.store.Dialect(), err))
	}
	if c.codeStore != nil {
		if err := c.codeStore.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases storage connections
func (c *ServiceContainer) Close() error {
	var errs []error
	if c.codeStore != nil {
		errs = append(errs, c.codeStore.Close())
	}
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("failed to close storage", "error", err)
		return err
	}
	return nil
}

// GetConfig returns the loaded configuration
func (c *ServiceContainer) GetConfig() *config.Config {
	return c.config
}

// GetViper returns the live configuration source, nil in tests
func (c *ServiceContainer) GetViper() *viper.Viper {
	return c.viper
}

// GetStore returns the storage backend
func (c *ServiceContainer) GetStore() storage.Store {
	return c.store
}

// GetLedger returns the ledger
func (c *ServiceContainer) GetLedger() *services.Ledger {
	return c.ledger
}

// GetCatalog returns the model catalog
func (c *ServiceContainer) GetCatalog() *services.ModelCatalog {
	return c.catalog
}

// GetConversationService returns the conversation service
func (c *ServiceContainer) GetConversationService() *services.ConversationService {
	return c.conversations
}

// GetBillingPipeline returns the billing pipeline
func (c *ServiceContainer) GetBillingPipeline() *services.BillingPipeline {
	return c.pipeline
}

// GetDispatcher returns the billing dispatcher
func (c *ServiceContainer) GetDispatcher() *services.Dispatcher {
	return c.dispatcher
}

// GetChatService returns the chat service
func (c *ServiceContainer) GetChatService() *services.ChatService {
	return c.chatService
}

// GetRewardScheduler returns the reward scheduler
func (c *ServiceContainer) GetRewardScheduler() *services.RewardScheduler {
	return c.rewards
}

// GetRouter returns the chat command router
func (c *ServiceContainer) GetRouter() *commands.Router {
	return c.router
}

// GetEventHub returns the receipt broadcast hub
func (c *ServiceContainer) GetEventHub() *httpapi.EventHub {
	return c.events
}
