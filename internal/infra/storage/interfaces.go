package storage

import (
	"context"
	"time"

	uuid "github.com/google/uuid"
	domain "github.com/inference-gateway/chatledger/internal/domain"
	decimal "github.com/shopspring/decimal"
)

// UserRepository persists users. Lookups return domain.ErrNotFound when absent.
type UserRepository interface {
	GetByIdentity(ctx context.Context, identity string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// GetForUpdate reads a user and, on backends that support it, locks the
	// row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error
	ListByStatus(ctx context.Context, status domain.UserStatus) ([]*domain.User, error)
}

// ModelRepository persists the model catalog
type ModelRepository interface {
	GetByName(ctx context.Context, name string) (*domain.Model, error)
	// Create returns domain.ErrDuplicateModelName when the name is taken
	Create(ctx context.Context, model *domain.Model) error
	Update(ctx context.Context, model *domain.Model) error
	// List returns models in insertion order. An empty status lists all.
	List(ctx context.Context, status domain.ModelStatus) ([]*domain.Model, error)
}

// ConversationRepository persists conversations
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	// ListActive returns active conversations, most recently created first
	ListActive(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error)
	Update(ctx context.Context, conv *domain.Conversation) error
	CloseAllActive(ctx context.Context, userID uuid.UUID, at time.Time) (int, error)
	// ListByUser pages through all conversations, most recently created first
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// MessageRepository persists append-only messages
type MessageRepository interface {
	Append(ctx context.Context, msg *domain.Message) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error)
	ExistsForExchange(ctx context.Context, exchangeID uuid.UUID) (bool, error)
}

// TransactionRepository persists the append-only ledger
type TransactionRepository interface {
	Append(ctx context.Context, tx *domain.Transaction) error
	// ListByUser returns the newest transactions first
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Transaction, error)
	SumByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ExistsForExchange(ctx context.Context, exchangeID uuid.UUID) (bool, error)
}

// DeadLetterRepository keeps billing events that could not be persisted
type DeadLetterRepository interface {
	Add(ctx context.Context, letter *domain.DeadLetter) error
	Get(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error)
	ListPending(ctx context.Context, limit int) ([]*domain.DeadLetter, error)
	MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordAttempt(ctx context.Context, id uuid.UUID, errText string, at time.Time) error
}

// Repositories groups the repositories bound to one connection or transaction
type Repositories struct {
	Users         UserRepository
	Models        ModelRepository
	Conversations ConversationRepository
	Messages      MessageRepository
	Transactions  TransactionRepository
	DeadLetters   DeadLetterRepository
}

// TxFunc is the body of an atomic unit of work
type TxFunc func(ctx context.Context, repos Repositories) error

// Store is a storage backend
type Store interface {
	// Repos returns repositories that run outside any transaction
	Repos() Repositories
	// InTx runs fn atomically. Any error rolls back every write made by fn.
	InTx(ctx context.Context, fn TxFunc) error
	Health(ctx context.Context) error
	Close() error
	Dialect() string
}

// StorageConfig contains storage backend configuration
type StorageConfig struct {
	// Type specifies the storage backend type (sqlite, postgres, memory)
	Type string `json:"type" yaml:"type" mapstructure:"type"`

	SQLite   SQLiteConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `json:"postgres,omitempty" yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific configuration
type SQLiteConfig struct {
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains Postgres-specific configuration
type PostgresConfig struct {
	Host         string `json:"host" yaml:"host" mapstructure:"host"`
	Port         int    `json:"port" yaml:"port" mapstructure:"port"`
	Database     string `json:"database" yaml:"database" mapstructure:"database"`
	Username     string `json:"username" yaml:"username" mapstructure:"username"`
	Password     string `json:"password" yaml:"password" mapstructure:"password"`
	SSLMode      string `json:"ssl_mode" yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns"`
}

// RedisConfig contains Redis-specific configuration
type RedisConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Host      string `json:"host" yaml:"host" mapstructure:"host"`
	Port      int    `json:"port" yaml:"port" mapstructure:"port"`
	Database  int    `json:"database" yaml:"database" mapstructure:"database"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	Username  string `json:"username,omitempty" yaml:"username,omitempty" mapstructure:"username"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty" mapstructure:"key_prefix"`
}
