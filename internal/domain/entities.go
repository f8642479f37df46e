package domain

import (
	"time"

	uuid "github.com/google/uuid"
	decimal "github.com/shopspring/decimal"
)

// User is a platform identity holding a prepaid balance.
type User struct {
	ID             uuid.UUID
	Identity       string
	Balance        decimal.Decimal
	Role           Role
	Status         UserStatus
	DefaultModel   string
	ContinuousChat bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasDefaultModel reports whether the user picked a model for implicit chats.
func (u *User) HasDefaultModel() bool {
	return u.DefaultModel != ""
}

// Model is a billable AI model. Rates are per 1000 tokens.
type Model struct {
	ID             uuid.UUID
	Name           string
	PromptRate     decimal.Decimal
	CompletionRate decimal.Decimal
	Multiplier     decimal.Decimal
	Status         ModelStatus
	Description    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsActive reports whether the model is offered to users
func (m *Model) IsActive() bool {
	return m.Status == ModelStatusActive
}

// Conversation groups exchanges with a single model. The model is bound at
// creation and never changes.
type Conversation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ModelName string
	Status    ConversationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the conversation still accepts exchanges
func (c *Conversation) IsActive() bool {
	return c.Status == ConversationStatusActive
}

// Message is one side of an exchange. Messages are append-only.
type Message struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	ConversationID uuid.UUID
	ExchangeID     uuid.UUID
	Content        string
	Role           MessageRole
	TokenCount     *int64
	Cost           *decimal.Decimal
	IsError        bool
	CreatedAt      time.Time
}

// Transaction is an immutable ledger entry. The sum of a user's transaction
// amounts always equals the user's balance.
type Transaction struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Kind           TransactionKind
	Description    string
	ConversationID *uuid.UUID
	ExchangeID     *uuid.UUID
	CreatedAt      time.Time
}

// DeadLetter keeps a billing event whose persistence failed, for replay.
type DeadLetter struct {
	ID         uuid.UUID
	ExchangeID uuid.UUID
	Kind       DeadLetterKind
	Payload    []byte
	Error      string
	Attempts   int
	Resolved   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewID returns a time-ordered identifier.
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
