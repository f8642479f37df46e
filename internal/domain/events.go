package domain

import (
	"time"

	uuid "github.com/google/uuid"
	decimal "github.com/shopspring/decimal"
)

// BillingEvent is published once per finished exchange
type BillingEvent interface {
	GetExchangeID() uuid.UUID
	GetIdentity() string
	GetTimestamp() time.Time
	Kind() DeadLetterKind
}

// ChatExchangeCompleted reports a successful AI exchange awaiting billing.
// Token counts are nil when the AI collaborator did not report usage.
type ChatExchangeCompleted struct {
	ExchangeID       uuid.UUID       `json:"exchange_id"`
	UserID           uuid.UUID       `json:"user_id"`
	Identity         string          `json:"identity"`
	ConversationID   uuid.UUID       `json:"conversation_id"`
	ModelName        string          `json:"model_name"`
	Question         string          `json:"question"`
	Answer           string          `json:"answer"`
	PromptTokens     *int64          `json:"prompt_tokens,omitempty"`
	CompletionTokens *int64          `json:"completion_tokens,omitempty"`
	EstimatedCost    decimal.Decimal `json:"estimated_cost"`
	Timestamp        time.Time       `json:"timestamp"`
}

func (e ChatExchangeCompleted) GetExchangeID() uuid.UUID { return e.ExchangeID }
func (e ChatExchangeCompleted) GetIdentity() string      { return e.Identity }
func (e ChatExchangeCompleted) GetTimestamp() time.Time  { return e.Timestamp }
func (e ChatExchangeCompleted) Kind() DeadLetterKind     { return DeadLetterKindCompleted }

// TotalTokens returns prompt plus completion tokens when both are known
func (e ChatExchangeCompleted) TotalTokens() (int64, bool) {
	if e.PromptTokens == nil || e.CompletionTokens == nil {
		return 0, false
	}
	return *e.PromptTokens + *e.CompletionTokens, true
}

// ChatExchangeFailed reports an exchange the AI collaborator could not answer.
// It is recorded but never billed.
type ChatExchangeFailed struct {
	ExchangeID     uuid.UUID `json:"exchange_id"`
	UserID         uuid.UUID `json:"user_id"`
	Identity       string    `json:"identity"`
	ConversationID uuid.UUID `json:"conversation_id"`
	ModelName      string    `json:"model_name"`
	Question       string    `json:"question"`
	ErrorMessage   string    `json:"error_message"`
	Timestamp      time.Time `json:"timestamp"`
}

func (e ChatExchangeFailed) GetExchangeID() uuid.UUID { return e.ExchangeID }
func (e ChatExchangeFailed) GetIdentity() string      { return e.Identity }
func (e ChatExchangeFailed) GetTimestamp() time.Time  { return e.Timestamp }
func (e ChatExchangeFailed) Kind() DeadLetterKind     { return DeadLetterKindFailed }

// BillingReceipt is the outcome of billing one completed exchange
type BillingReceipt struct {
	ExchangeID     uuid.UUID       `json:"exchange_id"`
	Identity       string          `json:"identity"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	ModelName      string          `json:"model_name"`
	Cost           decimal.Decimal `json:"cost"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	Failed         bool            `json:"failed"`
	Timestamp      time.Time       `json:"timestamp"`
}
