package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is the privilege level of a user
type Role string

const (
	RoleStandard Role = "standard"
	RoleAdmin    Role = "admin"
)

// UserStatus is the account standing of a user
type UserStatus string

const (
	UserStatusNormal UserStatus = "normal"
	UserStatusBanned UserStatus = "banned"
)

// ModelStatus controls whether a model is offered to users
type ModelStatus string

const (
	ModelStatusActive   ModelStatus = "active"
	ModelStatusDisabled ModelStatus = "disabled"
)

// ConversationStatus is the lifecycle state of a conversation
type ConversationStatus string

const (
	ConversationStatusActive ConversationStatus = "active"
	ConversationStatusClosed ConversationStatus = "closed"
)

// MessageRole identifies the author of a message
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// TransactionKind classifies a ledger entry
type TransactionKind string

const (
	TransactionKindRecharge TransactionKind = "recharge"
	TransactionKindConsume  TransactionKind = "consume"
)

// DeadLetterKind names the billing event a dead letter holds
type DeadLetterKind string

const (
	DeadLetterKindCompleted DeadLetterKind = "completed"
	DeadLetterKindFailed    DeadLetterKind = "failed"
)

func parseEnum[T ~string](text string, allowed ...T) (T, error) {
	candidate := T(strings.ToLower(strings.TrimSpace(text)))
	for _, a := range allowed {
		if candidate == a {
			return a, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %T %q", zero, text)
}

func scanEnum[T ~string](dst *T, src any, parse func(string) (T, error)) error {
	var text string
	switch v := src.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, *dst)
	}
	parsed, err := parse(text)
	if err != nil {
		return err
	}
	*dst = parsed
	return nil
}

// ParseRole parses a role name
func ParseRole(s string) (Role, error) { return parseEnum(s, RoleStandard, RoleAdmin) }

// ParseUserStatus parses a user status
func ParseUserStatus(s string) (UserStatus, error) {
	return parseEnum(s, UserStatusNormal, UserStatusBanned)
}

// ParseModelStatus parses a model status
func ParseModelStatus(s string) (ModelStatus, error) {
	return parseEnum(s, ModelStatusActive, ModelStatusDisabled)
}

// ParseConversationStatus parses a conversation status
func ParseConversationStatus(s string) (ConversationStatus, error) {
	return parseEnum(s, ConversationStatusActive, ConversationStatusClosed)
}

// ParseMessageRole parses a message role
func ParseMessageRole(s string) (MessageRole, error) {
	return parseEnum(s, MessageRoleUser, MessageRoleAssistant)
}

// ParseTransactionKind parses a transaction kind
func ParseTransactionKind(s string) (TransactionKind, error) {
	return parseEnum(s, TransactionKindRecharge, TransactionKindConsume)
}

// ParseDeadLetterKind parses a dead letter kind
func ParseDeadLetterKind(s string) (DeadLetterKind, error) {
	return parseEnum(s, DeadLetterKindCompleted, DeadLetterKindFailed)
}

// Scan implements sql.Scanner
func (r *Role) Scan(src any) error { return scanEnum(r, src, ParseRole) }

// Value implements driver.Valuer
func (r Role) Value() (driver.Value, error) { return string(r), nil }

func (s *UserStatus) Scan(src any) error { return scanEnum(s, src, ParseUserStatus) }

func (s UserStatus) Value() (driver.Value, error) { return string(s), nil }

func (s *ModelStatus) Scan(src any) error { return scanEnum(s, src, ParseModelStatus) }

func (s ModelStatus) Value() (driver.Value, error) { return string(s), nil }

func (s *ConversationStatus) Scan(src any) error {
	return scanEnum(s, src, ParseConversationStatus)
}

func (s ConversationStatus) Value() (driver.Value, error) { return string(s), nil }

func (r *MessageRole) Scan(src any) error { return scanEnum(r, src, ParseMessageRole) }

func (r MessageRole) Value() (driver.Value, error) { return string(r), nil }

func (k *TransactionKind) Scan(src any) error { return scanEnum(k, src, ParseTransactionKind) }

func (k TransactionKind) Value() (driver.Value, error) { return string(k), nil }

func (k *DeadLetterKind) Scan(src any) error { return scanEnum(k, src, ParseDeadLetterKind) }

func (k DeadLetterKind) Value() (driver.Value, error) { return string(k), nil }
