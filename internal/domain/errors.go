package domain

import (
	"errors"
	"fmt"

	money "github.com/inference-gateway/chatledger/internal/money"
	decimal "github.com/shopspring/decimal"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrDuplicateModelName      = errors.New("model name already exists")
	ErrInvalidAmount           = money.ErrInvalidAmount
	ErrNonPositiveAmount       = money.ErrNonPositiveAmount
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrPermissionDenied        = errors.New("permission denied")
	ErrNoDefaultModel          = errors.New("no default model set")
	ErrContinuousNotEnabled    = errors.New("continuous chat is not enabled")
	ErrInvalidConfirmationCode = errors.New("invalid or expired confirmation code")
	ErrDuplicateExchange       = errors.New("exchange already recorded")
	ErrModelUnavailable        = errors.New("model is not available")
	ErrUserBanned              = errors.New("user is banned")
)

// NotFoundError names the entity that could not be found
type NotFoundError struct {
	Entity string
	Key    string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// Unwrap lets errors.Is match ErrNotFound
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFound builds a NotFoundError
func NewNotFound(entity, key string) error {
	return &NotFoundError{Entity: entity, Key: key}
}

// InsufficientBalanceError carries the figures behind a rejected request
type InsufficientBalanceError struct {
	Balance  decimal.Decimal
	Required decimal.Decimal
}

// Error implements the error interface
func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %s, need %s",
		money.Format(e.Balance), money.Format(e.Required))
}

// Unwrap lets errors.Is match ErrInsufficientBalance
func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}
