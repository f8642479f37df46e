package commands

import (
	"context"

	domain "github.com/inference-gateway/chatledger/internal/domain"
)

// Command interface represents a chat command that can be executed
type Command interface {
	GetName() string
	GetDescription() string
	GetUsage() string
	Execute(ctx context.Context, req Request) (CommandResult, error)
	CanExecute(args []string) bool
}

// Request carries the caller and the arguments of one command
type Request struct {
	Caller  *domain.User
	Args    []string
	Private bool
}

// CommandResult represents the result of a command execution
type CommandResult struct {
	Output     string
	Success    bool
	SideEffect SideEffectType
}

// SideEffectType defines the types of side effects a command can have
type SideEffectType int

const (
	SideEffectNone SideEffectType = iota
	SideEffectShutdown
)
