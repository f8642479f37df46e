package domain

import "context"

// ChatTurn is one prior message sent to the AI collaborator as context
type ChatTurn struct {
	Role    MessageRole
	Content string
}

// Usage is the token accounting reported by the AI collaborator
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Completion is an AI answer. Usage is nil when the provider omits it.
type Completion struct {
	Content string
	Usage   *Usage
}

// AIClient answers a question in the context of a conversation history
type AIClient interface {
	Complete(ctx context.Context, model string, history []ChatTurn, question string) (*Completion, error)
}

// AdminDirectory is the externally configured list of admin identities
type AdminDirectory interface {
	IsAdmin(identity string) bool
}

// BillingPublisher accepts billing events for asynchronous processing
type BillingPublisher interface {
	Publish(ctx context.Context, event BillingEvent) error
}

// ReceiptSubscriber receives every billing outcome
type ReceiptSubscriber interface {
	OnReceipt(receipt BillingReceipt)
}

// StaticAdmins is an AdminDirectory backed by a fixed list
type StaticAdmins []string

// IsAdmin reports whether identity is in the list
func (s StaticAdmins) IsAdmin(identity string) bool {
	for _, id := range s {
		if id == identity {
			return true
		}
	}
	return false
}
