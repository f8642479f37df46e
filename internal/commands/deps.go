package commands

import (
	services "github.com/inference-gateway/chatledger/internal/services"
)

// Options controls how listings are paged and previewed
type Options struct {
	PageSize         int
	PreviewLength    int
	TransactionLimit int
	ModelPageSize    int
}

// DefaultOptions returns five entries per page and fifty character previews
func DefaultOptions() Options {
	return Options{PageSize: 5, PreviewLength: 50, TransactionLimit: 5, ModelPageSize: 10}
}

// Deps are the services chat commands operate on
type Deps struct {
	Ledger        *services.Ledger
	Catalog       *services.ModelCatalog
	Conversations *services.ConversationService
	Chat          *services.ChatService
	Confirmations *services.ConfirmationService
	Options       Options
}

// RegisterDefaults registers every chat command on r
func RegisterDefaults(r *Registry, d Deps) {
	r.Register(NewChatCommand(d))
	r.Register(NewEndCommand(d))
	r.Register(NewContinuousCommand(d))
	r.Register(NewSetModelCommand(d))
	r.Register(NewDefaultModelCommand(d))
	r.Register(NewBalanceCommand(d))
	r.Register(NewHistoryCommand(d))
	r.Register(NewModelsCommand(d))
	r.Register(NewSearchModelCommand(d))
	r.Register(NewRechargeCommand(d))
	r.Register(NewAddModelCommand(d))
	r.Register(NewModelStatusCommand(d))
	r.Register(NewShutdownCommand(d))
	r.Register(NewHelpCommand(r))
}
