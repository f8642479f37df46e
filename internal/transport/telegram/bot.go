package telegram

import (
	"context"
	"strconv"
	"time"

	bot "github.com/go-telegram/bot"
	models "github.com/go-telegram/bot/models"
	commands "github.com/inference-gateway/chatledger/internal/commands"
	logger "github.com/inference-gateway/chatledger/internal/logger"
)

// Handler answers inbound chat messages
type Handler interface {
	Handle(ctx context.Context, in commands.Inbound) (*commands.Reply, error)
}

// Sender delivers replies to a chat
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Options configures the Telegram transport
type Options struct {
	Token     string
	RateLimit float64
	Burst     int
	// OnShutdown runs after a confirmed /shutdown reply was sent
	OnShutdown func()
}

// Transport receives Telegram updates and routes them to the chat handler
type Transport struct {
	handler    Handler
	limiter    *userLimiter
	onShutdown func()
	bot        *bot.Bot
}

// New creates a Telegram transport. The bot connects on Start.
func New(handler Handler, opts Options) (*Transport, error) {
	t := &Transport{
		handler:    handler,
		limiter:    newUserLimiter(opts.RateLimit, opts.Burst),
		onShutdown: opts.OnShutdown,
	}

	b, err := bot.New(opts.Token, bot.WithDefaultHandler(t.onUpdate), bot.WithSkipGetMe())
	if err != nil {
		return nil, err
	}
	t.bot = b
	return t, nil
}

// Start polls for updates until ctx is done
func (t *Transport) Start(ctx context.Context) {
	go t.pruneLoop(ctx)
	logger.Info("telegram transport started")
	t.bot.Start(ctx)
	logger.Info("telegram transport stopped")
}

func (t *Transport) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.limiter.prune(); n > 0 {
				logger.Debug("pruned idle rate limiters", "count", n)
			}
		}
	}
}

func (t *Transport) onUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	t.process(ctx, b, update)
}

// inbound converts a Telegram message into a handler message
func inbound(msg *models.Message) (commands.Inbound, bool) {
	if msg == nil || msg.From == nil || msg.Text == "" {
		return commands.Inbound{}, false
	}
	name := msg.From.Username
	if name == "" {
		name = msg.From.FirstName
	}
	return commands.Inbound{
		Identity:    strconv.FormatInt(msg.From.ID, 10),
		DisplayName: name,
		Text:        msg.Text,
		Private:     msg.Chat.Type == models.ChatTypePrivate,
	}, true
}

func (t *Transport) process(ctx context.Context, s Sender, update *models.Update) {
	in, ok := inbound(update.Message)
	if !ok {
		return
	}

	if !t.limiter.Allow(in.Identity) {
		logger.Warn("rate limited", "identity", in.Identity)
		if in.Private {
			t.send(ctx, s, update.Message, "You are sending messages too fast, please slow down.")
		}
		return
	}

	reply, err := t.handler.Handle(ctx, in)
	if err != nil {
		logger.Error("failed to handle message", "identity", in.Identity, "error", err)
		t.send(ctx, s, update.Message, "An error occurred while processing the request: "+err.Error())
		return
	}
	if reply == nil {
		return
	}

	t.send(ctx, s, update.Message, reply.Text)
	if reply.SideEffect == commands.SideEffectShutdown && t.onShutdown != nil {
		t.onShutdown()
	}
}

func (t *Transport) send(ctx context.Context, s Sender, to *models.Message, text string) {
	params := &bot.SendMessageParams{ChatID: to.Chat.ID, Text: text}
	if to.Chat.Type != models.ChatTypePrivate {
		params.ReplyParameters = &models.ReplyParameters{MessageID: to.ID}
	}
	if _, err := s.SendMessage(ctx, params); err != nil {
		logger.Error("failed to send telegram message", "chat_id", to.Chat.ID, "error", err)
	}
}
