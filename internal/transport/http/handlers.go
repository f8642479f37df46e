package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	domain "github.com/inference-gateway/chatledger/internal/domain"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	money "github.com/inference-gateway/chatledger/internal/money"
	echo "github.com/labstack/echo/v4"
)

// ModelResponse is one billable model with its prices
type ModelResponse struct {
	Name           string `json:"name"`
	PromptRate     string `json:"prompt_rate"`
	CompletionRate string `json:"completion_rate"`
	Multiplier     string `json:"multiplier"`
	Description    string `json:"description,omitempty"`
}

// TransactionResponse is one ledger row
type TransactionResponse struct {
	ID          string    `json:"id"`
	Amount      string    `json:"amount"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// BalanceResponse is a user's balance with recent transactions
type BalanceResponse struct {
	Identity     string                `json:"identity"`
	Balance      string                `json:"balance"`
	Status       string                `json:"status"`
	Transactions []TransactionResponse `json:"transactions"`
}

// HistoryEntryResponse summarizes one conversation
type HistoryEntryResponse struct {
	ConversationID string    `json:"conversation_id"`
	Model          string    `json:"model"`
	Status         string    `json:"status"`
	FirstQuestion  string    `json:"first_question"`
	FirstAnswer    string    `json:"first_answer"`
	Messages       int       `json:"messages"`
	CreatedAt      time.Time `json:"created_at"`
}

// HistoryResponse is one page of conversations
type HistoryResponse struct {
	Identity   string                 `json:"identity"`
	Page       int                    `json:"page"`
	TotalPages int                    `json:"total_pages"`
	Total      int                    `json:"total"`
	Entries    []HistoryEntryResponse `json:"entries"`
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// Healthz reports storage reachability.
// GET /healthz
func (s *Server) Healthz(c echo.Context) error {
	if s.deps.Health == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
	if err := s.deps.Health.Health(c.Request().Context()); err != nil {
		logger.Warn("health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "unavailable",
			"storage": s.deps.Health.Dialect(),
			"error":   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "storage": s.deps.Health.Dialect()})
}

// ListModels lists active models.
// GET /v1/models
func (s *Server) ListModels(c echo.Context) error {
	models, err := s.deps.Catalog.ListActive(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	resp := make([]ModelResponse, len(models))
	for i, m := range models {
		resp[i] = ModelResponse{
			Name:           m.Name,
			PromptRate:     money.Format(m.PromptRate),
			CompletionRate: money.Format(m.CompletionRate),
			Multiplier:     m.Multiplier.String(),
			Description:    m.Description,
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"models": resp})
}

// GetBalance returns a user's balance and recent transactions.
// GET /v1/users/:identity/balance?limit=N
func (s *Server) GetBalance(c echo.Context) error {
	ctx := c.Request().Context()
	identity := c.Param("identity")

	limit := s.deps.TransactionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return errorJSON(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	if _, err := s.deps.Ledger.Find(ctx, identity); err != nil {
		return s.lookupError(c, err)
	}
	view, err := s.deps.Ledger.Balance(ctx, identity, limit)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	resp := BalanceResponse{
		Identity:     view.User.Identity,
		Balance:      money.Format(view.User.Balance),
		Status:       string(view.User.Status),
		Transactions: make([]TransactionResponse, len(view.Transactions)),
	}
	for i, tx := range view.Transactions {
		resp.Transactions[i] = TransactionResponse{
			ID:          tx.ID.String(),
			Amount:      money.Format(tx.Amount),
			Kind:        string(tx.Kind),
			Description: tx.Description,
			CreatedAt:   tx.CreatedAt,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// GetHistory pages through a user's conversations.
// GET /v1/users/:identity/history?page=N
func (s *Server) GetHistory(c echo.Context) error {
	ctx := c.Request().Context()
	identity := c.Param("identity")

	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "page must be an integer")
		}
		page = n
	}

	user, err := s.deps.Ledger.Find(ctx, identity)
	if err != nil {
		return s.lookupError(c, err)
	}
	hist, err := s.deps.Conversations.History(ctx, user, page, s.deps.PageSize)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	resp := HistoryResponse{
		Identity:   identity,
		Page:       hist.Page,
		TotalPages: hist.TotalPages,
		Total:      hist.Total,
		Entries:    make([]HistoryEntryResponse, len(hist.Entries)),
	}
	for i, e := range hist.Entries {
		resp.Entries[i] = HistoryEntryResponse{
			ConversationID: e.Conversation.ID.String(),
			Model:          e.Conversation.ModelName,
			Status:         string(e.Conversation.Status),
			FirstQuestion:  e.FirstQuestion,
			FirstAnswer:    e.FirstAnswer,
			Messages:       e.MessageCount,
			CreatedAt:      e.Conversation.CreatedAt,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) lookupError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "user not found")
	}
	return errorJSON(c, http.StatusInternalServerError, err.Error())
}
