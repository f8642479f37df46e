package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	domain "github.com/inference-gateway/chatledger/internal/domain"
	migrations "github.com/inference-gateway/chatledger/internal/infra/storage/migrations"
	pq "github.com/lib/pq"
	decimal "github.com/shopspring/decimal"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store on database/sql for SQLite and PostgreSQL
type SQLStore struct {
	db      *sql.DB
	dialect migrations.Dialect
}

func newSQLStore(db *sql.DB, dialect migrations.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// DB exposes the underlying connection pool
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the store
func (s *SQLStore) Dialect() string {
	return string(s.dialect)
}

// Migrate applies pending migrations
func (s *SQLStore) Migrate(ctx context.Context) (int, error) {
	return migrations.NewRunner(s.db, s.dialect).Apply(ctx)
}

// MigrationStatus reports applied and pending migrations
func (s *SQLStore) MigrationStatus(ctx context.Context) ([]migrations.MigrationStatus, error) {
	return migrations.NewRunner(s.db, s.dialect).Status(ctx)
}

// Repos returns repositories running directly on the pool
func (s *SQLStore) Repos() Repositories {
	return s.bind(s.db)
}

// InTx runs fn inside a database transaction
func (s *SQLStore) InTx(ctx context.Context, fn TxFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, s.bind(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Health pings the database
func (s *SQLStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) bind(q querier) Repositories {
	c := sqlConn{q: q, dialect: s.dialect}
	return Repositories{
		Users:         sqlUsers{c},
		Models:        sqlModels{c},
		Conversations: sqlConversations{c},
		Messages:      sqlMessages{c},
		Transactions:  sqlTransactions{c},
		DeadLetters:   sqlDeadLetters{c},
	}
}

type sqlConn struct {
	q       querier
	dialect migrations.Dialect
}

// rebind converts ? placeholders to $n for PostgreSQL
func (c sqlConn) rebind(query string) string {
	if c.dialect != migrations.DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c sqlConn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

func (c sqlConn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c sqlConn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// users

const userColumns = "id, identity, balance, role, status, default_model, continuous_chat, created_at, updated_at"

type sqlUsers struct{ sqlConn }

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Identity, &u.Balance, &u.Role, &u.Status,
		&u.DefaultModel, &u.ContinuousChat, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r sqlUsers) getOne(ctx context.Context, key, query string, args ...any) (*domain.User, error) {
	u, err := scanUser(r.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("user", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", key, err)
	}
	return u, nil
}

func (r sqlUsers) GetByIdentity(ctx context.Context, identity string) (*domain.User, error) {
	return r.getOne(ctx, identity, "SELECT "+userColumns+" FROM users WHERE identity = ?", identity)
}

func (r sqlUsers) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.getOne(ctx, id.String(), "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (r sqlUsers) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = ?"
	if r.dialect == migrations.DialectPostgres {
		query += " FOR UPDATE"
	}
	return r.getOne(ctx, id.String(), query, id)
}

func (r sqlUsers) Create(ctx context.Context, u *domain.User) error {
	_, err := r.exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Identity, u.Balance, u.Role, u.Status, u.DefaultModel, u.ContinuousChat,
		utc(u.CreatedAt), utc(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", u.Identity, err)
	}
	return nil
}

func (r sqlUsers) Update(ctx context.Context, u *domain.User) error {
	_, err := r.exec(ctx, `UPDATE users SET role = ?, status = ?, default_model = ?, continuous_chat = ?, updated_at = ?
		WHERE id = ?`, u.Role, u.Status, u.DefaultModel, u.ContinuousChat, utc(u.UpdatedAt), u.ID)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", u.Identity, err)
	}
	return nil
}

func (r sqlUsers) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error {
	res, err := r.exec(ctx, "UPDATE users SET balance = ?, updated_at = ? WHERE id = ?", balance, utc(at), id)
	if err != nil {
		return fmt.Errorf("failed to update balance of %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFound("user", id.String())
	}
	return nil
}

func (r sqlUsers) ListByStatus(ctx context.Context, status domain.UserStatus) ([]*domain.User, error) {
	rows, err := r.query(ctx, "SELECT "+userColumns+" FROM users WHERE status = ? ORDER BY created_at, id", status)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// models

const modelColumns = "id, name, prompt_rate, completion_rate, multiplier, status, description, created_at, updated_at"

type sqlModels struct{ sqlConn }

func scanModel(row rowScanner) (*domain.Model, error) {
	var m domain.Model
	if err := row.Scan(&m.ID, &m.Name, &m.PromptRate, &m.CompletionRate, &m.Multiplier,
		&m.Status, &m.Description, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r sqlModels) GetByName(ctx context.Context, name string) (*domain.Model, error) {
	m, err := scanModel(r.queryRow(ctx, "SELECT "+modelColumns+" FROM models WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("model", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", name, err)
	}
	return m, nil
}

func (r sqlModels) Create(ctx context.Context, m *domain.Model) error {
	_, err := r.exec(ctx, `INSERT INTO models (`+modelColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.PromptRate, m.CompletionRate, m.Multiplier, m.Status, m.Description,
		utc(m.CreatedAt), utc(m.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateModelName, m.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create model %s: %w", m.Name, err)
	}
	return nil
}

func (r sqlModels) Update(ctx context.Context, m *domain.Model) error {
	res, err := r.exec(ctx, `UPDATE models SET prompt_rate = ?, completion_rate = ?, multiplier = ?, status = ?,
		description = ?, updated_at = ? WHERE name = ?`,
		m.PromptRate, m.CompletionRate, m.Multiplier, m.Status, m.Description, utc(m.UpdatedAt), m.Name)
	if err != nil {
		return fmt.Errorf("failed to update model %s: %w", m.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFound("model", m.Name)
	}
	return nil
}

func (r sqlModels) List(ctx context.Context, status domain.ModelStatus) ([]*domain.Model, error) {
	query := "SELECT " + modelColumns + " FROM models"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at, id"

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var models []*domain.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// conversations

const conversationColumns = "id, user_id, model_name, status, created_at, updated_at"

type sqlConversations struct{ sqlConn }

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := row.Scan(&c.ID, &c.UserID, &c.ModelName, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r sqlConversations) list(ctx context.Context, query string, args ...any) ([]*domain.Conversation, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (r sqlConversations) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.exec(ctx, `INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.ModelName, c.Status, utc(c.CreatedAt), utc(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (r sqlConversations) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	c, err := scanConversation(r.queryRow(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("conversation", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	return c, nil
}

func (r sqlConversations) ListActive(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	return r.list(ctx, "SELECT "+conversationColumns+` FROM conversations
		WHERE user_id = ? AND status = ? ORDER BY created_at DESC, id DESC`,
		userID, domain.ConversationStatusActive)
}

func (r sqlConversations) Update(ctx context.Context, c *domain.Conversation) error {
	_, err := r.exec(ctx, "UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?",
		c.Status, utc(c.UpdatedAt), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update conversation %s: %w", c.ID, err)
	}
	return nil
}

func (r sqlConversations) CloseAllActive(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	res, err := r.exec(ctx, "UPDATE conversations SET status = ?, updated_at = ? WHERE user_id = ? AND status = ?",
		domain.ConversationStatusClosed, utc(at), userID, domain.ConversationStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to close conversations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r sqlConversations) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error) {
	return r.list(ctx, "SELECT "+conversationColumns+` FROM conversations
		WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, userID, limit, offset)
}

func (r sqlConversations) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	if err := r.queryRow(ctx, "SELECT COUNT(*) FROM conversations WHERE user_id = ?", userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return n, nil
}

// messages

const messageColumns = "id, user_id, conversation_id, exchange_id, content, role, token_count, cost, is_error, created_at"

type sqlMessages struct{ sqlConn }

func (r sqlMessages) Append(ctx context.Context, m *domain.Message) error {
	var tokens sql.NullInt64
	if m.TokenCount != nil {
		tokens = sql.NullInt64{Int64: *m.TokenCount, Valid: true}
	}
	var cost decimal.NullDecimal
	if m.Cost != nil {
		cost = decimal.NewNullDecimal(*m.Cost)
	}
	_, err := r.exec(ctx, `INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.ConversationID, m.ExchangeID, m.Content, m.Role, tokens, cost, m.IsError, utc(m.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateExchange, m.ExchangeID)
	}
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (r sqlMessages) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	rows, err := r.query(ctx, "SELECT "+messageColumns+` FROM messages
		WHERE conversation_id = ? ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []*domain.Message
	for rows.Next() {
		var m domain.Message
		var tokens sql.NullInt64
		var cost decimal.NullDecimal
		if err := rows.Scan(&m.ID, &m.UserID, &m.ConversationID, &m.ExchangeID, &m.Content, &m.Role,
			&tokens, &cost, &m.IsError, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if tokens.Valid {
			v := tokens.Int64
			m.TokenCount = &v
		}
		if cost.Valid {
			v := cost.Decimal
			m.Cost = &v
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (r sqlMessages) ExistsForExchange(ctx context.Context, exchangeID uuid.UUID) (bool, error) {
	var n int
	if err := r.queryRow(ctx, "SELECT COUNT(*) FROM messages WHERE exchange_id = ?", exchangeID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up exchange: %w", err)
	}
	return n > 0, nil
}

// transactions

const transactionColumns = "id, user_id, amount, kind, description, conversation_id, exchange_id, created_at"

type sqlTransactions struct{ sqlConn }

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (r sqlTransactions) Append(ctx context.Context, t *domain.Transaction) error {
	_, err := r.exec(ctx, `INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Amount, t.Kind, t.Description, nullUUID(t.ConversationID), nullUUID(t.ExchangeID),
		utc(t.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateExchange, nullUUID(t.ExchangeID).UUID)
	}
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (r sqlTransactions) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	rows, err := r.query(ctx, "SELECT "+transactionColumns+` FROM transactions
		WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txs []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var conv, exchange uuid.NullUUID
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.Description, &conv, &exchange,
			&t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if conv.Valid {
			t.ConversationID = &conv.UUID
		}
		if exchange.Valid {
			t.ExchangeID = &exchange.UUID
		}
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}

// SumByUser adds amounts in decimal rather than SQL so SQLite never rounds through float
func (r sqlTransactions) SumByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	rows, err := r.query(ctx, "SELECT amount FROM transactions WHERE user_id = ?", userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sum := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		sum = sum.Add(amount)
	}
	return sum, rows.Err()
}

func (r sqlTransactions) ExistsForExchange(ctx context.Context, exchangeID uuid.UUID) (bool, error) {
	var n int
	if err := r.queryRow(ctx, "SELECT COUNT(*) FROM transactions WHERE exchange_id = ?", exchangeID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up exchange: %w", err)
	}
	return n > 0, nil
}

// dead letters

const deadLetterColumns = "id, exchange_id, kind, payload, error, attempts, resolved, created_at, updated_at"

type sqlDeadLetters struct{ sqlConn }

func scanDeadLetter(row rowScanner) (*domain.DeadLetter, error) {
	var d domain.DeadLetter
	var payload string
	if err := row.Scan(&d.ID, &d.ExchangeID, &d.Kind, &payload, &d.Error, &d.Attempts, &d.Resolved,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Payload = []byte(payload)
	return &d, nil
}

func (r sqlDeadLetters) Add(ctx context.Context, d *domain.DeadLetter) error {
	_, err := r.exec(ctx, `INSERT INTO dead_letters (`+deadLetterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ExchangeID, d.Kind, string(d.Payload), d.Error, d.Attempts, d.Resolved, utc(d.CreatedAt), utc(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to add dead letter: %w", err)
	}
	return nil
}

func (r sqlDeadLetters) Get(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error) {
	d, err := scanDeadLetter(r.queryRow(ctx, "SELECT "+deadLetterColumns+" FROM dead_letters WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("dead letter", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dead letter %s: %w", id, err)
	}
	return d, nil
}

func (r sqlDeadLetters) ListPending(ctx context.Context, limit int) ([]*domain.DeadLetter, error) {
	rows, err := r.query(ctx, "SELECT "+deadLetterColumns+` FROM dead_letters
		WHERE resolved = ? ORDER BY created_at, id LIMIT ?`, false, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var letters []*domain.DeadLetter
	for rows.Next() {
		d, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		letters = append(letters, d)
	}
	return letters, rows.Err()
}

func (r sqlDeadLetters) MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.exec(ctx, "UPDATE dead_letters SET resolved = ?, updated_at = ? WHERE id = ?", true, utc(at), id)
	if err != nil {
		return fmt.Errorf("failed to resolve dead letter %s: %w", id, err)
	}
	return nil
}

func (r sqlDeadLetters) RecordAttempt(ctx context.Context, id uuid.UUID, errText string, at time.Time) error {
	_, err := r.exec(ctx, "UPDATE dead_letters SET attempts = attempts + 1, error = ?, updated_at = ? WHERE id = ?",
		errText, utc(at), id)
	if err != nil {
		return fmt.Errorf("failed to record dead letter attempt %s: %w", id, err)
	}
	return nil
}
