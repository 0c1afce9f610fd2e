package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrConversationNotFound = errors.New("conversation not found")
)

type PostgresConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"10"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Store is the Postgres implementation of the message, account, ticket, and
// knowledge ports declared in agent/contract.
type Store struct {
	db *bun.DB
}

func NewStore(cfg PostgresConfig) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(cfg.Timeout),
	))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return &Store{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

// NewStoreWithDB wraps an existing bun.DB, used by tests.
func NewStoreWithDB(db *bun.DB) *Store {
	return &Store{db: db}
}

/* ----------------------------- message store ----------------------------- */

// LoadRecent returns the most recent limit messages in chronological order.
func (s *Store) LoadRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", limit)
	}

	var msgs []Message
	err := s.db.NewSelect().
		Model(&msgs).
		Where("conversation_id = ?", conversationID).
		OrderExpr("created_at DESC, seq DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}

	// Newest-first from the query; callers expect chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// InsertMessage writes one message, creating the conversation row on first
// contact. The conversation's updated_at is bumped on every append.
func (s *Store) InsertMessage(ctx context.Context, conversationID uuid.UUID, role Role, content string, meta MessageMeta) (*Message, error) {
	msg := &Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Meta:           meta,
		CreatedAt:      time.Now().UTC(),
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		conv := &Conversation{
			ID:        conversationID,
			Status:    ConversationActive,
			CreatedAt: msg.CreatedAt,
			UpdatedAt: msg.CreatedAt,
		}
		if _, err := tx.NewInsert().
			Model(conv).
			On("CONFLICT (id) DO UPDATE").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}

		if _, err := tx.NewInsert().Model(msg).Returning("seq").Exec(ctx); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// SetConversationStatus closes (or reopens) a conversation.
func (s *Store) SetConversationStatus(ctx context.Context, conversationID uuid.UUID, status ConversationStatus) error {
	res, err := s.db.NewUpdate().
		Model((*Conversation)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", conversationID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update conversation status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	return nil
}

// LinkCustomer attaches a customer identity to a conversation if it has none.
func (s *Store) LinkCustomer(ctx context.Context, conversationID, customerID uuid.UUID) error {
	_, err := s.db.NewUpdate().
		Model((*Conversation)(nil)).
		Set("customer_id = ?", customerID).
		Where("id = ? AND customer_id IS NULL", conversationID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("link customer: %w", err)
	}
	return nil
}

/* ----------------------------- account store ----------------------------- */

// FindCustomer looks a customer up by email. The key is lower-cased and
// trimmed before the query.
func (s *Store) FindCustomer(ctx context.Context, email string) (*Customer, error) {
	cust := new(Customer)
	err := s.db.NewSelect().
		Model(cust).
		Where("lower(email) = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, NormalizeEmail(email))
		}
		return nil, fmt.Errorf("find customer: %w", err)
	}
	return cust, nil
}

func (s *Store) FindSubscriptions(ctx context.Context, customerID uuid.UUID) ([]Subscription, error) {
	var subs []Subscription
	err := s.db.NewSelect().
		Model(&subs).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find subscriptions: %w", err)
	}
	return subs, nil
}

func (s *Store) FindInvoices(ctx context.Context, customerID uuid.UUID) ([]Invoice, error) {
	var invs []Invoice
	err := s.db.NewSelect().
		Model(&invs).
		Where("customer_id = ?", customerID).
		Order("due_date DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find invoices: %w", err)
	}
	return invs, nil
}

/* ------------------------------ ticket store ------------------------------ */

func (s *Store) CreateTicket(ctx context.Context, ticket *SupportTicket) error {
	if ticket == nil {
		return errors.New("nil ticket")
	}
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(ticket).Exec(ctx); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

// NormalizeEmail is the canonical form used for every customer key lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
