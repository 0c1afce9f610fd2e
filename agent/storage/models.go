package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Conversation is the durable chat thread. It is mutated only through
// message appends and an explicit Close.
type Conversation struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID         uuid.UUID          `bun:"id,pk,type:uuid" json:"id"`
	Status     ConversationStatus `bun:"status,notnull,default:'active'" json:"status"`
	CustomerID *uuid.UUID         `bun:"customer_id,type:uuid" json:"customer_id,omitempty"`
	CreatedAt  time.Time          `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time          `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// MessageMeta is free-form message annotation. AgentType and ToolsUsed are
// only set on assistant messages.
type MessageMeta struct {
	AgentType     string   `json:"agent_type,omitempty"`
	ToolsUsed     []string `json:"tools_used,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// Message is immutable once inserted. Ordering is (created_at, seq); seq is
// a database-assigned insertion sequence that breaks timestamp ties.
type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID             uuid.UUID   `bun:"id,pk,type:uuid" json:"id"`
	Seq            int64       `bun:"seq,autoincrement,scanonly" json:"seq"`
	ConversationID uuid.UUID   `bun:"conversation_id,notnull,type:uuid" json:"conversation_id"`
	Role           Role        `bun:"role,notnull" json:"role"`
	Content        string      `bun:"content,notnull" json:"content"`
	Meta           MessageMeta `bun:"meta,type:jsonb" json:"meta"`
	CreatedAt      time.Time   `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:cu"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	Email       string    `bun:"email,notnull,unique"`
	FullName    string    `bun:"full_name,notnull"`
	CompanyName string    `bun:"company_name"`
	Phone       string    `bun:"phone"`
	IsActive    bool      `bun:"is_active,notnull,default:true"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type Subscription struct {
	bun.BaseModel `bun:"table:subscriptions,alias:s"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid"`
	CustomerID   uuid.UUID  `bun:"customer_id,notnull,type:uuid"`
	Plan         string     `bun:"plan,notnull"`
	Status       string     `bun:"status,notnull"`
	BillingCycle string     `bun:"billing_cycle,notnull"`
	Price        float64    `bun:"price,notnull"`
	Seats        int        `bun:"seats,notnull"`
	StartDate    time.Time  `bun:"start_date,notnull"`
	EndDate      *time.Time `bun:"end_date"`
	TrialEndDate *time.Time `bun:"trial_end_date"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

type Invoice struct {
	bun.BaseModel `bun:"table:invoices,alias:i"`

	ID            uuid.UUID  `bun:"id,pk,type:uuid"`
	CustomerID    uuid.UUID  `bun:"customer_id,notnull,type:uuid"`
	InvoiceNumber string     `bun:"invoice_number,notnull,unique"`
	Status        string     `bun:"status,notnull"`
	Amount        float64    `bun:"amount,notnull"`
	Tax           float64    `bun:"tax,notnull"`
	Total         float64    `bun:"total,notnull"`
	Currency      string     `bun:"currency,notnull,default:'USD'"`
	DueDate       time.Time  `bun:"due_date,notnull"`
	PaidDate      *time.Time `bun:"paid_date"`
	Description   string     `bun:"description"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

type SupportTicket struct {
	bun.BaseModel `bun:"table:support_tickets,alias:t"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid"`
	CustomerID     *uuid.UUID `bun:"customer_id,type:uuid"`
	ConversationID *uuid.UUID `bun:"conversation_id,type:uuid"`
	Subject        string     `bun:"subject,notnull"`
	Description    string     `bun:"description,notnull"`
	Category       string     `bun:"category,notnull,default:'other'"`
	Priority       string     `bun:"priority,notnull,default:'medium'"`
	Status         string     `bun:"status,notnull,default:'open'"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

// KnowledgeDocument carries a pgvector embedding alongside the passage text.
// The embedding column is written and queried through raw SQL; bun treats it
// as an opaque string literal.
type KnowledgeDocument struct {
	bun.BaseModel `bun:"table:knowledge_documents,alias:kd"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Title     string    `bun:"title,notnull"`
	Content   string    `bun:"content,notnull"`
	Category  string    `bun:"category,notnull,default:'faq'"`
	Embedding string    `bun:"embedding,type:vector(1536)"`
	IsActive  bool      `bun:"is_active,notnull,default:true"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// KnowledgePassage is a similarity search hit.
type KnowledgePassage struct {
	ID         uuid.UUID `bun:"id"`
	Title      string    `bun:"title"`
	Content    string    `bun:"content"`
	Category   string    `bun:"category"`
	Similarity float64   `bun:"similarity"`
}
