package contract

import (
	"context"
	"time"

	"github.com/google/uuid"

	storagex "github.com/cloudflow/support-agents/agent/storage"
)

// MessageStore is the durable side of conversation memory.
type MessageStore interface {
	LoadRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]storagex.Message, error)
	InsertMessage(ctx context.Context, conversationID uuid.UUID, role storagex.Role, content string, meta storagex.MessageMeta) (*storagex.Message, error)
	SetConversationStatus(ctx context.Context, conversationID uuid.UUID, status storagex.ConversationStatus) error
}

// ContextCache is the volatile side of conversation memory. A miss is
// (nil, false, nil); errors are reserved for transport failures.
type ContextCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Memory is the conversation memory service the orchestrator consumes.
type Memory interface {
	GetContext(ctx context.Context, conversationID uuid.UUID, limit int) ([]storagex.Message, error)
	Append(ctx context.Context, conversationID uuid.UUID, role storagex.Role, content string, meta storagex.MessageMeta) (*storagex.Message, error)
	Close(ctx context.Context, conversationID uuid.UUID) error
}

// AccountStore exposes the customer data the order tools need. FindCustomer
// returns storage.ErrCustomerNotFound for absent records; LinkCustomer
// attaches an identity to a conversation the first time one is resolved.
type AccountStore interface {
	FindCustomer(ctx context.Context, email string) (*storagex.Customer, error)
	FindSubscriptions(ctx context.Context, customerID uuid.UUID) ([]storagex.Subscription, error)
	FindInvoices(ctx context.Context, customerID uuid.UUID) ([]storagex.Invoice, error)
	LinkCustomer(ctx context.Context, conversationID, customerID uuid.UUID) error
}

// TicketStore creates support tickets; at-least-once semantics.
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket *storagex.SupportTicket) error
}

// KnowledgeSearcher runs similarity search over active knowledge documents.
type KnowledgeSearcher interface {
	SearchKnowledge(ctx context.Context, embedding []float32, topK int, category string) ([]storagex.KnowledgePassage, error)
}

// Embedder turns text into the query vector the knowledge searcher consumes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Router classifies an inbound message. It is total: it always returns a
// decision, falling back to keyword matching when the model cannot be
// trusted, and never returns an error for malformed model output.
type Router interface {
	Route(ctx context.Context, message string, recent []storagex.Message) RoutingDecision
}

// Specialist produces the final reply for one turn.
type Specialist interface {
	Handle(ctx context.Context, req SpecialistRequest) (AgentReply, error)
}

// Registry is the fixed specialist mapping; one method per enum member so the
// dispatch surface is closed at compile time.
type Registry interface {
	FAQ() Specialist
	Order() Specialist
	Escalation() Specialist
}

/* ------------------------------ tool requests ----------------------------- */

// Tool names as recorded in replies and message metadata.
const (
	ToolSearchKnowledgeBase    = "search_knowledge_base"
	ToolGetCustomerInfo        = "get_customer_info"
	ToolGetSubscriptionDetails = "get_subscription_details"
	ToolGetInvoices            = "get_invoices"
	ToolCreateSupportTicket    = "create_support_ticket"
)

type KnowledgeSearchRequest struct {
	Query    string
	TopK     int
	Category string
}

type CustomerLookupRequest struct {
	Email          string
	ConversationID uuid.UUID
}

type SubscriptionLookupRequest struct {
	Email string
}

type InvoiceLookupRequest struct {
	Email string
}

type CreateTicketRequest struct {
	CustomerEmail  string
	Subject        string
	Description    string
	Category       string
	ConversationID uuid.UUID
}

// Tools is the registry boundary specialists call through. Argument shapes
// are checked per request type; every outcome is a uniform ToolResult.
type Tools interface {
	SearchKnowledge(ctx context.Context, req KnowledgeSearchRequest) ToolResult
	LookupCustomer(ctx context.Context, req CustomerLookupRequest) ToolResult
	LookupSubscriptions(ctx context.Context, req SubscriptionLookupRequest) ToolResult
	LookupInvoices(ctx context.Context, req InvoiceLookupRequest) ToolResult
	CreateTicket(ctx context.Context, req CreateTicketRequest) ToolResult
}

/* ------------------------------- coordination ------------------------------ */

// Lease is a held per-conversation lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker serializes orchestration runs per conversation. Acquire blocks up to
// its configured wait and returns ErrConversationBusy when the lock cannot be
// taken in time.
type Locker interface {
	Acquire(ctx context.Context, conversationID uuid.UUID) (Lease, error)
}
