// Package tool implements the dispatch boundary between specialists and the
// systems they read and write. Every invocation returns a uniform result;
// transport errors never cross the boundary as Go errors.
package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	storagex "github.com/cloudflow/support-agents/agent/storage"
	"github.com/cloudflow/support-agents/pkg/metrics"
)

const defaultTopK = 3

type Option func(*Registry)

func WithDefaultTopK(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.topK = n
		}
	}
}

// Registry implements the Tools contract over the storage and embedding ports.
type Registry struct {
	accounts  contractx.AccountStore
	tickets   contractx.TicketStore
	knowledge contractx.KnowledgeSearcher
	embedder  contractx.Embedder
	topK      int
}

func NewRegistry(
	accounts contractx.AccountStore,
	tickets contractx.TicketStore,
	knowledge contractx.KnowledgeSearcher,
	embedder contractx.Embedder,
	opts ...Option,
) (*Registry, error) {
	if accounts == nil {
		return nil, errors.New("account store is required")
	}
	if tickets == nil {
		return nil, errors.New("ticket store is required")
	}
	if knowledge == nil {
		return nil, errors.New("knowledge searcher is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}

	r := &Registry{
		accounts:  accounts,
		tickets:   tickets,
		knowledge: knowledge,
		embedder:  embedder,
		topK:      defaultTopK,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func (r *Registry) SearchKnowledge(ctx context.Context, req contractx.KnowledgeSearchRequest) contractx.ToolResult {
	const name = contractx.ToolSearchKnowledgeBase

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return invalid(name, "query must not be empty")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = r.topK
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return failure(ctx, name, "knowledge search is temporarily unavailable.", err)
	}

	passages, err := r.knowledge.SearchKnowledge(ctx, embedding, topK, strings.TrimSpace(req.Category))
	if err != nil {
		return failure(ctx, name, "knowledge search is temporarily unavailable.", err)
	}
	if len(passages) == 0 {
		return contractx.ToolResult{
			Tool:     name,
			Text:     "No relevant articles found in the knowledge base.",
			Success:  true,
			NotFound: true,
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant article(s):\n", len(passages))
	for i, p := range passages {
		fmt.Fprintf(&b, "\n[%d] %s (category: %s, relevance: %.2f)\n%s\n", i+1, p.Title, p.Category, p.Similarity, p.Content)
	}
	return contractx.ToolResult{Tool: name, Text: b.String(), Success: true}
}

func (r *Registry) LookupCustomer(ctx context.Context, req contractx.CustomerLookupRequest) contractx.ToolResult {
	const name = contractx.ToolGetCustomerInfo

	email, ok := normalizeEmail(req.Email)
	if !ok {
		return invalid(name, "a valid customer email is required")
	}

	customer, err := r.accounts.FindCustomer(ctx, email)
	if err != nil {
		if errors.Is(err, storagex.ErrCustomerNotFound) {
			return notFoundCustomer(name, email)
		}
		return failure(ctx, name, "customer lookup is temporarily unavailable.", err)
	}

	if req.ConversationID != uuid.Nil {
		if err := r.accounts.LinkCustomer(ctx, req.ConversationID, customer.ID); err != nil {
			log.Warn().Err(err).
				Str("conversation_id", req.ConversationID.String()).
				Msg("conversation customer link failed")
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Customer: %s\n", customer.FullName)
	fmt.Fprintf(&b, "Email: %s\n", customer.Email)
	if customer.CompanyName != "" {
		fmt.Fprintf(&b, "Company: %s\n", customer.CompanyName)
	}
	if customer.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", customer.Phone)
	}
	fmt.Fprintf(&b, "Account active: %t\n", customer.IsActive)
	fmt.Fprintf(&b, "Customer since: %s\n", customer.CreatedAt.Format("2006-01-02"))
	return contractx.ToolResult{Tool: name, Text: b.String(), Success: true}
}

func (r *Registry) LookupSubscriptions(ctx context.Context, req contractx.SubscriptionLookupRequest) contractx.ToolResult {
	const name = contractx.ToolGetSubscriptionDetails

	email, ok := normalizeEmail(req.Email)
	if !ok {
		return invalid(name, "a valid customer email is required")
	}

	customer, err := r.accounts.FindCustomer(ctx, email)
	if err != nil {
		if errors.Is(err, storagex.ErrCustomerNotFound) {
			return notFoundCustomer(name, email)
		}
		return failure(ctx, name, "subscription lookup is temporarily unavailable.", err)
	}

	subs, err := r.accounts.FindSubscriptions(ctx, customer.ID)
	if err != nil {
		return failure(ctx, name, "subscription lookup is temporarily unavailable.", err)
	}
	if len(subs) == 0 {
		return contractx.ToolResult{
			Tool:     name,
			Text:     fmt.Sprintf("No subscriptions found for %s.", email),
			Success:  true,
			NotFound: true,
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Subscriptions for %s:\n", email)
	for _, s := range subs {
		fmt.Fprintf(&b, "\n- Plan: %s (%s)\n", s.Plan, s.Status)
		fmt.Fprintf(&b, "  Billing: $%.2f per %s cycle, %d seat(s)\n", s.Price, s.BillingCycle, s.Seats)
		fmt.Fprintf(&b, "  Started: %s\n", s.StartDate.Format("2006-01-02"))
		if s.TrialEndDate != nil {
			fmt.Fprintf(&b, "  Trial ends: %s\n", s.TrialEndDate.Format("2006-01-02"))
		}
		if s.EndDate != nil {
			fmt.Fprintf(&b, "  Ends: %s\n", s.EndDate.Format("2006-01-02"))
		}
	}
	return contractx.ToolResult{Tool: name, Text: b.String(), Success: true}
}

func (r *Registry) LookupInvoices(ctx context.Context, req contractx.InvoiceLookupRequest) contractx.ToolResult {
	const name = contractx.ToolGetInvoices

	email, ok := normalizeEmail(req.Email)
	if !ok {
		return invalid(name, "a valid customer email is required")
	}

	customer, err := r.accounts.FindCustomer(ctx, email)
	if err != nil {
		if errors.Is(err, storagex.ErrCustomerNotFound) {
			return notFoundCustomer(name, email)
		}
		return failure(ctx, name, "invoice lookup is temporarily unavailable.", err)
	}

	invoices, err := r.accounts.FindInvoices(ctx, customer.ID)
	if err != nil {
		return failure(ctx, name, "invoice lookup is temporarily unavailable.", err)
	}
	if len(invoices) == 0 {
		return contractx.ToolResult{
			Tool:     name,
			Text:     fmt.Sprintf("No invoices found for %s.", email),
			Success:  true,
			NotFound: true,
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent invoices for %s:\n", email)
	for _, inv := range invoices {
		fmt.Fprintf(&b, "\n- %s: %s %.2f (%s)\n", inv.InvoiceNumber, inv.Currency, inv.Total, inv.Status)
		fmt.Fprintf(&b, "  Due: %s\n", inv.DueDate.Format("2006-01-02"))
		if inv.PaidDate != nil {
			fmt.Fprintf(&b, "  Paid: %s\n", inv.PaidDate.Format("2006-01-02"))
		}
		if inv.Description != "" {
			fmt.Fprintf(&b, "  %s\n", inv.Description)
		}
	}
	return contractx.ToolResult{Tool: name, Text: b.String(), Success: true}
}

func (r *Registry) CreateTicket(ctx context.Context, req contractx.CreateTicketRequest) contractx.ToolResult {
	const name = contractx.ToolCreateSupportTicket

	subject := strings.TrimSpace(req.Subject)
	description := strings.TrimSpace(req.Description)
	if subject == "" || description == "" {
		return invalid(name, "subject and description are required")
	}

	var customerID *uuid.UUID
	if email, ok := normalizeEmail(req.CustomerEmail); ok {
		customer, err := r.accounts.FindCustomer(ctx, email)
		switch {
		case err == nil:
			customerID = &customer.ID
		case errors.Is(err, storagex.ErrCustomerNotFound):
			// Tickets are created for unknown senders too.
		default:
			return failure(ctx, name, "ticket creation is temporarily unavailable.", err)
		}
	}

	category := NormalizeCategory(req.Category)
	priority := ClassifyPriority(subject, description, category)

	ticket := &storagex.SupportTicket{
		ID:          uuid.New(),
		CustomerID:  customerID,
		Subject:     subject,
		Description: description,
		Category:    category,
		Priority:    priority,
		Status:      "open",
		CreatedAt:   time.Now().UTC(),
	}
	if req.ConversationID != uuid.Nil {
		convID := req.ConversationID
		ticket.ConversationID = &convID
	}

	if err := r.tickets.CreateTicket(ctx, ticket); err != nil {
		return failure(ctx, name, "ticket creation is temporarily unavailable.", err)
	}

	text := fmt.Sprintf(
		"Ticket %s created (category: %s, priority: %s). Expected first response within %s.",
		ticket.ID, category, priority, ResponseTime(priority),
	)
	return contractx.ToolResult{Tool: name, Text: text, Success: true}
}

func normalizeEmail(raw string) (string, bool) {
	email := storagex.NormalizeEmail(raw)
	if email == "" || !strings.Contains(email, "@") {
		return "", false
	}
	return email, true
}

func notFoundCustomer(tool, email string) contractx.ToolResult {
	return contractx.ToolResult{
		Tool:     tool,
		Text:     fmt.Sprintf("No customer found with email %s.", email),
		Success:  true,
		NotFound: true,
	}
}

func invalid(tool, reason string) contractx.ToolResult {
	return contractx.ToolResult{
		Tool:    tool,
		Text:    "Invalid request: " + reason + ".",
		Success: false,
		Err:     reason,
	}
}

func failure(ctx context.Context, tool, text string, err error) contractx.ToolResult {
	log.Error().Err(fmt.Errorf("%w: %v", contractx.ErrToolFailure, err)).
		Str("tool", tool).
		Msg("tool invocation failed")
	metrics.RecordToolFailure(tool)
	return contractx.ToolResult{
		Tool:    tool,
		Text:    text,
		Success: false,
		Err:     err.Error(),
	}
}
