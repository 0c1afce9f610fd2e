// Package orchestrator runs one conversation turn end to end: lock, load
// context, route, dispatch, append the exchange, translate failures.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	"github.com/cloudflow/support-agents/pkg/metrics"
)

// TurnStatus is the lifecycle of a single turn. It is reported, not stored;
// conversations themselves only move between active and closed.
type TurnStatus string

const (
	StatusReceived   TurnStatus = "received"
	StatusRouted     TurnStatus = "routed"
	StatusProcessing TurnStatus = "processing"
	StatusCompleted  TurnStatus = "completed"
	StatusFailed     TurnStatus = "failed"
	StatusEscalated  TurnStatus = "escalated"
)

const genericFailureReply = "I'm sorry, something went wrong while handling your message. " +
	"Please try again in a moment."

const defaultDispatchTimeout = 30 * time.Second

// Result is what one ProcessMessage call produces.
type Result struct {
	ConversationID uuid.UUID                  `json:"conversation_id"`
	Reply          string                     `json:"reply"`
	AgentType      contractx.AgentType        `json:"agent_type,omitempty"`
	ToolCalls      []contractx.ToolInvocation `json:"tool_calls,omitempty"`
	Routing        contractx.RoutingDecision  `json:"routing"`
	Status         TurnStatus                 `json:"status"`
	CorrelationID  string                     `json:"correlation_id"`
}

type Option func(*Service)

func WithDispatchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.dispatchTimeout = d
		}
	}
}

// Service coordinates memory, router, specialists and the per-conversation
// lock.
type Service struct {
	memory   contractx.Memory
	router   contractx.Router
	registry contractx.Registry
	locker   contractx.Locker

	dispatchTimeout time.Duration

	graphRunner compose.Runnable[graphInput, Result]

	now func() time.Time
}

func New(
	memory contractx.Memory,
	router contractx.Router,
	registry contractx.Registry,
	locker contractx.Locker,
	opts ...Option,
) (*Service, error) {
	if memory == nil {
		return nil, errors.New("memory service is required")
	}
	if router == nil {
		return nil, errors.New("router is required")
	}
	if registry == nil {
		return nil, errors.New("specialist registry is required")
	}
	if locker == nil {
		locker = noopLocker{}
	}

	s := &Service{
		memory:          memory,
		router:          router,
		registry:        registry,
		locker:          locker,
		dispatchTimeout: defaultDispatchTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	graphRunner, err := s.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	s.graphRunner = graphRunner

	return s, nil
}

// ProcessMessage handles one inbound customer message. Validation failures
// and a busy conversation return errors; everything downstream of a valid,
// locked turn is absorbed into the Result status instead.
func (s *Service) ProcessMessage(ctx context.Context, conversationID uuid.UUID, message, customerEmail string) (Result, error) {
	if conversationID == uuid.Nil {
		return Result{}, fmt.Errorf("%w: conversation id is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(message) == "" {
		return Result{}, fmt.Errorf("%w: message must not be empty", contractx.ErrValidation)
	}

	lease, err := s.locker.Acquire(ctx, conversationID)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("lock release failed")
		}
	}()

	correlationID := uuid.New().String()
	started := s.now()

	out, err := s.graphRunner.Invoke(ctx, graphInput{
		ConversationID: conversationID,
		Message:        strings.TrimSpace(message),
		CustomerEmail:  customerEmail,
		CorrelationID:  correlationID,
	})
	if err != nil {
		metrics.ObserveTurn(string(StatusFailed), s.now().Sub(started))
		return Result{}, err
	}

	metrics.ObserveTurn(string(out.Status), s.now().Sub(started))
	return out, nil
}

// CloseConversation ends a conversation under the same per-conversation
// lock that turns run under.
func (s *Service) CloseConversation(ctx context.Context, conversationID uuid.UUID) error {
	if conversationID == uuid.Nil {
		return fmt.Errorf("%w: conversation id is required", contractx.ErrValidation)
	}

	lease, err := s.locker.Acquire(ctx, conversationID)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("lock release failed")
		}
	}()

	return s.memory.Close(ctx, conversationID)
}

func (s *Service) specialistFor(target contractx.AgentType) contractx.Specialist {
	switch target {
	case contractx.AgentTypeOrder:
		return s.registry.Order()
	case contractx.AgentTypeEscalation:
		return s.registry.Escalation()
	default:
		return s.registry.FAQ()
	}
}
