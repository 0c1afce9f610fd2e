package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	storagex "github.com/cloudflow/support-agents/agent/storage"
	"github.com/cloudflow/support-agents/pkg/metrics"
)

type graphInput struct {
	ConversationID uuid.UUID
	Message        string
	CustomerEmail  string
	CorrelationID  string
}

// graphState flows through every node. A node that hits a fatal problem
// records it here instead of returning an error, so the append node still
// runs and the user message is never lost to a failed dispatch.
type graphState struct {
	In graphInput

	Context  []storagex.Message
	Decision contractx.RoutingDecision
	Reply    contractx.AgentReply

	Status        TurnStatus
	FailureReason error
}

func (st *graphState) fail(reason error) *graphState {
	st.Status = StatusFailed
	if st.FailureReason == nil {
		st.FailureReason = reason
	}
	return st
}

func (s *Service) compileTurnGraph(ctx context.Context) (compose.Runnable[graphInput, Result], error) {
	graph := compose.NewGraph[graphInput, Result]()

	if err := graph.AddLambdaNode("load_context",
		compose.InvokableLambda(func(ctx context.Context, in graphInput) (*graphState, error) {
			st := &graphState{In: in, Status: StatusReceived}
			window, err := s.memory.GetContext(ctx, in.ConversationID, 0)
			if err != nil {
				log.Error().Err(err).Str("conversation_id", in.ConversationID.String()).Msg("context load failed")
				return st.fail(err), nil
			}
			st.Context = window
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_context: %w", err)
	}

	if err := graph.AddLambdaNode("route_message",
		compose.InvokableLambda(func(ctx context.Context, st *graphState) (*graphState, error) {
			if st.Status == StatusFailed {
				return st, nil
			}
			st.Decision = s.router.Route(ctx, st.In.Message, st.Context)
			st.Status = StatusRouted
			metrics.RecordRoute(string(st.Decision.Target), string(st.Decision.Source))
			log.Info().
				Str("conversation_id", st.In.ConversationID.String()).
				Str("correlation_id", st.In.CorrelationID).
				Str("target", string(st.Decision.Target)).
				Str("source", string(st.Decision.Source)).
				Float64("confidence", st.Decision.Confidence).
				Msg("message routed")
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node route_message: %w", err)
	}

	if err := graph.AddLambdaNode("dispatch_specialist",
		compose.InvokableLambda(func(ctx context.Context, st *graphState) (*graphState, error) {
			if st.Status == StatusFailed {
				return st, nil
			}
			st.Status = StatusProcessing

			dispatchCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
			defer cancel()

			reply, err := s.specialistFor(st.Decision.Target).Handle(dispatchCtx, contractx.SpecialistRequest{
				ConversationID: st.In.ConversationID,
				Message:        st.In.Message,
				Context:        st.Context,
				CustomerEmail:  st.In.CustomerEmail,
				Reasoning:      st.Decision.Reasoning,
				Summary:        st.Decision.Summary,
				CorrelationID:  st.In.CorrelationID,
			})
			if err != nil {
				if errors.Is(dispatchCtx.Err(), context.DeadlineExceeded) {
					err = fmt.Errorf("specialist %s timed out after %s: %w", st.Decision.Target, s.dispatchTimeout, err)
				}
				log.Error().Err(err).
					Str("conversation_id", st.In.ConversationID.String()).
					Str("correlation_id", st.In.CorrelationID).
					Str("target", string(st.Decision.Target)).
					Msg("specialist dispatch failed")
				return st.fail(err), nil
			}

			st.Reply = reply
			if st.Decision.Target == contractx.AgentTypeEscalation {
				st.Status = StatusEscalated
			} else {
				st.Status = StatusCompleted
			}
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dispatch_specialist: %w", err)
	}

	if err := graph.AddLambdaNode("append_exchange",
		compose.InvokableLambda(func(ctx context.Context, st *graphState) (*graphState, error) {
			meta := storagex.MessageMeta{CorrelationID: st.In.CorrelationID}
			if _, err := s.memory.Append(ctx, st.In.ConversationID, storagex.RoleUser, st.In.Message, meta); err != nil {
				log.Error().Err(err).
					Str("conversation_id", st.In.ConversationID.String()).
					Msg("user message append failed")
				return st.fail(err), nil
			}
			if st.Status != StatusCompleted && st.Status != StatusEscalated {
				return st, nil
			}

			assistantMeta := storagex.MessageMeta{
				AgentType:     string(st.Reply.AgentType),
				ToolsUsed:     st.Reply.ToolNames(),
				CorrelationID: st.In.CorrelationID,
			}
			if _, err := s.memory.Append(ctx, st.In.ConversationID, storagex.RoleAssistant, st.Reply.Content, assistantMeta); err != nil {
				log.Error().Err(err).
					Str("conversation_id", st.In.ConversationID.String()).
					Msg("assistant message append failed")
				return st.fail(err), nil
			}
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node append_exchange: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_turn",
		compose.InvokableLambda(func(ctx context.Context, st *graphState) (Result, error) {
			out := Result{
				ConversationID: st.In.ConversationID,
				Reply:          st.Reply.Content,
				AgentType:      st.Reply.AgentType,
				ToolCalls:      st.Reply.ToolCalls,
				Routing:        st.Decision,
				Status:         st.Status,
				CorrelationID:  st.In.CorrelationID,
			}
			if st.Status == StatusFailed {
				out.Reply = genericFailureReply
				out.AgentType = ""
				out.ToolCalls = nil
			}
			return out, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_turn: %w", err)
	}

	edges := [][2]string{
		{compose.START, "load_context"},
		{"load_context", "route_message"},
		{"route_message", "dispatch_specialist"},
		{"dispatch_specialist", "append_exchange"},
		{"append_exchange", "finalize_turn"},
		{"finalize_turn", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.process_message"))
	if err != nil {
		return nil, fmt.Errorf("compile turn graph: %w", err)
	}
	return runner, nil
}
