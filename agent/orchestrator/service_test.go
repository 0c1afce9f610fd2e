package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	storagex "github.com/cloudflow/support-agents/agent/storage"
)

type appended struct {
	role    storagex.Role
	content string
	meta    storagex.MessageMeta
}

type fakeMemory struct {
	mu        sync.Mutex
	window    []storagex.Message
	getErr    error
	appendErr error
	appends   []appended
	closed    int
}

func (f *fakeMemory) GetContext(ctx context.Context, conversationID uuid.UUID, limit int) ([]storagex.Message, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.window, nil
}

func (f *fakeMemory) Append(ctx context.Context, conversationID uuid.UUID, role storagex.Role, content string, meta storagex.MessageMeta) (*storagex.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	f.appends = append(f.appends, appended{role: role, content: content, meta: meta})
	return &storagex.Message{Role: role, Content: content, Meta: meta}, nil
}

func (f *fakeMemory) Close(ctx context.Context, conversationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

type fakeRouter struct {
	decision contractx.RoutingDecision
}

func (f *fakeRouter) Route(ctx context.Context, message string, recent []storagex.Message) contractx.RoutingDecision {
	return f.decision
}

type fakeSpecialist struct {
	reply  contractx.AgentReply
	err    error
	called int
	block  bool
	delay  time.Duration
}

func (f *fakeSpecialist) Handle(ctx context.Context, req contractx.SpecialistRequest) (contractx.AgentReply, error) {
	f.called++
	if f.block {
		<-ctx.Done()
		return contractx.AgentReply{}, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return contractx.AgentReply{}, ctx.Err()
		}
	}
	if f.err != nil {
		return contractx.AgentReply{}, f.err
	}
	return f.reply, nil
}

type fakeRegistry struct {
	faq        *fakeSpecialist
	order      *fakeSpecialist
	escalation *fakeSpecialist
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		faq:        &fakeSpecialist{reply: contractx.AgentReply{Content: "faq answer", AgentType: contractx.AgentTypeFAQ}},
		order:      &fakeSpecialist{reply: contractx.AgentReply{Content: "order answer", AgentType: contractx.AgentTypeOrder}},
		escalation: &fakeSpecialist{reply: contractx.AgentReply{Content: "ticket filed", AgentType: contractx.AgentTypeEscalation}},
	}
}

func (f *fakeRegistry) FAQ() contractx.Specialist        { return f.faq }
func (f *fakeRegistry) Order() contractx.Specialist      { return f.order }
func (f *fakeRegistry) Escalation() contractx.Specialist { return f.escalation }

type fakeLocker struct {
	busy     bool
	acquired int
	released int
}

type fakeLease struct{ locker *fakeLocker }

func (l *fakeLease) Release(ctx context.Context) error {
	l.locker.released++
	return nil
}

func (f *fakeLocker) Acquire(ctx context.Context, conversationID uuid.UUID) (contractx.Lease, error) {
	if f.busy {
		return nil, contractx.ErrConversationBusy
	}
	f.acquired++
	return &fakeLease{locker: f}, nil
}

// blockingLocker serializes callers per conversation the way the Redis mutex
// does, but in memory: Acquire blocks until the current holder releases.
type blockingLocker struct {
	mu    sync.Mutex
	gates map[uuid.UUID]chan struct{}
}

func newBlockingLocker() *blockingLocker {
	return &blockingLocker{gates: make(map[uuid.UUID]chan struct{})}
}

func (f *blockingLocker) gate(id uuid.UUID) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[id]
	if !ok {
		g = make(chan struct{}, 1)
		f.gates[id] = g
	}
	return g
}

func (f *blockingLocker) Acquire(ctx context.Context, conversationID uuid.UUID) (contractx.Lease, error) {
	g := f.gate(conversationID)
	select {
	case g <- struct{}{}:
		return blockingLease{g: g}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type blockingLease struct{ g chan struct{} }

func (l blockingLease) Release(ctx context.Context) error {
	<-l.g
	return nil
}

func decision(target contractx.AgentType) contractx.RoutingDecision {
	return contractx.RoutingDecision{
		Target:     target,
		Confidence: 0.9,
		Reasoning:  "test",
		Summary:    "test summary",
		Source:     contractx.SourceLLM,
	}
}

func newTestService(t *testing.T, memory *fakeMemory, router *fakeRouter, registry *fakeRegistry, locker contractx.Locker, opts ...Option) *Service {
	t.Helper()
	svc, err := New(memory, router, registry, locker, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc
}

func TestProcessMessageAppendsBothSidesOfTheExchange(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	registry := newFakeRegistry()
	registry.order.reply.ToolCalls = []contractx.ToolInvocation{
		{Name: contractx.ToolGetCustomerInfo, Success: true},
		{Name: contractx.ToolGetInvoices, Success: true},
	}
	svc := newTestService(t, memory, &fakeRouter{decision: decision(contractx.AgentTypeOrder)}, registry, &fakeLocker{})

	convID := uuid.New()
	res, err := svc.ProcessMessage(context.Background(), convID, "where is my invoice?", "jane@example.com")
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}

	if res.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if res.Reply != "order answer" {
		t.Fatalf("reply = %q", res.Reply)
	}
	if res.CorrelationID == "" {
		t.Fatal("expected a correlation id")
	}
	if len(res.ToolCalls) != 2 {
		t.Fatalf("result tool calls = %+v, want 2", res.ToolCalls)
	}
	if res.ToolCalls[0].Name != contractx.ToolGetCustomerInfo || res.ToolCalls[1].Name != contractx.ToolGetInvoices {
		t.Fatalf("result tool calls = %+v", res.ToolCalls)
	}

	if len(memory.appends) != 2 {
		t.Fatalf("expected 2 appended messages, got %d", len(memory.appends))
	}
	user, assistant := memory.appends[0], memory.appends[1]
	if user.role != storagex.RoleUser || user.content != "where is my invoice?" {
		t.Fatalf("unexpected user append: %+v", user)
	}
	if assistant.role != storagex.RoleAssistant || assistant.content != "order answer" {
		t.Fatalf("unexpected assistant append: %+v", assistant)
	}
	if assistant.meta.AgentType != string(contractx.AgentTypeOrder) {
		t.Fatalf("assistant meta agent type = %q", assistant.meta.AgentType)
	}
	if len(assistant.meta.ToolsUsed) != 2 {
		t.Fatalf("assistant meta tools = %v", assistant.meta.ToolsUsed)
	}
	if assistant.meta.CorrelationID != res.CorrelationID || user.meta.CorrelationID != res.CorrelationID {
		t.Fatal("correlation id not stamped on both messages")
	}
}

func TestProcessMessageEscalationTurnIsLabeled(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	svc := newTestService(t, memory, &fakeRouter{decision: decision(contractx.AgentTypeEscalation)}, newFakeRegistry(), &fakeLocker{})

	res, err := svc.ProcessMessage(context.Background(), uuid.New(), "I need a human", "")
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if res.Status != StatusEscalated {
		t.Fatalf("status = %s, want escalated", res.Status)
	}
	if len(memory.appends) != 2 {
		t.Fatalf("expected 2 appended messages, got %d", len(memory.appends))
	}
}

func TestProcessMessageSpecialistFailureKeepsUserMessage(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	registry := newFakeRegistry()
	registry.faq.err = errors.New("model exploded")
	svc := newTestService(t, memory, &fakeRouter{decision: decision(contractx.AgentTypeFAQ)}, registry, &fakeLocker{})

	res, err := svc.ProcessMessage(context.Background(), uuid.New(), "what is this?", "")
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if res.Reply != genericFailureReply {
		t.Fatalf("reply = %q, want generic failure reply", res.Reply)
	}
	if res.ToolCalls != nil {
		t.Fatalf("failed turn must not report tool calls, got %+v", res.ToolCalls)
	}
	if len(memory.appends) != 1 || memory.appends[0].role != storagex.RoleUser {
		t.Fatalf("expected only the user message appended, got %+v", memory.appends)
	}
}

func TestProcessMessageContextLoadFailureSkipsDispatch(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{getErr: contractx.ErrStorageUnavailable}
	registry := newFakeRegistry()
	svc := newTestService(t, memory, &fakeRouter{decision: decision(contractx.AgentTypeFAQ)}, registry, &fakeLocker{})

	res, err := svc.ProcessMessage(context.Background(), uuid.New(), "hello", "")
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if registry.faq.called != 0 {
		t.Fatalf("specialist should not run after a context load failure, called %d times", registry.faq.called)
	}
}

func TestProcessMessageDispatchTimeout(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	registry := newFakeRegistry()
	registry.faq.block = true
	svc := newTestService(t, memory, &fakeRouter{decision: decision(contractx.AgentTypeFAQ)}, registry, &fakeLocker{},
		WithDispatchTimeout(20*time.Millisecond))

	res, err := svc.ProcessMessage(context.Background(), uuid.New(), "slow question", "")
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if len(memory.appends) != 1 {
		t.Fatalf("expected only the user message appended, got %d", len(memory.appends))
	}
}

func TestProcessMessageBusyConversation(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	svc := newTestService(t, memory, &fakeRouter{decision: decision(contractx.AgentTypeFAQ)}, newFakeRegistry(), &fakeLocker{busy: true})

	_, err := svc.ProcessMessage(context.Background(), uuid.New(), "hello", "")
	if !errors.Is(err, contractx.ErrConversationBusy) {
		t.Fatalf("ProcessMessage() error = %v, want ErrConversationBusy", err)
	}
	if len(memory.appends) != 0 {
		t.Fatalf("nothing should be appended on a busy conversation, got %d", len(memory.appends))
	}
}

func TestConcurrentTurnsOnOneConversationDoNotInterleave(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	registry := newFakeRegistry()
	registry.faq.delay = 30 * time.Millisecond
	svc := newTestService(t, memory, &fakeRouter{decision: decision(contractx.AgentTypeFAQ)}, registry, newBlockingLocker())

	convID := uuid.New()
	var wg sync.WaitGroup
	for _, msg := range []string{"first message", "second message"} {
		wg.Add(1)
		go func(msg string) {
			defer wg.Done()
			if _, err := svc.ProcessMessage(context.Background(), convID, msg, ""); err != nil {
				t.Errorf("ProcessMessage(%q) error = %v", msg, err)
			}
		}(msg)
	}
	wg.Wait()

	if len(memory.appends) != 4 {
		t.Fatalf("expected 4 appended messages, got %d: %+v", len(memory.appends), memory.appends)
	}
	for i := 0; i < len(memory.appends); i += 2 {
		user, assistant := memory.appends[i], memory.appends[i+1]
		if user.role != storagex.RoleUser || assistant.role != storagex.RoleAssistant {
			t.Fatalf("turn appends interleaved: %+v", memory.appends)
		}
		if user.meta.CorrelationID != assistant.meta.CorrelationID {
			t.Fatalf("appends from different turns interleaved: %+v", memory.appends)
		}
	}
	if memory.appends[0].content == memory.appends[2].content {
		t.Fatalf("expected both turns to run, got %+v", memory.appends)
	}
}

func TestProcessMessageValidation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeMemory{}, &fakeRouter{decision: decision(contractx.AgentTypeFAQ)}, newFakeRegistry(), &fakeLocker{})

	if _, err := svc.ProcessMessage(context.Background(), uuid.Nil, "hello", ""); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("nil conversation id error = %v, want ErrValidation", err)
	}
	if _, err := svc.ProcessMessage(context.Background(), uuid.New(), "   ", ""); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("blank message error = %v, want ErrValidation", err)
	}
}

func TestCloseConversationTakesTheLock(t *testing.T) {
	t.Parallel()

	memory := &fakeMemory{}
	locker := &fakeLocker{}
	svc := newTestService(t, memory, &fakeRouter{decision: decision(contractx.AgentTypeFAQ)}, newFakeRegistry(), locker)

	if err := svc.CloseConversation(context.Background(), uuid.New()); err != nil {
		t.Fatalf("CloseConversation() error = %v", err)
	}
	if memory.closed != 1 {
		t.Fatalf("expected one close, got %d", memory.closed)
	}
	if locker.acquired != 1 || locker.released != 1 {
		t.Fatalf("lock acquired %d released %d, want 1/1", locker.acquired, locker.released)
	}
}

func TestProcessMessageReleasesLock(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{}
	registry := newFakeRegistry()
	registry.faq.err = errors.New("boom")
	svc := newTestService(t, &fakeMemory{}, &fakeRouter{decision: decision(contractx.AgentTypeFAQ)}, registry, locker)

	if _, err := svc.ProcessMessage(context.Background(), uuid.New(), "hello", ""); err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if locker.acquired != 1 || locker.released != 1 {
		t.Fatalf("lock acquired %d released %d, want 1/1", locker.acquired, locker.released)
	}
}
