package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/knolabs/voicedesk/pkg/agent/tools"
	"github.com/knolabs/voicedesk/pkg/agent/types"
	"github.com/knolabs/voicedesk/pkg/crm"
	"github.com/knolabs/voicedesk/pkg/llm"
)

// fakeRoom feeds events into the session and records what it was told to
// say. When block is set, Say stalls until the channel closes or the speak
// context is cancelled.
type fakeRoom struct {
	events chan types.Event
	block  chan struct{}

	mu          sync.Mutex
	said        []string
	interrupted int

	disconnected atomic.Bool
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{events: make(chan types.Event, 16)}
}

func (r *fakeRoom) Events() <-chan types.Event { return r.events }

func (r *fakeRoom) Say(ctx context.Context, text string, allowInterrupt bool) error {
	r.mu.Lock()
	r.said = append(r.said, text)
	r.mu.Unlock()
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			r.mu.Lock()
			r.interrupted++
			r.mu.Unlock()
			return ctx.Err()
		}
	}
	return nil
}

func (r *fakeRoom) State() types.ConnectionState {
	if r.disconnected.Load() {
		return types.ConnDisconnected
	}
	return types.ConnConnected
}

func (r *fakeRoom) Close() error {
	r.disconnected.Store(true)
	return nil
}

func (r *fakeRoom) saidAll() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.said))
	copy(out, r.said)
	return out
}

func (r *fakeRoom) interruptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interrupted
}

// scriptedDecider pops one decision per call, in order. Past the script it
// decides nothing, which ends the turn silently.
type scriptedDecider struct {
	mu    sync.Mutex
	steps []scriptStep
	seen  [][]types.Message
}

type scriptStep struct {
	decision llm.Decision
	err      error
}

func (d *scriptedDecider) Decide(ctx context.Context, history []types.Message, schemas []types.ToolSchema) (llm.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = append(d.seen, history)
	if len(d.steps) == 0 {
		return llm.Decision{}, nil
	}
	step := d.steps[0]
	d.steps = d.steps[1:]
	return step.decision, step.err
}

func (d *scriptedDecider) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

type sessionFixture struct {
	decider *scriptedDecider
	session *Session

	runDone  chan error
	waitOnce sync.Once
	runErr   error
}

// wait blocks until Run returns. It is safe to call more than once.
func (f *sessionFixture) wait(t *testing.T) error {
	t.Helper()
	f.waitOnce.Do(func() {
		select {
		case f.runErr = <-f.runDone:
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})
	return f.runErr
}

func startSession(t *testing.T, roomConn *fakeRoom, decider *scriptedDecider, cfg Config, crmHandler http.HandlerFunc) *sessionFixture {
	t.Helper()

	ts := httptest.NewServer(crmHandler)
	t.Cleanup(ts.Close)
	client := crm.NewClient(crm.Endpoints{
		Token:            "token",
		CandidateURL:     ts.URL + "/candidates",
		InterviewURL:     ts.URL + "/interviews",
		ContactLookupURL: ts.URL + "/contacts",
		WebhookURL:       ts.URL + "/webhook",
	}, ts.Client())

	registry := tools.NewRegistry()
	logger := discardLogger()
	for _, h := range []tools.Handler{
		&tools.BookAppointment{CRM: client, Logger: logger},
		&tools.CheckStatus{CRM: client, BookedTag: "appointment_booked", Logger: logger},
	} {
		if err := registry.Register(h); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	if cfg.LivenessInterval == 0 {
		cfg.LivenessInterval = 50 * time.Millisecond
	}
	sess, err := New(Dependencies{
		Room:     roomConn,
		Decider:  decider,
		Executor: tools.NewExecutor(registry, logger, nil, 2*time.Second),
		Registry: registry,
		Logger:   logger,
		Config:   cfg,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	f := &sessionFixture{decider: decider, session: sess, runDone: make(chan error, 1)}
	go func() { f.runDone <- sess.Run(context.Background()) }()
	t.Cleanup(func() {
		sess.Cancel()
		f.wait(t)
	})
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSession_SpeaksGreetingOnStart(t *testing.T) {
	roomConn := newFakeRoom()
	f := startSession(t, roomConn, &scriptedDecider{}, Config{Greeting: "Hey, I'm Daela!"}, func(w http.ResponseWriter, r *http.Request) {})

	waitFor(t, "greeting", func() bool {
		said := roomConn.saidAll()
		return len(said) == 1 && said[0] == "Hey, I'm Daela!"
	})
	snap := f.session.History().Snapshot()
	if len(snap) != 1 || snap[0].Role != types.RoleAssistant {
		t.Fatalf("history=%+v", snap)
	}
}

func TestSession_ToolCallTurn(t *testing.T) {
	roomConn := newFakeRoom()
	decider := &scriptedDecider{steps: []scriptStep{
		{decision: llm.Decision{ToolCalls: []types.ToolCallRequest{{
			ID:        "call_1",
			Tool:      tools.ToolBookAppointment,
			Arguments: map[string]any{"email": "jo@example.com", "name": "Jo"},
		}}}},
		{decision: llm.Decision{Reply: "The booking link is on its way!"}},
	}}
	f := startSession(t, roomConn, decider, Config{
		SystemPrompt:  "You are Daela.",
		FollowUpDelay: time.Hour,
		FollowUpTool:  tools.ToolCheckStatus,
	}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	roomConn.events <- types.Utterance{Text: "Book me an appointment, jo@example.com, name Jo."}

	waitFor(t, "spoken reply", func() bool {
		said := roomConn.saidAll()
		return len(said) == 1 && said[0] == "The booking link is on its way!"
	})

	// system, user, assistant tool call, tool result, assistant reply
	snap := f.session.History().Snapshot()
	if len(snap) != 5 {
		t.Fatalf("history len=%d: %+v", len(snap), snap)
	}
	if snap[2].Role != types.RoleAssistant || len(snap[2].ToolCalls) != 1 {
		t.Fatalf("assistant tool call message=%+v", snap[2])
	}
	if snap[3].Role != types.RoleTool || snap[3].ToolCallID != "call_1" {
		t.Fatalf("tool result message=%+v", snap[3])
	}
	if f.session.FollowUps().Pending() != 1 {
		t.Fatalf("pending follow-ups=%d, want 1", f.session.FollowUps().Pending())
	}
}

func TestSession_FollowUpReentersConversation(t *testing.T) {
	roomConn := newFakeRoom()
	decider := &scriptedDecider{steps: []scriptStep{
		{decision: llm.Decision{ToolCalls: []types.ToolCallRequest{{
			ID:        "call_1",
			Tool:      tools.ToolBookAppointment,
			Arguments: map[string]any{"email": "jo@example.com", "name": "Jo"},
		}}}},
		{decision: llm.Decision{Reply: "Sent! Check your inbox."}},
		{decision: llm.Decision{Reply: "Great news, your appointment is booked!"}},
	}}
	f := startSession(t, roomConn, decider, Config{
		FollowUpDelay: 20 * time.Millisecond,
		FollowUpTool:  tools.ToolCheckStatus,
	}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/contacts" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"contacts":[{"id":"c1","tags":["appointment_booked"]}]}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	roomConn.events <- types.Utterance{Text: "Book me in, jo@example.com, Jo."}

	waitFor(t, "follow-up reply", func() bool {
		said := roomConn.saidAll()
		return len(said) == 2 && said[1] == "Great news, your appointment is booked!"
	})
	if f.session.FollowUps().Pending() != 0 {
		t.Fatalf("pending follow-ups=%d after fire", f.session.FollowUps().Pending())
	}

	// The fired follow-up must re-enter as a tool exchange the decider can see.
	var sawStatusResult bool
	for _, msg := range f.session.History().Snapshot() {
		if msg.Role == types.RoleTool && strings.Contains(msg.Content, "successfully booked") {
			sawStatusResult = true
		}
	}
	if !sawStatusResult {
		t.Fatalf("no status tool result in history: %+v", f.session.History().Snapshot())
	}
}

func TestSession_NewEventInterruptsSpeech(t *testing.T) {
	roomConn := newFakeRoom()
	roomConn.block = make(chan struct{})
	decider := &scriptedDecider{steps: []scriptStep{
		{decision: llm.Decision{Reply: "Here is a very long answer"}},
		{decision: llm.Decision{Reply: "Sure, moving on"}},
	}}
	f := startSession(t, roomConn, decider, Config{}, func(w http.ResponseWriter, r *http.Request) {})

	roomConn.events <- types.Utterance{Text: "Tell me everything."}
	waitFor(t, "first reply to start", func() bool {
		return len(roomConn.saidAll()) == 1
	})

	roomConn.events <- types.Utterance{Text: "Actually, never mind."}
	waitFor(t, "interruption", func() bool {
		return roomConn.interruptCount() == 1 && len(roomConn.saidAll()) == 2
	})
	close(roomConn.block)

	// Both assistant messages stay in the transcript; nothing rolls back.
	var assistant []string
	for _, msg := range f.session.History().Snapshot() {
		if msg.Role == types.RoleAssistant {
			assistant = append(assistant, msg.Content)
		}
	}
	if len(assistant) != 2 || assistant[0] != "Here is a very long answer" || assistant[1] != "Sure, moving on" {
		t.Fatalf("assistant messages=%v", assistant)
	}
}

func TestSession_DeciderErrorSpeaksApology(t *testing.T) {
	roomConn := newFakeRoom()
	decider := &scriptedDecider{steps: []scriptStep{
		{err: context.DeadlineExceeded},
	}}
	startSession(t, roomConn, decider, Config{}, func(w http.ResponseWriter, r *http.Request) {})

	roomConn.events <- types.Utterance{Text: "Hello?"}
	waitFor(t, "apology", func() bool {
		said := roomConn.saidAll()
		return len(said) == 1 && said[0] == apologyMessage
	})
}

func TestSession_ModelCallBudgetExhausted(t *testing.T) {
	roomConn := newFakeRoom()
	loopCall := scriptStep{decision: llm.Decision{ToolCalls: []types.ToolCallRequest{{
		ID:        "call_loop",
		Tool:      tools.ToolCheckStatus,
		Arguments: map[string]any{"email": "jo@example.com"},
	}}}}
	decider := &scriptedDecider{steps: []scriptStep{loopCall, loopCall, loopCall}}
	startSession(t, roomConn, decider, Config{MaxModelCallsPerTurn: 2}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"contacts":[]}`))
	})

	roomConn.events <- types.Utterance{Text: "Check my booking forever."}
	waitFor(t, "budget apology", func() bool {
		said := roomConn.saidAll()
		return len(said) == 1 && said[0] == apologyMessage
	})
	if got := decider.calls(); got != 2 {
		t.Fatalf("decider calls=%d, want 2", got)
	}
}

func TestSession_DisconnectEndsRunAndCancelsFollowUps(t *testing.T) {
	roomConn := newFakeRoom()
	decider := &scriptedDecider{steps: []scriptStep{
		{decision: llm.Decision{ToolCalls: []types.ToolCallRequest{{
			ID:        "call_1",
			Tool:      tools.ToolBookAppointment,
			Arguments: map[string]any{"email": "jo@example.com", "name": "Jo"},
		}}}},
		{decision: llm.Decision{Reply: "Done."}},
	}}
	f := startSession(t, roomConn, decider, Config{
		FollowUpDelay: time.Hour,
		FollowUpTool:  tools.ToolCheckStatus,
	}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	roomConn.events <- types.Utterance{Text: "Book me, jo@example.com, Jo."}
	waitFor(t, "follow-up scheduled", func() bool {
		return f.session.FollowUps().Pending() == 1
	})

	roomConn.events <- types.ConnectionChanged{State: types.ConnDisconnected}
	if err := f.wait(t); err != nil {
		t.Fatalf("run err=%v", err)
	}
	if f.session.FollowUps().Pending() != 0 {
		t.Fatalf("pending follow-ups=%d after close", f.session.FollowUps().Pending())
	}
	if f.session.State() != StateClosed {
		t.Fatalf("state=%s", f.session.State())
	}
}

func TestSession_ChatTextHandledLikeUtterance(t *testing.T) {
	roomConn := newFakeRoom()
	decider := &scriptedDecider{steps: []scriptStep{
		{decision: llm.Decision{Reply: "Thanks for typing that."}},
	}}
	f := startSession(t, roomConn, decider, Config{}, func(w http.ResponseWriter, r *http.Request) {})

	roomConn.events <- types.ChatText{Text: "typed message"}
	waitFor(t, "chat reply", func() bool {
		said := roomConn.saidAll()
		return len(said) == 1 && said[0] == "Thanks for typing that."
	})
	snap := f.session.History().Snapshot()
	if len(snap) != 2 || snap[0].Role != types.RoleUser || snap[0].Content != "typed message" {
		t.Fatalf("history=%+v", snap)
	}
}

func TestNew_RequiresCoreDependencies(t *testing.T) {
	if _, err := New(Dependencies{}); err == nil {
		t.Fatal("expected error for missing room")
	}
	if _, err := New(Dependencies{Room: newFakeRoom()}); err == nil {
		t.Fatal("expected error for missing decider")
	}
	if _, err := New(Dependencies{Room: newFakeRoom(), Decider: &scriptedDecider{}}); err == nil {
		t.Fatal("expected error for missing executor")
	}
}

func TestNew_RejectsUnregisteredFollowUpTool(t *testing.T) {
	registry := tools.NewRegistry()
	logger := discardLogger()
	deps := Dependencies{
		Room:     newFakeRoom(),
		Decider:  &scriptedDecider{},
		Executor: tools.NewExecutor(registry, logger, nil, time.Second),
		Registry: registry,
		Logger:   logger,
		Config:   Config{FollowUpTool: "check_appointment_status"},
	}
	if _, err := New(deps); err == nil || !strings.Contains(err.Error(), "check_appointment_status") {
		t.Fatalf("err=%v, want unregistered follow-up tool error", err)
	}

	deps.Config.FollowUpTool = ""
	if _, err := New(deps); err != nil {
		t.Fatalf("no follow-up tool configured: %v", err)
	}
}
