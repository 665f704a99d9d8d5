// Package session runs one conversation: it owns the transcript, consumes
// room events one at a time, delegates turn decisions to the language model,
// executes tool calls, and speaks replies back into the room.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/knolabs/voicedesk/pkg/agent/metrics"
	"github.com/knolabs/voicedesk/pkg/agent/tools"
	"github.com/knolabs/voicedesk/pkg/agent/types"
	"github.com/knolabs/voicedesk/pkg/llm"
	"github.com/knolabs/voicedesk/pkg/room"
)

// State is the dispatch loop's current phase, exposed for observability.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateDeciding   State = "deciding"
	StateExecuting  State = "executing"
	StateResponding State = "responding"
	StateClosed     State = "closed"
)

const apologyMessage = "I'm sorry, I'm having trouble on my end right now. Could you say that again in a moment?"

// Config carries the per-session dialogue policy.
type Config struct {
	SystemPrompt         string
	Greeting             string
	FollowUpDelay        time.Duration
	FollowUpTool         string
	LivenessInterval     time.Duration
	MaxModelCallsPerTurn int
	EventQueueSize       int
}

// Dependencies wires a Session. Room, Decider, and Executor are required.
type Dependencies struct {
	Room     room.Room
	Decider  llm.Decider
	Executor *tools.Executor
	Registry *tools.Registry
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Config   Config
	ID       string
	Now      func() time.Time
}

// Session is the dispatch loop for one live conversation. A single goroutine
// (Run) owns all mutable state except the follow-up timers; events are
// processed strictly in arrival order.
type Session struct {
	id       string
	roomConn room.Room
	decider  llm.Decider
	executor *tools.Executor
	registry *tools.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	history   *History
	followUps *FollowUpScheduler
	events    chan types.Event

	state atomic.Value // State

	// Owned by the Run goroutine.
	speakCancel context.CancelFunc
	speakDone   chan struct{}
}

// New builds a Session. The follow-up scheduler is armed immediately but no
// event is processed until Run.
func New(deps Dependencies) (*Session, error) {
	if deps.Room == nil {
		return nil, fmt.Errorf("room is required")
	}
	if deps.Decider == nil {
		return nil, fmt.Errorf("decider is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if deps.Config.FollowUpTool != "" && !deps.Registry.Has(deps.Config.FollowUpTool) {
		return nil, fmt.Errorf("follow-up tool %q is not registered", deps.Config.FollowUpTool)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ID == "" {
		deps.ID = uuid.NewString()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.LivenessInterval <= 0 {
		deps.Config.LivenessInterval = time.Second
	}
	if deps.Config.MaxModelCallsPerTurn <= 0 {
		deps.Config.MaxModelCallsPerTurn = 4
	}
	if deps.Config.FollowUpDelay <= 0 {
		deps.Config.FollowUpDelay = 20 * time.Second
	}
	if deps.Config.EventQueueSize <= 0 {
		deps.Config.EventQueueSize = 32
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       deps.ID,
		roomConn: deps.Room,
		decider:  deps.Decider,
		executor: deps.Executor,
		registry: deps.Registry,
		logger:   deps.Logger.With("session", deps.ID),
		metrics:  deps.Metrics,
		cfg:      deps.Config,
		now:      deps.Now,
		ctx:      ctx,
		cancel:   cancel,
		history:  NewHistory(deps.Config.SystemPrompt),
		events:   make(chan types.Event, deps.Config.EventQueueSize),
	}
	s.state.Store(StateIdle)
	s.followUps = NewFollowUpScheduler(s.logger, func(payload types.FollowUpPayload) {
		s.metrics.RecordFollowUpFired()
		select {
		case s.events <- types.FollowUpFired{Payload: payload}:
		case <-s.ctx.Done():
		}
	})
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the loop's current phase.
func (s *Session) State() State { return s.state.Load().(State) }

// History returns the session transcript.
func (s *Session) History() *History { return s.history }

// FollowUps returns the session's scheduler.
func (s *Session) FollowUps() *FollowUpScheduler { return s.followUps }

// Cancel aborts the session from outside the loop.
func (s *Session) Cancel() { s.cancel() }

// Run drives the dispatch loop until the room disconnects or ctx is
// cancelled. It always tears down follow-up timers before returning.
func (s *Session) Run(ctx context.Context) error {
	start := s.now()
	status := "completed"
	s.metrics.RecordSessionStart()
	defer func() {
		s.setState(StateClosed)
		s.interruptSpeech()
		s.metrics.RecordFollowUpsCancelled(s.followUps.Close())
		_ = s.roomConn.Close()
		s.cancel()
		s.metrics.RecordSessionEnd(status, s.now().Sub(start))
		s.logger.Info("session closed", "status", status)
	}()

	go s.forwardRoomEvents()

	s.setState(StateListening)
	if s.cfg.Greeting != "" {
		s.respond(s.cfg.Greeting)
	}

	liveness := time.NewTicker(s.cfg.LivenessInterval)
	defer liveness.Stop()

	for {
		select {
		case <-ctx.Done():
			status = "cancelled"
			return ctx.Err()
		case <-s.ctx.Done():
			status = "cancelled"
			return nil
		case <-liveness.C:
			if s.roomConn.State() != types.ConnConnected {
				return nil
			}
		case ev, ok := <-s.events:
			if !ok {
				return nil
			}
			// A fresh event pre-empts any in-flight reply emission.
			s.interruptSpeech()
			switch ev := ev.(type) {
			case types.ConnectionChanged:
				if ev.State == types.ConnDisconnected {
					return nil
				}
			case types.Utterance:
				s.handleUserText(ctx, ev.Text, "utterance")
			case types.ChatText:
				s.handleUserText(ctx, ev.Text, "chat")
			case types.FollowUpFired:
				s.handleFollowUp(ctx, ev.Payload)
			}
			s.setState(StateListening)
		}
	}
}

func (s *Session) forwardRoomEvents() {
	for ev := range s.roomConn.Events() {
		select {
		case s.events <- ev:
		case <-s.ctx.Done():
			return
		}
	}
	select {
	case s.events <- types.ConnectionChanged{State: types.ConnDisconnected}:
	case <-s.ctx.Done():
	}
}

func (s *Session) handleUserText(ctx context.Context, text, kind string) {
	s.metrics.RecordTurn(kind)
	s.history.Append(types.NewMessage(types.RoleUser, text))
	s.runTurn(ctx)
}

// handleFollowUp resumes a scheduled check: the status tool runs as if the
// model had requested it, and the decider phrases the outcome as a new
// spoken message without a live user turn.
func (s *Session) handleFollowUp(ctx context.Context, payload types.FollowUpPayload) {
	if s.cfg.FollowUpTool == "" {
		s.logger.Warn("follow-up fired but no follow-up tool is configured")
		return
	}
	s.metrics.RecordTurn("follow_up")

	req := types.ToolCallRequest{
		ID:        "followup_" + uuid.NewString(),
		Tool:      s.cfg.FollowUpTool,
		Arguments: map[string]any{"email": payload.Email},
	}
	s.setState(StateExecuting)
	s.history.Append(types.Message{Role: types.RoleAssistant, ToolCalls: []types.ToolCallRequest{req}, Timestamp: s.now()})
	res := s.executor.Execute(ctx, req)
	s.history.Append(types.Message{Role: types.RoleTool, ToolCallID: req.ID, Content: res.Message, Timestamp: s.now()})
	s.runTurn(ctx)
}

// runTurn loops decide -> execute until the model answers without tool calls
// or the per-turn model-call budget runs out. Tool calls run sequentially in
// the decided order; every result is appended before the loop advances.
func (s *Session) runTurn(ctx context.Context) {
	for call := 0; call < s.cfg.MaxModelCallsPerTurn; call++ {
		s.setState(StateDeciding)
		decision, err := s.decider.Decide(ctx, s.history.Snapshot(), s.registry.Schemas())
		if err != nil {
			s.metrics.RecordDeciderError()
			s.logger.Error("decision failed", "error", err)
			s.respond(apologyMessage)
			return
		}

		if len(decision.ToolCalls) == 0 {
			if decision.Reply != "" {
				s.respond(decision.Reply)
			}
			return
		}

		s.setState(StateExecuting)
		s.history.Append(types.Message{
			Role:      types.RoleAssistant,
			Content:   decision.Reply,
			ToolCalls: decision.ToolCalls,
			Timestamp: s.now(),
		})
		for _, req := range decision.ToolCalls {
			res := s.executor.Execute(ctx, req)
			s.history.Append(types.Message{
				Role:       types.RoleTool,
				ToolCallID: req.ID,
				Content:    res.Message,
				Timestamp:  s.now(),
			})
			if res.Outcome == types.OutcomeSuccess && res.FollowUp != nil {
				if _, err := s.followUps.Schedule(s.cfg.FollowUpDelay, *res.FollowUp); err != nil {
					s.logger.Error("scheduling follow-up failed", "error", err)
				} else {
					s.metrics.RecordFollowUpScheduled()
				}
			}
		}
	}

	s.logger.Warn("model-call budget exhausted for turn")
	s.respond(apologyMessage)
}

// respond appends the assistant message and emits it asynchronously so the
// loop can keep listening. A later event interrupts the emission; appended
// history is never rolled back.
func (s *Session) respond(text string) {
	s.setState(StateResponding)
	s.history.Append(types.NewMessage(types.RoleAssistant, text))

	speakCtx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.speakCancel = cancel
	s.speakDone = done

	go func() {
		defer close(done)
		if err := s.roomConn.Say(speakCtx, text, true); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("reply emission failed", "error", err)
		}
	}()
}

// interruptSpeech cancels any in-flight reply emission and waits for the
// speaking goroutine to stop before the next event is handled.
func (s *Session) interruptSpeech() {
	if s.speakCancel == nil {
		return
	}
	s.speakCancel()
	s.speakCancel = nil
	if s.speakDone != nil {
		<-s.speakDone
		s.speakDone = nil
	}
}

func (s *Session) setState(state State) {
	s.state.Store(state)
}
