package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/knolabs/voicedesk/pkg/agent/metrics"
	"github.com/knolabs/voicedesk/pkg/agent/types"
)

const unknownToolMessage = "I'm sorry, I can't do that yet. Is there something else I can help with?"

// Executor validates and runs tool call requests against the registry.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// NewExecutor builds an Executor. Metrics may be nil.
func NewExecutor(registry *Registry, logger *slog.Logger, m *metrics.Metrics, timeout time.Duration) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, logger: logger, metrics: m, timeout: timeout}
}

// Execute runs one tool call. Validation failures are rejected before any
// network I/O; execution failures are recovered into a failure result. The
// underlying error is logged, never surfaced to the caller verbatim.
func (e *Executor) Execute(ctx context.Context, req types.ToolCallRequest) types.ToolCallResult {
	start := time.Now()
	res := e.execute(ctx, req)
	e.metrics.RecordToolCall(req.Tool, string(res.Outcome), time.Since(start))
	return res
}

func (e *Executor) execute(ctx context.Context, req types.ToolCallRequest) types.ToolCallResult {
	h, ok := e.registry.handler(req.Tool)
	if !ok {
		e.logger.Warn("tool call for unregistered tool", "tool", req.Tool)
		return types.ToolCallResult{Tool: req.Tool, Outcome: types.OutcomeFailure, Message: unknownToolMessage}
	}

	if res := validateArgs(h.Schema(), req.Arguments); res != nil {
		e.logger.Info("tool call rejected by validation", "tool", req.Tool)
		return *res
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return h.Call(ctx, req.Arguments)
}
