// Package tools declares the agent's callable tools and executes them with
// validated arguments. Tool calls never raise to the dispatch loop: every
// invocation resolves to a ToolCallResult, success or failure.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/knolabs/voicedesk/pkg/agent/types"
)

// Registry misuse errors. With a fixed tool set these indicate programming
// mistakes at startup, not runtime conditions.
var (
	ErrDuplicateTool = errors.New("duplicate tool")
	ErrUnknownTool   = errors.New("unknown tool")
)

// Handler executes one tool with already-validated arguments.
type Handler interface {
	Schema() types.ToolSchema
	Call(ctx context.Context, args map[string]any) types.ToolCallResult
}

// Registry maps tool names to handlers. It is populated before the first
// session starts and never mutated afterwards, so concurrent reads need no
// synchronization.
type Registry struct {
	byName map[string]Handler
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Handler, 8)}
}

// Register adds a handler. It fails if the tool name is already present or a
// parameter name repeats within the schema.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("handler is required")
	}
	schema := h.Schema()
	name := strings.TrimSpace(schema.Name)
	if name == "" {
		return fmt.Errorf("tool name must be non-empty")
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
	}
	seen := make(map[string]struct{}, len(schema.Parameters))
	for _, p := range schema.Parameters {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("tool %q: parameter name must be non-empty", name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: %q repeats parameter %q", ErrDuplicateTool, name, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	r.byName[name] = h
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the schema for a registered tool.
func (r *Registry) Lookup(name string) (types.ToolSchema, error) {
	h, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return types.ToolSchema{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return h.Schema(), nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[strings.TrimSpace(name)]
	return ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns all schemas in registration order, for the decision layer.
func (r *Registry) Schemas() []types.ToolSchema {
	if r == nil {
		return nil
	}
	out := make([]types.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].Schema())
	}
	return out
}

func (r *Registry) handler(name string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.byName[strings.TrimSpace(name)]
	return h, ok
}
