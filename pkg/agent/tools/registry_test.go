package tools

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/knolabs/voicedesk/pkg/agent/types"
)

type stubHandler struct {
	schema types.ToolSchema
	calls  int
	result types.ToolCallResult
}

func (h *stubHandler) Schema() types.ToolSchema { return h.schema }

func (h *stubHandler) Call(ctx context.Context, args map[string]any) types.ToolCallResult {
	h.calls++
	return h.result
}

func simpleSchema(name string, params ...types.Param) types.ToolSchema {
	return types.ToolSchema{Name: name, Description: "test tool", Parameters: params}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	h := &stubHandler{schema: simpleSchema("zeta")}
	if err := r.Register(h); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&stubHandler{schema: simpleSchema("alpha")}); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := r.Lookup("zeta")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Name != "zeta" {
		t.Fatalf("schema name=%q", got.Name)
	}
	if !r.Has("alpha") || r.Has("missing") {
		t.Fatal("Has gave wrong answers")
	}
}

func TestRegistry_DuplicateToolName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubHandler{schema: simpleSchema("dup")}); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := r.Register(&stubHandler{schema: simpleSchema("dup")})
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("err=%v, want ErrDuplicateTool", err)
	}
}

func TestRegistry_DuplicateParamName(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&stubHandler{schema: simpleSchema("bad",
		types.Param{Name: "email", Type: types.ParamString},
		types.Param{Name: "email", Type: types.ParamString},
	)})
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("err=%v, want ErrDuplicateTool", err)
	}
}

func TestRegistry_UnknownLookup(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup("nope"); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("err=%v, want ErrUnknownTool", err)
	}
}

func TestRegistry_NamesSortedSchemasOrdered(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(&stubHandler{schema: simpleSchema(name)}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"alpha", "mid", "zeta"}) {
		t.Fatalf("names=%v", got)
	}
	schemas := r.Schemas()
	if len(schemas) != 3 || schemas[0].Name != "zeta" || schemas[2].Name != "mid" {
		t.Fatalf("schemas out of registration order: %+v", schemas)
	}
}
