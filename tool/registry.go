// Package tool implements the built-in tool registry and executor every
// agent's tool-call loop invokes, grounded on coding/unix's bash-execution
// pattern and coding/permission's tree-sitter-bash command auditing.
package tool

import (
	"context"
	"fmt"
	"reflect"

	"github.com/mgreenly/ikigai-sub013/common"
)

// Handler executes one tool call. argsJSON is the raw JSON object the
// provider sent; result is serialized back as a ToolResult content block.
type Handler func(ctx context.Context, argsJSON string) (result string, isError bool, err error)

type entry struct {
	tool    *common.Tool
	handler Handler
}

// Registry maps tool names to their schema and handler.
type Registry struct {
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool whose input schema is reflected from paramsType
// (the same jsonschema.Reflect pipeline common.NewTool uses for provider
// wire schemas).
func (r *Registry) Register(name, description string, paramsType reflect.Type, handler Handler) {
	r.entries[name] = entry{tool: common.NewTool(name, description, paramsType), handler: handler}
}

// Tools returns the wire schema for every registered tool, optionally
// filtered to a toolset allowlist (nil means all).
func (r *Registry) Tools(allow []string) []*common.Tool {
	var allowSet map[string]bool
	if allow != nil {
		allowSet = make(map[string]bool, len(allow))
		for _, n := range allow {
			allowSet[n] = true
		}
	}
	out := make([]*common.Tool, 0, len(r.entries))
	for name, e := range r.entries {
		if allowSet != nil && !allowSet[name] {
			continue
		}
		out = append(out, e.tool)
	}
	return out
}

// Execute runs the named tool. Unknown tool names are reported as a tool
// error result, not a Go error, so the agent's loop can feed the failure
// back to the model as a normal tool_result.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) (result string, isError bool, err error) {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Sprintf("unknown tool: %s", name), true, nil
	}
	return e.handler(ctx, argsJSON)
}
