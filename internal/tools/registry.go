// Package tools runs the named tools agents can invoke through call_tool
// actions. Arguments are validated against each tool's JSON Schema before
// execution.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	MaxToolNameLength = 64
	MaxToolParamsSize = 1 << 20
)

var (
	// ErrUnknownTool is returned for names with no registered tool.
	ErrUnknownTool = errors.New("tools: unknown tool")
	// ErrInvalidArguments wraps schema validation failures.
	ErrInvalidArguments = errors.New("tools: invalid arguments")
)

// Tool is one callable capability.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON Schema of the tool's arguments object.
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is the output of one tool execution. IsError marks a failure the
// tool reported itself.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds tools by name. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// NewDefaultRegistry creates a registry with the built-in tools.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, tool := range []Tool{NewCurrentTime(nil), NewDateDiff()} {
		if err := r.Register(tool); err != nil {
			panic(err)
		}
	}
	return r
}

// Register compiles the tool's schema and adds it, replacing any tool with
// the same name.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return fmt.Errorf("tools: invalid tool name %q", name)
	}
	schema, err := jsonschema.CompileString("tool_"+name, string(tool.Schema()))
	if err != nil {
		return fmt.Errorf("tools: compile schema for %s: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = registered{tool: tool, schema: schema}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg.tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute validates args and runs the named tool. A result flagged IsError
// is returned as an error carrying its content.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	if len(args) > MaxToolParamsSize {
		return "", fmt.Errorf("%w: parameters exceed %d bytes", ErrInvalidArguments, MaxToolParamsSize)
	}
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	var payload any
	if err := json.Unmarshal(args, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := reg.schema.Validate(payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	res, err := reg.tool.Execute(ctx, args)
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", nil
	}
	if res.IsError {
		return "", fmt.Errorf("tool %s: %s", name, res.Content)
	}
	return res.Content, nil
}
