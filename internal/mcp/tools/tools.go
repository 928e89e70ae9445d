// Package tools defines the shared [Tool] type used by the MCP tool packages
// of discord-mcp. Each sub-package exports a constructor that returns a slice
// of [Tool] values ready for registration with the MCP server.
package tools

import (
	"context"
	"slices"
	"time"
)

// Definition is the agent-facing schema of a tool.
type Definition struct {
	// Name is the tool's unique identifier, e.g. "send_message".
	Name string

	// Description explains what the tool does. Agents see it verbatim.
	Description string

	// Parameters is the JSON Schema of the tool's input object.
	Parameters map[string]any

	// ReadOnly marks tools that never change remote state.
	ReadOnly bool

	// Destructive marks tools whose effect cannot be undone.
	Destructive bool

	// Idempotent marks tools that can be repeated with the same arguments
	// without additional effect.
	Idempotent bool
}

// Tool is a tool ready for registration with the MCP server.
type Tool struct {
	// Definition is the tool's schema including its name, description, and
	// JSON Schema of the arguments object.
	Definition Definition

	// Handler executes the tool with JSON-encoded args and returns a
	// JSON-encoded result. Expected failures are reported inside the result;
	// a non-nil error means the handler itself is broken. Implementations
	// must be safe for concurrent use and must respect context cancellation.
	Handler func(ctx context.Context, args string) (string, error)

	// DeclaredP50 is the declared median execution latency in milliseconds.
	DeclaredP50 int64

	// DeclaredMax is the declared p99 upper-bound latency in milliseconds.
	// Used as a hard timeout during tool execution.
	DeclaredMax int64
}

// Timeout returns DeclaredMax as a duration, or 0 when no bound is declared.
func (t Tool) Timeout() time.Duration {
	return time.Duration(t.DeclaredMax) * time.Millisecond
}

// Without returns ts minus the tools whose names appear in names.
func Without(ts []Tool, names ...string) []Tool {
	if len(names) == 0 {
		return ts
	}
	out := make([]Tool, 0, len(ts))
	for _, t := range ts {
		if !slices.Contains(names, t.Definition.Name) {
			out = append(out, t)
		}
	}
	return out
}
