package domain

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// TenantContext carries the per-invocation identity (the active project) that
// scopes dynamic tool discovery and elicitation routing. It is supplied by
// the surrounding transport layer per request and never owned by this core.
type TenantContext struct {
	// Project is the opaque root identifier of the active workspace project.
	Project string
}

// ToolDeclaration is the public contract of one callable operation,
// compliant with the Model Context Protocol (MCP).
// Based on MCP Spec 2025-03-26: https://modelcontextprotocol.io/specification/2025-03-26
type ToolDeclaration struct {
	// Tool holds the wire-level declaration: name (unique within a group),
	// human description and a JSON-Schema input definition.
	Tool mcp.Tool

	// UIResource optionally names the UI panel a presentation layer should
	// render when this tool runs. Empty for tools without a UI binding.
	UIResource string
}

// ToolService owns one or more tool declarations and executes them by name.
// A service instance is constructed once by the host application and shared
// by reference across all sessions of a group.
type ToolService interface {
	// Declarations returns the service's tool contracts in registration order.
	Declarations() []ToolDeclaration

	// Execute runs the named tool. The elicit callback is scoped to this
	// single invocation and may be called zero or more times to request
	// structured input from a human observer; each call blocks until a
	// response arrives or the coordinator times the request out.
	Execute(ctx context.Context, name string, args map[string]any, elicit ElicitFunc) (any, error)
}

// DynamicToolsLoader discovers tool declarations that are not known at
// group-configuration time. Results are fetched per list-request and must
// never be cached by the caller.
type DynamicToolsLoader interface {
	ListTools(ctx context.Context, tenant TenantContext) ([]ToolDeclaration, error)
}

// DynamicToolExecutor resolves and runs a tool name that is absent from the
// static registry, given a tenant context. Implementations return structured
// error results rather than failing the protocol exchange.
type DynamicToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any, tenant TenantContext) (*mcp.CallToolResult, error)
}

// Resource is a read-only document a group exposes to clients, keyed by URI.
type Resource struct {
	URI         string
	Name        string
	Description string
	MIMEType    string

	// Load fetches the document body. Implementations return ErrNoContent
	// when nothing is available; that is a load failure, not empty content.
	Load func(ctx context.Context) (string, error)
}

// GroupConfig bundles everything one protocol endpoint serves: static tool
// services, optional dynamic discovery/execution hooks and optional exposed
// resources. Constructed once at process start and never mutated.
type GroupConfig struct {
	Name            string
	ToolServices    []ToolService
	DynamicLoader   DynamicToolsLoader
	DynamicExecutor DynamicToolExecutor
	Resources       []Resource
}
