package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mcphub/internal/domain"
	"mcphub/internal/elicitation"
	"mcphub/internal/registry"
	"mcphub/internal/tenant"
)

// Instance is the running server for one group. It is created lazily on
// first access to the group name, cached for the process lifetime and serves
// arbitrarily many concurrent client sessions.
type Instance struct {
	cfg      *domain.GroupConfig
	registry *registry.Registry
	coord    *elicitation.Coordinator
	tenants  *tenant.State
	tracer   trace.Tracer
	logger   *slog.Logger
}

// resolutionKind tags the outcome of one tool-name resolution step.
type resolutionKind int

const (
	resolveNone resolutionKind = iota
	resolveStatic
	resolveDynamic
)

// resolution is the tagged union Static(service) | Dynamic(executor) |
// NotFound, evaluated once per call.
type resolution struct {
	kind     resolutionKind
	service  domain.ToolService
	executor domain.DynamicToolExecutor
}

// resolve checks the static registry first; a name absent from it falls
// through to the dynamic executor, but only when one is configured and a
// tenant context is resolved.
func (i *Instance) resolve(name string, tenantCtx *domain.TenantContext) resolution {
	if svc, ok := i.registry.Lookup(name); ok {
		return resolution{kind: resolveStatic, service: svc}
	}
	if i.cfg.DynamicExecutor != nil && tenantCtx != nil {
		return resolution{kind: resolveDynamic, executor: i.cfg.DynamicExecutor}
	}
	return resolution{kind: resolveNone}
}

// Group returns the group name this instance serves.
func (i *Instance) Group() string {
	return i.cfg.Name
}

// StaticDeclarations returns the group's static tool contracts in
// registration order.
func (i *Instance) StaticDeclarations() []domain.ToolDeclaration {
	return i.registry.Declarations()
}

// ListTools returns every static declaration plus, when the group defines a
// dynamic loader and a tenant context is resolved, the declarations the
// loader discovers for the current tenant. Dynamic declarations are fetched
// per call, never cached. A loader failure is logged and degrades this
// response to static tools only; it never removes or corrupts the static
// list.
func (i *Instance) ListTools(ctx context.Context) []mcp.Tool {
	decls := i.registry.Declarations()
	tools := make([]mcp.Tool, 0, len(decls))
	for _, d := range decls {
		tools = append(tools, d.Tool)
	}

	if i.cfg.DynamicLoader == nil {
		return tools
	}
	project, ok := i.tenants.Active()
	if !ok {
		return tools
	}

	dynamic, err := i.cfg.DynamicLoader.ListTools(ctx, domain.TenantContext{Project: project})
	if err != nil {
		i.logger.Warn("Dynamic tool discovery failed, serving static tools only",
			slog.String("tenant", project),
			slog.Any("error", err))
		return tools
	}
	for _, d := range dynamic {
		tools = append(tools, d.Tool)
	}
	return tools
}

// CallTool resolves and invokes one tool. A name found in the static
// registry runs with a freshly constructed, invocation-scoped elicitation
// callback; a name absent from it is delegated to the dynamic executor when
// one is configured and a tenant is active. Tool failures come back as
// structured error envelopes so callers can tell "tool ran and reported
// failure" apart from a protocol-level error; only ErrInvalidRequest and
// ErrUnknownTool surface as errors.
func (i *Instance) CallTool(ctx context.Context, name string, args map[string]any, sessionID string) (*mcp.CallToolResult, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: missing tool name", domain.ErrInvalidRequest)
	}

	ctx, span := i.tracer.Start(ctx, "tools/call", trace.WithAttributes(
		attribute.String("mcphub.group", i.cfg.Name),
		attribute.String("mcphub.tool", name),
	))
	defer span.End()

	var tenantCtx *domain.TenantContext
	if project, ok := i.tenants.Active(); ok {
		tenantCtx = &domain.TenantContext{Project: project}
	}

	switch res := i.resolve(name, tenantCtx); res.kind {
	case resolveDynamic:
		result, err := res.executor.Execute(ctx, name, args, *tenantCtx)
		if err != nil {
			// Executors normally report failures as structured results; an
			// error here means the collaborator itself was unreachable.
			i.logger.Error("Dynamic tool execution failed",
				slog.String("tool", name),
				slog.Any("error", err))
			return errorEnvelope(name, err), nil
		}
		return result, nil

	case resolveStatic:
		elicit := i.coord.Callback(name, sessionID)
		out, err := i.execute(ctx, res.service, name, args, elicit)
		if err != nil {
			i.logger.Error("Tool execution failed",
				slog.String("tool", name),
				slog.Any("error", err))
			return errorEnvelope(name, err), nil
		}
		return successEnvelope(out), nil

	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTool, name)
	}
}

// execute runs the service with panic recovery so a misbehaving tool turns
// into an error envelope instead of tearing down the request handler.
func (i *Instance) execute(ctx context.Context, svc domain.ToolService, name string, args map[string]any, elicit domain.ElicitFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("Tool panicked",
				slog.String("tool", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("tool %s panicked: %v", name, r)
		}
	}()
	return svc.Execute(ctx, name, args, elicit)
}

// HasResources reports whether the group declares any exposed resources;
// resource handlers are only registered when it does.
func (i *Instance) HasResources() bool {
	return len(i.cfg.Resources) > 0
}

// ListResources returns the static resource metadata for the group.
func (i *Instance) ListResources() []mcp.Resource {
	list := make([]mcp.Resource, 0, len(i.cfg.Resources))
	for _, r := range i.cfg.Resources {
		list = append(list, mcp.Resource{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MIMEType:    r.MIMEType,
		})
	}
	return list
}

// ReadResource loads the resource with the given URI. Unknown URIs and
// loaders yielding no content both fail with ErrResourceNotFound.
func (i *Instance) ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	for _, r := range i.cfg.Resources {
		if r.URI != uri {
			continue
		}
		content, err := r.Load(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNoContent) {
				return nil, fmt.Errorf("%w: %s", domain.ErrResourceNotFound, uri)
			}
			i.logger.Error("Resource load failed",
				slog.String("uri", uri),
				slog.Any("error", err))
			return nil, fmt.Errorf("read resource %s: %w", uri, err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      r.URI,
				MIMEType: r.MIMEType,
				Text:     content,
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrResourceNotFound, uri)
}

// successEnvelope wraps a tool's return value as a successful content
// envelope. A *mcp.CallToolResult passes through untouched so dynamic and
// static tools are indistinguishable by response shape.
func successEnvelope(v any) *mcp.CallToolResult {
	switch out := v.(type) {
	case *mcp.CallToolResult:
		return out
	case nil:
		return mcp.NewToolResultText("")
	case string:
		return mcp.NewToolResultText(out)
	default:
		data, err := json.Marshal(out)
		if err != nil {
			return mcp.NewToolResultText(fmt.Sprintf("%v", out))
		}
		return mcp.NewToolResultText(string(data))
	}
}

// errorEnvelope turns a tool failure into a structured error result, never a
// protocol fault.
func errorEnvelope(name string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("tool %s failed: %v", name, err))
}
