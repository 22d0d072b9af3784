package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"mcphub/internal/domain"
)

// ExecResult is the sandbox collaborator's verdict on one scripted-tool run.
type ExecResult struct {
	Success         bool   `json:"success"`
	Result          any    `json:"result,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Diagnostics     string `json:"diagnostics,omitempty"`
}

// Runner is the external sandboxed-execution collaborator. It discovers and
// runs tenant-authored scripted tools inside an isolated environment.
type Runner interface {
	Execute(ctx context.Context, toolName string, args map[string]any, tenantRoot string) (*ExecResult, error)
	ListTools(ctx context.Context, tenantRoot string) ([]domain.ToolDeclaration, error)
}

// Executor forwards dynamic tool invocations verbatim to the sandbox runner
// and translates its result into the same envelope shape the static path
// uses, so callers cannot distinguish a static from a dynamic tool by
// response shape alone. Implements domain.DynamicToolExecutor and
// domain.DynamicToolsLoader.
type Executor struct {
	runner Runner
	logger *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(runner Runner, logger *slog.Logger) *Executor {
	return &Executor{
		runner: runner,
		logger: logger.With("component", "sandbox_executor"),
	}
}

// ListTools returns the scripted tools discovered under the tenant's root.
// Fetched per list-request; never cached.
func (e *Executor) ListTools(ctx context.Context, tenant domain.TenantContext) ([]domain.ToolDeclaration, error) {
	return e.runner.ListTools(ctx, tenant.Project)
}

// Execute runs the named scripted tool for the tenant.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, tenant domain.TenantContext) (*mcp.CallToolResult, error) {
	log := e.logger.With(slog.String("tool", name), slog.String("tenant", tenant.Project))

	res, err := e.runner.Execute(ctx, name, args, tenant.Project)
	if err != nil {
		log.Error("Sandbox execution failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("sandbox execution of %s failed: %v", name, err)), nil
	}

	if !res.Success {
		log.Warn("Scripted tool reported failure",
			slog.String("error", res.Error),
			slog.Int64("execution_time_ms", res.ExecutionTimeMs))
		msg := fmt.Sprintf("tool %s failed after %dms: %s", name, res.ExecutionTimeMs, res.Error)
		if res.Diagnostics != "" {
			msg = msg + "\n" + res.Diagnostics
		}
		return mcp.NewToolResultError(msg), nil
	}

	log.Info("Scripted tool completed", slog.Int64("execution_time_ms", res.ExecutionTimeMs))
	return mcp.NewToolResultText(renderResult(res.Result)), nil
}

func renderResult(v any) string {
	switch out := v.(type) {
	case nil:
		return ""
	case string:
		return out
	default:
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Sprintf("%v", out)
		}
		return string(data)
	}
}
