package agentroute

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"mcphub/internal/domain"
)

// Agent describes one external agent reachable over its messaging interface.
type Agent struct {
	Name    string
	URL     string
	Enabled bool
}

// Reply is the agent's answer to a forwarded task.
type Reply struct {
	Status string   `json:"status"`
	Text   string   `json:"text,omitempty"`
	TaskID string   `json:"task_id,omitempty"`
	Files  []string `json:"files,omitempty"`
}

// Messenger is the external-agent messaging collaborator.
type Messenger interface {
	Send(ctx context.Context, agentURL, prompt string, filePaths []string) (*Reply, error)
}

// Directory supplies the currently enabled agents for a tenant, in
// configuration order. The order matters: name matching stops at the first
// hit, so when two agents would produce colliding slugs the
// earlier-configured one always wins. That tie-break is intentional, not an
// error condition.
type Directory interface {
	EnabledAgents(ctx context.Context, tenant domain.TenantContext) ([]Agent, error)
}

// StaticDirectory is a Directory backed by a fixed configuration list.
type StaticDirectory struct {
	agents []Agent
}

// NewStaticDirectory keeps the given agents in order.
func NewStaticDirectory(agents []Agent) *StaticDirectory {
	return &StaticDirectory{agents: agents}
}

// EnabledAgents implements Directory.
func (d *StaticDirectory) EnabledAgents(ctx context.Context, tenant domain.TenantContext) ([]Agent, error) {
	enabled := make([]Agent, 0, len(d.agents))
	for _, a := range d.agents {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}
	return enabled, nil
}

// Executor routes dynamic "a2a_*" tool invocations to the owning external
// agent. It implements both domain.DynamicToolExecutor and
// domain.DynamicToolsLoader.
type Executor struct {
	directory Directory
	messenger Messenger
	logger    *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(directory Directory, messenger Messenger, logger *slog.Logger) *Executor {
	return &Executor{
		directory: directory,
		messenger: messenger,
		logger:    logger.With("component", "agent_executor"),
	}
}

// ListTools emits one declaration per enabled agent, named by its slug.
// Fetched per list-request; never cached.
func (e *Executor) ListTools(ctx context.Context, tenant domain.TenantContext) ([]domain.ToolDeclaration, error) {
	agents, err := e.directory.EnabledAgents(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list enabled agents: %w", err)
	}

	decls := make([]domain.ToolDeclaration, 0, len(agents))
	for _, a := range agents {
		slug := Slug(a.Name)
		if slug == "" {
			e.logger.Warn("Agent name yields empty slug, skipping", slog.String("agent", a.Name))
			continue
		}
		decls = append(decls, domain.ToolDeclaration{
			Tool: mcp.Tool{
				Name:        ToolPrefix + slug,
				Description: fmt.Sprintf("Send a task to the %q agent and return its reply.", a.Name),
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]any{
						"prompt": map[string]any{
							"type":        "string",
							"description": "Task or question to forward to the agent.",
						},
						"attachments": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "Workspace file paths to attach to the task.",
						},
					},
					Required: []string{"prompt"},
				},
			},
		})
	}
	return decls, nil
}

// Execute matches the tool name against the enabled agents and forwards the
// prompt/attachment arguments to the winning agent's messaging interface.
// No match produces a structured error result, never an error return.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, tenant domain.TenantContext) (*mcp.CallToolResult, error) {
	log := e.logger.With(slog.String("tool", name), slog.String("tenant", tenant.Project))

	if !strings.HasPrefix(name, ToolPrefix) {
		return mcp.NewToolResultError(fmt.Sprintf("tool %q is not an agent tool", name)), nil
	}
	rest := strings.TrimPrefix(name, ToolPrefix)

	agents, err := e.directory.EnabledAgents(ctx, tenant)
	if err != nil {
		log.Error("Failed to list enabled agents", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("agent lookup failed: %v", err)), nil
	}

	var target *Agent
	for i := range agents {
		if matches(rest, Slug(agents[i].Name)) {
			target = &agents[i]
			break
		}
	}
	if target == nil {
		log.Warn("No enabled agent matches tool name")
		return mcp.NewToolResultError(fmt.Sprintf("no enabled agent matches tool %q", name)), nil
	}

	prompt, _ := args["prompt"].(string)
	files := stringSlice(args["attachments"])

	log.Info("Forwarding task to agent", slog.String("agent", target.Name))
	reply, err := e.messenger.Send(ctx, target.URL, prompt, files)
	if err != nil {
		log.Error("Agent messaging failed", slog.String("agent", target.Name), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("agent %q unreachable: %v", target.Name, err)), nil
	}

	if reply.Status == "failed" {
		msg := reply.Text
		if msg == "" {
			msg = fmt.Sprintf("agent %q reported failure", target.Name)
		}
		return mcp.NewToolResultError(msg), nil
	}

	text := reply.Text
	if text == "" && reply.TaskID != "" {
		text = fmt.Sprintf("task %s accepted by agent %q", reply.TaskID, target.Name)
	}
	if len(reply.Files) > 0 {
		text = fmt.Sprintf("%s\n\nfiles: %s", text, strings.Join(reply.Files, ", "))
	}
	return mcp.NewToolResultText(text), nil
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
