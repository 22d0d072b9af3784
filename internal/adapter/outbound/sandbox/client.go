package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"

	"mcphub/internal/domain"
)

// Client implements Runner against an HTTP sandbox-runner service: scripted
// tools are discovered via GET {endpoint}/tools and executed via POST
// {endpoint}/execute.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewClient creates a new runner client for the given base endpoint.
func NewClient(endpoint string, client *http.Client, logger *slog.Logger) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		endpoint: endpoint,
		client:   client,
		logger:   logger.With("component", "sandbox_client"),
	}
}

type executeRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Root      string         `json:"root"`
}

// Execute implements Runner.
func (c *Client) Execute(ctx context.Context, toolName string, args map[string]any, tenantRoot string) (*ExecResult, error) {
	payload, err := json.Marshal(executeRequest{Tool: toolName, Arguments: args, Root: tenantRoot})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execute request: %w", err)
	}

	body, err := c.post(ctx, c.endpoint+"/execute", payload)
	if err != nil {
		return nil, err
	}

	var res ExecResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to decode execute response: %w", err)
	}
	return &res, nil
}

type listedTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type listToolsResponse struct {
	Tools []listedTool `json:"tools"`
}

// ListTools implements Runner.
func (c *Client) ListTools(ctx context.Context, tenantRoot string) ([]domain.ToolDeclaration, error) {
	u := c.endpoint + "/tools?root=" + url.QueryEscape(tenantRoot)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read runner response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var listed listToolsResponse
	if err := json.Unmarshal(body, &listed); err != nil {
		return nil, fmt.Errorf("failed to decode tool list: %w", err)
	}

	decls := make([]domain.ToolDeclaration, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		if t.Name == "" {
			c.logger.Warn("Runner listed a tool with no name, skipping")
			continue
		}
		decls = append(decls, domain.ToolDeclaration{
			Tool: mcp.Tool{
				Name:           t.Name,
				Description:    t.Description,
				RawInputSchema: t.InputSchema,
			},
		})
	}
	c.logger.Debug("Discovered scripted tools",
		slog.String("root", tenantRoot),
		slog.Int("count", len(decls)))
	return decls, nil
}

func (c *Client) post(ctx context.Context, u string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create runner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read runner response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
