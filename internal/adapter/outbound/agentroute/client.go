package agentroute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Client implements the Messenger interface over plain HTTP/JSON: the task
// is posted to the agent's URL and the reply decoded from the response body.
type Client struct {
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a new HTTP messenger.
func NewClient(client *http.Client, logger *slog.Logger) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		client: client,
		logger: logger.With("component", "agent_client"),
	}
}

type sendRequest struct {
	Prompt string   `json:"prompt"`
	Files  []string `json:"files,omitempty"`
}

// Send posts the prompt and attachment paths to the agent endpoint.
func (c *Client) Send(ctx context.Context, agentURL, prompt string, filePaths []string) (*Reply, error) {
	log := c.logger.With(slog.String("url", agentURL))

	payload, err := json.Marshal(sendRequest{Prompt: prompt, Files: filePaths})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, agentURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("Sending task to agent", slog.Int("payload_bytes", len(payload)))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("Agent returned non-success status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", string(body)))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var reply Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		// Some agents answer with plain text; keep it rather than failing.
		log.Debug("Agent reply is not JSON, treating body as text")
		reply = Reply{Status: "completed", Text: string(body)}
	}
	return &reply, nil
}
