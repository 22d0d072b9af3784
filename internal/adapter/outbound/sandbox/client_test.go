package sandbox_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"mcphub/internal/adapter/outbound/sandbox"
)

func TestClient_Execute(t *testing.T) {
	assert := assert.New(t)

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/execute", r.URL.Path)
		assert.NoError(json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"success":           true,
			"result":            "42 rows",
			"execution_time_ms": 12,
		})
	}))
	defer srv.Close()

	client := sandbox.NewClient(srv.URL, srv.Client(), testLogger())

	res, err := client.Execute(context.Background(), "summarize", map[string]any{"limit": float64(5)}, "proj-a")
	assert.NoError(err)
	assert.True(res.Success)
	assert.Equal("42 rows", res.Result)
	assert.Equal(int64(12), res.ExecutionTimeMs)

	assert.Equal("summarize", gotBody["tool"])
	assert.Equal("proj-a", gotBody["root"])
	assert.Equal(map[string]any{"limit": float64(5)}, gotBody["arguments"])
}

func TestClient_Execute_NonSuccessStatus(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "runner busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := sandbox.NewClient(srv.URL, srv.Client(), testLogger())

	_, err := client.Execute(context.Background(), "summarize", nil, "proj-a")
	assert.Error(err)
	assert.Contains(err.Error(), "HTTP 503")
}

func TestClient_ListTools(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/tools", r.URL.Path)
		assert.Equal("proj-a", r.URL.Query().Get("root"))

		json.NewEncoder(w).Encode(map[string]any{
			"tools": []map[string]any{
				{
					"name":         "summarize",
					"description":  "Summarize a dataset",
					"input_schema": map[string]any{"type": "object"},
				},
				{
					// Nameless entries are skipped, not fatal.
					"description": "broken tool",
				},
			},
		})
	}))
	defer srv.Close()

	client := sandbox.NewClient(srv.URL, srv.Client(), testLogger())

	decls, err := client.ListTools(context.Background(), "proj-a")
	assert.NoError(err)
	assert.Len(decls, 1)
	assert.Equal("summarize", decls[0].Tool.Name)
	assert.Equal("Summarize a dataset", decls[0].Tool.Description)
	assert.JSONEq(`{"type":"object"}`, string(decls[0].Tool.RawInputSchema))
}
