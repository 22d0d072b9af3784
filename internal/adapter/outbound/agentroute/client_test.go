package agentroute_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"mcphub/internal/adapter/outbound/agentroute"
)

func TestClient_Send(t *testing.T) {
	assert := assert.New(t)

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPost, r.Method)
		assert.Equal("application/json", r.Header.Get("Content-Type"))
		assert.NoError(json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "completed", "text": "done", "task_id": "t-1"})
	}))
	defer srv.Close()

	client := agentroute.NewClient(srv.Client(), testLogger())

	reply, err := client.Send(context.Background(), srv.URL, "summarize this", []string{"a.md", "b.md"})
	assert.NoError(err)
	assert.Equal("completed", reply.Status)
	assert.Equal("done", reply.Text)
	assert.Equal("t-1", reply.TaskID)

	assert.Equal("summarize this", gotBody["prompt"])
	assert.Equal([]any{"a.md", "b.md"}, gotBody["files"])
}

func TestClient_Send_PlainTextReply(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("just some prose"))
	}))
	defer srv.Close()

	client := agentroute.NewClient(srv.Client(), testLogger())

	reply, err := client.Send(context.Background(), srv.URL, "hi", nil)
	assert.NoError(err)
	assert.Equal("completed", reply.Status)
	assert.Equal("just some prose", reply.Text)
}

func TestClient_Send_NonSuccessStatus(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := agentroute.NewClient(srv.Client(), testLogger())

	_, err := client.Send(context.Background(), srv.URL, "hi", nil)
	assert.Error(err)
	assert.Contains(err.Error(), "HTTP 503")
}
