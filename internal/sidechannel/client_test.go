package sidechannel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kandev/agentexec/internal/obslog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoJSONSendsBearerTokenAndDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"agentId":"agent-1"}`))
	}))
	defer srv.Close()

	b := New(Config{APIBaseURL: srv.URL, TaskID: "task-1", Token: "secret-token"}, obslog.Default())

	var out spawnAgentResponse
	err := b.doJSON(context.Background(), "POST", "/internal/agents", map[string]any{"role": "developer"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", out.AgentID)
}

func TestDoJSONSurfacesUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	b := New(Config{APIBaseURL: srv.URL, TaskID: "task-1", Token: "wrong"}, obslog.Default())
	err := b.doJSON(context.Background(), "GET", "/internal/agents/x/status", nil, nil)
	require.Error(t, err)
}

func TestBatchCaps(t *testing.T) {
	assert.Equal(t, 20, MaxBatchSpawn)
	assert.Equal(t, 50, MaxBatchWait)
}

func TestDoJSONStatusReturnsNoContentWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b := New(Config{APIBaseURL: srv.URL, TaskID: "task-1", Token: "secret"}, obslog.Default())
	var out questionAnswerResponse
	status, err := b.doJSONStatus(context.Background(), "GET", "/internal/question/x/answer", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestDoJSONStatusReturnsNotFoundWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := New(Config{APIBaseURL: srv.URL, TaskID: "task-1", Token: "secret"}, obslog.Default())
	status, err := b.doJSONStatus(context.Background(), "GET", "/internal/question/x/answer", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}
