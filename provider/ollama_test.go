package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdesk/model"
)

// serveOllama answers /api/chat with NDJSON lines and records the request body
func serveOllama(t *testing.T, lines ...string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

func ollamaLine(message string, done bool) string {
	return fmt.Sprintf(`{"model":"m","created_at":"2026-01-01T00:00:00Z","message":%s,"done":%t}`, message, done)
}

func TestOllamaStreamsThinkingContentAndTools(t *testing.T) {
	srv, body := serveOllama(t,
		ollamaLine(`{"role":"assistant","content":"","thinking":"hmm"}`, false),
		ollamaLine(`{"role":"assistant","content":"Hi"}`, false),
		ollamaLine(`{"role":"assistant","content":"","tool_calls":[{"function":{"name":"get_weather","arguments":{"location":"Paris"}}}]}`, false),
		ollamaLine(`{"role":"assistant","content":""}`, true),
	)

	p, err := NewOllamaProvider(srv.URL, "llama3.1:8b")
	require.NoError(t, err)

	deltas := collect(t, p, true)
	require.Len(t, deltas, 3, "empty increments are skipped")
	assert.Equal(t, model.StreamDelta{Reasoning: "hmm"}, deltas[0])
	assert.Equal(t, "Hi", deltas[1].Content)
	require.Len(t, deltas[2].ToolCalls, 1)
	assert.Equal(t, "get_weather", deltas[2].ToolCalls[0].Name)
	assert.NotEmpty(t, deltas[2].ToolCalls[0].ID)

	assert.Len(t, (*body)["tools"], 2)
	msgs := (*body)["messages"].([]any)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"], "tool instructions go first")
}

func TestOllamaDropsToolsForUnsupportedModels(t *testing.T) {
	srv, body := serveOllama(t, ollamaLine(`{"role":"assistant","content":"ok"}`, true))

	p, err := NewOllamaProvider(srv.URL, "gemma3:4b")
	require.NoError(t, err)

	deltas := collect(t, p, true)
	require.Len(t, deltas, 1)
	assert.Nil(t, (*body)["tools"])

	msgs := (*body)["messages"].([]any)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestOllamaStreamErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model 'nope' not found"}`)
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(srv.URL, "nope")
	require.NoError(t, err)

	err = p.Chat(t.Context(), nil, nil)
	assert.ErrorContains(t, err, "Ollama streaming error")
}
