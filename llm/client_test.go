package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk_back/apperr"
)

func newTestServer(t *testing.T, status int, content string) (*httptest.Server, *map[string]interface{}) {
	t.Helper()
	captured := map[string]interface{}{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&captured)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4.1-mini-2025-04-14",
			"choices": []map[string]interface{}{
				{"index": 0, "finish_reason": "stop", "message": map[string]interface{}{"role": "assistant", "content": content}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19},
		})
	}))
	t.Cleanup(server.Close)
	return server, &captured
}

func newTestClient(t *testing.T, baseURL string) *ChatClient {
	t.Helper()
	client, err := NewChatClient(Options{APIKey: "test-key", BaseURL: baseURL + "/v1"})
	require.NoError(t, err)
	return client
}

func TestCompleteReturnsFirstChoice(t *testing.T) {
	server, captured := newTestServer(t, http.StatusOK, "  {\"status\":\"DRAFT_OK\"}  ")
	client := newTestClient(t, server.URL)

	completion, err := client.Complete(context.Background(), "system rules", "ticket text", 0)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"DRAFT_OK"}`, completion.Content)
	assert.Equal(t, "gpt-4.1-mini-2025-04-14", completion.Model)
	assert.Equal(t, 12, completion.PromptTokens)

	body := *captured
	assert.Equal(t, "gpt-4.1-mini", body["model"])
	assert.EqualValues(t, 600, body["max_completion_tokens"])
	messages, ok := body["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
}

func TestCompleteEmptyContent(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, "   ")
	_, err := newTestClient(t, server.URL).Complete(context.Background(), "s", "u", 100)
	assert.ErrorIs(t, err, apperr.ErrEmptyModelOutput)
}

func TestCompleteProviderFailure(t *testing.T) {
	server, _ := newTestServer(t, http.StatusServiceUnavailable, "")
	_, err := newTestClient(t, server.URL).Complete(context.Background(), "s", "u", 100)
	assert.ErrorIs(t, err, apperr.ErrProvider)
}

func TestCompleteRejectsBlankPrompt(t *testing.T) {
	client, err := NewChatClient(Options{APIKey: "k"})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), "s", " ", 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestNewChatClientFromEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewChatClientFromEnv()
	assert.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_MODEL_ID", "gpt-4o-mini")
	client, err := NewChatClientFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", client.Model())
	assert.Equal(t, 600, client.MaxTokens())

	t.Setenv("LLM_BASE_URL", "ftp://nope")
	_, err = NewChatClientFromEnv()
	assert.Error(t, err)
}
