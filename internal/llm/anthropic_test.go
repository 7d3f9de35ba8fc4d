package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConvertToAnthropic(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "You translate requests."},
		{Role: RoleSystem, Content: "Current results: none."},
		{Role: RoleUser, Content: "find Alice"},
		{Role: RoleUser, Content: "Your reply was not valid JSON."},
		{Role: RoleAssistant, Content: `{"intent":"search"}`},
		{Role: RoleUser, Content: "select 1"},
	}

	result, system := convertToAnthropic(messages)

	if system != "You translate requests.\n\nCurrent results: none." {
		t.Errorf("system = %q", system)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 messages after merging, got %d", len(result))
	}
	if result[0].Role != RoleUser || !strings.Contains(result[0].Content, "not valid JSON") {
		t.Errorf("first message = %+v", result[0])
	}
	if result[1].Role != RoleAssistant {
		t.Errorf("second role = %s", result[1].Role)
	}
}

func TestAnthropicChat(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, `{"id":"msg_1","model":"claude-x","stop_reason":"end_turn",
			"content":[{"type":"text","text":"{\"intent\":"},{"type":"text","text":"\"backup\",\"backup\":{}}"}],
			"usage":{"input_tokens":50,"output_tokens":9}}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key", srv.URL, discardLogger())
	resp, err := c.Chat(context.Background(), "claude-x", []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "back up"},
	}, Options{Temperature: 0})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got.System != "sys" {
		t.Errorf("system = %q", got.System)
	}
	if got.MaxTokens != anthropicDefaultMaxTokens {
		t.Errorf("max_tokens = %d, want default %d", got.MaxTokens, anthropicDefaultMaxTokens)
	}
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Errorf("temperature = %v, want explicit 0", got.Temperature)
	}
	if resp.Message.Content != `{"intent":"backup","backup":{}}` {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.InputTokens != 50 || resp.OutputTokens != 9 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestAnthropicChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"type":"error","error":{"type":"authentication_error"}}`)
	}))
	defer srv.Close()

	_, err := NewAnthropicClient("bad", srv.URL, discardLogger()).Chat(context.Background(), "m", nil, Options{})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want 401 error", err)
	}
}
