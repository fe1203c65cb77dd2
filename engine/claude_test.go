package engine_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/engine"
)

type apiRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int64   `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
	System      []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

func fakeClaude(t *testing.T, handle func(w http.ResponseWriter, req apiRequest)) (*engine.Claude, *[]apiRequest) {
	t.Helper()
	var seen []apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		var req apiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)
		handle(w, req)
	}))
	t.Cleanup(srv.Close)

	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
	return engine.NewClaude(&client, engine.WithModel("claude-test"), engine.WithMaxTokens(256)), &seen
}

func textMessage(text string) string {
	return fmt.Sprintf(`{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"model": "claude-test",
		"content": [{"type": "text", "text": %q}],
		"stop_reason": "end_turn",
		"stop_sequence": null,
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`, text)
}

func TestClaude_Complete(t *testing.T) {
	gen, seen := fakeClaude(t, func(w http.ResponseWriter, _ apiRequest) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(textMessage("  그러셨군요.  ")))
	})

	out, err := gen.Complete(context.Background(), engine.Completion{
		System: "너는 말벗이야.",
		Messages: []core.Message{
			{Role: core.RoleAssistant, Content: "안녕하세요"},
			{Role: core.RoleUser, Content: "공원에 갔어요"},
		},
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "그러셨군요.", out)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, "claude-test", req.Model)
	assert.Equal(t, int64(256), req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
	require.Len(t, req.System, 1)
	assert.Equal(t, "너는 말벗이야.", req.System[0].Text)

	// The API needs a leading user turn.
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[1].Role)
	assert.Equal(t, "공원에 갔어요", req.Messages[2].Content[0].Text)
}

func TestClaude_SystemOnlyRequest(t *testing.T) {
	gen, seen := fakeClaude(t, func(w http.ResponseWriter, _ apiRequest) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(textMessage("3")))
	})

	out, err := gen.Complete(context.Background(), engine.Completion{
		System:    "번호만 출력해.",
		Messages:  []core.Message{{Role: core.RoleSystem, Content: "추가 지시"}},
		MaxTokens: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "3", out)

	req := (*seen)[0]
	assert.Equal(t, int64(5), req.MaxTokens)
	assert.Equal(t, "번호만 출력해.\n\n추가 지시", req.System[0].Text)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
}

func TestClaude_APIError(t *testing.T) {
	gen, _ := fakeClaude(t, func(w http.ResponseWriter, _ apiRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "invalid_request_error", "message": "bad"}}`))
	})

	_, err := gen.Complete(context.Background(), engine.Completion{System: "x"})
	assert.Error(t, err)
}

func TestClaude_Stream(t *testing.T) {
	events := []string{
		`{"type": "message_start", "message": {"id": "msg_01", "type": "message", "role": "assistant", "model": "claude-test", "content": [], "stop_reason": null, "stop_sequence": null, "usage": {"input_tokens": 10, "output_tokens": 0}}}`,
		`{"type": "content_block_start", "index": 0, "content_block": {"type": "text", "text": ""}}`,
		`{"type": "content_block_delta", "index": 0, "delta": {"type": "text_delta", "text": "오늘도 "}}`,
		`{"type": "content_block_delta", "index": 0, "delta": {"type": "text_delta", "text": "고생하셨어요."}}`,
		`{"type": "content_block_stop", "index": 0}`,
		`{"type": "message_delta", "delta": {"stop_reason": "end_turn", "stop_sequence": null}, "usage": {"output_tokens": 4}}`,
		`{"type": "message_stop"}`,
	}
	gen, seen := fakeClaude(t, func(w http.ResponseWriter, _ apiRequest) {
		w.Header().Set("Content-Type", "text/event-stream")
		var sb strings.Builder
		for _, e := range events {
			var head struct{ Type string }
			_ = json.Unmarshal([]byte(e), &head)
			fmt.Fprintf(&sb, "event: %s\ndata: %s\n\n", head.Type, e)
		}
		_, _ = w.Write([]byte(sb.String()))
	})

	var chunks []string
	out, err := gen.Stream(context.Background(), engine.Completion{System: "x"}, func(s string) {
		chunks = append(chunks, s)
	})
	require.NoError(t, err)
	assert.Equal(t, "오늘도 고생하셨어요.", out)
	assert.Equal(t, []string{"오늘도 ", "고생하셨어요."}, chunks)
	assert.True(t, (*seen)[0].Stream)
}
