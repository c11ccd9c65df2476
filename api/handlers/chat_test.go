package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/tripcoach/api"
	"github.com/BaSui01/tripcoach/cache"
	"github.com/BaSui01/tripcoach/coach"
	"github.com/BaSui01/tripcoach/llm"
	"github.com/BaSui01/tripcoach/testutil/mocks"
)

func newChatHandler(t *testing.T, provider llm.Provider) *ChatHandler {
	t.Helper()
	answers := cache.NewAnswerCache(nil, cache.DefaultConfig(), zap.NewNop(), nil)
	service := coach.NewService(answers, nil, provider, nil, coach.DefaultConfig(), zap.NewNop(), nil)
	return NewChatHandler(service, zap.NewNop())
}

func chatBody() string {
	return `{"topic":"tokyo","season":"summer","audience":"family","phase":"planning","message":"which wards suit kids?"}`
}

func postJSON(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// --- HandleChat ---

func TestChatHandler_Success(t *testing.T) {
	provider := mocks.NewSuccessProvider("ueno and asakusa")
	h := newChatHandler(t, provider)

	rec := httptest.NewRecorder()
	h.HandleChat(rec, postJSON("/api/v1/chat", chatBody()))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var chat api.ChatResponse
	require.NoError(t, json.Unmarshal(data, &chat))
	assert.Equal(t, "ueno and asakusa", chat.Answer)
	assert.False(t, chat.Cached)
}

func TestChatHandler_SecondCallCached(t *testing.T) {
	provider := mocks.NewSuccessProvider("answer")
	h := newChatHandler(t, provider)

	rec := httptest.NewRecorder()
	h.HandleChat(rec, postJSON("/api/v1/chat", chatBody()))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleChat(rec, postJSON("/api/v1/chat", chatBody()))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data, _ := json.Marshal(resp.Data)
	var chat api.ChatResponse
	require.NoError(t, json.Unmarshal(data, &chat))
	assert.True(t, chat.Cached)
	assert.Equal(t, 1, provider.GetCallCount())
}

func TestChatHandler_Validation(t *testing.T) {
	h := newChatHandler(t, mocks.NewSuccessProvider("x"))

	tests := []struct {
		name string
		body string
	}{
		{"missing topic", `{"message":"hi"}`},
		{"missing message", `{"topic":"tokyo"}`},
		{"blank topic", `{"topic":"  ","message":"hi"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleChat(rec, postJSON("/api/v1/chat", tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestChatHandler_MethodNotAllowed(t *testing.T) {
	h := newChatHandler(t, mocks.NewSuccessProvider("x"))

	rec := httptest.NewRecorder()
	h.HandleChat(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChatHandler_WrongContentType(t *testing.T) {
	h := newChatHandler(t, mocks.NewSuccessProvider("x"))

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(chatBody()))
	r.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.HandleChat(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHandler_LLMErrorMapped(t *testing.T) {
	provider := mocks.NewErrorProvider(&llm.Error{
		Code:       llm.ErrRateLimited,
		Message:    "slow down",
		HTTPStatus: http.StatusTooManyRequests,
		Retryable:  true,
	})
	h := newChatHandler(t, provider)

	rec := httptest.NewRecorder()
	h.HandleChat(rec, postJSON("/api/v1/chat", chatBody()))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(llm.ErrRateLimited), resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

// --- HandleChatStream ---

// parseSSE 解析 SSE 响应体为 (event, data) 对
func parseSSE(t *testing.T, body string) [][2]string {
	t.Helper()
	var events [][2]string
	var event, data string
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if event != "" {
				events = append(events, [2]string{event, data})
				event, data = "", ""
			}
		}
	}
	return events
}

func TestChatHandler_Stream(t *testing.T) {
	provider := mocks.NewStreamProvider([]string{"visit ", "ueno"})
	h := newChatHandler(t, provider)

	rec := httptest.NewRecorder()
	h.HandleChatStream(rec, postJSON("/api/v1/chat/stream", chatBody()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	events := parseSSE(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 4)

	assert.Equal(t, "meta", events[0][0])
	assert.Equal(t, "done", events[len(events)-1][0])

	var text strings.Builder
	for _, ev := range events {
		if ev[0] != "token" {
			continue
		}
		var tok api.StreamToken
		require.NoError(t, json.Unmarshal([]byte(ev[1]), &tok))
		text.WriteString(tok.Delta)
	}
	assert.Equal(t, "visit ueno", text.String())

	var done api.StreamDone
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1][1]), &done))
	assert.False(t, done.Cached)
	assert.Empty(t, done.Error)
}

func TestChatHandler_StreamCachedReplay(t *testing.T) {
	provider := mocks.NewStreamProvider([]string{"visit ", "ueno"})
	h := newChatHandler(t, provider)

	rec := httptest.NewRecorder()
	h.HandleChatStream(rec, postJSON("/api/v1/chat/stream", chatBody()))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleChatStream(rec, postJSON("/api/v1/chat/stream", chatBody()))
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseSSE(t, rec.Body.String())
	var done api.StreamDone
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1][1]), &done))
	assert.True(t, done.Cached)
	assert.Equal(t, 1, provider.GetCallCount(), "replay must not hit the provider")
}

func TestChatHandler_StreamErrorInDone(t *testing.T) {
	provider := mocks.NewMockProvider().WithStreamFunc(func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
		ch := make(chan llm.StreamChunk, 2)
		ch <- llm.StreamChunk{Delta: "partial"}
		ch <- llm.StreamChunk{Done: true, Err: &llm.Error{Code: llm.ErrUpstreamError, Message: "bad gateway"}}
		close(ch)
		return ch, nil
	})
	h := newChatHandler(t, provider)

	rec := httptest.NewRecorder()
	h.HandleChatStream(rec, postJSON("/api/v1/chat/stream", chatBody()))

	events := parseSSE(t, rec.Body.String())
	var done api.StreamDone
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1][1]), &done))
	assert.Equal(t, "bad gateway", done.Error)
}

func TestChatHandler_StreamValidation(t *testing.T) {
	h := newChatHandler(t, mocks.NewSuccessProvider("x"))

	rec := httptest.NewRecorder()
	h.HandleChatStream(rec, postJSON("/api/v1/chat/stream", `{"topic":"tokyo"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
