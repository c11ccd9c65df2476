package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/tripcoach/api"
	"github.com/BaSui01/tripcoach/cache"
	"github.com/BaSui01/tripcoach/coach"
	"github.com/BaSui01/tripcoach/internal/ctxkeys"
	"github.com/BaSui01/tripcoach/llm"
)

// =============================================================================
// 💬 问答 Handler
// =============================================================================

// ChatHandler 问答处理器
type ChatHandler struct {
	service *coach.Service
	logger  *zap.Logger
}

// NewChatHandler 创建问答处理器
func NewChatHandler(service *coach.Service, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger.With(zap.String("component", "chat_handler")),
	}
}

// HandleChat 处理 POST /api/v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, llm.ErrInvalidRequest, "method not allowed", nil)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := validateChatRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	answer, err := h.service.Ask(r.Context(), toCacheRequest(&req))
	if err != nil {
		WriteError(w, asLLMError(err), h.logger)
		return
	}

	WriteSuccess(w, api.ChatResponse{
		Answer: answer.Text,
		Cached: answer.Cached,
	})
}

// HandleChatStream 处理 POST /api/v1/chat/stream，SSE 输出。
// 事件序列：meta → token* → done。done 携带 cached 标志或错误。
func (h *ChatHandler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, llm.ErrInvalidRequest, "method not allowed", nil)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := validateChatRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteErrorMessage(w, http.StatusInternalServerError, llm.ErrInternalError, "streaming unsupported", h.logger)
		return
	}

	events, err := h.service.AskStream(r.Context(), toCacheRequest(&req))
	if err != nil {
		WriteError(w, asLLMError(err), h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	requestID, _ := ctxkeys.RequestID(r.Context())
	writeSSE(w, "meta", api.StreamMeta{RequestID: requestID})
	flusher.Flush()

	for ev := range events {
		if ev.Done {
			done := api.StreamDone{Cached: ev.Cached}
			if ev.Err != nil {
				done.Error = ev.Err.Error()
			}
			writeSSE(w, "done", done)
			flusher.Flush()
			return
		}
		writeSSE(w, "token", api.StreamToken{Delta: ev.Delta})
		flusher.Flush()
	}
}

// writeSSE 写单个 SSE 事件
func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func validateChatRequest(req *api.ChatRequest) *llm.Error {
	if strings.TrimSpace(req.Topic) == "" {
		return &llm.Error{Code: llm.ErrInvalidRequest, Message: "topic is required"}
	}
	if strings.TrimSpace(req.Message) == "" {
		return &llm.Error{Code: llm.ErrInvalidRequest, Message: "message is required"}
	}
	return nil
}

func toCacheRequest(req *api.ChatRequest) cache.Request {
	return cache.Request{
		Topic:    req.Topic,
		Season:   req.Season,
		Audience: req.Audience,
		Phase:    req.Phase,
		Query:    req.Message,
	}
}
