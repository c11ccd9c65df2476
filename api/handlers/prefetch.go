package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/tripcoach/api"
	"github.com/BaSui01/tripcoach/cache"
	"github.com/BaSui01/tripcoach/llm"
)

// =============================================================================
// 🔥 预取状态 Handler
// =============================================================================

// PrefetchHandler 查询预取工件的就绪状态
type PrefetchHandler struct {
	answers *cache.AnswerCache
	scopes  []string
	logger  *zap.Logger
}

// NewPrefetchHandler 创建预取状态处理器。scopes 为空时查全部工件作用域。
func NewPrefetchHandler(answers *cache.AnswerCache, scopes []string, logger *zap.Logger) *PrefetchHandler {
	if len(scopes) == 0 {
		scopes = []string{
			cache.ScopeNextQuestions,
			cache.ScopeNextIdeas,
			cache.ScopeMiniSummary,
			cache.ScopeStepQuestions,
		}
	}
	return &PrefetchHandler{
		answers: answers,
		scopes:  scopes,
		logger:  logger.With(zap.String("component", "prefetch_handler")),
	}
}

// HandleStatus 处理 GET /api/v1/prefetch。
// 每个工件要么返回内容，要么显式 null 表示尚未就绪。
func (h *PrefetchHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, llm.ErrInvalidRequest, "method not allowed", nil)
		return
	}

	q := r.URL.Query()
	req := cache.Request{
		Topic:    q.Get("topic"),
		Season:   q.Get("season"),
		Audience: q.Get("audience"),
		Phase:    q.Get("phase"),
	}
	if strings.TrimSpace(req.Topic) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, llm.ErrInvalidRequest, "topic is required", nil)
		return
	}

	state := req.Normalize()
	status := api.PrefetchStatus{
		Topic:     state.Topic,
		Season:    state.Season,
		Audience:  state.Audience,
		Phase:     state.Phase,
		Artifacts: make(map[string]*string, len(h.scopes)),
		Ready:     true,
	}

	for _, scope := range h.scopes {
		key := cache.NewKey(scope, state, h.answers.Version())
		if v, ok := h.answers.Get(r.Context(), key); ok {
			value := v
			status.Artifacts[scope] = &value
		} else {
			status.Artifacts[scope] = nil
			status.Ready = false
		}
	}

	WriteSuccess(w, status)
}
