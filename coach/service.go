package coach

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tripcoach/cache"
	"github.com/BaSui01/tripcoach/internal/metrics"
	"github.com/BaSui01/tripcoach/llm"
	"github.com/BaSui01/tripcoach/prefetch"
	"github.com/BaSui01/tripcoach/retrieval"
)

// Config 服务配置
type Config struct {
	// Model 发给 LLM 网关的模型名；空值用 Provider 默认
	Model string `yaml:"model" json:"model"`

	// AnswerTTL 聊天答案的缓存时长；零值用答案缓存默认 TTL
	AnswerTTL time.Duration `yaml:"answer_ttl" json:"answer_ttl"`

	// MaxTokens 单次回答的 token 上限
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
}

// DefaultConfig 返回默认服务配置
func DefaultConfig() Config {
	return Config{
		MaxTokens: 1024,
	}
}

// Answer 一次问答的结果
type Answer struct {
	Text   string `json:"text"`
	Cached bool   `json:"cached"`
}

// StreamEvent 流式回答的事件。Done 为真表示流结束；
// 结束事件携带 Cached 标志，Err 非空表示流以错误终止。
type StreamEvent struct {
	Delta  string `json:"delta,omitempty"`
	Done   bool   `json:"done,omitempty"`
	Cached bool   `json:"cached,omitempty"`
	Err    error  `json:"-"`
}

// Service 编排一次问答：检索上下文、查缓存、调 LLM、触发预取。
// 缓存与检索故障只降级，LLM 故障原样返回给调用方。
type Service struct {
	answers    *cache.AnswerCache
	retriever  atomic.Pointer[retrieval.Retriever]
	provider   llm.Provider
	prefetcher *prefetch.Prefetcher
	config     Config
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// NewService 创建问答服务。retriever、prefetcher、collector 均可为 nil，
// 对应能力被跳过。
func NewService(answers *cache.AnswerCache, retriever *retrieval.Retriever, provider llm.Provider, prefetcher *prefetch.Prefetcher, config Config, logger *zap.Logger, collector *metrics.Collector) *Service {
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultConfig().MaxTokens
	}
	s := &Service{
		answers:    answers,
		provider:   provider,
		prefetcher: prefetcher,
		config:     config,
		logger:     logger.With(zap.String("component", "coach")),
		metrics:    collector,
	}
	s.retriever.Store(retriever)
	return s
}

// SetRetriever 原子替换检索器。知识库文件重载后由调用方换入新索引，
// 在途请求继续使用旧索引。
func (s *Service) SetRetriever(r *retrieval.Retriever) {
	s.retriever.Store(r)
}

// Ask 同步问答。命中缓存直接返回，否则经单飞入口调用 LLM，
// 成功后触发后台预取。
func (s *Service) Ask(ctx context.Context, req cache.Request) (*Answer, error) {
	norm := req.Normalize()
	key := cache.NewKey(cache.ScopeChat, norm, s.answers.Version())

	if v, ok := s.answers.Get(ctx, key); ok {
		s.triggerPrefetch(norm, v)
		return &Answer{Text: v, Cached: true}, nil
	}

	text, err := s.answers.GetOrCompute(ctx, key, s.config.AnswerTTL, func(computeCtx context.Context) (string, error) {
		return s.complete(computeCtx, norm)
	})
	if err != nil {
		return nil, err
	}

	s.triggerPrefetch(norm, text)
	return &Answer{Text: text, Cached: false}, nil
}

// AskStream 流式问答。
//
// 命中缓存时把缓存答案按词切块回放；未命中时把网关分片透传给
// 调用方并同时缓冲，只有在流干净结束后才把组装好的答案写入缓存。
// 调用方中途断开不会污染缓存。
func (s *Service) AskStream(ctx context.Context, req cache.Request) (<-chan StreamEvent, error) {
	norm := req.Normalize()
	key := cache.NewKey(cache.ScopeChat, norm, s.answers.Version())

	if v, ok := s.answers.Get(ctx, key); ok {
		s.triggerPrefetch(norm, v)
		return s.replay(ctx, v), nil
	}

	chunks, err := s.provider.Stream(ctx, s.chatRequest(ctx, norm))
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)

		var buf strings.Builder
		for chunk := range chunks {
			if chunk.Done {
				if chunk.Err != nil {
					s.emit(ctx, out, StreamEvent{Done: true, Err: chunk.Err})
					return
				}
				// 干净结束才落缓存
				answer := buf.String()
				s.answers.Set(context.WithoutCancel(ctx), key, answer, s.config.AnswerTTL)
				s.triggerPrefetch(norm, answer)
				s.emit(ctx, out, StreamEvent{Done: true})
				return
			}
			buf.WriteString(chunk.Delta)
			if !s.emit(ctx, out, StreamEvent{Delta: chunk.Delta}) {
				// 调用方断开：放弃缓冲，不写缓存
				return
			}
		}
		// 通道意外关闭，视为异常结束
		s.emit(ctx, out, StreamEvent{Done: true, Err: &llm.Error{
			Code:    llm.ErrProviderUnavailable,
			Message: "stream ended without terminal chunk",
		}})
	}()

	return out, nil
}

// replay 把缓存答案切块回放成流
func (s *Service) replay(ctx context.Context, answer string) <-chan StreamEvent {
	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)
		for _, delta := range splitDeltas(answer) {
			if !s.emit(ctx, out, StreamEvent{Delta: delta}) {
				return
			}
		}
		s.emit(ctx, out, StreamEvent{Done: true, Cached: true})
	}()
	return out
}

// emit 发送事件；调用方已断开时返回 false。取消优先于发送，
// 避免断开后还继续推进到提交缓存。
func (s *Service) emit(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// complete 检索参考资料并发起一次同步 LLM 请求
func (s *Service) complete(ctx context.Context, norm cache.Request) (string, error) {
	start := time.Now()
	resp, err := s.provider.Completion(ctx, s.chatRequest(ctx, norm))
	s.recordLLM(start, resp, err)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// chatRequest 组装发往网关的请求，检索失败降级为无参考资料
func (s *Service) chatRequest(ctx context.Context, norm cache.Request) *llm.ChatRequest {
	var passages []string
	if r := s.retriever.Load(); r != nil && norm.Query != "" {
		passages = r.Query(ctx, norm.Query).Passages()
	}

	return &llm.ChatRequest{
		Model: s.config.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt(norm)},
			{Role: llm.RoleUser, Content: norm.Query},
		},
		Context:   passages,
		MaxTokens: s.config.MaxTokens,
	}
}

// Generate 实现预取生成：按作用域组装提示词并发起同步请求。
// 预取器与预热器都走这里。
func (s *Service) Generate(ctx context.Context, scope string, req cache.Request, lastAnswer string) (string, error) {
	norm := req.Normalize()

	var passages []string
	if r := s.retriever.Load(); r != nil {
		query := norm.Query
		if query == "" {
			query = stateDescription(norm)
		}
		passages = r.Query(ctx, query).Passages()
	}

	start := time.Now()
	resp, err := s.provider.Completion(ctx, &llm.ChatRequest{
		Model: s.config.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt(norm)},
			{Role: llm.RoleUser, Content: scopePrompt(scope, norm, lastAnswer)},
		},
		Context:   passages,
		MaxTokens: s.config.MaxTokens,
	})
	s.recordLLM(start, resp, err)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (s *Service) triggerPrefetch(norm cache.Request, answer string) {
	if s.prefetcher != nil {
		s.prefetcher.OnTurn(norm, answer)
	}
}

func (s *Service) recordLLM(start time.Time, resp *llm.ChatResponse, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	model := s.config.Model
	var prompt, completion int
	if err != nil {
		status = "error"
	} else {
		model = resp.Model
		prompt = resp.Usage.PromptTokens
		completion = resp.Usage.CompletionTokens
	}
	s.metrics.RecordLLMRequest(s.provider.Name(), model, status, time.Since(start), prompt, completion)
}

// splitDeltas 把文本按词切成回放分片
func splitDeltas(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	deltas := make([]string, len(words))
	for i, w := range words {
		if i == 0 {
			deltas[i] = w
		} else {
			deltas[i] = " " + w
		}
	}
	return deltas
}
