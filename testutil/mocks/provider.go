// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、流式输出、延迟与错误注入场景。
// 通过配置启用时也可作为本地冒烟运行的假后端。
package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/tripcoach/llm"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	// 响应配置
	response     string
	streamChunks []string
	err          error

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	streamFunc     func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)

	// 行为控制
	latency   time.Duration // 模拟延迟
	failAfter int           // 在第 N 次调用后失败
	callCount int
	echo      bool // 响应中回显最后一条用户消息
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		response:         "Mock response",
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithEcho 让响应回显最后一条用户消息，便于区分不同请求的答案
func (m *MockProvider) WithEcho() *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.echo = true
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithStreamChunks 设置流式响应块
func (m *MockProvider) WithStreamChunks(chunks []string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithLatency 设置响应延迟
func (m *MockProvider) WithLatency(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// WithStreamFunc 设置自定义 Stream 函数
func (m *MockProvider) WithStreamFunc(fn func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamFunc = fn
	return m
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	return "mock"
}

// HealthCheck 执行健康检查
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{
		Healthy: true,
		Latency: 10 * time.Millisecond,
	}, nil
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	latency := m.latency
	failAfter := m.failAfter
	callCount := m.callCount
	err := m.err
	fn := m.completionFunc
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if failAfter > 0 && callCount > failAfter {
		err = fmt.Errorf("mock provider: configured to fail after %d calls", failAfter)
	}
	if err != nil {
		m.record(MockProviderCall{Request: req, Error: err})
		return nil, err
	}

	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(MockProviderCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	resp := &llm.ChatResponse{
		ID:      "mock-response-id",
		Model:   req.Model,
		Content: m.content(req),
		Usage: llm.ChatUsage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
		CreatedAt: time.Now(),
	}

	m.record(MockProviderCall{Request: req, Response: resp})
	return resp, nil
}

// Stream 流式生成响应
func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	m.mu.Lock()
	m.callCount++
	err := m.err
	fn := m.streamFunc
	chunks := append([]string(nil), m.streamChunks...)
	latency := m.latency
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if fn != nil {
		return fn(ctx, req)
	}

	// 没有设置流式块时按完整响应切块
	if len(chunks) == 0 {
		chunks = splitChunks(m.content(req))
	}

	ch := make(chan llm.StreamChunk, len(chunks)+1)
	go func() {
		defer close(ch)

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-ctx.Done():
				ch <- llm.StreamChunk{ID: "mock-chunk-id", Done: true, Err: streamErr(ctx.Err())}
				return
			}
		}

		for _, chunk := range chunks {
			select {
			case <-ctx.Done():
				ch <- llm.StreamChunk{ID: "mock-chunk-id", Done: true, Err: streamErr(ctx.Err())}
				return
			case ch <- llm.StreamChunk{ID: "mock-chunk-id", Delta: chunk}:
			}
		}
		ch <- llm.StreamChunk{ID: "mock-chunk-id", Done: true}
	}()

	return ch, nil
}

// --- 内部方法 ---

func (m *MockProvider) content(req *llm.ChatRequest) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.echo {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == llm.RoleUser {
				return "mock answer: " + req.Messages[i].Content
			}
		}
	}
	return m.response
}

func (m *MockProvider) record(call MockProviderCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// streamErr 把普通错误包装为流式终止错误
func streamErr(err error) *llm.Error {
	if err == nil {
		return nil
	}
	return &llm.Error{
		Code:       llm.ErrInternalError,
		Message:    err.Error(),
		Provider:   "mock",
		HTTPStatus: 500,
	}
}

// splitChunks 把文本按词切成流式块
func splitChunks(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{text}
	}
	chunks := make([]string, len(words))
	for i, w := range words {
		if i == 0 {
			chunks[i] = w
		} else {
			chunks[i] = " " + w
		}
	}
	return chunks
}

// --- 查询方法 ---

// GetCalls 获取所有调用记录
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockProviderCall{}, m.calls...)
}

// GetCallCount 获取调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// Reset 重置所有状态
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
	m.err = nil
}

// --- 预设 Provider 工厂 ---

// NewSuccessProvider 创建总是成功的 Provider
func NewSuccessProvider(response string) *MockProvider {
	return NewMockProvider().WithResponse(response)
}

// NewErrorProvider 创建总是失败的 Provider
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithError(err)
}

// NewStreamProvider 创建流式响应的 Provider
func NewStreamProvider(chunks []string) *MockProvider {
	return NewMockProvider().WithStreamChunks(chunks)
}
