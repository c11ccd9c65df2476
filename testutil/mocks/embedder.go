// MockEmbedder 的嵌入提供商测试模拟实现。
//
// 默认按文本哈希生成确定性向量；也可为特定文本注册固定向量，
// 以便在测试中构造已知的相似度关系。
package mocks

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/BaSui01/tripcoach/llm/embedding"
)

// MockEmbedder 是 embedding.Provider 的模拟实现
type MockEmbedder struct {
	mu sync.RWMutex

	dims    int
	fixed   map[string][]float64
	err     error
	embeds  int
	queries int
}

// NewMockEmbedder 创建新的 MockEmbedder
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 8
	}
	return &MockEmbedder{
		dims:  dims,
		fixed: make(map[string][]float64),
	}
}

// WithVector 为特定文本注册固定向量
func (m *MockEmbedder) WithVector(text string, vec []float64) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed[text] = vec
	return m
}

// WithError 设置返回错误
func (m *MockEmbedder) WithError(err error) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockEmbedder) Name() string {
	return "mock"
}

// Dimensions 返回嵌入维度
func (m *MockEmbedder) Dimensions() int {
	return m.dims
}

// Embed 为给定输入生成嵌入
func (m *MockEmbedder) Embed(ctx context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	m.mu.Lock()
	m.embeds++
	err := m.err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	data := make([]embedding.EmbeddingData, len(req.Input))
	for i, text := range req.Input {
		data[i] = embedding.EmbeddingData{
			Index:     i,
			Embedding: m.vector(text),
		}
	}
	return &embedding.EmbeddingResponse{
		Model:      "mock-embedding",
		Embeddings: data,
	}, nil
}

// EmbedQuery 嵌入单个查询
func (m *MockEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	m.mu.Lock()
	m.queries++
	err := m.err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.vector(query), nil
}

// EmbedDocuments 嵌入多个文档
func (m *MockEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	m.mu.RLock()
	err := m.err
	m.mu.RUnlock()

	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(documents))
	for i, doc := range documents {
		out[i] = m.vector(doc)
	}
	return out, nil
}

// QueryCount 获取 EmbedQuery 调用次数
func (m *MockEmbedder) QueryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queries
}

// --- 内部方法 ---

// vector 返回注册的固定向量，否则按哈希生成确定性单位向量
func (m *MockEmbedder) vector(text string) []float64 {
	m.mu.RLock()
	if vec, ok := m.fixed[text]; ok {
		m.mu.RUnlock()
		return append([]float64(nil), vec...)
	}
	m.mu.RUnlock()

	sum := sha256.Sum256([]byte(text))
	vec := make([]float64, m.dims)
	var norm float64
	for i := 0; i < m.dims; i++ {
		bits := binary.BigEndian.Uint32(sum[(i*4)%28:])
		v := float64(bits%2000)/1000.0 - 1.0
		vec[i] = v
		norm += v * v
	}
	if norm > 0 {
		inv := 1.0 / math.Sqrt(norm)
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}
