package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/tripcoach/llm/embedding"
)

// RetrievalResult 一次检索的结果。检索失败时为空结果而非错误：
// 答案质量降级，请求本身照常进行。
type RetrievalResult struct {
	Documents []Document `json:"documents"`
	Scores    []float64  `json:"scores"`
}

// Passages 返回文档正文，按相关性降序。
func (r RetrievalResult) Passages() []string {
	out := make([]string, len(r.Documents))
	for i, doc := range r.Documents {
		out[i] = doc.Text
	}
	return out
}

// Config 检索器配置
type Config struct {
	TopK int `yaml:"top_k" json:"top_k"`
}

// DefaultConfig 返回默认检索配置
func DefaultConfig() Config {
	return Config{TopK: 4}
}

// Retriever 把嵌入器和平坦索引组合成查询接口。
type Retriever struct {
	index    *FlatIndex
	embedder embedding.Provider
	byID     map[string]Document
	config   Config
	logger   *zap.Logger
}

// NewRetriever 创建检索器并为全部文档建立索引。
func NewRetriever(ctx context.Context, docs []Document, embedder embedding.Provider, config Config, logger *zap.Logger) (*Retriever, error) {
	if config.TopK <= 0 {
		config.TopK = DefaultConfig().TopK
	}
	log := logger.With(zap.String("component", "retriever"))

	texts := make([]string, len(docs))
	ids := make([]string, len(docs))
	byID := make(map[string]Document, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
		ids[i] = doc.ID
		byID[doc.ID] = doc
	}

	index := NewFlatIndex()
	if len(docs) > 0 {
		vectors, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed knowledge documents: %w", err)
		}
		if err := index.Build(vectors, ids); err != nil {
			return nil, fmt.Errorf("failed to build index: %w", err)
		}
	} else {
		if err := index.Build(nil, nil); err != nil {
			return nil, err
		}
	}

	log.Info("retrieval index built",
		zap.Int("documents", len(docs)),
		zap.Int("top_k", config.TopK))

	return &Retriever{
		index:    index,
		embedder: embedder,
		byID:     byID,
		config:   config,
		logger:   log,
	}, nil
}

// Query 检索与文本最相关的文档。嵌入或搜索失败时返回空结果
// 并记录警告，绝不向调用方返回错误。
func (r *Retriever) Query(ctx context.Context, text string) RetrievalResult {
	return r.QueryTopK(ctx, text, r.config.TopK)
}

// QueryTopK 同 Query，但由调用方指定 k。
func (r *Retriever) QueryTopK(ctx context.Context, text string, k int) RetrievalResult {
	if r.index.Size() == 0 || k <= 0 {
		return RetrievalResult{}
	}

	vec, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		r.logger.Warn("query embedding failed, returning empty result", zap.Error(err))
		return RetrievalResult{}
	}

	hits, err := r.index.Search(vec, k)
	if err != nil {
		r.logger.Warn("index search failed, returning empty result", zap.Error(err))
		return RetrievalResult{}
	}

	result := RetrievalResult{
		Documents: make([]Document, 0, len(hits)),
		Scores:    make([]float64, 0, len(hits)),
	}
	for _, hit := range hits {
		doc, ok := r.byID[hit.ID]
		if !ok {
			continue
		}
		result.Documents = append(result.Documents, doc)
		result.Scores = append(result.Scores, hit.Score)
	}
	return result
}

// Size 返回索引中的文档数
func (r *Retriever) Size() int {
	return r.index.Size()
}
