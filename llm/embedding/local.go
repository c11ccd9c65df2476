package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// LocalProvider 是离线嵌入提供者：根据文本哈希生成确定性单位向量.
// 不依赖外部服务，供本地开发与无密钥部署使用.
// 同一文本总是得到同一向量，相似度没有语义，但检索管线完整可用.
type LocalProvider struct {
	dims int
}

// NewLocalProvider 创建离线嵌入提供者.
func NewLocalProvider(dims int) *LocalProvider {
	if dims <= 0 {
		dims = 256
	}
	return &LocalProvider{dims: dims}
}

func (p *LocalProvider) Name() string    { return "local-embedding" }
func (p *LocalProvider) Dimensions() int { return p.dims }

// Embed 为给定输入生成嵌入.
func (p *LocalProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings := make([]EmbeddingData, len(req.Input))
	for i, text := range req.Input {
		embeddings[i] = EmbeddingData{Index: i, Embedding: p.vector(text)}
	}

	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      "local",
		Embeddings: embeddings,
	}, nil
}

// EmbedQuery 是嵌入单个查询的便捷方法.
func (p *LocalProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.vector(query), nil
}

// EmbedDocuments 是嵌入多个文档的便捷方法.
func (p *LocalProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	resp, err := p.Embed(ctx, &EmbeddingRequest{Input: documents, InputType: InputTypeDocument})
	if err != nil {
		return nil, err
	}
	vectors := make([][]float64, len(resp.Embeddings))
	for i, data := range resp.Embeddings {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

// vector 把文本哈希扩展成单位向量.
// 用递推哈希填满任意维度，再做 L2 归一化.
func (p *LocalProvider) vector(text string) []float64 {
	v := make([]float64, p.dims)
	seed := sha256.Sum256([]byte(text))

	var norm float64
	block := seed[:]
	for i := 0; i < p.dims; i++ {
		if i%4 == 0 && i > 0 {
			next := sha256.Sum256(block)
			block = next[:]
		}
		bits := binary.BigEndian.Uint64(block[(i%4)*8 : (i%4)*8+8])
		// 映射到 [-1, 1]
		v[i] = float64(int64(bits)) / math.MaxInt64
		norm += v[i] * v[i]
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}
