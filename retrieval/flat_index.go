package retrieval

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
)

// SearchResult 搜索结果
type SearchResult struct {
	ID    string
	Score float64 // cosine similarity
}

// FlatIndex 暴力搜索索引：对归一化向量做内积即余弦相似度。
// Build 之后只读，并发查询无需加锁。
type FlatIndex struct {
	ids     []string
	vectors [][]float64
	dims    int
	built   bool
}

// NewFlatIndex 创建空索引
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

// Build 构建索引。向量在此归一化，之后不再修改。
func (idx *FlatIndex) Build(vectors [][]float64, ids []string) error {
	if idx.built {
		return fmt.Errorf("index already built")
	}
	if len(vectors) != len(ids) {
		return fmt.Errorf("vectors and ids length mismatch: %d vs %d", len(vectors), len(ids))
	}

	dims := 0
	normalized := make([][]float64, len(vectors))
	for i, vec := range vectors {
		if len(vec) == 0 {
			return fmt.Errorf("vector for %s is empty", ids[i])
		}
		if dims == 0 {
			dims = len(vec)
		} else if len(vec) != dims {
			return fmt.Errorf("vector for %s has dimension %d, want %d", ids[i], len(vec), dims)
		}
		normalized[i] = normalize(vec)
	}

	idx.ids = append([]string(nil), ids...)
	idx.vectors = normalized
	idx.dims = dims
	idx.built = true
	return nil
}

// Search 返回与查询最相似的 k 个文档，按分数降序；
// 分数相同时按文档 ID 升序，保证结果确定。
func (idx *FlatIndex) Search(query []float64, k int) ([]SearchResult, error) {
	if !idx.built {
		return nil, fmt.Errorf("index not built")
	}
	if len(query) != idx.dims {
		return nil, fmt.Errorf("query has dimension %d, want %d", len(query), idx.dims)
	}
	if k <= 0 || len(idx.ids) == 0 {
		return []SearchResult{}, nil
	}

	q := normalize(query)

	// 用大小为 k 的小顶堆筛选 top-k
	h := &resultHeap{}
	heap.Init(h)
	for i, vec := range idx.vectors {
		score := dot(q, vec)
		item := SearchResult{ID: idx.ids[i], Score: score}
		if h.Len() < k {
			heap.Push(h, item)
		} else if worseThan((*h)[0], item) {
			(*h)[0] = item
			heap.Fix(h, 0)
		}
	}

	results := make([]SearchResult, h.Len())
	copy(results, *h)
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// Size 索引大小
func (idx *FlatIndex) Size() int {
	return len(idx.ids)
}

// ====== 内部方法 ======

func normalize(vec []float64) []float64 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return append([]float64(nil), vec...)
	}
	inv := 1.0 / math.Sqrt(norm)
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v * inv
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// worseThan 报告 a 是否应先被挤出堆：分数更低，
// 或分数相同但 ID 更大。
func worseThan(a, b SearchResult) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ID > b.ID
}

// ====== 堆实现 ======

type resultHeap []SearchResult

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return worseThan(h[i], h[j]) }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) {
	*h = append(*h, x.(SearchResult))
}

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
