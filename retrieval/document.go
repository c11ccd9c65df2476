package retrieval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document 知识库文档。加载后不可变。
type Document struct {
	ID       string            `yaml:"id" json:"id"`
	Text     string            `yaml:"text" json:"text"`
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// KnowledgeFile 知识库文件的顶层结构
type KnowledgeFile struct {
	Version   string     `yaml:"version"`
	Documents []Document `yaml:"documents"`
}

// LoadKnowledge 从 YAML 文件加载知识库文档。
// 文件变更后重新调用可得到新文档集，用于索引重建。
func LoadKnowledge(path string) (*KnowledgeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge file: %w", err)
	}

	var kf KnowledgeFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge file: %w", err)
	}

	seen := make(map[string]bool, len(kf.Documents))
	for i, doc := range kf.Documents {
		if doc.ID == "" {
			return nil, fmt.Errorf("document %d has empty id", i)
		}
		if seen[doc.ID] {
			return nil, fmt.Errorf("duplicate document id: %s", doc.ID)
		}
		seen[doc.ID] = true
		if doc.Text == "" {
			return nil, fmt.Errorf("document %s has empty text", doc.ID)
		}
	}

	return &kf, nil
}
