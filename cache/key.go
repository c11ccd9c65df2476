package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// 内置的缓存作用域。同一组归一化字段在不同作用域下拥有独立的键，
// 互不覆盖（例如聊天答案与预取的追问列表）。
const (
	ScopeChat          = "chat"
	ScopeNextQuestions = "next_q"
	ScopeNextIdeas     = "next_idea"
	ScopeMiniSummary   = "mini_summary"
	ScopeIdeaCards     = "ideas_cards"
	ScopeStepQuestions = "stepq"
)

// Key 是答案缓存的确定性指纹。
// 两个语义相同的请求（归一化字段逐项相等）总是映射到同一个键。
type Key string

func (k Key) String() string { return string(k) }

// Request 是一轮对话的归一化字段。
// Query 为空表示该键只由状态字段决定（预取产物就是这种形态）。
type Request struct {
	Topic    string `json:"topic"`
	Season   string `json:"season"`
	Audience string `json:"audience"`
	Phase    string `json:"phase"`
	Query    string `json:"query,omitempty"`
}

// Normalize 返回字段归一化后的副本：
// 枚举字段去空白并小写，查询文本压缩内部空白。
func (r Request) Normalize() Request {
	return Request{
		Topic:    normalizeField(r.Topic),
		Season:   normalizeField(r.Season),
		Audience: normalizeField(r.Audience),
		Phase:    normalizeField(r.Phase),
		Query:    collapseSpace(r.Query),
	}
}

// NewKey 由作用域、知识版本与归一化字段生成缓存键。
// 序列化使用固定字段顺序的紧凑 JSON，因此与调用方的字段书写顺序无关；
// sha256 保证不同语义请求在实践中不会碰撞。
func NewKey(scope string, req Request, version string) Key {
	norm := req.Normalize()
	raw, err := json.Marshal(norm)
	if err != nil {
		// Request 只含字符串字段，Marshal 不会失败；兜底保持确定性
		raw = []byte(norm.Topic + "|" + norm.Season + "|" + norm.Audience + "|" + norm.Phase + "|" + norm.Query)
	}
	sum := sha256.Sum256(raw)
	return Key("pc:" + scope + ":" + version + ":" + hex.EncodeToString(sum[:]))
}

func normalizeField(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// collapseSpace 压缩任意空白序列为单个空格
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
