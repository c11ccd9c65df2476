// Package api 定义 HTTP 接口的请求与响应类型。
package api

// ChatRequest 问答请求体
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Topic     string `json:"topic"`
	Season    string `json:"season,omitempty"`
	Audience  string `json:"audience,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse 问答响应体
type ChatResponse struct {
	Answer string `json:"answer"`
	Cached bool   `json:"cached"`
}

// StreamMeta SSE meta 事件载荷
type StreamMeta struct {
	RequestID string `json:"request_id,omitempty"`
	Cached    bool   `json:"cached"`
}

// StreamToken SSE token 事件载荷
type StreamToken struct {
	Delta string `json:"delta"`
}

// StreamDone SSE done 事件载荷
type StreamDone struct {
	Cached bool   `json:"cached"`
	Error  string `json:"error,omitempty"`
}

// PrefetchStatus 预取状态响应：每个工件要么就绪（携带内容），
// 要么显式 null 表示尚未生成。
type PrefetchStatus struct {
	Topic     string             `json:"topic"`
	Season    string             `json:"season,omitempty"`
	Audience  string             `json:"audience,omitempty"`
	Phase     string             `json:"phase,omitempty"`
	Artifacts map[string]*string `json:"artifacts"`
	Ready     bool               `json:"ready"`
}
