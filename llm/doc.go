// Package llm 定义统一的 LLM 网关接口与消息类型。
//
// 核心只依赖 Provider 接口：同步 Completion 与流式 Stream，
// 两者的结果在完成后都会成为答案缓存的条目值。
// 具体的 HTTP 适配见 llm/providers 子包。
package llm
