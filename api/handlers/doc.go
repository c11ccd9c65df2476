// Copyright (c) TripCoach Authors.
// Licensed under the MIT License.

// Package handlers 实现 HTTP 接口的请求处理。
//
// 所有 JSON 接口共用统一的 Response 信封与 llm.Error 到
// HTTP 状态码的映射；流式接口走 SSE（meta/token/done 事件）。
package handlers
