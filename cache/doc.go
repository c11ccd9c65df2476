// Package cache 实现两级答案缓存与单飞去重。
//
// 键是请求归一化字段的确定性指纹；条目不可变、按 TTL 过期。
// 本地层是有界 LRU，共享层是 Redis（internal/cache）。
// GetOrCompute 保证同一个键任一时刻至多一次在途计算，
// 后台预取与前台请求共用这一保证，互不重复触发 LLM 调用。
package cache
