// Package cache 封装共享层（Redis）缓存访问。
//
// 共享层被视为尽力而为的外部依赖：每个操作都带有独立的短超时，
// 超时或故障由上层（两级答案缓存）降级处理，绝不向请求方暴露。
package cache
