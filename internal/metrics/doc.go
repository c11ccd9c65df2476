/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、LLM、缓存与预取四大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：请求总数、请求耗时、Token 用量（prompt/completion），
    按 provider/model 分组。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 预取指标：任务调度/丢弃/完成计数（按 scope 分组）与
    预热运行耗时。
*/
package metrics
