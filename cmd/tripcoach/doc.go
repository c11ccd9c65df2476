// Copyright (c) TripCoach Authors.
// Licensed under the MIT License.

/*
Package main 提供 TripCoach 服务端程序入口。

# 概述

cmd/tripcoach 是旅行教练问答服务的可执行入口，提供 HTTP API、
健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集以及知识库文件热重载。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    CORS、RateLimiter（基于 IP）、MetricsMiddleware
  - 知识库热重载：FileWatcher 监听知识文件变更并重建检索索引
  - 启动预热：按配置组合预先生成对话工件
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 排空预取池 → 关闭 Metrics
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
