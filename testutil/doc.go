/*
Package testutil 提供 TripCoach 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 流式辅助: CollectStreamChunks / CollectStreamContent，
    收集 LLM 流式输出
  - Mock 实现: mocks 子包提供 LLM Provider 与嵌入 Provider 的
    可配置模拟（固定响应、延迟、错误注入）
*/
package testutil
