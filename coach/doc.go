// Package coach 编排问答主流程。
//
// 一次请求依次经过：知识检索（失败降级为空）、两级答案缓存
// （命中直接返回）、LLM 网关（经单飞入口）、后台预取触发。
// 流式问答对缓存命中做切块回放，对未命中边透传边缓冲，
// 只有流干净结束才提交缓存。
package coach
