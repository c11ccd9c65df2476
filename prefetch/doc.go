// Package prefetch 实现对话完成后的后台预取与启动预热。
//
// 预取器根据可插拔策略推导相邻状态，把续问、灵感卡、小结等
// 工件的生成任务投递到有界工作池；预热器在启动时对配置的
// 状态组合做同样的事。两者都经由答案缓存的单飞入口生成，
// 与前台请求互不重复，失败与丢弃均不影响请求路径。
package prefetch
