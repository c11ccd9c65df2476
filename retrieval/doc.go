// Package retrieval 提供答案落地所需的知识检索。
//
// 知识库文档从 YAML 文件一次性加载，经嵌入器向量化后
// 构建只读的平坦余弦索引。检索是尽力而为的：嵌入失败
// 降级为空结果，由上层决定是否在无参考资料下作答。
package retrieval
