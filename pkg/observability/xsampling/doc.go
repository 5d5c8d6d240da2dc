// Package xsampling 提供日志与事件的采样策略。
//
// 客户端在重试风暴或端点探测期间会产生大量同构的低级别日志，
// 全量输出既刷屏又拖慢热路径。本包的采样器按比率决定单条事件
// 是否保留，供 xlog 的采样处理器使用：
//
//   - RandomSampler: 纯随机采样，整体保持给定比率。
//   - KeyBasedSampler: 按 key 一致性采样，相同 key 的决策恒定，
//     适合"同一类消息要么都出现要么都不出现"的场景。
//
// 采样器实现必须并发安全，ShouldSample 会在日志热路径上被调用。
package xsampling
