// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展，内置凭据脱敏与轮转
//   - xmetrics: 统一可观测性接口（指标、追踪）
//   - xsampling: 日志采样策略
//
// 设计原则：
//   - 遵循 OpenTelemetry 语义规范
//   - 凭据永不落入日志输出
//   - 支持动态级别控制和采样策略
package observability
