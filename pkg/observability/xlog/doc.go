// Package xlog 提供 FinKit 各组件共享的结构化日志构建器，基于
// log/slog。
//
// # 用法
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("info").
//		SetFormat("json").
//		SetRotation("/var/log/finkit/finkit.log").
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
// Build 返回标准 *slog.Logger，直接传给各组件的 WithLogger 选项。
//
// # 敏感信息
//
// Token、密码等凭据永远不应进入日志。组件侧遵守此约定；构建器
// 额外提供 Redact 兜底，把常见凭据字段名的取值统一替换为掩码。
package xlog
