// Package xmetrics 提供 FinKit 客户端的统一观测接口。
//
// Observer 抽象一次操作跨度（登录、请求分发、Token 刷新、端点
// 发现），业务代码只依赖接口，具体后端可替换：
//   - NewOTelObserver 基于 OpenTelemetry，同时产出 trace span 与
//     计数/耗时指标
//   - NoopObserver 空实现，未配置观测时的默认值
//
// # 使用示例
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xclient",
//		Operation: "execute",
//		Kind:      xmetrics.KindClient,
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// # 指标命名
//
// 统一指标：
//   - finkit.operation.total
//   - finkit.operation.duration
//
// 统一属性：component / operation / status。
//
// 凭据取值不进入任何观测属性。
package xmetrics
