// Package xretry 提供面向 HTTP 客户端的失败分类和退避重试能力。
//
// # 设计理念
//
// xretry 把"是否重试"和"等多久重试"拆成两个独立关注点：
//   - Classify：把一次失败归入失败类别（Class），类别决定是否可重试
//   - Backoff：根据类别和尝试次数计算退避延迟（指数退避 + 抖动）
//
// 底层使用 [avast/retry-go/v5] 执行重试，延迟通过 context 感知的
// 定时器实现，不会阻塞调用方以外的任何工作协程。
//
// # 失败分类
//
//   - RetryIdempotent：408/500/502/504、连接失败、socket 超时
//   - RetryBusy：429/503（服务端压力信号，使用更大的基础延迟）
//   - NonRetryAuth：401/403（由上层认证协调器处理，本包永不重试）
//   - NonRetryClient：404 等客户端错误（等待不会自愈）
//   - NonRetryDNS：DNS 解析失败（地址错误不会自愈）
//
// # 退避公式
//
//	delay = min(cap, base(class) * 2^attempt) * (1 ± jitter)
//
// 默认 cap 为 10s；base 对限流（429）为 5s，对服务端繁忙（503）为 2s，
// 其他可重试类别为 1s。抖动默认 ±10%，避免同步重试风暴。
//
// # 使用方式
//
//	retryer := xretry.NewRetryer(xretry.WithMaxAttempts(3))
//	err := retryer.Do(ctx, func(ctx context.Context) error {
//	    return callServer(ctx)
//	})
//
// 详细用法参见各函数文档和 example_test.go。
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
