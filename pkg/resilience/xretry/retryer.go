package xretry

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// DefaultMaxAttempts 默认最大尝试次数（包含首次尝试）。
const DefaultMaxAttempts = 3

// Executor 重试执行器接口。
// 调用方如需 mock 重试执行器，可使用此接口作为函数参数类型。
type Executor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// 确保 *Retryer 实现 Executor 接口
var _ Executor = (*Retryer)(nil)

// Retryer 重试执行器。
//
// Retryer 组合失败分类（Classify）和类别感知退避（Backoff），
// 底层使用 avast/retry-go/v5 执行重试。延迟通过 retry-go 的
// context 感知定时器实现，等待期间不占用任何共享工作协程。
type Retryer struct {
	maxAttempts int
	backoff     *Backoff
	onRetry     func(attempt int, err error)
}

// RetryerOption 执行器配置选项。
type RetryerOption func(*Retryer)

// WithMaxAttempts 设置最大尝试次数（包含首次尝试），最小为 1。
func WithMaxAttempts(n int) RetryerOption {
	return func(r *Retryer) {
		if n >= 1 {
			r.maxAttempts = n
		}
	}
}

// WithBackoff 设置退避策略。nil 会被静默忽略。
func WithBackoff(b *Backoff) RetryerOption {
	return func(r *Retryer) {
		if b != nil {
			r.backoff = b
		}
	}
}

// WithOnRetry 设置重试回调。nil 会被静默忽略。
// attempt 从 1 开始（表示第 N 次重试）。回调只在两次尝试之间触发，
// 最后一次尝试失败后不再回调。
func WithOnRetry(f func(attempt int, err error)) RetryerOption {
	return func(r *Retryer) {
		if f != nil {
			r.onRetry = f
		}
	}
}

// NewRetryer 创建重试执行器。
// 默认最多尝试 3 次，使用默认的类别感知退避。
func NewRetryer(opts ...RetryerOption) *Retryer {
	r := &Retryer{
		maxAttempts: DefaultMaxAttempts,
		backoff:     NewBackoff(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxAttempts 返回最大尝试次数。nil 接收者返回默认值。
func (r *Retryer) MaxAttempts() int {
	if r == nil {
		return DefaultMaxAttempts
	}
	return r.maxAttempts
}

// Do 执行带重试的操作。
// 如果接收者为 nil，返回 ErrNilRetryer。
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil {
		return ErrNilRetryer
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	return retry.New(r.buildOptions(ctx)...).Do(func() error {
		return fn(ctx)
	})
}

// DoWithResult 执行带重试的操作（有返回值）。
// 这是泛型函数，必须作为包级函数使用。
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNilRetryer
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	return retry.NewWithData[T](r.buildOptions(ctx)...).Do(func() (T, error) {
		return fn(ctx)
	})
}

// buildOptions 构建 retry-go 的选项。
// 设计决策: 每次 Do 调用重建选项切片，重试场景下的分配开销可忽略。
// attemptCount 使用原子操作，防止闭包被并发调用时产生数据竞争。
func (r *Retryer) buildOptions(ctx context.Context) []retry.Option {
	backoff := r.backoff
	if backoff == nil {
		backoff = NewBackoff()
	}

	var attemptCount atomic.Int64
	opts := make([]retry.Option, 0, 6)
	opts = append(opts,
		retry.Context(ctx),
		retry.Attempts(safeIntToUint(r.maxAttempts)),
		retry.RetryIf(func(err error) bool {
			attemptCount.Add(1)
			if ctx.Err() != nil {
				return false
			}
			if !retry.IsRecoverable(err) {
				return false
			}
			return IsRetryable(err)
		}),
		retry.DelayType(func(n uint, err error, _ retry.DelayContext) time.Duration {
			// retry-go v5 中 DelayType 的 n 从 1 开始；
			// Backoff.Delay 的 attempt 从 0 开始，首次重试延迟为 base。
			return backoff.Delay(safeUintToInt(n)-1, Classify(err))
		}),
		retry.LastErrorOnly(true),
	)

	if r.onRetry != nil {
		maxAttempts := safeIntToUint(r.maxAttempts)
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			// retry-go v5 在每次失败后都调用 OnRetry，包括最后一次；
			// 最后一次失败后不会再重试，跳过回调。
			if n+1 >= maxAttempts {
				return
			}
			// n 从 0 开始，+1 转换为 1-based
			r.onRetry(safeUintToInt(n)+1, err)
		}))
	}

	return opts
}

// Unrecoverable 将错误标记为不可恢复（不再重试）。
// 这是 retry-go 原生的不可恢复错误标记。
var Unrecoverable = retry.Unrecoverable

// IsRecoverable 检查错误是否可恢复。
var IsRecoverable = retry.IsRecoverable

// safeIntToUint 将 int 安全转换为 uint。负数返回 1（至少尝试一次）。
func safeIntToUint(n int) uint {
	if n <= 0 {
		return 1
	}
	return uint(n)
}

// safeUintToInt 将 uint 安全转换为 int。超过 MaxInt 的值截断到 MaxInt。
func safeUintToInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}
