package xretry

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"net/http"
	"time"
)

// 退避默认值。
const (
	// DefaultMaxDelay 单次退避延迟上限。
	DefaultMaxDelay = 10 * time.Second

	// DefaultBaseDelay 默认可重试类别的基础延迟。
	DefaultBaseDelay = time.Second

	// DefaultBusyBaseDelay 服务端繁忙（503）的基础延迟。
	DefaultBusyBaseDelay = 2 * time.Second

	// DefaultRateLimitedBaseDelay 限流（429）的基础延迟。
	DefaultRateLimitedBaseDelay = 5 * time.Second

	// DefaultJitter 默认抖动因子（±10%）。
	DefaultJitter = 0.1
)

// Backoff 是失败类别感知的指数退避策略。
//
//	delay = min(maxDelay, base(classification) * 2^attempt) * (1 ± jitter)
//
// attempt 从 0 开始计数（第一次重试的延迟为 base * 2^0 = base）。
type Backoff struct {
	maxDelay       time.Duration
	baseDelay      time.Duration
	busyDelay      time.Duration
	rateLimitDelay time.Duration
	jitter         float64
}

// BackoffOption 退避配置选项。
type BackoffOption func(*Backoff)

// WithMaxDelay 设置延迟上限。d <= 0 时静默忽略。
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(b *Backoff) {
		if d > 0 {
			b.maxDelay = d
		}
	}
}

// WithBaseDelay 设置默认可重试类别的基础延迟。d <= 0 时静默忽略。
func WithBaseDelay(d time.Duration) BackoffOption {
	return func(b *Backoff) {
		if d > 0 {
			b.baseDelay = d
		}
	}
}

// WithBusyBaseDelay 设置服务端繁忙类别的基础延迟。d <= 0 时静默忽略。
func WithBusyBaseDelay(d time.Duration) BackoffOption {
	return func(b *Backoff) {
		if d > 0 {
			b.busyDelay = d
		}
	}
}

// WithRateLimitedBaseDelay 设置限流类别的基础延迟。d <= 0 时静默忽略。
func WithRateLimitedBaseDelay(d time.Duration) BackoffOption {
	return func(b *Backoff) {
		if d > 0 {
			b.rateLimitDelay = d
		}
	}
}

// WithJitter 设置抖动因子，clamp 到 [0, 1]。
// 设为 0 可获得确定性延迟（测试场景）。
func WithJitter(j float64) BackoffOption {
	return func(b *Backoff) {
		if j < 0 {
			j = 0
		} else if j > 1 {
			j = 1
		}
		b.jitter = j
	}
}

// NewBackoff 创建类别感知的退避策略。
func NewBackoff(opts ...BackoffOption) *Backoff {
	b := &Backoff{
		maxDelay:       DefaultMaxDelay,
		baseDelay:      DefaultBaseDelay,
		busyDelay:      DefaultBusyBaseDelay,
		rateLimitDelay: DefaultRateLimitedBaseDelay,
		jitter:         DefaultJitter,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Delay 计算第 attempt 次重试前的延迟。
// attempt 从 0 开始；负数按 0 处理。
func (b *Backoff) Delay(attempt int, c Classification) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.base(c)) * math.Pow(2, float64(attempt))

	if b.jitter > 0 {
		delay *= 1.0 + (randomFloat64()*2-1)*b.jitter
	}

	// 设计决策: NaN 安全的延迟限制。attempt 极大时 math.Pow 溢出为 +Inf，
	// 与 0 相乘产生 NaN，而 NaN 的所有比较均返回 false，会绕过上限检查。
	// NaN/负数统一返回 maxDelay（语义为退避已达上限）。
	if math.IsNaN(delay) || delay < 0 || delay >= float64(b.maxDelay) {
		return b.maxDelay
	}
	return time.Duration(delay)
}

// base 返回类别对应的基础延迟。
// RetryBusy 内部区分限流（429）和服务端繁忙（503）：
// 限流是服务端明确的减速要求，基础延迟更大。
func (b *Backoff) base(c Classification) time.Duration {
	if c.Class == RetryBusy {
		if c.StatusCode == http.StatusTooManyRequests {
			return b.rateLimitDelay
		}
		return b.busyDelay
	}
	return b.baseDelay
}

const (
	floatBits  = 53
	floatScale = 1.0 / (1 << floatBits)
)

// randomFloat64 返回 [0, 1) 区间的安全随机数。
// crypto/rand 读取失败时返回 0（无抖动，安全默认值）。
func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) * floatScale
}
