package xretry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"syscall"
)

// Class 表示失败类别。
// 类别决定失败是否可以通过等待重试自愈。
type Class int

const (
	// RetryIdempotent 表示可重试的瞬时失败（超时、连接失败、5xx）。
	RetryIdempotent Class = iota

	// RetryBusy 表示服务端压力信号（429/503），可重试但基础延迟更大。
	RetryBusy

	// NonRetryAuth 表示认证失败（401/403）。
	// 认证失败由上层的认证协调器处理（刷新 Token 后重放），
	// 本包的重试策略永远不会重试此类错误。
	NonRetryAuth

	// NonRetryClient 表示客户端错误（404 等）。
	// 地址或请求本身有问题，等待不会自愈。
	NonRetryClient

	// NonRetryDNS 表示 DNS 解析失败。
	// 错误的地址不会因为等待而变得可解析。
	NonRetryDNS
)

// String 返回 Class 的可读字符串表示。
func (c Class) String() string {
	switch c {
	case RetryIdempotent:
		return "retry_idempotent"
	case RetryBusy:
		return "retry_busy"
	case NonRetryAuth:
		return "non_retry_auth"
	case NonRetryClient:
		return "non_retry_client"
	case NonRetryDNS:
		return "non_retry_dns"
	default:
		return "class(" + strconv.Itoa(int(c)) + ")"
	}
}

// Retryable 判断类别是否可重试。
func (c Class) Retryable() bool {
	return c == RetryIdempotent || c == RetryBusy
}

// StatusCoder 表示携带 HTTP 状态码的错误。
// xclient 的 APIError 实现此接口，使 Classify 无需依赖上层包。
type StatusCoder interface {
	HTTPStatus() int
}

// Classification 是一次失败的分类结果。
// StatusCode 为 0 表示失败发生在传输层（无 HTTP 响应）。
type Classification struct {
	Class      Class
	StatusCode int
}

// Classify 把错误归入失败类别。
//
// 映射规则：
//   - 408/500/502/504 → RetryIdempotent
//   - 429/503 → RetryBusy
//   - 401/403 → NonRetryAuth
//   - 其余 4xx（含 404）→ NonRetryClient
//   - DNS 解析失败 → NonRetryDNS
//   - 连接失败、socket 超时、请求超时 → RetryIdempotent
//   - context.Canceled → NonRetryClient（取消不重试，由调用方短路）
//   - 未知错误 → RetryIdempotent（网络层的未知失败默认视为瞬时）
func Classify(err error) Classification {
	if err == nil {
		return Classification{Class: RetryIdempotent}
	}

	// HTTP 状态码优先：有响应说明连接和 DNS 都没问题
	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.HTTPStatus())
	}

	// 取消不属于任何可重试类别
	if errors.Is(err, context.Canceled) {
		return Classification{Class: NonRetryClient}
	}

	// DNS 解析失败
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Classification{Class: NonRetryDNS}
	}

	// 超时（请求超时、socket 超时、deadline 到期）
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return Classification{Class: RetryIdempotent}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Class: RetryIdempotent}
	}

	// 连接失败
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return Classification{Class: RetryIdempotent}
	}

	return Classification{Class: RetryIdempotent}
}

// classifyStatus 根据 HTTP 状态码分类。
func classifyStatus(status int) Classification {
	c := Classification{StatusCode: status}
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		c.Class = RetryBusy
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		c.Class = NonRetryAuth
	case status == http.StatusRequestTimeout:
		c.Class = RetryIdempotent
	case status >= 500:
		c.Class = RetryIdempotent
	case status >= 400:
		c.Class = NonRetryClient
	default:
		c.Class = RetryIdempotent
	}
	return c
}
