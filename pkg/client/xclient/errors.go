package xclient

import (
	"errors"
	"fmt"
)

var (
	// ErrNilContext 上下文为空。
	ErrNilContext = errors.New("xclient: nil context")

	// ErrNilRequest 请求为空。
	ErrNilRequest = errors.New("xclient: nil request")

	// ErrInvalidCredentials 登录时用户名或密码被服务器拒绝。
	ErrInvalidCredentials = errors.New("xclient: invalid credentials")

	// ErrNotLoggedIn 尚未登录或已登出。
	ErrNotLoggedIn = errors.New("xclient: not logged in")

	// ErrClosed 客户端已关闭。
	ErrClosed = errors.New("xclient: client closed")
)

// APIError 服务器返回的非 2xx 响应。实现 HTTPStatus 以接入 xretry
// 的失败分类。
type APIError struct {
	Host       string // 目标主机
	Method     string
	Path       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("xclient: %s %s on %s returned status %d", e.Method, e.Path, e.Host, e.StatusCode)
}

// HTTPStatus 返回响应状态码。
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// RequestError 一次 Execute 最终失败的浮出形式，保留主机、尝试
// 次数与最后状态码供诊断。Token 取值永远不在其中。
type RequestError struct {
	Host       string
	Attempts   int
	StatusCode int // 最后一次响应状态码，无响应时为 0
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("xclient: request to %s failed after %d attempt(s), last status %d: %v",
			e.Host, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("xclient: request to %s failed after %d attempt(s): %v", e.Host, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// HTTPStatus 返回最后一次响应状态码。
func (e *RequestError) HTTPStatus() int { return e.StatusCode }
