package xsession

import "errors"

var (
	// ErrNilContext 上下文为空。
	ErrNilContext = errors.New("xsession: nil context")

	// ErrNilRefresher 未提供换取 Token 的实现。
	ErrNilRefresher = errors.New("xsession: nil refresher")

	// ErrAuthExpired 会话已失效且刷新失败，需要重新登录。
	ErrAuthExpired = errors.New("xsession: auth expired, re-login required")

	// ErrLoggedOut 会话已显式登出。
	ErrLoggedOut = errors.New("xsession: session logged out")

	// ErrRefreshCancelled 在途刷新被登出取消。
	ErrRefreshCancelled = errors.New("xsession: refresh cancelled")

	// ErrEmptyToken 换取响应未携带 Token。
	ErrEmptyToken = errors.New("xsession: refresher returned empty token")
)
