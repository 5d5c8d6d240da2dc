package xlog

import (
	"log/slog"
	"strings"
	"time"
)

// 常用字段名，保持跨组件一致。
const (
	KeyError      = "error"
	KeyDuration   = "duration"
	KeyServer     = "server"
	KeyHost       = "host"
	KeyAttempts   = "attempts"
	KeyStatusCode = "status_code"
	KeyComponent  = "component"
	KeyOperation  = "operation"
)

// redactedValue 凭据字段的统一掩码。
const redactedValue = "[REDACTED]"

// credentialKeys 视为凭据的字段名（小写比较）。
var credentialKeys = map[string]struct{}{
	"token":         {},
	"access_token":  {},
	"accesstoken":   {},
	"password":      {},
	"pw":            {},
	"secret":        {},
	"credential":    {},
	"authorization": {},
}

// redactAttr 把凭据字段的取值替换为掩码，构建器默认挂载，作为
// 组件侧"不记录 Token"约定之外的兜底。
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if _, ok := credentialKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redactedValue)
	}
	return a
}

// Err 错误属性，err 为 nil 时返回会被忽略的空属性。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 耗时属性。
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Server 服务器基础 URL 属性。
func Server(url string) slog.Attr {
	return slog.String(KeyServer, url)
}

// Host 主机名属性。
func Host(h string) slog.Attr {
	return slog.String(KeyHost, h)
}

// Attempts 尝试次数属性。
func Attempts(n int) slog.Attr {
	return slog.Int(KeyAttempts, n)
}

// StatusCode HTTP 状态码属性。
func StatusCode(code int) slog.Attr {
	return slog.Int(KeyStatusCode, code)
}

// Component 组件名属性。
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 操作名属性。
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}
