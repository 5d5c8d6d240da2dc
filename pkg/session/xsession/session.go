package xsession

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/omeyang/finkit/pkg/storage/xvault"
)

// State 会话刷新状态。
type State int32

const (
	// StateIdle Token 可用。
	StateIdle State = iota
	// StateRefreshing 换取调用在途。
	StateRefreshing
	// StateFailed 刷新失败的终态，需重新登录。
	StateFailed
	// StateLoggedOut 显式登出后的终态。
	StateLoggedOut
)

// String 实现 fmt.Stringer。
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Token 一次登录或刷新换取到的凭据。
type Token struct {
	AccessToken    string        // 不透明访问凭据，永不写入日志
	UserID         string        // 服务器侧用户标识
	ValidityWindow time.Duration // 服务器声明的名义有效期，0 表示未知
}

// Session 当前会话的只读快照。AccessToken 不在其中，取 Token 走
// Manager.Token，避免快照被随手打进日志时泄露凭据。
type Session struct {
	ServerURL      string
	UserID         string
	TokenIssuedAt  time.Time
	ValidityWindow time.Duration
	State          State
}

// persistedSession 落盘格式，仅经 xvault 加密存储读写。
type persistedSession struct {
	ServerURL      string        `json:"server_url"`
	UserID         string        `json:"user_id"`
	AccessToken    string        `json:"access_token"`
	TokenIssuedAt  time.Time     `json:"token_issued_at"`
	ValidityWindow time.Duration `json:"validity_window"`
}

const sessionKeyPrefix = "session/"

func sessionKey(serverURL string) string {
	return sessionKeyPrefix + serverURL
}

func saveSession(store xvault.Store, p *persistedSession) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("xsession: marshal session: %w", err)
	}
	return store.Set(context.Background(), sessionKey(p.ServerURL), raw)
}

func loadSession(store xvault.Store, serverURL string) (*persistedSession, error) {
	raw, err := store.Get(context.Background(), sessionKey(serverURL))
	if err != nil {
		return nil, err
	}
	var p persistedSession
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("xsession: unmarshal session: %w", err)
	}
	return &p, nil
}
