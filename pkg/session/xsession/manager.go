package xsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omeyang/finkit/pkg/storage/xvault"
)

// Refresher 向服务器换取新 Token。由调用方实现（通常是持有登录
// 凭据的客户端层），Manager 只负责何时换、谁在等。
type Refresher interface {
	RefreshToken(ctx context.Context) (*Token, error)
}

// RefresherFunc 函数适配器。
type RefresherFunc func(ctx context.Context) (*Token, error)

// RefreshToken 实现 Refresher。
func (f RefresherFunc) RefreshToken(ctx context.Context) (*Token, error) { return f(ctx) }

var _ Refresher = (RefresherFunc)(nil)

const (
	defaultLeadFraction   = 0.8
	defaultRefreshTimeout = 30 * time.Second
)

// pendingRefresh 在途刷新的共享句柄。token/err 在 close(done) 之前
// 写入，等待者读取无需加锁。waiters 记录挂在本次刷新上的调用方数。
type pendingRefresh struct {
	done    chan struct{}
	cancel  context.CancelFunc
	waiters atomic.Int32
	token   string
	err     error
}

func (p *pendingRefresh) wait(ctx context.Context) (string, error) {
	p.waiters.Add(1)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.done:
		return p.token, p.err
	}
}

// Manager 单服务器会话管理器。
//
// 设计决策: 单飞用守护式 pending 槽而非 singleflight.Group，因为
// 登出要能取消在途刷新、失败要落入显式 Failed 终态，这两者都
// 需要对在途操作句柄的直接控制。
type Manager struct {
	serverURL string
	refresher Refresher

	mu       sync.Mutex
	userID   string
	token    string
	issuedAt time.Time
	validity time.Duration
	state    State
	pending  *pendingRefresh
	timer    *time.Timer

	wg sync.WaitGroup

	store          xvault.Store
	leadFraction   float64
	refreshTimeout time.Duration
	onTokenChanged func(oldToken, newToken string)
	onLogout       func()
	logger         *slog.Logger
	now            func() time.Time
}

// Option 配置 Manager。
type Option func(*Manager)

// WithStore 指定加密持久化存储，会话在其中以 "session/<serverURL>"
// 为键存取。
func WithStore(s xvault.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithLeadFraction 主动刷新触发点占名义有效期的比例，默认 0.8。
// 传入 0 关闭主动刷新。
func WithLeadFraction(f float64) Option {
	return func(m *Manager) {
		if f >= 0 && f <= 1 {
			m.leadFraction = f
		}
	}
}

// WithRefreshTimeout 单次换取调用的超时，独立于普通请求超时，默认 30s。
func WithRefreshTimeout(t time.Duration) Option {
	return func(m *Manager) {
		if t > 0 {
			m.refreshTimeout = t
		}
	}
}

// WithTokenChangedHook 注册 Token 更替回调，在任何等待者拿到新
// Token 之前调用，供客户端缓存按旧 Token 失效对应条目。
func WithTokenChangedHook(fn func(oldToken, newToken string)) Option {
	return func(m *Manager) { m.onTokenChanged = fn }
}

// WithLogoutHook 注册登出回调，用于清空客户端缓存等收尾。
func WithLogoutHook(fn func()) Option {
	return func(m *Manager) { m.onLogout = fn }
}

// WithLogger 指定日志器，默认丢弃。Token 取值不会被写入日志。
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock 注入时钟，测试用。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager 创建会话管理器。初始状态为 LoggedOut，登录成功后经
// Install 装入 Token，或经 Resume 从持久化存储恢复。
func NewManager(serverURL string, refresher Refresher, opts ...Option) (*Manager, error) {
	if serverURL == "" {
		return nil, errors.New("xsession: empty server url")
	}
	if refresher == nil {
		return nil, ErrNilRefresher
	}
	m := &Manager{
		serverURL:      serverURL,
		refresher:      refresher,
		state:          StateLoggedOut,
		leadFraction:   defaultLeadFraction,
		refreshTimeout: defaultRefreshTimeout,
		logger:         slog.New(slog.DiscardHandler),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Install 装入登录换取的 Token，复位状态机到 Idle 并安排主动刷新。
// 若有在途刷新则取消之（重新登录接管会话）。
func (m *Manager) Install(tok *Token) error {
	if tok == nil || tok.AccessToken == "" {
		return ErrEmptyToken
	}

	m.mu.Lock()
	p := m.pending
	m.pending = nil
	old := m.token
	m.token = tok.AccessToken
	if tok.UserID != "" {
		m.userID = tok.UserID
	}
	if tok.ValidityWindow > 0 {
		m.validity = tok.ValidityWindow
	}
	m.issuedAt = m.now()
	m.state = StateIdle
	m.persistLocked()
	m.scheduleProactiveLocked()
	hook := m.onTokenChanged
	m.mu.Unlock()

	if p != nil {
		p.cancel()
	}
	if hook != nil && old != "" && old != tok.AccessToken {
		hook(old, tok.AccessToken)
	}
	m.logger.Info("session installed", slog.String("server", m.serverURL))
	return nil
}

// Resume 从持久化存储恢复上次会话。没有存档时返回
// xvault.ErrKeyNotFound。
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return errors.New("xsession: no store configured")
	}
	p, err := loadSession(m.store, m.serverURL)
	if err != nil {
		return err
	}
	if p.AccessToken == "" {
		return ErrEmptyToken
	}
	m.token = p.AccessToken
	m.userID = p.UserID
	m.issuedAt = p.TokenIssuedAt
	m.validity = p.ValidityWindow
	m.state = StateIdle
	m.scheduleProactiveLocked()
	m.logger.Info("session resumed", slog.String("server", m.serverURL))
	return nil
}

// Token 返回当前可附加到请求的访问 Token。Failed 状态快速失败，
// 不触发刷新（由调用方决定何时重新登录）。
func (m *Manager) Token(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateLoggedOut:
		return "", ErrLoggedOut
	case StateFailed:
		return "", ErrAuthExpired
	default:
		return m.token, nil
	}
}

// Refresh 触发或汇入一次单飞刷新，返回刷新后的 Token。
// 状态为 Refreshing 时直接挂到在途操作上，不产生新的网络调用；
// 调用方上下文取消只影响该调用方的等待，不中断在途刷新。
func (m *Manager) Refresh(ctx context.Context, reason string) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}

	m.mu.Lock()
	switch m.state {
	case StateLoggedOut:
		m.mu.Unlock()
		return "", ErrLoggedOut
	case StateFailed:
		m.mu.Unlock()
		return "", ErrAuthExpired
	case StateRefreshing:
		p := m.pending
		m.mu.Unlock()
		return p.wait(ctx)
	}

	// Idle → Refreshing，安装 pending 槽。刷新自带独立超时，
	// 不继承任何单个调用方的上下文。
	rctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	p := &pendingRefresh{done: make(chan struct{}), cancel: cancel}
	m.pending = p
	m.state = StateRefreshing
	m.stopTimerLocked()
	m.logger.Info("session refresh started",
		slog.String("server", m.serverURL),
		slog.String("reason", reason))
	m.wg.Add(1)
	go m.doRefresh(rctx, p)
	m.mu.Unlock()

	return p.wait(ctx)
}

func (m *Manager) doRefresh(ctx context.Context, p *pendingRefresh) {
	defer m.wg.Done()
	defer p.cancel()

	tok, err := m.refresher.RefreshToken(ctx)
	if err == nil && (tok == nil || tok.AccessToken == "") {
		err = ErrEmptyToken
	}

	m.mu.Lock()
	if m.pending != p {
		// 登出或重新登录已接管会话，结果作废，不触碰状态。
		m.mu.Unlock()
		p.err = ErrRefreshCancelled
		close(p.done)
		return
	}
	m.pending = nil

	if err != nil {
		m.state = StateFailed
		m.logger.Warn("session refresh failed",
			slog.String("server", m.serverURL),
			slog.Any("error", err))
		m.mu.Unlock()
		p.err = fmt.Errorf("%w: %v", ErrAuthExpired, err)
		close(p.done)
		return
	}

	old := m.token
	m.token = tok.AccessToken
	if tok.UserID != "" {
		m.userID = tok.UserID
	}
	if tok.ValidityWindow > 0 {
		m.validity = tok.ValidityWindow
	}
	m.issuedAt = m.now()
	m.state = StateIdle
	m.persistLocked()
	m.scheduleProactiveLocked()
	hook := m.onTokenChanged
	m.logger.Info("session refresh succeeded", slog.String("server", m.serverURL))
	m.mu.Unlock()

	// 缓存失效先于任何等待者拿到新 Token。
	if hook != nil && old != tok.AccessToken {
		hook(old, tok.AccessToken)
	}
	p.token = tok.AccessToken
	close(p.done)
}

// Logout 取消在途刷新，清空会话与持久化存档，进入 LoggedOut 终态。
// 幂等。
func (m *Manager) Logout(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	m.mu.Lock()
	if m.state == StateLoggedOut {
		m.mu.Unlock()
		return nil
	}
	p := m.pending
	m.pending = nil
	m.state = StateLoggedOut
	m.token = ""
	m.userID = ""
	m.issuedAt = time.Time{}
	m.stopTimerLocked()
	store := m.store
	hook := m.onLogout
	m.mu.Unlock()

	if p != nil {
		p.cancel()
	}
	m.wg.Wait()

	if store != nil {
		if err := store.Delete(context.Background(), sessionKey(m.serverURL)); err != nil && !errors.Is(err, xvault.ErrKeyNotFound) {
			m.logger.Warn("failed to delete persisted session",
				slog.String("server", m.serverURL),
				slog.Any("error", err))
		}
	}
	if hook != nil {
		hook()
	}
	m.logger.Info("session logged out", slog.String("server", m.serverURL))
	return nil
}

// Snapshot 返回会话的只读快照，不含 Token 取值。
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Session{
		ServerURL:      m.serverURL,
		UserID:         m.userID,
		TokenIssuedAt:  m.issuedAt,
		ValidityWindow: m.validity,
		State:          m.state,
	}
}

// State 返回当前刷新状态。
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}
	err := saveSession(m.store, &persistedSession{
		ServerURL:      m.serverURL,
		UserID:         m.userID,
		AccessToken:    m.token,
		TokenIssuedAt:  m.issuedAt,
		ValidityWindow: m.validity,
	})
	if err != nil {
		// 持久化失败不影响内存会话，重启后重新登录即可。
		m.logger.Warn("failed to persist session",
			slog.String("server", m.serverURL),
			slog.Any("error", err))
	}
}

func (m *Manager) scheduleProactiveLocked() {
	m.stopTimerLocked()
	if m.validity <= 0 || m.leadFraction <= 0 {
		return
	}
	delay := time.Duration(float64(m.validity)*m.leadFraction) - m.now().Sub(m.issuedAt)
	if delay < 0 {
		delay = 0
	}
	m.timer = time.AfterFunc(delay, m.proactiveRefresh)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) proactiveRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()
	if _, err := m.Refresh(ctx, "proactive"); err != nil &&
		!errors.Is(err, ErrLoggedOut) && !errors.Is(err, ErrRefreshCancelled) {
		m.logger.Warn("proactive refresh failed",
			slog.String("server", m.serverURL),
			slog.Any("error", err))
	}
}
