package xpin

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/omeyang/finkit/pkg/storage/xvault"
	"github.com/omeyang/finkit/pkg/util/xkeylock"
)

// pinKeyPrefix 是 Pin 在存储中的键前缀。
const pinKeyPrefix = "pin/"

// TrustStore 管理 TOFU 证书固定。
// 必须通过 New 创建。所有方法并发安全。
type TrustStore struct {
	store  xvault.Store
	locks  *xkeylock.KeyLock
	logger *slog.Logger
	now    func() time.Time

	// 已加载 Pin 的读穿缓存。Pin 不可变，缓存无失效问题；
	// 撤销时同步清除。
	mu    sync.RWMutex
	cache map[string]*Pin
}

// Option TrustStore 配置选项。
type Option func(*TrustStore)

// WithLogger 设置日志器。nil 会被静默忽略。
func WithLogger(logger *slog.Logger) Option {
	return func(ts *TrustStore) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// WithClock 设置时间源（测试用）。nil 会被静默忽略。
func WithClock(now func() time.Time) Option {
	return func(ts *TrustStore) {
		if now != nil {
			ts.now = now
		}
	}
}

// New 创建 TrustStore。store 为必填依赖。
func New(store xvault.Store, opts ...Option) (*TrustStore, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	ts := &TrustStore{
		store:  store,
		locks:  xkeylock.New(),
		logger: slog.Default(),
		now:    time.Now,
		cache:  make(map[string]*Pin),
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts, nil
}

// Verify 校验主机名出示的证书链。
//
// 主机名未固定时执行 TOFU：持久化叶子证书的公钥哈希并放行。
// 已固定时，链中任意证书的公钥哈希与 Pin 匹配即放行，
// 否则返回 *PinMismatchError（致命，连接必须被拒绝）。
// 存储读写失败时拒绝连接（fail closed）。
func (ts *TrustStore) Verify(hostname string, chain []*x509.Certificate) error {
	hostname = normalizeHost(hostname)
	if hostname == "" {
		return ErrEmptyHostname
	}
	if len(chain) == 0 {
		return ErrEmptyChain
	}

	// 快路径：Pin 已在缓存中（绝大多数握手走这里，无锁竞争）
	if pin := ts.cached(hostname); pin != nil {
		return match(pin, chain)
	}

	// 慢路径：首次使用该主机名，按主机名串行化
	// 设计决策: TLS 回调没有 context 可传，这里使用 Background。
	// 锁持有时间仅覆盖一次存储读取和可能的一次写入。
	unlock, err := ts.locks.Lock(context.Background(), hostname)
	if err != nil {
		return err
	}
	defer unlock()

	// double-check：等锁期间其他握手可能已完成 TOFU
	if pin := ts.cached(hostname); pin != nil {
		return match(pin, chain)
	}

	pin, err := ts.loadPin(context.Background(), hostname)
	switch {
	case err == nil:
		ts.setCached(pin)
		return match(pin, chain)
	case errors.Is(err, xvault.ErrKeyNotFound):
		return ts.pinFirstUse(hostname, chain)
	default:
		return fmt.Errorf("xpin: load pin for %s: %w", hostname, err)
	}
}

// pinFirstUse 执行 TOFU：固定叶子证书公钥并持久化。
func (ts *TrustStore) pinFirstUse(hostname string, chain []*x509.Certificate) error {
	pin := &Pin{
		Hostname:    hostname,
		SPKISHA256:  SPKIHash(chain[0]),
		FirstSeenAt: ts.now(),
	}

	data, err := json.Marshal(pin)
	if err != nil {
		return fmt.Errorf("xpin: marshal pin: %w", err)
	}
	if err := ts.store.Set(context.Background(), pinKeyPrefix+hostname, data); err != nil {
		// 持久化失败则拒绝连接：不能出现"本次放行但未记住"的状态
		return fmt.Errorf("xpin: persist pin for %s: %w", hostname, err)
	}
	ts.setCached(pin)

	ts.logger.Info("xpin: pinned new host",
		slog.String("hostname", hostname),
		slog.String("spki_sha256", abbrevHash(pin.SPKISHA256)),
	)
	return nil
}

// match 比对证书链与 Pin。
func match(pin *Pin, chain []*x509.Certificate) error {
	presented := chainHashes(chain)
	for _, h := range presented {
		if h == pin.SPKISHA256 {
			return nil
		}
	}
	return &PinMismatchError{
		Hostname:        pin.Hostname,
		PinnedHash:      pin.SPKISHA256,
		PresentedHashes: presented,
	}
}

// State 返回主机名的信任状态。
func (ts *TrustStore) State(ctx context.Context, hostname string) (State, error) {
	hostname = normalizeHost(hostname)
	if hostname == "" {
		return StateUnknown, ErrEmptyHostname
	}
	if ts.cached(hostname) != nil {
		return StatePinned, nil
	}
	_, err := ts.loadPin(ctx, hostname)
	switch {
	case err == nil:
		return StatePinned, nil
	case errors.Is(err, xvault.ErrKeyNotFound):
		return StateUnknown, nil
	default:
		return StateUnknown, err
	}
}

// Pins 返回所有已固定的记录。
func (ts *TrustStore) Pins(ctx context.Context) ([]Pin, error) {
	keys, err := ts.store.Keys(ctx, pinKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("xpin: list pins: %w", err)
	}

	pins := make([]Pin, 0, len(keys))
	for _, key := range keys {
		data, err := ts.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, xvault.ErrKeyNotFound) {
				continue // 并发撤销，跳过
			}
			return nil, fmt.Errorf("xpin: read pin %s: %w", key, err)
		}
		var pin Pin
		if err := json.Unmarshal(data, &pin); err != nil {
			return nil, fmt.Errorf("xpin: decode pin %s: %w", key, err)
		}
		pins = append(pins, pin)
	}
	return pins, nil
}

// Revoke 撤销主机名的 Pin（用户显式操作）。
// 撤销后主机名回到 Unknown，下次成功握手将重新 TOFU。
// 目标没有 Pin 时返回 ErrNotPinned。
func (ts *TrustStore) Revoke(ctx context.Context, hostname string) error {
	hostname = normalizeHost(hostname)
	if hostname == "" {
		return ErrEmptyHostname
	}

	unlock, err := ts.locks.Lock(ctx, hostname)
	if err != nil {
		return err
	}
	defer unlock()

	state, err := ts.State(ctx, hostname)
	if err != nil {
		return err
	}
	if state != StatePinned {
		return ErrNotPinned
	}

	if err := ts.store.Delete(ctx, pinKeyPrefix+hostname); err != nil {
		return fmt.Errorf("xpin: delete pin for %s: %w", hostname, err)
	}
	ts.dropCached(hostname)

	ts.logger.Info("xpin: pin revoked", slog.String("hostname", hostname))
	return nil
}

// RevokeAll 撤销全部 Pin，返回撤销数量。
// 用于登出时按配置清除服务器信任状态。
func (ts *TrustStore) RevokeAll(ctx context.Context) (int, error) {
	keys, err := ts.store.Keys(ctx, pinKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("xpin: list pins: %w", err)
	}

	n := 0
	for _, key := range keys {
		if err := ts.store.Delete(ctx, key); err != nil {
			return n, fmt.Errorf("xpin: delete %s: %w", key, err)
		}
		ts.dropCached(strings.TrimPrefix(key, pinKeyPrefix))
		n++
	}
	return n, nil
}

// loadPin 从存储读取 Pin。
func (ts *TrustStore) loadPin(ctx context.Context, hostname string) (*Pin, error) {
	data, err := ts.store.Get(ctx, pinKeyPrefix+hostname)
	if err != nil {
		return nil, err
	}
	var pin Pin
	if err := json.Unmarshal(data, &pin); err != nil {
		return nil, fmt.Errorf("xpin: decode pin: %w", err)
	}
	return &pin, nil
}

func (ts *TrustStore) cached(hostname string) *Pin {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.cache[hostname]
}

func (ts *TrustStore) setCached(pin *Pin) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.cache[pin.Hostname] = pin
}

func (ts *TrustStore) dropCached(hostname string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.cache, hostname)
}

// normalizeHost 统一主机名大小写并去除端口。
func normalizeHost(hostname string) string {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	// host:port 形式去掉端口；IPv6 字面量保留方括号内内容
	if i := strings.LastIndex(hostname, ":"); i >= 0 && !strings.Contains(hostname[i:], "]") {
		if !strings.Contains(hostname[:i], ":") || strings.HasPrefix(hostname, "[") {
			hostname = hostname[:i]
		}
	}
	return strings.Trim(hostname, "[]")
}
