package xclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/finkit/pkg/discovery/xdiscover"
	"github.com/omeyang/finkit/pkg/observability/xmetrics"
	"github.com/omeyang/finkit/pkg/resilience/xretry"
	"github.com/omeyang/finkit/pkg/security/xpin"
	"github.com/omeyang/finkit/pkg/session/xsession"
	"github.com/omeyang/finkit/pkg/storage/xvault"
)

const (
	// headerToken 承载访问 Token 的请求头。
	headerToken = "X-Emby-Token"
	// headerAuthorization 承载客户端设备标识的请求头。
	headerAuthorization = "X-Emby-Authorization"

	// authenticatePath 用户名密码换取 Token 的端点。
	authenticatePath = "/Users/AuthenticateByName"

	defaultRequestTimeout = 30 * time.Second
	defaultVersion        = "dev"
)

// Client 单服务器认证客户端。零值不可用，经 New 创建，Login 或
// Resume 建立会话后才能 Execute。
type Client struct {
	logger   *slog.Logger
	store    xvault.Store
	trust    *xpin.TrustStore
	retryer  *xretry.Retryer
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	observer xmetrics.Observer

	transport      http.RoundTripper
	requestTimeout time.Duration
	cacheSize      int
	cacheTTL       time.Duration
	version        string
	revokePins     bool

	discoverer *xdiscover.Discoverer

	sessionOpts []xsession.Option

	mu       sync.Mutex
	baseURL  string
	host     string
	device   *DeviceInfo
	session  *xsession.Manager
	cache    *clientCache
	username string
	password string

	closed atomic.Bool
}

// ClientOption 配置 Client。
type ClientOption func(*Client)

// WithLogger 指定日志器，默认丢弃。Token 与密码不会被写入日志。
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStore 指定加密持久化存储，承载会话、设备标识与证书固定。
func WithStore(s xvault.Store) ClientOption {
	return func(c *Client) { c.store = s }
}

// WithTrustStore 启用 TOFU 证书固定，所有 HTTPS 握手经其校验。
func WithTrustStore(ts *xpin.TrustStore) ClientOption {
	return func(c *Client) { c.trust = ts }
}

// WithRetryer 指定重试器，默认 3 次尝试加指数退避。
func WithRetryer(r *xretry.Retryer) ClientOption {
	return func(c *Client) {
		if r != nil {
			c.retryer = r
		}
	}
}

// WithBreaker 启用熔断，settings 的 IsSuccessful 为空时套用默认
// 判定（网络级失败与 5xx 计为失败）。
func WithBreaker(settings gobreaker.Settings) ClientOption {
	return func(c *Client) {
		if settings.IsSuccessful == nil {
			settings.IsSuccessful = breakerIsSuccessful
		}
		c.breaker = gobreaker.NewCircuitBreaker[*http.Response](settings)
	}
}

// WithObserver 指定观测后端，默认不观测。
func WithObserver(obs xmetrics.Observer) ClientOption {
	return func(c *Client) { c.observer = obs }
}

// WithDiscoverer 指定端点发现器，默认按 Client 的传输构建。
func WithDiscoverer(d *xdiscover.Discoverer) ClientOption {
	return func(c *Client) { c.discoverer = d }
}

// WithTransport 覆盖底层传输。指定后 TOFU 固定不再自动挂载，
// 一般仅测试使用。
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		if rt != nil {
			c.transport = rt
		}
	}
}

// WithRequestTimeout 普通请求超时，独立于探测与刷新超时，默认 30s。
func WithRequestTimeout(t time.Duration) ClientOption {
	return func(c *Client) {
		if t > 0 {
			c.requestTimeout = t
		}
	}
}

// WithCache 客户端句柄缓存的容量与条目兜底过期时间。
func WithCache(size int, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

// WithVersion 上报给服务器的客户端版本号。
func WithVersion(v string) ClientOption {
	return func(c *Client) {
		if v != "" {
			c.version = v
		}
	}
}

// WithSessionOptions 透传给会话管理器的选项（主动刷新比例、
// 刷新超时等）。
func WithSessionOptions(opts ...xsession.Option) ClientOption {
	return func(c *Client) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

// WithLogoutRevokingPins 登出时一并吊销该服务器的证书固定，
// 默认保留。
func WithLogoutRevokingPins(revoke bool) ClientOption {
	return func(c *Client) { c.revokePins = revoke }
}

// New 创建客户端。
func New(opts ...ClientOption) (*Client, error) {
	c := &Client{
		logger:         slog.New(slog.DiscardHandler),
		retryer:        xretry.NewRetryer(),
		requestTimeout: defaultRequestTimeout,
		cacheSize:      defaultCacheSize,
		cacheTTL:       defaultCacheTTL,
		version:        defaultVersion,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		if c.trust != nil {
			c.transport = c.trust.Transport()
		} else {
			c.transport = http.DefaultTransport.(*http.Transport).Clone()
		}
	}
	if c.discoverer == nil {
		c.discoverer = xdiscover.NewDiscoverer(
			xdiscover.WithHTTPClient(&http.Client{Transport: c.transport}),
			xdiscover.WithLogger(c.logger),
		)
	}
	c.cache = newClientCache(c.cacheSize, c.cacheTTL, func() *http.Client {
		return &http.Client{Transport: c.transport, Timeout: c.requestTimeout}
	})
	return c, nil
}

// authResponse 换取 Token 端点的响应。
type authResponse struct {
	AccessToken string `json:"AccessToken"`
	ServerID    string `json:"ServerId"`
	User        struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
	} `json:"User"`
	// ValidityHint 服务器声明的 Token 名义有效期（秒），0 表示未声明。
	ValidityHint int64 `json:"ValidityHint"`
}

// Login 发现端点、换取 Token 并建立会话。返回会话快照。
func (c *Client) Login(ctx context.Context, address, username, password string) (*xsession.Session, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	ctx, span := xmetrics.Start(ctx, c.observer, xmetrics.SpanOptions{
		Component: "xclient",
		Operation: "login",
		Kind:      xmetrics.KindClient,
	})
	sess, err := c.login(ctx, address, username, password)
	span.End(xmetrics.Result{Err: err})
	return sess, err
}

func (c *Client) login(ctx context.Context, address, username, password string) (*xsession.Session, error) {
	res, err := c.discoverer.Discover(ctx, address)
	if err != nil {
		return nil, err
	}

	device, err := defaultDeviceInfo(c.store, c.version)
	if err != nil {
		return nil, err
	}

	tok, err := c.authenticate(ctx, res.BaseURL, device, username, password)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// 重新登录时丢弃旧会话。
	if c.session != nil {
		old := c.session
		c.mu.Unlock()
		old.Logout(ctx) //nolint:errcheck
		c.mu.Lock()
	}

	c.baseURL = res.BaseURL
	c.host = hostOf(res.BaseURL)
	c.device = device
	c.username = username
	c.password = password
	c.cache.purge()

	mgr, err := c.newSessionManager(res.BaseURL)
	if err != nil {
		return nil, err
	}
	if err := mgr.Install(tok); err != nil {
		return nil, err
	}
	c.session = mgr

	c.logger.Info("login succeeded",
		slog.String("server", res.BaseURL),
		slog.String("server_id", res.Identity.ID),
		slog.String("user", tok.UserID))
	snap := mgr.Snapshot()
	return &snap, nil
}

// Resume 针对已知基础 URL 从持久化存储恢复会话，免重新输入凭据。
// 恢复后的 Token 一旦失效仍需重新 Login（密码不落盘）。
func (c *Client) Resume(ctx context.Context, baseURL string) error {
	if ctx == nil {
		return ErrNilContext
	}
	if c.closed.Load() {
		return ErrClosed
	}

	device, err := defaultDeviceInfo(c.store, c.version)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = baseURL
	c.host = hostOf(baseURL)
	c.device = device

	mgr, err := c.newSessionManager(baseURL)
	if err != nil {
		return err
	}
	if err := mgr.Resume(); err != nil {
		return err
	}
	c.session = mgr
	return nil
}

// newSessionManager 必须在持有 c.mu 时调用。
func (c *Client) newSessionManager(baseURL string) (*xsession.Manager, error) {
	opts := []xsession.Option{
		xsession.WithLogger(c.logger),
		xsession.WithTokenChangedHook(func(oldToken, _ string) {
			c.cache.invalidate(baseURL, oldToken)
		}),
		xsession.WithLogoutHook(func() {
			c.cache.purge()
		}),
	}
	if c.store != nil {
		opts = append(opts, xsession.WithStore(c.store))
	}
	opts = append(opts, c.sessionOpts...)
	return xsession.NewManager(baseURL, xsession.RefresherFunc(c.refreshToken), opts...)
}

// refreshToken 用留存的登录凭据重新换取 Token，是单飞刷新的
// 网络调用本体。
func (c *Client) refreshToken(ctx context.Context) (*xsession.Token, error) {
	c.mu.Lock()
	baseURL, device := c.baseURL, c.device
	username, password := c.username, c.password
	c.mu.Unlock()

	if username == "" {
		// Resume 恢复的会话没有凭据，Token 失效只能重新登录。
		return nil, ErrNotLoggedIn
	}
	return c.authenticate(ctx, baseURL, device, username, password)
}

// authenticate 调用换取 Token 端点。
func (c *Client) authenticate(ctx context.Context, baseURL string, device *DeviceInfo, username, password string) (*xsession.Token, error) {
	payload, err := json.Marshal(map[string]string{
		"Username": username,
		"Pw":       password,
	})
	if err != nil {
		return nil, fmt.Errorf("xclient: marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+authenticatePath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerAuthorization, device.authorizationHeader())

	httpc := &http.Client{Transport: c.transport, Timeout: c.requestTimeout}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck
		return nil, ErrInvalidCredentials
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck
		return nil, &APIError{
			Host:       req.URL.Host,
			Method:     req.Method,
			Path:       req.URL.Path,
			StatusCode: resp.StatusCode,
		}
	}

	var ar authResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ar); err != nil {
		return nil, fmt.Errorf("xclient: decode auth response: %w", err)
	}
	if ar.AccessToken == "" {
		return nil, errors.New("xclient: auth response missing access token")
	}
	return &xsession.Token{
		AccessToken:    ar.AccessToken,
		UserID:         ar.User.ID,
		ValidityWindow: time.Duration(ar.ValidityHint) * time.Second,
	}, nil
}

// NewRequest 构造相对当前服务器基础 URL 的请求。
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	c.mu.Lock()
	baseURL := c.baseURL
	c.mu.Unlock()
	if baseURL == "" {
		return nil, ErrNotLoggedIn
	}
	return http.NewRequestWithContext(ctx, method, baseURL+path, body)
}

// Execute 经管道分发一个认证请求。失败以 *RequestError 浮出，
// 携带主机、尝试次数与最后状态码。
func (c *Client) Execute(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	c.mu.Lock()
	session := c.session
	baseURL, host := c.baseURL, c.host
	device := c.device
	c.mu.Unlock()
	if session == nil {
		return nil, ErrNotLoggedIn
	}

	if !req.URL.IsAbs() {
		base, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("xclient: parse base url: %w", err)
		}
		req.URL = base.ResolveReference(req.URL)
		req.Host = ""
	}

	var attempts atomic.Int32
	base := func(r *http.Request) (*http.Response, error) {
		attempts.Add(1)
		if device != nil {
			r.Header.Set(headerAuthorization, device.authorizationHeader())
		}
		httpc := c.cache.get(baseURL, r.Header.Get(headerToken))
		return httpc.Do(r)
	}

	stages := []Stage{c.authStage(session)}
	if c.breaker != nil {
		stages = append(stages, retryStage(c.retryer), breakerStage(c.breaker), statusStage)
	} else {
		stages = append(stages, retryStage(c.retryer), statusStage)
	}

	spanCtx, span := xmetrics.Start(req.Context(), c.observer, xmetrics.SpanOptions{
		Component: "xclient",
		Operation: "execute",
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String("host", host),
			xmetrics.String("method", req.Method),
		},
	})
	req = req.WithContext(spanCtx)

	resp, err := chain(base, stages...)(req)
	if err != nil {
		status := 0
		var sc xretry.StatusCoder
		if errors.As(err, &sc) {
			status = sc.HTTPStatus()
		}
		reqErr := &RequestError{
			Host:       host,
			Attempts:   int(attempts.Load()),
			StatusCode: status,
			Err:        err,
		}
		span.End(xmetrics.Result{Err: reqErr, Attrs: []xmetrics.Attr{
			xmetrics.Int("attempts", reqErr.Attempts),
			xmetrics.Int("status_code", status),
		}})
		return nil, reqErr
	}
	span.End(xmetrics.Result{Attrs: []xmetrics.Attr{
		xmetrics.Int("attempts", int(attempts.Load())),
		xmetrics.Int("status_code", resp.StatusCode),
	}})
	return resp, nil
}

// authStage 附加当前 Token 并处理 401：委托单飞刷新，成功后把原
// 请求恰好重试一次，再收到 401 即以 AuthExpired 浮出，绝不循环。
func (c *Client) authStage(session *xsession.Manager) Stage {
	return func(next Dispatch) Dispatch {
		return func(req *http.Request) (*http.Response, error) {
			tok, err := session.Token(req.Context())
			if err != nil {
				return nil, err
			}
			req.Header.Set(headerToken, tok)

			resp, err := next(req)
			if err == nil {
				return resp, nil
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
				return nil, err
			}
			if req.Body != nil && req.GetBody == nil {
				// 请求体不可重放，刷新后也无法重试。
				return nil, fmt.Errorf("%w: %w", xsession.ErrAuthExpired, err)
			}

			newTok, err := session.Refresh(req.Context(), "reactive")
			if err != nil {
				return nil, err
			}

			retryReq := req.Clone(req.Context())
			retryReq.Header.Set(headerToken, newTok)
			resp, err = next(retryReq)
			if err == nil {
				return resp, nil
			}
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
				// 新 Token 仍被拒，终止而不是循环。
				return nil, fmt.Errorf("%w: fresh token rejected", xsession.ErrAuthExpired)
			}
			return nil, err
		}
	}
}

// Logout 取消在途刷新、清空会话与客户端缓存；按配置吊销该服务器
// 的证书固定。幂等。
func (c *Client) Logout(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	c.mu.Lock()
	session := c.session
	host := c.host
	c.session = nil
	c.username = ""
	c.password = ""
	c.mu.Unlock()

	if session != nil {
		if err := session.Logout(ctx); err != nil {
			return err
		}
	}
	c.cache.purge()

	if c.revokePins && c.trust != nil && host != "" {
		if err := c.trust.Revoke(ctx, host); err != nil && !errors.Is(err, xpin.ErrNotPinned) {
			return err
		}
	}
	return nil
}

// Close 登出并释放传输资源。之后的任何调用快速失败。
func (c *Client) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	err := c.Logout(ctx)
	if t, ok := c.transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return err
}

// Session 返回当前会话快照，未登录时返回 nil。
func (c *Client) Session() *xsession.Session {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	snap := session.Snapshot()
	return &snap
}

// BaseURL 返回当前服务器基础 URL，未登录时为空串。
func (c *Client) BaseURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseURL
}

func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	return u.Host
}
