package xdiscover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/finkit/pkg/resilience/xretry"
)

// ServerIdentity 标识端点返回的服务器自描述。
type ServerIdentity struct {
	ID         string `json:"Id"`
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
}

// Result 一次成功发现的结果。
type Result struct {
	BaseURL  string         // 胜出候选的基础 URL
	Identity ServerIdentity // 标识响应
	Elapsed  time.Duration  // 从发起到胜出的耗时
}

const (
	// identityPath 服务器公开标识端点。
	identityPath = "/System/Info/Public"

	defaultBatchSize         = 4
	defaultProbeTimeout      = 3 * time.Second
	defaultMeteredMultiplier = 4.0

	// maxIdentityBody 标识响应体积上限，防御异常服务器。
	maxIdentityBody = 1 << 20
)

// Discoverer 多候选端点发现器。
//
// 设计决策: 探测按批推进而非全量并发，低优先级批不会在高优先级批
// 仍有机会成功时抢先发起连接；批内首个成功者胜出并取消同批其余探测。
type Discoverer struct {
	client            *http.Client
	batchSize         int
	probeTimeout      time.Duration
	meteredMultiplier float64
	metered           func() bool
	prober            *xretry.Retryer
	logger            *slog.Logger
}

// DiscovererOption 配置 Discoverer。
type DiscovererOption func(*Discoverer)

// WithHTTPClient 指定探测用的 HTTP 客户端（TLS 钉扎等由调用方注入）。
func WithHTTPClient(c *http.Client) DiscovererOption {
	return func(d *Discoverer) {
		if c != nil {
			d.client = c
		}
	}
}

// WithBatchSize 每批并发探测的候选数，默认 4。
func WithBatchSize(n int) DiscovererOption {
	return func(d *Discoverer) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithProbeTimeout 单个探测的超时，默认 3s。
func WithProbeTimeout(t time.Duration) DiscovererOption {
	return func(d *Discoverer) {
		if t > 0 {
			d.probeTimeout = t
		}
	}
}

// WithMeteredMultiplier 计量网络下探测超时的放大倍数，默认 4。
func WithMeteredMultiplier(m float64) DiscovererOption {
	return func(d *Discoverer) {
		if m >= 1 {
			d.meteredMultiplier = m
		}
	}
}

// WithMeteredDetector 注入计量网络探测函数，返回 true 表示当前
// 处于计量网络。默认恒为 false。
func WithMeteredDetector(fn func() bool) DiscovererOption {
	return func(d *Discoverer) {
		if fn != nil {
			d.metered = fn
		}
	}
}

// WithLogger 指定日志器，默认丢弃。
func WithLogger(l *slog.Logger) DiscovererOption {
	return func(d *Discoverer) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDiscoverer 创建发现器。
func NewDiscoverer(opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		client:            &http.Client{},
		batchSize:         defaultBatchSize,
		probeTimeout:      defaultProbeTimeout,
		meteredMultiplier: defaultMeteredMultiplier,
		metered:           func() bool { return false },
		// 超时类失败补一次，退避短到不拖慢批次推进
		prober: xretry.NewRetryer(
			xretry.WithMaxAttempts(2),
			xretry.WithBackoff(xretry.NewBackoff(
				xretry.WithBaseDelay(200*time.Millisecond),
				xretry.WithMaxDelay(500*time.Millisecond),
			)),
		),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover 把原始地址展开为候选并逐批探测，返回首个验证通过的端点。
func (d *Discoverer) Discover(ctx context.Context, raw string) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	candidates, err := Expand(raw)
	if err != nil {
		return nil, err
	}
	res, err := d.DiscoverCandidates(ctx, candidates)
	if err != nil {
		var de *DiscoveryError
		if errors.As(err, &de) {
			de.Address = raw
		}
		return nil, err
	}
	return res, nil
}

// DiscoverCandidates 按优先级分批探测给定候选。
func (d *Discoverer) DiscoverCandidates(ctx context.Context, candidates []Candidate) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if len(candidates) == 0 {
		return nil, ErrInvalidAddress
	}

	start := time.Now()
	var failures []ProbeFailure

	for lo := 0; lo < len(candidates); lo += d.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+d.batchSize, len(candidates))
		batch := candidates[lo:hi]

		res, fails := d.probeBatch(ctx, batch)
		failures = append(failures, fails...)
		if res != nil {
			res.Elapsed = time.Since(start)
			d.logger.Info("endpoint discovered",
				slog.String("base_url", res.BaseURL),
				slog.String("server_id", res.Identity.ID),
				slog.Duration("elapsed", res.Elapsed))
			return res, nil
		}
	}

	return nil, &DiscoveryError{Failures: failures}
}

// probeBatch 并发探测一批候选。返回首个成功结果（其余被取消）；
// 全部失败时返回逐候选失败记录。
func (d *Discoverer) probeBatch(ctx context.Context, batch []Candidate) (*Result, []ProbeFailure) {
	g, gctx := errgroup.WithContext(ctx)

	var (
		mu       sync.Mutex
		winner   *Result
		failures []ProbeFailure
	)

	for _, c := range batch {
		g.Go(func() error {
			identity, err := d.probe(gctx, c.URL)
			if err != nil {
				mu.Lock()
				failures = append(failures, ProbeFailure{URL: c.URL, Err: err})
				mu.Unlock()
				return nil // 单个失败不终止同批其他探测
			}
			mu.Lock()
			if winner == nil {
				winner = &Result{BaseURL: c.URL, Identity: *identity}
			}
			mu.Unlock()
			// 返回哨兵错误借 errgroup 取消同批其余探测。
			return errProbeWon
		})
	}

	_ = g.Wait()
	if winner != nil {
		return winner, nil
	}
	return nil, failures
}

// errProbeWon 批内胜出哨兵，仅用于触发 errgroup 的协作取消。
var errProbeWon = errors.New("xdiscover: probe won")

// probe 请求候选的标识端点，超时类失败额外重试一次。
// 连接拒绝等立即失败不重试，尽快让批次推进到下一组候选。
func (d *Discoverer) probe(ctx context.Context, baseURL string) (*ServerIdentity, error) {
	return xretry.DoWithResult(ctx, d.prober, func(c context.Context) (*ServerIdentity, error) {
		identity, err := d.probeOnce(c, baseURL)
		if err != nil && !isTimeoutError(err) {
			return nil, xretry.Unrecoverable(err)
		}
		return identity, err
	})
}

// isTimeoutError 判断探测失败是否为超时类。
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// probeOnce 单次标识请求与响应校验。
func (d *Discoverer) probeOnce(ctx context.Context, baseURL string) (*ServerIdentity, error) {
	timeout := d.probeTimeout
	if d.metered() {
		timeout = time.Duration(float64(timeout) * d.meteredMultiplier)
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, baseURL+identityPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxIdentityBody)) //nolint:errcheck
		return nil, fmt.Errorf("identity endpoint returned status %d", resp.StatusCode)
	}

	var identity ServerIdentity
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIdentityBody)).Decode(&identity); err != nil {
		return nil, fmt.Errorf("invalid identity response: %w", err)
	}
	if identity.ID == "" {
		return nil, errors.New("identity response missing server id")
	}
	return &identity, nil
}
