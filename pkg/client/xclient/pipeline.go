package xclient

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/finkit/pkg/resilience/xretry"
)

// Dispatch 把请求发往服务器并返回响应。
type Dispatch func(req *http.Request) (*http.Response, error)

// Stage 管道段：包装下一级 Dispatch，得到增强后的 Dispatch。
// 段按给定顺序由外向内组合。
type Stage func(next Dispatch) Dispatch

// chain 把各段套到基础分发上，stages[0] 最外层。
func chain(base Dispatch, stages ...Stage) Dispatch {
	d := base
	for i := len(stages) - 1; i >= 0; i-- {
		d = stages[i](d)
	}
	return d
}

// maxErrorBody 失败响应体读取上限。
const maxErrorBody = 4 << 10

// statusStage 把非 2xx 响应转成 *APIError，统一交给上层各段按
// 失败处理。失败响应体在此排空并关闭，成功响应原样放行。
func statusStage(next Dispatch) Dispatch {
	return func(req *http.Request) (*http.Response, error) {
		resp, err := next(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck
		resp.Body.Close()                                            //nolint:errcheck
		return nil, &APIError{
			Host:       req.URL.Host,
			Method:     req.Method,
			Path:       req.URL.Path,
			StatusCode: resp.StatusCode,
		}
	}
}

// retryStage 按失败分类与退避策略重试。每次尝试经 GetBody 重放
// 请求体；带体却无法重放的请求只尝试一次。
func retryStage(retryer *xretry.Retryer) Stage {
	return func(next Dispatch) Dispatch {
		return func(req *http.Request) (*http.Response, error) {
			if req.Body != nil && req.GetBody == nil {
				return next(req)
			}
			return xretry.DoWithResult(req.Context(), retryer, func(ctx context.Context) (*http.Response, error) {
				attempt := req.Clone(ctx)
				if req.GetBody != nil {
					body, err := req.GetBody()
					if err != nil {
						return nil, xretry.Unrecoverable(err)
					}
					attempt.Body = body
				}
				return next(attempt)
			})
		}
	}
}

// breakerStage 可选熔断段。打开状态下快速失败，不触达传输层。
func breakerStage(cb *gobreaker.CircuitBreaker[*http.Response]) Stage {
	return func(next Dispatch) Dispatch {
		return func(req *http.Request) (*http.Response, error) {
			resp, err := cb.Execute(func() (*http.Response, error) {
				return next(req)
			})
			if err != nil {
				if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
					// 熔断拒绝不再重试，等窗口自行恢复。
					return nil, xretry.Unrecoverable(err)
				}
				return nil, err
			}
			return resp, nil
		}
	}
}

// breakerIsSuccessful 只让网络级失败与 5xx 计入熔断统计，客户端
// 侧错误（4xx、取消）不该惩罚服务器。
func breakerIsSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < 500
	}
	return errors.Is(err, context.Canceled)
}
