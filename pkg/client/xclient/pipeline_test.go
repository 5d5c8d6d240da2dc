package xclient

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/finkit/pkg/resilience/xretry"
)

func testRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "https://media.example.com/resource", nil)
	require.NoError(t, err)
	return req
}

func respWithStatus(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    &http.Request{URL: &url.URL{Host: "media.example.com", Path: "/resource"}},
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) Stage {
		return func(next Dispatch) Dispatch {
			return func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next(req)
			}
		}
	}
	base := func(req *http.Request) (*http.Response, error) {
		order = append(order, "base")
		return respWithStatus(http.StatusOK), nil
	}

	_, err := chain(base, mk("outer"), mk("inner"))(testRequest(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "base"}, order)
}

func TestStatusStage(t *testing.T) {
	ok := statusStage(func(req *http.Request) (*http.Response, error) {
		return respWithStatus(http.StatusNoContent), nil
	})
	resp, err := ok(testRequest(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	bad := statusStage(func(req *http.Request) (*http.Response, error) {
		return respWithStatus(http.StatusBadGateway), nil
	})
	_, err = bad(testRequest(t))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, http.StatusBadGateway, apiErr.HTTPStatus())
	assert.Equal(t, "media.example.com", apiErr.Host)
}

func TestBreakerStageOpensAfterFailures(t *testing.T) {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name: "test",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
		Timeout:      time.Minute,
		IsSuccessful: breakerIsSuccessful,
	})

	var dialed int
	failing := chain(func(req *http.Request) (*http.Response, error) {
		dialed++
		return nil, errors.New("connection refused")
	}, breakerStage(cb), statusStage)

	for range 2 {
		_, err := failing(testRequest(t))
		require.Error(t, err)
	}

	// 熔断已打开：快速失败且不触达传输层，拒绝不可重试。
	_, err := failing(testRequest(t))
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, xretry.IsRecoverable(err))
	assert.Equal(t, 2, dialed)
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name: "test",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
		IsSuccessful: breakerIsSuccessful,
	})

	notFound := chain(func(req *http.Request) (*http.Response, error) {
		return respWithStatus(http.StatusNotFound), nil
	}, breakerStage(cb), statusStage)

	for range 5 {
		_, err := notFound(testRequest(t))
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
}

func TestRetryStageReplaysBody(t *testing.T) {
	var bodies []string
	var calls int
	base := func(req *http.Request) (*http.Response, error) {
		calls++
		raw, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(raw))
		if calls == 1 {
			return respWithStatus(http.StatusServiceUnavailable), nil
		}
		return respWithStatus(http.StatusOK), nil
	}

	req, err := http.NewRequest(http.MethodPost, "https://media.example.com/resource", strings.NewReader("payload"))
	require.NoError(t, err)

	d := chain(base, retryStage(fastRetryer(3)), statusStage)
	resp, err := d(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"payload", "payload"}, bodies)
}

func TestRetryStageSkipsNonReplayableBody(t *testing.T) {
	var calls int
	base := func(req *http.Request) (*http.Response, error) {
		calls++
		return respWithStatus(http.StatusServiceUnavailable), nil
	}

	req, err := http.NewRequest(http.MethodPost, "https://media.example.com/resource", nil)
	require.NoError(t, err)
	req.Body = io.NopCloser(strings.NewReader("stream"))
	req.GetBody = nil

	d := chain(base, retryStage(fastRetryer(3)), statusStage)
	_, err = d(req)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
