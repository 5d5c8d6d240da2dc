package xlog

import (
	"context"
	"log/slog"

	"github.com/omeyang/finkit/pkg/observability/xsampling"
)

// samplingHandler 对低级别日志按策略采样的 slog.Handler 包装。
//
// 级别不高于 maxLevel 的记录先经采样器裁决，采样 key 为消息文本，
// 配合 xsampling.KeyBasedSampler 可以让同一类消息的去留保持一致。
// 高于 maxLevel 的记录原样通过，告警与错误不会被采样丢弃。
type samplingHandler struct {
	inner    slog.Handler
	sampler  xsampling.Sampler
	maxLevel slog.Level
}

var _ slog.Handler = (*samplingHandler)(nil)

func (h *samplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *samplingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level <= h.maxLevel && !h.sampler.ShouldSample(r.Message) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *samplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &samplingHandler{
		inner:    h.inner.WithAttrs(attrs),
		sampler:  h.sampler,
		maxLevel: h.maxLevel,
	}
}

func (h *samplingHandler) WithGroup(name string) slog.Handler {
	return &samplingHandler{
		inner:    h.inner.WithGroup(name),
		sampler:  h.sampler,
		maxLevel: h.maxLevel,
	}
}
