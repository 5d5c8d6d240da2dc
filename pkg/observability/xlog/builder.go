package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/omeyang/finkit/pkg/observability/xsampling"
)

// ReplaceAttrFunc 属性替换函数，用于字段重命名、脱敏、过滤。
// 返回空 Key 的 Attr 时该属性被移除。
type ReplaceAttrFunc func(groups []string, a slog.Attr) slog.Attr

// Builder 日志配置构建器。
type Builder struct {
	output       io.Writer
	level        Level
	levelVar     *slog.LevelVar
	format       string
	addSource    bool
	replaceAttr  ReplaceAttrFunc
	rotator      *lumberjack.Logger
	sampler      xsampling.Sampler
	samplerLevel Level
	err          error
}

// New 创建构建器，默认 text 格式、Info 级别、输出到 stderr。
func New() *Builder {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	return &Builder{
		output:   os.Stderr,
		level:    LevelInfo,
		levelVar: levelVar,
		format:   "text",
	}
}

// SetOutput 设置输出目标。与 SetRotation 互斥，后设置者生效。
func (b *Builder) SetOutput(w io.Writer) *Builder {
	b.output = w
	b.rotator = nil
	return b
}

// SetLevel 设置日志级别。
func (b *Builder) SetLevel(level Level) *Builder {
	b.level = level
	b.levelVar.Set(slog.Level(level))
	return b
}

// SetLevelString 通过字符串设置日志级别。
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.err = err
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 设置输出格式：text 或 json。
func (b *Builder) SetFormat(format string) *Builder {
	normalized := strings.ToLower(strings.TrimSpace(format))
	if normalized == "" {
		b.format = "text"
		return b
	}
	if normalized != "text" && normalized != "json" {
		b.err = fmt.Errorf("xlog: unknown format %q", format)
		return b
	}
	b.format = normalized
	return b
}

// SetAddSource 是否在日志中添加源码位置。
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetReplaceAttr 设置属性替换函数。与 Redact 叠加时 Redact 先执行。
func (b *Builder) SetReplaceAttr(fn ReplaceAttrFunc) *Builder {
	b.replaceAttr = fn
	return b
}

// SetSampling 对级别不高于 maxLevel 的记录按采样器裁决去留。
// 采样 key 为消息文本。更高级别的记录不受影响。
func (b *Builder) SetSampling(sampler xsampling.Sampler, maxLevel Level) *Builder {
	if sampler == nil {
		b.err = fmt.Errorf("xlog: nil sampler")
		return b
	}
	b.sampler = sampler
	b.samplerLevel = maxLevel
	return b
}

// RotationOption 配置日志轮转。
type RotationOption func(*lumberjack.Logger)

// WithMaxSizeMB 单个日志文件的大小上限（MB），默认 100。
func WithMaxSizeMB(size int) RotationOption {
	return func(l *lumberjack.Logger) { l.MaxSize = size }
}

// WithMaxBackups 保留的历史文件数，默认 3。
func WithMaxBackups(n int) RotationOption {
	return func(l *lumberjack.Logger) { l.MaxBackups = n }
}

// WithMaxAgeDays 历史文件保留天数，默认 28。
func WithMaxAgeDays(days int) RotationOption {
	return func(l *lumberjack.Logger) { l.MaxAge = days }
}

// WithCompress 是否压缩历史文件。
func WithCompress(compress bool) RotationOption {
	return func(l *lumberjack.Logger) { l.Compress = compress }
}

// SetRotation 输出到带轮转的日志文件。
func (b *Builder) SetRotation(filename string, opts ...RotationOption) *Builder {
	if strings.TrimSpace(filename) == "" {
		b.err = fmt.Errorf("xlog: empty rotation filename")
		return b
	}
	r := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
	}
	for _, opt := range opts {
		opt(r)
	}
	b.rotator = r
	b.output = r
	return b
}

// Build 构建 *slog.Logger。cleanup 关闭轮转文件句柄，非文件输出
// 时为空操作；两者都非 nil，可无条件 defer。
func (b *Builder) Build() (*slog.Logger, func() error, error) {
	if b.err != nil {
		return nil, nil, b.err
	}

	replace := composeReplaceAttr(redactAttr, b.replaceAttr)
	hopts := &slog.HandlerOptions{
		Level:       b.levelVar,
		AddSource:   b.addSource,
		ReplaceAttr: replace,
	}

	var handler slog.Handler
	if b.format == "json" {
		handler = slog.NewJSONHandler(b.output, hopts)
	} else {
		handler = slog.NewTextHandler(b.output, hopts)
	}
	if b.sampler != nil {
		handler = &samplingHandler{
			inner:    handler,
			sampler:  b.sampler,
			maxLevel: slog.Level(b.samplerLevel),
		}
	}

	cleanup := func() error { return nil }
	if b.rotator != nil {
		rotator := b.rotator
		cleanup = rotator.Close
	}
	return slog.New(handler), cleanup, nil
}

// LevelVar 返回共享的动态级别变量，运行时调整对已构建的 Logger
// 即时生效。
func (b *Builder) LevelVar() *slog.LevelVar {
	return b.levelVar
}

func composeReplaceAttr(fns ...ReplaceAttrFunc) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			a = fn(groups, a)
			if a.Key == "" {
				return a
			}
		}
		return a
	}
}
