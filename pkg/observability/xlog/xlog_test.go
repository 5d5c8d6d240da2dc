package xlog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/finkit/pkg/observability/xsampling"
)

func buildJSON(t *testing.T, b *Builder) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, cleanup, err := b.SetOutput(&buf).SetFormat("json").Build()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, cleanup()) })
	return logger, &buf
}

func TestBuildDefaults(t *testing.T) {
	logger, buf := buildJSON(t, New())
	logger.Info("hello", slog.String("component", "xclient"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "xclient", entry["component"])
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := buildJSON(t, New().SetLevel(LevelWarn))
	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestDynamicLevel(t *testing.T) {
	b := New().SetLevel(LevelInfo)
	logger, buf := buildJSON(t, b)

	logger.Debug("before")
	b.LevelVar().Set(slog.LevelDebug)
	logger.Debug("after")

	out := buf.String()
	assert.NotContains(t, out, "before")
	assert.Contains(t, out, "after")
}

func TestSetLevelString(t *testing.T) {
	_, _, err := New().SetLevelString("nonsense").Build()
	assert.Error(t, err)

	logger, buf := buildJSON(t, New().SetLevelString("debug"))
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestSetFormatValidation(t *testing.T) {
	_, _, err := New().SetFormat("xml").Build()
	assert.Error(t, err)

	// 空串回落到默认格式。
	var buf bytes.Buffer
	logger, cleanup, err := New().SetOutput(&buf).SetFormat("").Build()
	require.NoError(t, err)
	defer cleanup() //nolint:errcheck
	logger.Info("text line")
	assert.Contains(t, buf.String(), "msg=\"text line\"")
}

// 凭据字段取值必须被掩码替换，无论组件忘了什么。
func TestCredentialRedaction(t *testing.T) {
	logger, buf := buildJSON(t, New())
	logger.Info("oops",
		slog.String("token", "super-secret-token"),
		slog.String("Password", "hunter2"),
		slog.String("access_token", "abc"),
		slog.String("host", "media.example.com"))

	out := buf.String()
	assert.NotContains(t, out, "super-secret-token")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, redactedValue)
	assert.Contains(t, out, "media.example.com")
}

func TestReplaceAttrComposesWithRedaction(t *testing.T) {
	logger, buf := buildJSON(t, New().SetReplaceAttr(func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == "drop_me" {
			return slog.Attr{}
		}
		return a
	}))
	logger.Info("entry",
		slog.String("drop_me", "gone"),
		slog.String("secret", "classified"))

	out := buf.String()
	assert.NotContains(t, out, "gone")
	assert.NotContains(t, out, "classified")
}

func TestRotationOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finkit.log")

	logger, cleanup, err := New().
		SetFormat("json").
		SetRotation(path, WithMaxSizeMB(1), WithMaxBackups(1), WithMaxAgeDays(1)).
		Build()
	require.NoError(t, err)

	logger.Info("to file", slog.String("host", "media.example.com"))
	require.NoError(t, cleanup())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "to file")
}

func TestSetRotationEmptyFilename(t *testing.T) {
	_, _, err := New().SetRotation("  ").Build()
	assert.Error(t, err)
}

func TestAttrHelpers(t *testing.T) {
	assert.Equal(t, slog.Attr{}, Err(nil))
	assert.Equal(t, "error", Err(os.ErrNotExist).Key)
	assert.Equal(t, "1s", Duration(time.Second).Value.String())
	assert.Equal(t, KeyHost, Host("h").Key)
	assert.Equal(t, int64(3), Attempts(3).Value.Int64())
	assert.Equal(t, int64(503), StatusCode(503).Value.Int64())
	assert.Equal(t, "xpin", Component("xpin").Value.String())
	assert.Equal(t, "refresh", Operation("refresh").Value.String())
	assert.Equal(t, KeyServer, Server("https://x").Key)
}

func TestParseLevelTable(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"fatal", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLevelTextRoundTrip(t *testing.T) {
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		raw, err := l.MarshalText()
		require.NoError(t, err)
		var back Level
		require.NoError(t, back.UnmarshalText(raw))
		assert.Equal(t, l, back)
	}
	assert.False(t, strings.Contains(LevelWarn.String(), "+"))
}

func TestSamplingDropsLowLevelRecords(t *testing.T) {
	logger, buf := buildJSON(t, New().
		SetLevel(LevelDebug).
		SetSampling(xsampling.Never(), LevelDebug))

	logger.Debug("chatty probe detail")
	logger.Info("login succeeded")
	logger.Error("request failed")

	out := buf.String()
	assert.NotContains(t, out, "chatty probe detail")
	assert.Contains(t, out, "login succeeded")
	assert.Contains(t, out, "request failed")
}

func TestSamplingPassThrough(t *testing.T) {
	logger, buf := buildJSON(t, New().
		SetLevel(LevelDebug).
		SetSampling(xsampling.Always(), LevelDebug))

	logger.Debug("probe detail")
	assert.Contains(t, buf.String(), "probe detail")
}

func TestSamplingSurvivesWithAttrs(t *testing.T) {
	logger, buf := buildJSON(t, New().
		SetLevel(LevelDebug).
		SetSampling(xsampling.Never(), LevelDebug))

	scoped := logger.With(slog.String("component", "xdiscover")).WithGroup("probe")
	scoped.Debug("dropped")
	scoped.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestSetSamplingNil(t *testing.T) {
	_, _, err := New().SetSampling(nil, LevelDebug).Build()
	assert.Error(t, err)
}
