package xconf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/finkit/pkg/storage/xvault"
)

// Settings 客户端网络韧性层的可调参数。来源按优先级从低到高：
// 内置默认值 → 配置文件的 client 段 → 加密存储中的覆盖项。
type Settings struct {
	// MaxAttempts 单个请求的最大尝试次数（含首次）。
	MaxAttempts int `koanf:"max_attempts" json:"max_attempts"`

	// RefreshLeadFraction 主动刷新触发点占 Token 名义有效期的比例，
	// (0, 1]，0 关闭主动刷新。
	RefreshLeadFraction float64 `koanf:"refresh_lead_fraction" json:"refresh_lead_fraction"`

	// RefreshTimeout 单次 Token 换取调用的超时。
	RefreshTimeout time.Duration `koanf:"refresh_timeout" json:"refresh_timeout"`

	// RequestTimeout 普通请求超时。
	RequestTimeout time.Duration `koanf:"request_timeout" json:"request_timeout"`

	// ProbeTimeout 端点发现单个探测的超时。
	ProbeTimeout time.Duration `koanf:"probe_timeout" json:"probe_timeout"`

	// MeteredMultiplier 计量网络下探测超时的放大倍数，≥1。
	MeteredMultiplier float64 `koanf:"metered_multiplier" json:"metered_multiplier"`

	// BatchSize 端点发现每批并发探测的候选数。
	BatchSize int `koanf:"batch_size" json:"batch_size"`
}

// DefaultSettings 返回内置默认值。
func DefaultSettings() *Settings {
	return &Settings{
		MaxAttempts:         3,
		RefreshLeadFraction: 0.8,
		RefreshTimeout:      30 * time.Second,
		RequestTimeout:      30 * time.Second,
		ProbeTimeout:        3 * time.Second,
		MeteredMultiplier:   4,
		BatchSize:           4,
	}
}

// Validate 检查取值范围。
func (s *Settings) Validate() error {
	if s.MaxAttempts < 1 {
		return errors.New("xconf: max_attempts must be at least 1")
	}
	if s.RefreshLeadFraction < 0 || s.RefreshLeadFraction > 1 {
		return errors.New("xconf: refresh_lead_fraction must be in [0, 1]")
	}
	if s.RefreshTimeout <= 0 || s.RequestTimeout <= 0 || s.ProbeTimeout <= 0 {
		return errors.New("xconf: timeouts must be positive")
	}
	if s.MeteredMultiplier < 1 {
		return errors.New("xconf: metered_multiplier must be at least 1")
	}
	if s.BatchSize < 1 {
		return errors.New("xconf: batch_size must be at least 1")
	}
	return nil
}

// settingsOverrideKey 加密存储中覆盖项的键。
const settingsOverrideKey = "config/overrides"

// LoadSettings 从配置实例的 client 段加载参数，未给出的字段保持
// 默认值。cfg 为 nil 时直接返回默认值。
func LoadSettings(cfg Config) (*Settings, error) {
	s := DefaultSettings()
	if cfg == nil {
		return s, nil
	}
	if err := cfg.Unmarshal("client", s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyOverrides 叠加加密存储中的覆盖项（JSON 序列化的 Settings
// 子集）。没有覆盖项时原样返回。
func (s *Settings) ApplyOverrides(ctx context.Context, store xvault.Store) error {
	if store == nil {
		return nil
	}
	raw, err := store.Get(ctx, settingsOverrideKey)
	if err != nil {
		if errors.Is(err, xvault.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("xconf: load settings overrides: %w", err)
	}
	if err := json.Unmarshal(raw, s); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return s.Validate()
}

// SaveOverrides 把当前参数全量写入加密存储作为覆盖项。
func (s *Settings) SaveOverrides(ctx context.Context, store xvault.Store) error {
	if store == nil {
		return errors.New("xconf: nil store")
	}
	if err := s.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("xconf: marshal settings: %w", err)
	}
	return store.Set(ctx, settingsOverrideKey, raw)
}
