package xsampling

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// KeyBasedSampler 基于 key 的一致性采样器。
//
// 相同的 key 在相同的 rate 下总是产生相同的决策：一类消息要么
// 全部保留要么全部丢弃，不会在输出里时隐时现。key 为空时回退到
// 随机采样，保持比率语义但失去一致性。
//
// 设计决策: 工厂函数返回具体类型而非 Sampler 接口，
// Rate() 的自省能力无法通过接口获得。
type KeyBasedSampler struct {
	rate float64
}

var _ Sampler = (*KeyBasedSampler)(nil)

// NewKeyBasedSampler 创建一致性采样器。
// rate 为采样比率，范围 [0.0, 1.0]，越界或 NaN 时返回 ErrInvalidRate。
func NewKeyBasedSampler(rate float64) (*KeyBasedSampler, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	return &KeyBasedSampler{rate: rate}, nil
}

// ShouldSample 实现 Sampler。
func (s *KeyBasedSampler) ShouldSample(key string) bool {
	if s.rate >= 1.0 {
		return true
	}
	if s.rate <= 0.0 {
		return false
	}
	if key == "" {
		return randomFloat64() < s.rate
	}
	// 哈希值映射到 [0, 1)，与 rate 比较得到恒定决策
	h := xxhash.Sum64String(key)
	return float64(h)/float64(math.MaxUint64) < s.rate
}

// Rate 返回采样比率。
func (s *KeyBasedSampler) Rate() float64 { return s.rate }
