package xsampling

import (
	"crypto/rand"
	"encoding/binary"
	"math"
)

// 浮点数转换常量。
const (
	floatBits  = 53
	floatScale = 1.0 / (1 << floatBits)
)

// RandomSampler 纯随机采样器，忽略 key。
type RandomSampler struct {
	rate float64
}

var _ Sampler = (*RandomSampler)(nil)

// NewRandomSampler 创建随机采样器。
// rate 为采样比率，范围 [0.0, 1.0]，越界或 NaN 时返回 ErrInvalidRate。
func NewRandomSampler(rate float64) (*RandomSampler, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	return &RandomSampler{rate: rate}, nil
}

// ShouldSample 实现 Sampler。
func (s *RandomSampler) ShouldSample(_ string) bool {
	if s.rate >= 1.0 {
		return true
	}
	if s.rate <= 0.0 {
		return false
	}
	return randomFloat64() < s.rate
}

// Rate 返回采样比率。
func (s *RandomSampler) Rate() float64 { return s.rate }

func validateRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0.0 || rate > 1.0 {
		return ErrInvalidRate
	}
	return nil
}

// randomFloat64 返回 [0.0, 1.0) 范围内的随机浮点数。
//
// 设计决策: 使用 crypto/rand 而非 math/rand，采样每事件只调用一次，
// ~100ns 的开销可接受，换来不可预测的采样分布。
// rand.Read 失败表示系统熵源不可用，属于不可恢复的系统级故障，
// 直接 panic 快速失败。
func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("xsampling: crypto/rand.Read failed: " + err.Error())
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) * floatScale
}
