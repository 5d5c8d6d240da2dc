package xsampling

import "errors"

// ErrInvalidRate 采样比率超出 [0.0, 1.0] 或为 NaN。
var ErrInvalidRate = errors.New("xsampling: rate must be in [0.0, 1.0]")
