package xsampling

// Sampler 采样策略接口。
//
// key 标识被采样的事件类别（如日志消息文本），实现可以用它做
// 一致性决策，也可以忽略。返回 true 表示保留该事件。
type Sampler interface {
	ShouldSample(key string) bool
}

// SamplerFunc 函数适配器。
type SamplerFunc func(key string) bool

// ShouldSample 实现 Sampler。
func (f SamplerFunc) ShouldSample(key string) bool { return f(key) }

// Always 保留全部事件的采样器。
func Always() Sampler {
	return SamplerFunc(func(string) bool { return true })
}

// Never 丢弃全部事件的采样器。
func Never() Sampler {
	return SamplerFunc(func(string) bool { return false })
}
