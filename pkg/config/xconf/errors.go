package xconf

import "errors"

// 配置加载和解析相关错误。
var (
	// ErrEmptyPath 表示配置文件路径为空。
	ErrEmptyPath = errors.New("xconf: empty config path")

	// ErrUnsupportedFormat 表示不支持的配置格式。
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")

	// ErrLoadFailed 表示配置加载失败。
	ErrLoadFailed = errors.New("xconf: failed to load config")

	// ErrParseFailed 表示配置解析失败。
	ErrParseFailed = errors.New("xconf: failed to parse config")

	// ErrUnmarshalFailed 表示配置反序列化失败。
	ErrUnmarshalFailed = errors.New("xconf: failed to unmarshal config")
)

// 配置监视相关错误。
var (
	// ErrNotFromFile 表示操作要求文件来源的配置，
	// 从字节数据创建的配置无法 Reload 或 Watch。
	ErrNotFromFile = errors.New("xconf: config not created from file")

	// ErrNilCallback 表示监视回调为 nil。
	ErrNilCallback = errors.New("xconf: nil watch callback")

	// ErrInvalidDebounce 表示防抖时间非正。
	ErrInvalidDebounce = errors.New("xconf: debounce must be positive")

	// ErrWatchFailed 表示监视器创建或运行失败。
	ErrWatchFailed = errors.New("xconf: watch failed")
)
