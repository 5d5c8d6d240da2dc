package xvault

import "context"

// Store 定义加密键值存储接口。
//
// 键约定为 "namespace/name" 形式，如 "session/current"、
// "pin/media.example.com"。值为不透明字节，由调用方负责序列化。
type Store interface {
	// Get 读取指定键的值。
	// 键不存在时返回 ErrKeyNotFound。
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入指定键的值。
	// 值会被复制，调用方可以复用传入的切片。
	Set(ctx context.Context, key string, value []byte) error

	// Delete 删除指定键。
	// 键不存在时静默成功。
	Delete(ctx context.Context, key string) error

	// Keys 返回所有以 prefix 开头的键。
	// prefix 为空时返回全部键。返回顺序不保证。
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close 关闭存储，释放资源。
	// 关闭后所有操作返回 ErrStoreClosed。
	Close() error
}
