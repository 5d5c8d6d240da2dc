package xvault

import "errors"

var (
	// ErrKeyNotFound 表示键不存在。
	ErrKeyNotFound = errors.New("xvault: key not found")

	// ErrStoreClosed 表示存储已关闭。
	ErrStoreClosed = errors.New("xvault: store closed")

	// ErrEmptyKey 表示传入的键为空。
	ErrEmptyKey = errors.New("xvault: empty key")

	// ErrEmptySecret 表示加密密钥材料为空。
	ErrEmptySecret = errors.New("xvault: empty secret")

	// ErrEmptyPath 表示存储文件路径为空。
	ErrEmptyPath = errors.New("xvault: empty path")

	// ErrCorrupted 表示存储文件损坏或密钥不匹配。
	// AEAD 认证失败无法区分这两种情况，统一按损坏处理。
	ErrCorrupted = errors.New("xvault: store corrupted or wrong secret")
)
