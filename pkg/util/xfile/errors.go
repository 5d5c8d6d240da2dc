package xfile

import "errors"

var (
	// ErrEmptyPath 路径为空。
	ErrEmptyPath = errors.New("xfile: empty path")

	// ErrNullByte 路径包含空字节。
	ErrNullByte = errors.New("xfile: path contains null byte")

	// ErrInvalidPerm 目录权限缺少所有者执行位，无法遍历。
	ErrInvalidPerm = errors.New("xfile: invalid directory permission")
)
