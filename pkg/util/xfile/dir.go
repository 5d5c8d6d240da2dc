package xfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDirPerm 默认目录权限。
//
// 0750: 所有者读写执行，组读执行，其他无权限。
const DefaultDirPerm = 0o750

// EnsureDir 确保文件的父目录存在，使用默认权限 0750。
// 目录已存在时不报错，也不修改其权限。
func EnsureDir(filename string) error {
	return EnsureDirWithPerm(filename, DefaultDirPerm)
}

// EnsureDirWithPerm 确保文件的父目录存在，使用指定权限。
//
// filename 是文件路径而非目录路径。perm 必须包含所有者执行位
// （0100），否则创建出的目录无法进入。
//
// 底层使用 os.MkdirAll，会跟随符号链接。
func EnsureDirWithPerm(filename string, perm os.FileMode) error {
	if filename == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(filename, 0) {
		return ErrNullByte
	}
	if perm&0o100 == 0 {
		return fmt.Errorf("%w: %04o missing owner execute bit", ErrInvalidPerm, perm)
	}
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("xfile: create directory %s: %w", dir, err)
	}
	return nil
}
