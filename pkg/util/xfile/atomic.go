package xfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteAtomic 原子写入文件。
//
// 先写同目录下的临时文件，落盘后 rename 到目标路径。
// rename 在同一文件系统内是原子的，崩溃时目标路径要么是旧内容
// 要么是新内容，不会出现半截文件。
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return ErrEmptyPath
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("xfile: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() //nolint:errcheck // rename 成功后 Remove 失败无害

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // 写失败是主错误
		return fmt.Errorf("xfile: write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close() //nolint:errcheck // chmod 失败是主错误
		return fmt.Errorf("xfile: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("xfile: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("xfile: rename temp file: %w", err)
	}
	return nil
}
