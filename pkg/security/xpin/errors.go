package xpin

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNilStore 表示传入的持久化存储为 nil。
	ErrNilStore = errors.New("xpin: nil store")

	// ErrEmptyHostname 表示主机名为空。
	ErrEmptyHostname = errors.New("xpin: empty hostname")

	// ErrEmptyChain 表示握手未提供任何证书。
	ErrEmptyChain = errors.New("xpin: empty certificate chain")

	// ErrNotPinned 表示撤销操作的目标主机名没有 Pin 记录。
	ErrNotPinned = errors.New("xpin: hostname not pinned")
)

// PinMismatchError 表示出示的证书链与已固定的公钥不匹配。
// 此错误对当前连接是致命的，不存在任何绕过路径；
// 恢复手段只有用户显式撤销 Pin 后重新 TOFU。
type PinMismatchError struct {
	// Hostname 不匹配的主机名。
	Hostname string

	// PinnedHash 已固定的公钥哈希。
	PinnedHash string

	// PresentedHashes 本次握手出示的证书链的全部公钥哈希。
	PresentedHashes []string
}

func (e *PinMismatchError) Error() string {
	return fmt.Sprintf("xpin: certificate pin mismatch for %s: pinned %s, presented [%s]",
		e.Hostname, abbrevHash(e.PinnedHash), abbrevHashes(e.PresentedHashes))
}

// Retryable 实现 xretry 的可重试判定：Pin 不匹配永远不可重试。
func (e *PinMismatchError) Retryable() bool {
	return false
}

// abbrevHash 截断哈希用于错误消息，完整值可通过结构体字段获取。
func abbrevHash(h string) string {
	if len(h) > 16 {
		return h[:16] + "…"
	}
	return h
}

func abbrevHashes(hs []string) string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = abbrevHash(h)
	}
	return strings.Join(out, ", ")
}
