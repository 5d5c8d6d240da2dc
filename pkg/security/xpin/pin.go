package xpin

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"strconv"
	"time"
)

// State 表示主机名的信任状态。
type State int

const (
	// StateUnknown 表示主机名尚未固定（下次成功握手将 TOFU）。
	StateUnknown State = iota

	// StatePinned 表示主机名已固定，握手必须精确匹配。
	StatePinned
)

// String 返回 State 的可读字符串表示。
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StatePinned:
		return "pinned"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Pin 是一条主机名到公钥哈希的固定记录。
// 创建后不可变，只能被显式撤销。
type Pin struct {
	// Hostname 主机名（不含端口）。
	Hostname string `json:"hostname"`

	// SPKISHA256 叶子证书 SubjectPublicKeyInfo 的 SHA-256（hex 编码）。
	SPKISHA256 string `json:"spki_sha256"`

	// FirstSeenAt 首次握手时间。
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// SPKIHash 计算证书公钥的 SHA-256 哈希（hex 编码）。
// 哈希对象是 SubjectPublicKeyInfo 而非整张证书，
// 因此同一密钥对换发的新证书不会改变哈希。
func SPKIHash(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(sum[:])
}

// chainHashes 计算证书链中所有证书的公钥哈希。
func chainHashes(chain []*x509.Certificate) []string {
	hashes := make([]string, 0, len(chain))
	for _, cert := range chain {
		hashes = append(hashes, SPKIHash(cert))
	}
	return hashes
}
