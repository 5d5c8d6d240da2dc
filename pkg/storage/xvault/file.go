package xvault

import (
	"bytes"
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/sync/singleflight"

	"github.com/omeyang/finkit/pkg/util/xfile"
)

// 磁盘格式常量。
const (
	// fileMagic 文件头魔数，同时作为 AEAD 的附加认证数据。
	fileMagic = "FVLT1"

	// saltSize HKDF salt 长度。
	saltSize = 16

	// keySize 派生密钥长度（XChaCha20-Poly1305 要求 32 字节）。
	keySize = chacha20poly1305.KeySize

	// hkdfInfo 密钥派生的域分隔串。
	hkdfInfo = "finkit/xvault/v1"
)

// FileStore 是 Store 的加密文件实现。
//
// 整个键值集合序列化为一个 JSON 文档，用 XChaCha20-Poly1305 加密后
// 原子写入磁盘。数据在首次访问时惰性加载，之后全部操作走内存，
// 每次变更同步落盘。
type FileStore struct {
	path   string
	secret []byte
	mode   fs.FileMode

	mu     sync.RWMutex
	data   map[string][]byte
	loaded bool

	// 冷加载去重。加载失败不粘滞，下次访问会重新尝试。
	sf singleflight.Group

	closed atomic.Bool
}

var _ Store = (*FileStore)(nil)

// FileStoreOption FileStore 配置选项。
type FileStoreOption func(*FileStore)

// WithFileMode 设置存储文件的权限位。默认 0600。
func WithFileMode(mode fs.FileMode) FileStoreOption {
	return func(s *FileStore) {
		if mode != 0 {
			s.mode = mode
		}
	}
}

// NewFileStore 创建加密文件存储。
//
// path 为存储文件路径，文件不存在时视为空存储（首次写入时创建），
// 父目录不存在时自动创建。
// secret 为密钥材料，实际加密密钥通过 HKDF-SHA256 派生；
// secret 会被复制，调用方可在调用后清除原始切片。
func NewFileStore(path string, secret []byte, opts ...FileStoreOption) (*FileStore, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	if err := xfile.EnsureDir(path); err != nil {
		return nil, err
	}

	sec := make([]byte, len(secret))
	copy(sec, secret)

	s := &FileStore{
		path:   path,
		secret: sec,
		mode:   0o600,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get 读取指定键的值。
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if key == "" {
		return nil, ErrEmptyKey
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set 写入指定键的值并落盘。
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	prev, had := s.data[key]
	s.data[key] = v

	if err := s.persistLocked(); err != nil {
		// 落盘失败时回滚内存状态，保持内存与磁盘一致
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// Delete 删除指定键并落盘。
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[key]
	if !had {
		return nil
	}
	delete(s.data, key)

	if err := s.persistLocked(); err != nil {
		s.data[key] = prev
		return err
	}
	return nil
}

// Keys 返回所有以 prefix 开头的键。
func (s *FileStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close 关闭存储并清除内存中的密钥材料。
func (s *FileStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.secret {
		s.secret[i] = 0
	}
	s.data = nil
	return nil
}

// ensureLoaded 确保数据已从磁盘加载。
// 使用 singleflight 去重并发冷加载；sync.Once 不适用，
// 因为加载失败（如磁盘瞬时错误）不应永久粘滞。
func (s *FileStore) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, _ := s.sf.Do("load", func() (any, error) {
		return nil, s.load()
	})
	if err != nil {
		return err
	}
	// singleflight 结果共享后仍需检查取消，让等待者正确观察自身的取消
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// load 从磁盘读取并解密数据。
func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		// 首次运行：空存储
		s.data = make(map[string][]byte)
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("xvault: read store file: %w", err)
	}

	data, err := s.decrypt(raw)
	if err != nil {
		return err
	}
	s.data = data
	s.loaded = true
	return nil
}

// persistLocked 加密并原子写入磁盘。调用方必须持有写锁。
func (s *FileStore) persistLocked() error {
	ciphertext, err := s.encrypt(s.data)
	if err != nil {
		return err
	}

	// 原子写入，崩溃时磁盘上仍是完整的旧文件
	if err := xfile.WriteAtomic(s.path, ciphertext, s.mode); err != nil {
		return fmt.Errorf("xvault: persist: %w", err)
	}
	return nil
}

// encrypt 序列化并加密整个键值集合。
func (s *FileStore) encrypt(data map[string][]byte) ([]byte, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("xvault: marshal store: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("xvault: generate salt: %w", err)
	}

	aead, err := s.deriveAEAD(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("xvault: generate nonce: %w", err)
	}

	out := make([]byte, 0, len(fileMagic)+saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, fileMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, []byte(fileMagic)), nil
}

// decrypt 解密并反序列化整个键值集合。
func (s *FileStore) decrypt(raw []byte) (map[string][]byte, error) {
	headerSize := len(fileMagic) + saltSize + chacha20poly1305.NonceSizeX
	if len(raw) < headerSize || !bytes.HasPrefix(raw, []byte(fileMagic)) {
		return nil, ErrCorrupted
	}

	salt := raw[len(fileMagic) : len(fileMagic)+saltSize]
	nonce := raw[len(fileMagic)+saltSize : headerSize]
	ciphertext := raw[headerSize:]

	aead, err := s.deriveAEAD(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(fileMagic))
	if err != nil {
		return nil, ErrCorrupted
	}

	data := make(map[string][]byte)
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, ErrCorrupted
	}
	return data, nil
}

// deriveAEAD 用 HKDF-SHA256 从 secret 和 salt 派生 AEAD。
func (s *FileStore) deriveAEAD(salt []byte) (cipher.AEAD, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.secret, salt, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("xvault: derive key: %w", err)
	}
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xvault: init aead: %w", err)
	}
	return a, nil
}
