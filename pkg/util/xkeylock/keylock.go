package xkeylock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// defaultShardCount 默认分片数，必须是 2 的幂。
const defaultShardCount = 32

// KeyLock 是按 key 粒度的互斥锁集合。
// 零值不可用，必须通过 New 创建。所有方法并发安全。
type KeyLock struct {
	shards []shard
	mask   uint64
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// entry 表示一个 key 的锁条目。
// ch 是 size=1 的 channel，用作互斥量：发送成功 = 获取锁，接收 = 释放锁。
// refcnt 跟踪持有者 + 等待者数量，归零时条目从 map 删除。
type entry struct {
	ch     chan struct{}
	refcnt atomic.Int32
}

// New 创建 KeyLock。
func New() *KeyLock {
	shards := make([]shard, defaultShardCount)
	for i := range shards {
		shards[i].entries = make(map[string]*entry)
	}
	return &KeyLock{
		shards: shards,
		mask:   defaultShardCount - 1,
	}
}

// Lock 获取 key 对应的锁，阻塞直到获取成功或 ctx 取消。
// 成功时返回释放函数；释放函数幂等，重复调用无害。
func (kl *KeyLock) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := kl.getOrCreate(key)
	select {
	case e.ch <- struct{}{}:
		return kl.unlockFunc(key, e), nil
	case <-ctx.Done():
		kl.releaseRef(key, e)
		return nil, ctx.Err()
	}
}

// TryLock 尝试获取 key 对应的锁，不阻塞。
// 获取成功返回 (释放函数, true)，锁被占用返回 (nil, false)。
func (kl *KeyLock) TryLock(key string) (func(), bool) {
	e := kl.getOrCreate(key)
	select {
	case e.ch <- struct{}{}:
		return kl.unlockFunc(key, e), true
	default:
		kl.releaseRef(key, e)
		return nil, false
	}
}

// Len 返回当前存在锁条目的 key 数量。
func (kl *KeyLock) Len() int {
	n := 0
	for i := range kl.shards {
		s := &kl.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// unlockFunc 构造幂等的释放函数。
func (kl *KeyLock) unlockFunc(key string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			kl.releaseRef(key, e)
		})
	}
}

func (kl *KeyLock) getShard(key string) *shard {
	return &kl.shards[xxhash.Sum64String(key)&kl.mask]
}

// getOrCreate 获取或创建锁条目并增加引用计数。
func (kl *KeyLock) getOrCreate(key string) *entry {
	s := kl.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		s.entries[key] = e
	}
	e.refcnt.Add(1)
	return e
}

// releaseRef 减少引用计数，归零时从 map 删除。
func (kl *KeyLock) releaseRef(key string, e *entry) {
	s := kl.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.refcnt.Add(-1) == 0 {
		delete(s.entries, key)
	}
}
