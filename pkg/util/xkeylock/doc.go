// Package xkeylock 提供按 key 粒度的互斥锁。
//
// 典型场景：同一主机名的首次 TOFU 握手必须串行（防止并发写入
// 相互覆盖的 Pin），而不同主机名之间不应相互阻塞。
//
// 实现按 xxhash 分片存储锁条目，条目在最后一个持有者/等待者
// 释放后自动回收，key 空间无需预注册、无上限增长问题。
//
// 使用方式：
//
//	kl := xkeylock.New()
//	unlock, err := kl.Lock(ctx, "media.example.com")
//	if err != nil {
//	    return err
//	}
//	defer unlock()
package xkeylock
