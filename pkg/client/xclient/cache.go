package xclient

import (
	"net/http"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheSize = 32
	defaultCacheTTL  = 30 * time.Minute
)

// cacheKey 由服务器地址与 Token 联合散列。键从 Token 派生，
// Token 一换键就变，过期条目天然不可能被新会话命中。
func cacheKey(serverURL, token string) uint64 {
	d := xxhash.New()
	d.WriteString(serverURL) //nolint:errcheck
	d.Write([]byte{0})       //nolint:errcheck
	d.WriteString(token)     //nolint:errcheck
	return d.Sum64()
}

// cachedClient 一个 (服务器, Token) 对的可复用传输句柄。
type cachedClient struct {
	client     *http.Client
	lastUsedAt time.Time
}

// clientCache 传输句柄缓存。句柄共享同一个底层 Transport（连接池
// 复用），按键区分的只是附着的会话身份。过期判定在 get 时惰性完成，
// 不起后台回收 goroutine，Close 后无残留。
type clientCache struct {
	mu      sync.Mutex
	lru     *lru.Cache[uint64, *cachedClient]
	ttl     time.Duration
	factory func() *http.Client
}

func newClientCache(size int, ttl time.Duration, factory func() *http.Client) *clientCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	// size 已保证为正，构造不会失败。
	cache, _ := lru.New[uint64, *cachedClient](size)
	return &clientCache{
		lru:     cache,
		ttl:     ttl,
		factory: factory,
	}
}

// get 取出或惰性创建 (serverURL, token) 对应的句柄。
// 超过 ttl 未使用的条目视同不存在，重建新句柄。
func (c *clientCache) get(serverURL, token string) *http.Client {
	key := cacheKey(serverURL, token)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.lru.Get(key); ok {
		if now.Sub(entry.lastUsedAt) <= c.ttl {
			entry.lastUsedAt = now
			return entry.client
		}
		c.lru.Remove(key)
	}
	entry := &cachedClient{client: c.factory(), lastUsedAt: now}
	c.lru.Add(key, entry)
	return entry.client
}

// invalidate 移除旧 Token 对应的条目。Token 更替后旧句柄不再复用。
func (c *clientCache) invalidate(serverURL, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(cacheKey(serverURL, token))
}

// purge 清空全部条目，登出时调用。
func (c *clientCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

func (c *clientCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
