// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package offers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"islander-chat/pkg/config"
	"islander-chat/pkg/errors"
	"islander-chat/pkg/metrics"
	"islander-chat/pkg/tracing"
)

// cacheStore 摘要缓存存储接口
type cacheStore interface {
	// Get miss 返回 (nil, nil)
	Get(ctx context.Context, key string) (*Summary, error)
	Set(ctx context.Context, key string, sum *Summary, ttl time.Duration) error
	Close() error
}

// Cache TTL 报盘缓存：指纹命中直接返回，miss 时经 singleflight 合并回源查询。
// 库存后端故障返回 ErrStoreUnavailable，由上层决定降级文案。
type Cache struct {
	inv       Inventory
	store     cacheStore
	ttl       time.Duration
	domainTTL map[string]time.Duration
	group     singleflight.Group
}

// NewCache 根据配置创建报盘缓存；域配置的 offer_ttl 覆盖全局 TTL
func NewCache(cfg config.OffersConfig, domains map[string]config.DomainConfig, inv Inventory) (*Cache, error) {
	ttl := config.ParseDuration(cfg.TTL, 60*time.Second)
	var store cacheStore
	switch cfg.CacheType {
	case "", "memory":
		store = newMemoryCacheStore()
	case "redis":
		store = newRedisCacheStore(cfg.Addr, cfg.Password, cfg.DB)
	default:
		return nil, fmt.Errorf("unknown offers cache type: %s", cfg.CacheType)
	}
	domainTTL := make(map[string]time.Duration, len(domains))
	for name, dc := range domains {
		if dc.OfferTTL != "" {
			domainTTL[name] = config.ParseDuration(dc.OfferTTL, ttl)
		}
	}
	return &Cache{inv: inv, store: store, ttl: ttl, domainTTL: domainTTL}, nil
}

// ttlFor 该域生效的缓存 TTL
func (c *Cache) ttlFor(domain string) time.Duration {
	if ttl, ok := c.domainTTL[domain]; ok {
		return ttl
	}
	return c.ttl
}

// Query 按过滤条件返回报盘摘要；TTL 内重复查询命中缓存
func (c *Cache) Query(ctx context.Context, f Filters) (Summary, error) {
	key := f.Fingerprint()
	start := time.Now()
	defer func() {
		metrics.OfferQueryLatency.Observe(time.Since(start).Seconds())
	}()

	if cached, err := c.store.Get(ctx, key); err == nil && cached != nil {
		metrics.OfferCacheTotal.WithLabelValues("hit").Inc()
		return *cached, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		qctx, span := tracing.StartOfferSpan(ctx, key)
		defer span.End()
		sum, err := c.inv.Query(qctx, f)
		if err != nil {
			return nil, errors.Wrap(errors.ErrStoreUnavailable, err.Error())
		}
		if err := c.store.Set(ctx, key, &sum, c.ttlFor(f.Domain)); err != nil {
			// 缓存写失败不影响结果
			metrics.OfferCacheTotal.WithLabelValues("error").Inc()
		}
		return sum, nil
	})
	if err != nil {
		metrics.OfferCacheTotal.WithLabelValues("error").Inc()
		return Summary{}, err
	}
	metrics.OfferCacheTotal.WithLabelValues("miss").Inc()
	return v.(Summary), nil
}

// Invalidate 删除一条缓存（库存变更后调用）
func (c *Cache) Invalidate(ctx context.Context, f Filters) {
	_ = c.store.Set(ctx, f.Fingerprint(), nil, time.Millisecond)
}

// Close 关闭缓存与库存后端
func (c *Cache) Close() error {
	if err := c.store.Close(); err != nil {
		return err
	}
	return c.inv.Close()
}

// memoryCacheStore 内存实现
type memoryCacheStore struct {
	mu    sync.RWMutex
	items map[string]memoryCacheItem
}

type memoryCacheItem struct {
	sum     *Summary
	expires time.Time
}

func newMemoryCacheStore() *memoryCacheStore {
	return &memoryCacheStore{items: make(map[string]memoryCacheItem)}
}

func (m *memoryCacheStore) Get(ctx context.Context, key string) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[key]
	if !ok || time.Now().After(item.expires) || item.sum == nil {
		return nil, nil
	}
	cp := *item.sum
	return &cp, nil
}

func (m *memoryCacheStore) Set(ctx context.Context, key string, sum *Summary, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryCacheItem{sum: sum, expires: time.Now().Add(ttl)}
	m.gcLocked()
	return nil
}

// gcLocked 清理过期条目，避免不同过滤指纹无界累积；调用方必须持锁
func (m *memoryCacheStore) gcLocked() {
	if len(m.items) < 1024 {
		return
	}
	now := time.Now()
	for k, item := range m.items {
		if now.After(item.expires) {
			delete(m.items, k)
		}
	}
}

func (m *memoryCacheStore) Close() error { return nil }

// redisCacheStore Redis 实现，键前缀 ichat:offers:
type redisCacheStore struct {
	client *redis.Client
}

func newRedisCacheStore(addr, password string, db int) *redisCacheStore {
	return &redisCacheStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
	}
}

func (r *redisCacheStore) key(k string) string { return "ichat:offers:" + k }

func (r *redisCacheStore) Get(ctx context.Context, key string) (*Summary, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, nil
	}
	return &sum, nil
}

func (r *redisCacheStore) Set(ctx context.Context, key string, sum *Summary, ttl time.Duration) error {
	if sum == nil {
		return r.client.Del(ctx, r.key(key)).Err()
	}
	data, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(key), data, ttl).Err()
}

func (r *redisCacheStore) Close() error { return r.client.Close() }
