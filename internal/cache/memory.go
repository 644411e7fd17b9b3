package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const memoryShards = 16

// MemoryProvider 是按键分片的进程内缓存，读取时惰性淘汰过期条目。
type MemoryProvider struct {
	shards [memoryShards]*memoryShard
	now    func() time.Time
}

type memoryShard struct {
	mu    sync.RWMutex
	items map[string]envelope
}

// NewMemoryProvider 创建内存缓存提供者。
func NewMemoryProvider() *MemoryProvider {
	p := &MemoryProvider{now: time.Now}
	for i := range p.shards {
		p.shards[i] = &memoryShard{items: make(map[string]envelope)}
	}
	return p
}

// Name implements Provider.
func (p *MemoryProvider) Name() string { return "memory" }

func (p *MemoryProvider) shard(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return p.shards[h.Sum32()%memoryShards]
}

// Get implements Provider.
func (p *MemoryProvider) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shard := p.shard(key)
	shard.mu.RLock()
	item, ok := shard.items[key]
	shard.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if item.expired(p.now()) {
		shard.mu.Lock()
		if current, ok := shard.items[key]; ok && current.expired(p.now()) {
			delete(shard.items, key)
		}
		shard.mu.Unlock()
		return nil, ErrNotFound
	}
	return item.Entry, nil
}

// Set implements Provider.
func (p *MemoryProvider) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shard := p.shard(key)
	shard.mu.Lock()
	shard.items[key] = envelope{Entry: entry, ExpiresAt: expiresAt(p.now(), ttl)}
	shard.mu.Unlock()
	return nil
}

// Len 返回当前条目数（包含尚未被惰性淘汰的过期条目）。
func (p *MemoryProvider) Len() int {
	total := 0
	for _, shard := range p.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}
