package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var entriesBucket = []byte("entries")

// BoltProvider 把缓存条目保存在单个 bbolt 文件中，适合需要跨进程重启保留缓存的场景。
type BoltProvider struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBoltProvider 打开（必要时创建）path 指向的数据库。
func OpenBoltProvider(path string) (*BoltProvider, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("bolt cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache bucket: %w", err)
	}
	return &BoltProvider{db: db, now: time.Now}, nil
}

// Name implements Provider.
func (p *BoltProvider) Name() string { return "bolt" }

// Get implements Provider.
func (p *BoltProvider) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw []byte
	if err := p.db.View(func(tx *bolt.Tx) error {
		if value := tx.Bucket(entriesBucket).Get([]byte(key)); value != nil {
			raw = append([]byte(nil), value...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotFound
	}

	var item envelope
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if item.Entry == nil {
		return nil, ErrNotFound
	}
	if item.expired(p.now()) {
		_ = p.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(entriesBucket).Delete([]byte(key))
		})
		return nil, ErrNotFound
	}
	return item.Entry, nil
}

// Set implements Provider.
func (p *BoltProvider) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Entry: entry, ExpiresAt: expiresAt(p.now(), ttl)})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).Put([]byte(key), data)
	})
}

// Close 释放数据库文件锁。
func (p *BoltProvider) Close() error {
	return p.db.Close()
}
