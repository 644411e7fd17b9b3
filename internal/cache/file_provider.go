package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileProvider 以 basePath 为根目录持久化缓存条目。磁盘布局：
//
//	<basePath>/<sha1[:2]>/<sha1>.json    # envelope（条目 + 过期时间）
//
// 写入通过临时文件 + rename 保证原子性。
type FileProvider struct {
	basePath string
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewFileProvider 以 basePath 为根目录构建磁盘缓存，整个进程复用一份实例。
func NewFileProvider(basePath string) (*FileProvider, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &FileProvider{
		basePath: abs,
		now:      time.Now,
		locks:    make(map[string]*entryLock),
	}, nil
}

// Name implements Provider.
func (p *FileProvider) Name() string { return "disk" }

// Get implements Provider.
func (p *FileProvider) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath := p.entryPath(key)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var item envelope
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if item.Entry == nil {
		return nil, ErrNotFound
	}
	if item.expired(p.now()) {
		p.remove(key)
		return nil, ErrNotFound
	}
	return item.Entry, nil
}

// Set implements Provider.
func (p *FileProvider) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := p.lockEntry(key)
	defer unlock()

	data, err := json.Marshal(envelope{Entry: entry, ExpiresAt: expiresAt(p.now(), ttl)})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	filePath := p.entryPath(key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (p *FileProvider) remove(key string) {
	unlock := p.lockEntry(key)
	defer unlock()
	_ = os.Remove(p.entryPath(key))
}

func (p *FileProvider) lockEntry(key string) func() {
	p.mu.Lock()
	lock := p.locks[key]
	if lock == nil {
		lock = &entryLock{}
		p.locks[key] = lock
	}
	lock.refs++
	p.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		p.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}

// entryPath 把任意键映射为固定深度的文件路径，避免键中的路径字符逃逸根目录。
func (p *FileProvider) entryPath(key string) string {
	sum := sha1.Sum([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(p.basePath, name[:2], name+".json")
}
