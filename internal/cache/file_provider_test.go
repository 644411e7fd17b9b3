package cache

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileProviderSetAndGet(t *testing.T) {
	provider := newTestFileProvider(t)
	entry := &Entry{Status: http.StatusOK, Header: http.Header{"Etag": []string{"v1"}}, Body: []byte("payload")}

	if err := provider.Set(context.Background(), "Users.Get:abc", entry, time.Minute); err != nil {
		t.Fatalf("set error: %v", err)
	}

	got, err := provider.Get(context.Background(), "Users.Get:abc")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if string(got.Body) != "payload" || got.Header.Get("Etag") != "v1" {
		t.Fatalf("cached entry mismatch: %+v", got)
	}
}

func TestFileProviderGetMissing(t *testing.T) {
	provider := newTestFileProvider(t)
	_, err := provider.Get(context.Background(), "missing")
	if err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileProviderExpires(t *testing.T) {
	provider := newTestFileProvider(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	provider.now = func() time.Time { return now }

	if err := provider.Set(context.Background(), "k", &Entry{Status: 200}, 5*time.Second); err != nil {
		t.Fatalf("set error: %v", err)
	}
	now = now.Add(6 * time.Second)
	if _, err := provider.Get(context.Background(), "k"); err != ErrNotFound {
		t.Fatalf("过期条目应返回 ErrNotFound，得到 %v", err)
	}
	if _, err := os.Stat(provider.entryPath("k")); !os.IsNotExist(err) {
		t.Fatalf("过期条目文件应被删除: %v", err)
	}
}

func TestFileProviderKeysStayInsideRoot(t *testing.T) {
	provider := newTestFileProvider(t)
	path := provider.entryPath("../../etc/passwd")
	rel, err := filepath.Rel(provider.basePath, path)
	if err != nil || rel == "" || rel[0] == '.' {
		t.Fatalf("entry path escaped root: %s", path)
	}
}

// newTestFileProvider returns a FileProvider backed by a temporary directory.
func newTestFileProvider(t *testing.T) *FileProvider {
	t.Helper()
	provider, err := NewFileProvider(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return provider
}
