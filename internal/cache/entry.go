package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/apicall/apicall/internal/transport"
)

// ErrNotFound 表示缓存不存在或已过期。
var ErrNotFound = errors.New("cache entry not found")

// ProviderHeader 标记合成响应来自哪个缓存提供者。
const ProviderHeader = "X-Apicall-Cache-Provider"

// Provider 是缓存存储的契约，实现需保证并发安全，并自行负责过期。
type Provider interface {
	// Name 用于标记合成响应的来源。
	Name() string
	// Get 返回未过期的条目，不存在时返回 ErrNotFound。
	Get(ctx context.Context, key string) (*Entry, error)
	// Set 写入条目，ttl<=0 表示永不过期。
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
}

// Entry 是一次真实响应的快照：状态码、端到端头、正文与创建时间。
type Entry struct {
	Status    int         `json:"status"`
	Header    http.Header `json:"header"`
	Body      []byte      `json:"body"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewEntry 从响应构造条目，读取正文后会把 resp.Body 复原为可重复读取的副本。
func NewEntry(resp *http.Response, now time.Time) (*Entry, error) {
	if resp == nil {
		return nil, errors.New("nil response")
	}
	var body []byte
	if resp.Body != nil {
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			resp.Body = io.NopCloser(bytes.NewReader(nil))
			return nil, fmt.Errorf("read response body: %w", err)
		}
		body = data
		resp.Body = io.NopCloser(bytes.NewReader(data))
	}
	header := http.Header{}
	transport.CopyHeaders(header, resp.Header)
	return &Entry{
		Status:    resp.StatusCode,
		Header:    header,
		Body:      body,
		CreatedAt: now.UTC(),
	}, nil
}

// Response 把条目还原为响应，复用原请求的元数据并标记提供者。
func (e *Entry) Response(req *http.Request, provider string) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(ProviderHeader, provider)
	header.Set("Content-Length", strconv.Itoa(len(e.Body)))

	resp := &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
	if req != nil {
		resp.Proto, resp.ProtoMajor, resp.ProtoMinor = req.Proto, req.ProtoMajor, req.ProtoMinor
		if resp.Proto == "" {
			resp.Proto, resp.ProtoMajor, resp.ProtoMinor = "HTTP/1.1", 1, 1
		}
	}
	return resp
}

// envelope 是持久化提供者使用的序列化格式，ExpiresAt 为零值表示永不过期。
type envelope struct {
	Entry     *Entry    `json:"entry"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e envelope) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

func expiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
