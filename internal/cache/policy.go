package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"sort"
	"time"

	"github.com/apicall/apicall/internal/hooks"
)

// Policy 是默认的缓存策略 hook：只缓存 GET 的 2xx 响应，
// 键由方法、完整 URL 以及 VaryHeaders 中列出的请求头派生。
type Policy struct {
	TTL         time.Duration
	VaryHeaders []string
}

// NewPolicy 创建缓存策略。
func NewPolicy(ttl time.Duration, varyHeaders ...string) *Policy {
	headers := append([]string(nil), varyHeaders...)
	sort.Strings(headers)
	return &Policy{TTL: ttl, VaryHeaders: headers}
}

// Name implements hooks.Hook.
func (p *Policy) Name() string { return "cache" }

// Meta implements hooks.Hook.
func (p *Policy) Meta() hooks.Meta { return hooks.Meta{} }

// ReadMode implements hooks.CacheHook.
func (p *Policy) ReadMode(rc *hooks.RequestContext) hooks.CacheMode {
	if rc.Request.Method != http.MethodGet {
		return hooks.CacheIgnore
	}
	return hooks.CacheNormal
}

// WriteMode implements hooks.CacheHook.
func (p *Policy) WriteMode(rc *hooks.RequestContext, resp *http.Response) hooks.CacheMode {
	if rc.Request.Method != http.MethodGet || resp.StatusCode < 200 || resp.StatusCode > 299 {
		return hooks.CacheIgnore
	}
	return hooks.CacheNormal
}

// CacheKey implements hooks.CacheHook.
func (p *Policy) CacheKey(_ context.Context, rc *hooks.RequestContext) (string, error) {
	target, err := rc.Request.URL()
	if err != nil {
		return "", err
	}
	h := sha1.New()
	h.Write([]byte(rc.Request.Method))
	h.Write([]byte{0})
	h.Write([]byte(target.String()))
	for _, name := range p.VaryHeaders {
		h.Write([]byte{0})
		h.Write([]byte(name))
		h.Write([]byte{'='})
		for _, value := range rc.Request.Header.Values(name) {
			h.Write([]byte(value))
			h.Write([]byte{','})
		}
	}
	return rc.Action + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

// CacheTTL implements hooks.CacheHook.
func (p *Policy) CacheTTL() time.Duration { return p.TTL }
