package cache

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apicall/apicall/internal/hooks"
	"github.com/apicall/apicall/internal/telemetry"
)

// PropertyProvider 是命中缓存时写入 RequestContext 属性袋的键，值为提供者名称。
const PropertyProvider = "cache.provider"

// Lookup 是一次读缓存的结果；Key 在未命中时保留，供随后的写入复用。
type Lookup struct {
	Key      string
	Response *http.Response
}

// Hit 报告是否命中。
func (l Lookup) Hit() bool { return l.Response != nil }

// Subsystem 根据策略 hook 决定是否读写缓存，并把缓存错误降级为日志。
type Subsystem struct {
	provider Provider
	logger   *logrus.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// NewSubsystem 构造缓存子系统；provider 为空时所有操作都是空操作。
func NewSubsystem(provider Provider, logger *logrus.Logger, metrics *telemetry.Metrics) *Subsystem {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Subsystem{
		provider: provider,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Enabled 返回当前调用是否具备缓存能力：需要策略与提供者同时存在。
func (s *Subsystem) Enabled(policy hooks.CacheHook) bool {
	return s != nil && s.provider != nil && policy != nil
}

// ProviderName 返回提供者名称，未启用时为空。
func (s *Subsystem) ProviderName() string {
	if s == nil || s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// TryRead 按读模式与缓存键查询提供者；命中时基于 req 合成响应。
func (s *Subsystem) TryRead(ctx context.Context, rc *hooks.RequestContext, policy hooks.CacheHook, req *http.Request) Lookup {
	if !s.Enabled(policy) {
		return Lookup{}
	}
	if policy.ReadMode(rc) == hooks.CacheIgnore {
		return Lookup{}
	}

	key, err := policy.CacheKey(ctx, rc)
	if err != nil {
		s.warn(rc, err, "cache_key_failed")
		return Lookup{}
	}
	if key == "" {
		return Lookup{}
	}

	entry, err := s.provider.Get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		s.metrics.RecordCacheLookup(s.provider.Name(), "miss")
		return Lookup{Key: key}
	default:
		s.metrics.RecordCacheLookup(s.provider.Name(), "error")
		s.warn(rc, err, "cache_get_failed")
		return Lookup{Key: key}
	}

	s.metrics.RecordCacheLookup(s.provider.Name(), "hit")
	rc.Set(PropertyProvider, s.provider.Name())
	return Lookup{Key: key, Response: entry.Response(req, s.provider.Name())}
}

// Write 按写模式把响应保存到提供者，优先复用读阶段得到的键。
func (s *Subsystem) Write(ctx context.Context, lookup Lookup, rc *hooks.RequestContext, policy hooks.CacheHook, resp *http.Response) {
	if !s.Enabled(policy) || resp == nil || lookup.Hit() {
		return
	}
	if policy.WriteMode(rc, resp) == hooks.CacheIgnore {
		return
	}

	key := lookup.Key
	if key == "" {
		var err error
		if key, err = policy.CacheKey(ctx, rc); err != nil {
			s.warn(rc, err, "cache_key_failed")
			return
		}
	}
	if key == "" {
		return
	}

	entry, err := NewEntry(resp, s.now())
	if err != nil {
		s.metrics.RecordCacheWrite(s.provider.Name(), "error")
		s.warn(rc, err, "cache_entry_failed")
		return
	}
	if err := s.provider.Set(ctx, key, entry, policy.CacheTTL()); err != nil {
		s.metrics.RecordCacheWrite(s.provider.Name(), "error")
		s.warn(rc, err, "cache_set_failed")
		return
	}
	s.metrics.RecordCacheWrite(s.provider.Name(), "stored")
}

func (s *Subsystem) warn(rc *hooks.RequestContext, err error, msg string) {
	fields := logrus.Fields{
		"action":   rc.Action,
		"call_id":  rc.ID,
		"provider": s.provider.Name(),
	}
	s.logger.WithError(err).WithFields(fields).Warn(msg)
}
