package hooks

import (
	"context"
	"net/http"
	"time"
)

// Meta 描述 hook 的排序与去重属性。Order 越小越先执行；AllowMultiple 为 false
// 时同名 hook 只保留优先级最高的声明（方法级优先于接口级）。
type Meta struct {
	Order         int
	AllowMultiple bool
}

// Hook 是所有 hook 的公共部分，Name 作为去重键。
type Hook interface {
	Name() string
	Meta() Meta
}

// ActionHook 作用于整个请求，例如设置 Method/Path 或追加统一的 Header。
type ActionHook interface {
	Hook
	ApplyAction(ctx context.Context, rc *RequestContext) error
}

// ParameterApplier 将单个参数值写入请求。
type ParameterApplier interface {
	ApplyParameter(ctx context.Context, pc *ParameterContext) error
}

// ParameterHook 是声明在参数上的 hook。
type ParameterHook interface {
	Hook
	ParameterApplier
}

// SelfDescribing 由参数值自身实现，参数会被强制交给该值处理。
type SelfDescribing = ParameterApplier

// FilterHook 包裹整个请求/响应，响应阶段无论结果如何都会执行。
type FilterHook interface {
	Hook
	BeforeSend(ctx context.Context, rc *RequestContext) error
	AfterReceive(ctx context.Context, resp *ResponseContext) error
}

// ReturnHook 负责解释响应；PrepareRequest 可提前设置协商相关的请求头。
type ReturnHook interface {
	Hook
	PrepareRequest(ctx context.Context, rc *RequestContext) error
	ReadResult(ctx context.Context, resp *ResponseContext) error
}

// CacheMode 控制单次调用是否参与缓存读或写。
type CacheMode int

const (
	CacheNormal CacheMode = iota
	CacheIgnore
)

func (m CacheMode) String() string {
	if m == CacheIgnore {
		return "ignore"
	}
	return "normal"
}

// CacheHook 提供缓存策略：读写模式、缓存键与过期时间。
type CacheHook interface {
	Hook
	ReadMode(rc *RequestContext) CacheMode
	WriteMode(rc *RequestContext, resp *http.Response) CacheMode
	CacheKey(ctx context.Context, rc *RequestContext) (string, error)
	CacheTTL() time.Duration
}
