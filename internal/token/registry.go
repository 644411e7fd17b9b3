package token

import "sync"

// Registry 按名称保存进程内共享的 Provider，由装配层创建一次后传递使用。
type Registry struct {
	providers sync.Map
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{}
}

// GetOrCreate 返回已注册的 Provider；不存在时调用 build 并保存。
// 并发首次创建时只保留一个结果，因此 build 不应有副作用。
func (r *Registry) GetOrCreate(name string, build func() *Provider) *Provider {
	if existing, ok := r.providers.Load(name); ok {
		return existing.(*Provider)
	}
	actual, _ := r.providers.LoadOrStore(name, build())
	return actual.(*Provider)
}

// Get 按名称查找 Provider。
func (r *Registry) Get(name string) (*Provider, bool) {
	value, ok := r.providers.Load(name)
	if !ok {
		return nil, false
	}
	return value.(*Provider), true
}

// Names 返回全部已注册名称，顺序不固定。
func (r *Registry) Names() []string {
	var names []string
	r.providers.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}
