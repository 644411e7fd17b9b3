package action

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry 是进程级描述符缓存，由装配层创建一次后传入各调用点。
// GetOrBuild 可并发调用；首次构建的竞争是允许的，只保留一个结果。
type Registry struct {
	descriptors sync.Map
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{}
}

// GetOrBuild 返回方法的描述符，不存在时构建并缓存。构建失败不会被缓存。
func (r *Registry) GetOrBuild(m *Method) (*Descriptor, error) {
	id := m.ID()
	if existing, ok := r.descriptors.Load(id); ok {
		return existing.(*Descriptor), nil
	}
	desc, err := Build(m)
	if err != nil {
		return nil, err
	}
	actual, _ := r.descriptors.LoadOrStore(id, desc)
	return actual.(*Descriptor), nil
}

// Get 返回已构建的描述符。
func (r *Registry) Get(id MethodID) (*Descriptor, bool) {
	value, ok := r.descriptors.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*Descriptor), true
}

// Descriptors 返回全部描述符，按方法标识排序。
func (r *Registry) Descriptors() []*Descriptor {
	var list []*Descriptor
	r.descriptors.Range(func(_, value any) bool {
		list = append(list, value.(*Descriptor))
		return true
	})
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID.String() < list[j].ID.String()
	})
	return list
}

// Invoker 执行一次调用，返回物化后的结果或错误。
type Invoker interface {
	Invoke(ctx context.Context, args []any) (any, error)
}

// InvokerFunc 让普通函数满足 Invoker。
type InvokerFunc func(ctx context.Context, args []any) (any, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, args []any) (any, error) {
	return f(ctx, args)
}

// InvokerTable 把方法标识映射到 Invoker，取代运行时的动态分派。
type InvokerTable struct {
	mu       sync.RWMutex
	invokers map[MethodID]Invoker
	byName   map[string]MethodID
}

// NewInvokerTable 创建空调用表。
func NewInvokerTable() *InvokerTable {
	return &InvokerTable{
		invokers: make(map[MethodID]Invoker),
		byName:   make(map[string]MethodID),
	}
}

// Register 登记 Invoker，重复登记同一标识返回错误。
func (t *InvokerTable) Register(id MethodID, invoker Invoker) error {
	if invoker == nil {
		return fmt.Errorf("invoker for %s is nil", id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.invokers[id]; exists {
		return fmt.Errorf("invoker for %s already registered", id)
	}
	t.invokers[id] = invoker
	t.byName[id.String()] = id
	return nil
}

// Lookup 按标识查找 Invoker。
func (t *InvokerTable) Lookup(id MethodID) (Invoker, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	invoker, ok := t.invokers[id]
	return invoker, ok
}

// LookupName 按 "Interface.Method" 形式的名称查找。
func (t *InvokerTable) LookupName(name string) (MethodID, Invoker, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byName[name]
	if !ok {
		return MethodID{}, nil, false
	}
	return id, t.invokers[id], true
}

// IDs 返回所有已登记标识，按名称排序。
func (t *InvokerTable) IDs() []MethodID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]MethodID, 0, len(t.invokers))
	for id := range t.invokers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
