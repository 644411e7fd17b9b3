package action

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/apicall/apicall/internal/errs"
	"github.com/apicall/apicall/internal/hooks"
	"github.com/apicall/apicall/internal/hooks/builtin"
)

// Build 把方法声明编译为 Descriptor。Build 是纯函数：同一声明多次构建得到
// 顺序一致的 hook 列表，因此注册表可以容忍并发重复构建。
//
// 优先级：方法级声明排在接口级之前；AllowMultiple 为 false 的 hook 按 Name
// 只保留第一次出现（方法级胜出），允许重复的 hook 两级累积。随后按 Order 稳定排序。
func Build(m *Method) (*Descriptor, error) {
	if m == nil {
		return nil, errs.Config("", "method declaration is nil")
	}
	id := m.ID()
	if err := checkShape(id, m); err != nil {
		return nil, err
	}

	var interfaceHooks []hooks.Hook
	if m.Interface != nil {
		interfaceHooks = m.Interface.Hooks
	}
	methodSet, err := categorize(id, m.Hooks)
	if err != nil {
		return nil, err
	}
	interfaceSet, err := categorize(id, interfaceHooks)
	if err != nil {
		return nil, err
	}

	desc := &Descriptor{
		ID:          id,
		ActionHooks: merge(methodSet.actions, interfaceSet.actions),
		FilterHooks: merge(methodSet.filters, interfaceSet.filters),
		ReturnHooks: merge(methodSet.returns, interfaceSet.returns),
		Return: hooks.DataType{
			Type: m.Return.Type,
			Raw:  builtin.IsRawType(m.Return.Type),
		},
	}
	if caches := append(methodSet.caches, interfaceSet.caches...); len(caches) > 0 {
		desc.CacheHook = caches[0]
	}
	if len(desc.ReturnHooks) == 0 {
		desc.ReturnHooks = builtin.DefaultReturnHooks()
	}

	seen := make(map[string]struct{}, len(m.Params))
	for index, param := range m.Params {
		name := param.Name
		if param.Alias != "" {
			name = param.Alias
		}
		if name == "" {
			return nil, errs.Config(id.String(), fmt.Sprintf("parameter %d has no name", index))
		}
		if _, dup := seen[name]; dup {
			return nil, errs.Config(id.String(), fmt.Sprintf("duplicate parameter name %q", name))
		}
		seen[name] = struct{}{}

		desc.Parameters = append(desc.Parameters, ParameterDescriptor{
			Parameter:  hooks.Parameter{Index: index, Name: name, Type: param.Type},
			Constraint: param.Constraint,
			Hooks:      parameterHooks(param),
		})
	}
	return desc, nil
}

func checkShape(id MethodID, m *Method) error {
	switch {
	case m.Kind != MemberMethod:
		return errs.Config(id.String(), fmt.Sprintf("%s members cannot be called", m.Kind))
	case len(m.TypeParams) > 0:
		return errs.Config(id.String(), "generic methods are not supported")
	case m.Return.Shape != ShapeCall:
		return errs.Config(id.String(), "return type must be (T, error) or error")
	}
	for _, param := range m.Params {
		if param.Out {
			return errs.Config(id.String(), fmt.Sprintf("output parameter %q is not supported", param.Name))
		}
	}
	return nil
}

// parameterHooks 返回参数的有序 hook：标记类型强制使用隐式 hook，
// 未声明 hook 的参数使用默认 path/query hook。
func parameterHooks(param Param) []hooks.ParameterHook {
	if implicit := builtin.ImplicitHook(param.Type); implicit != nil {
		return []hooks.ParameterHook{implicit}
	}
	if len(param.Hooks) == 0 {
		return []hooks.ParameterHook{builtin.DefaultParameterHook()}
	}
	return merge(param.Hooks, nil)
}

type hookSet struct {
	actions []hooks.ActionHook
	filters []hooks.FilterHook
	returns []hooks.ReturnHook
	caches  []hooks.CacheHook
}

// categorize 按接口把混合声明的 hook 分类，一个值可以同时属于多个类别。
func categorize(id MethodID, declared []hooks.Hook) (hookSet, error) {
	var set hookSet
	for _, h := range declared {
		matched := false
		if v, ok := h.(hooks.ActionHook); ok {
			set.actions = append(set.actions, v)
			matched = true
		}
		if v, ok := h.(hooks.FilterHook); ok {
			set.filters = append(set.filters, v)
			matched = true
		}
		if v, ok := h.(hooks.ReturnHook); ok {
			set.returns = append(set.returns, v)
			matched = true
		}
		if v, ok := h.(hooks.CacheHook); ok {
			set.caches = append(set.caches, v)
			matched = true
		}
		if !matched {
			return hookSet{}, errs.Config(id.String(), fmt.Sprintf("hook %q cannot be declared on a method or interface", h.Name()))
		}
	}
	return set, nil
}

// merge 依次拼接高优先级与低优先级声明，按 Name 去重不允许重复的 hook，
// 最后按 Meta().Order 稳定排序。
func merge[T hooks.Hook](primary, secondary []T) []T {
	out := make([]T, 0, len(primary)+len(secondary))
	seen := make(map[string]struct{})
	for _, list := range [][]T{primary, secondary} {
		for _, h := range list {
			if !h.Meta().AllowMultiple {
				if _, dup := seen[h.Name()]; dup {
					continue
				}
				seen[h.Name()] = struct{}{}
			}
			out = append(out, h)
		}
	}
	slices.SortStableFunc(out, func(a, b T) int {
		return cmp.Compare(a.Meta().Order, b.Meta().Order)
	})
	return out
}
