package action

import (
	"github.com/apicall/apicall/internal/hooks"
)

// Descriptor 是方法的编译结果：各类 hook 已去重并按 Order 稳定排序。
// 构建后不再修改，可以无锁并发读取。
type Descriptor struct {
	ID          MethodID
	ActionHooks []hooks.ActionHook
	FilterHooks []hooks.FilterHook
	Parameters  []ParameterDescriptor
	ReturnHooks []hooks.ReturnHook
	CacheHook   hooks.CacheHook
	Return      hooks.DataType
}

// ParameterDescriptor 描述一个参数及其有序 hook。
type ParameterDescriptor struct {
	hooks.Parameter
	Constraint string
	Hooks      []hooks.ParameterHook
}

// Summary 是 Descriptor 的可序列化视图，用于诊断接口。
type Summary struct {
	Action      string             `json:"action"`
	ActionHooks []string           `json:"action_hooks"`
	Parameters  []ParameterSummary `json:"parameters"`
	FilterHooks []string           `json:"filter_hooks"`
	ReturnHooks []string           `json:"return_hooks"`
	CacheHook   string             `json:"cache_hook,omitempty"`
	ReturnType  string             `json:"return_type"`
	RawReturn   bool               `json:"raw_return"`
}

// ParameterSummary 是参数的可序列化视图。
type ParameterSummary struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Constraint string   `json:"constraint,omitempty"`
	Hooks      []string `json:"hooks"`
}

// Summary 生成诊断视图。
func (d *Descriptor) Summary() Summary {
	summary := Summary{
		Action:      d.ID.String(),
		ActionHooks: hookNames(d.ActionHooks),
		FilterHooks: hookNames(d.FilterHooks),
		ReturnHooks: hookNames(d.ReturnHooks),
		RawReturn:   d.Return.Raw,
		ReturnType:  "none",
	}
	if d.Return.Type != nil {
		summary.ReturnType = d.Return.Type.String()
	}
	if d.CacheHook != nil {
		summary.CacheHook = d.CacheHook.Name()
	}
	for _, param := range d.Parameters {
		typeName := "any"
		if param.Type != nil {
			typeName = param.Type.String()
		}
		summary.Parameters = append(summary.Parameters, ParameterSummary{
			Name:       param.Name,
			Type:       typeName,
			Constraint: param.Constraint,
			Hooks:      hookNames(param.Hooks),
		})
	}
	return summary
}

func hookNames[T hooks.Hook](list []T) []string {
	names := make([]string, 0, len(list))
	for _, h := range list {
		names = append(names, h.Name())
	}
	return names
}
