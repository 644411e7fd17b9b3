// Package action 把接口/方法声明编译成不可变的 Descriptor，并提供进程级的
// build-or-get 注册表与调用表（方法标识 → Invoker）。
package action

import (
	"reflect"

	"github.com/apicall/apicall/internal/hooks"
)

// MemberKind 区分接口成员种类，只有方法可以成为调用。
type MemberKind int

const (
	MemberMethod MemberKind = iota
	MemberProperty
	MemberEvent
)

func (k MemberKind) String() string {
	switch k {
	case MemberProperty:
		return "property"
	case MemberEvent:
		return "event"
	default:
		return "method"
	}
}

// ReturnShape 描述方法签名的返回形态。ShapeCall 即 (T, error) 或 error。
type ReturnShape int

const (
	ShapeCall ReturnShape = iota
	ShapeValue
	ShapeNone
)

// Interface 是一组共享 hook 的方法声明。
type Interface struct {
	Name    string
	Hooks   []hooks.Hook
	Methods []*Method
}

// Method 是一个远程调用的声明。
type Method struct {
	Interface  *Interface
	Name       string
	Kind       MemberKind
	TypeParams []string
	Hooks      []hooks.Hook
	Params     []Param
	Return     ReturnSpec
}

// Param 是方法参数声明。Alias 非空时替代 Name 用于请求。
type Param struct {
	Name       string
	Alias      string
	Type       reflect.Type
	Out        bool
	Constraint string
	Hooks      []hooks.ParameterHook
}

// ReturnSpec 描述返回值。Type 为 nil 表示调用只返回 error。
type ReturnSpec struct {
	Type  reflect.Type
	Shape ReturnShape
}

// MethodID 是方法的身份，用作描述符缓存与调用表的键。
type MethodID struct {
	Interface string
	Method    string
}

func (id MethodID) String() string {
	if id.Interface == "" {
		return id.Method
	}
	return id.Interface + "." + id.Method
}

// ID 返回方法身份。
func (m *Method) ID() MethodID {
	id := MethodID{Method: m.Name}
	if m.Interface != nil {
		id.Interface = m.Interface.Name
	}
	return id
}

// AddMethod 把方法挂到接口上并回填 Interface 字段。
func (i *Interface) AddMethod(m *Method) *Method {
	m.Interface = i
	i.Methods = append(i.Methods, m)
	return m
}
