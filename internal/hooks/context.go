// Package hooks 定义调用链路中 hook 的契约以及贯穿各阶段的上下文对象，
// 不依赖 action/pipeline 的内部实现，便于 hook 插件独立编写。
package hooks

import (
	"context"
	"reflect"

	"github.com/sirupsen/logrus"
)

// DataType 描述返回值类型；Raw 类型（string/[]byte/流/原始响应）跳过反序列化。
type DataType struct {
	Type reflect.Type
	Raw  bool
}

// Parameter 描述一个已解析的参数（名称已应用别名）。
type Parameter struct {
	Index int
	Name  string
	Type  reflect.Type
}

// RequestContext 在一次调用中独占，贯穿请求阶段的全部 hook。
type RequestContext struct {
	// ID 是本次调用的唯一标识，写入日志字段。
	ID string
	// Action 是方法标识，例如 "Users.Get"。
	Action string
	// Return 是声明的返回类型，return hook 据此反序列化。
	Return DataType

	Request *Request
	Args    []any
	// Signals 保存所有取消来源，只在交换阶段被链接成一个 context。
	Signals []context.Context
	Logger  *logrus.Entry

	properties map[string]any
	releases   []func()
}

// NewRequestContext 创建调用上下文，args 按参数序号寻址。
func NewRequestContext(id, action string, req *Request, args []any) *RequestContext {
	if req == nil {
		req = NewRequest("", nil, "")
	}
	return &RequestContext{
		ID:         id,
		Action:     action,
		Request:    req,
		Args:       args,
		properties: make(map[string]any),
		Logger:     logrus.NewEntry(logrus.StandardLogger()),
	}
}

// Arg 返回第 index 个参数，越界时返回 nil。
func (rc *RequestContext) Arg(index int) any {
	if index < 0 || index >= len(rc.Args) {
		return nil
	}
	return rc.Args[index]
}

// Set 在属性袋中保存跨阶段数据。
func (rc *RequestContext) Set(key string, value any) {
	if rc.properties == nil {
		rc.properties = make(map[string]any)
	}
	rc.properties[key] = value
}

// Get 读取属性袋中的值。
func (rc *RequestContext) Get(key string) (any, bool) {
	value, ok := rc.properties[key]
	return value, ok
}

// AddSignal 追加一个取消来源，nil 会被忽略。
func (rc *RequestContext) AddSignal(ctx context.Context) {
	if ctx == nil || ctx.Done() == nil {
		return
	}
	rc.Signals = append(rc.Signals, ctx)
}

// Canceled 报告是否有任一取消来源已经触发，供需要主动观察取消的 hook 使用。
func (rc *RequestContext) Canceled() bool {
	for _, signal := range rc.Signals {
		if signal.Err() != nil {
			return true
		}
	}
	return false
}

// OnRelease 登记调用结束时必须执行的清理函数，例如释放超时计时器。
func (rc *RequestContext) OnRelease(fn func()) {
	if fn != nil {
		rc.releases = append(rc.releases, fn)
	}
}

// Release 按登记的逆序执行清理函数，重复调用无副作用。
func (rc *RequestContext) Release() {
	for i := len(rc.releases) - 1; i >= 0; i-- {
		rc.releases[i]()
	}
	rc.releases = nil
}

// ParameterContext 将 RequestContext 限定到单个参数。
type ParameterContext struct {
	*RequestContext
	Parameter Parameter
	Value     any
}

// NewParameterContext 以参数描述和实参构造参数级上下文。
func NewParameterContext(rc *RequestContext, param Parameter) *ParameterContext {
	return &ParameterContext{
		RequestContext: rc,
		Parameter:      param,
		Value:          rc.Arg(param.Index),
	}
}
