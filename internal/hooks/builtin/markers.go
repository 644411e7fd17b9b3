package builtin

import (
	"context"
	"io"
	"reflect"

	"github.com/apicall/apicall/internal/hooks"
)

// RawContent 作为参数类型时，其内容原样作为请求体发送。
type RawContent struct {
	ContentType string
	Data        []byte
}

// File 作为参数类型时，以 multipart/form-data 文件字段上传。
type File struct {
	Field   string
	Name    string
	Content io.Reader
}

var (
	contextType        = reflect.TypeFor[context.Context]()
	readerType         = reflect.TypeFor[io.Reader]()
	rawContentType     = reflect.TypeFor[RawContent]()
	fileType           = reflect.TypeFor[File]()
	selfDescribingType = reflect.TypeFor[hooks.SelfDescribing]()
)

// ImplicitHook 返回参数类型强制绑定的 hook；普通类型返回 nil。
// 标记类型的判定顺序：取消信号、文件、原始内容、自描述值。
func ImplicitHook(t reflect.Type) hooks.ParameterHook {
	if t == nil {
		return nil
	}
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	switch {
	case t.Implements(contextType):
		return Cancellation{}
	case base == fileType:
		return FileParam{}
	case base == rawContentType || t.Implements(readerType):
		return RawBody{}
	case t.Implements(selfDescribingType):
		return SelfDescribed{}
	}
	return nil
}

// DefaultParameterHook 是未声明任何 hook 的参数使用的隐式 hook。
func DefaultParameterHook() hooks.ParameterHook {
	return PathOrQuery{}
}
