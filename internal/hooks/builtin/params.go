package builtin

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"time"

	"github.com/apicall/apicall/internal/hooks"
)

// PathOrQuery 把参数写入同名路径占位符；路径中没有占位符时写入查询串。
type PathOrQuery struct{}

func (PathOrQuery) Name() string     { return "path-query" }
func (PathOrQuery) Meta() hooks.Meta { return hooks.Meta{} }

func (PathOrQuery) ApplyParameter(_ context.Context, pc *hooks.ParameterContext) error {
	if pc.Value == nil {
		return nil
	}
	if pc.Request.HasPlaceholder(pc.Parameter.Name) {
		pc.Request.PathValues[pc.Parameter.Name] = formatValue(pc.Value)
		return nil
	}
	for _, value := range formatValues(pc.Value) {
		pc.Request.Query.Add(pc.Parameter.Name, value)
	}
	return nil
}

// Query 强制写入查询串，Key 为空时使用参数名。
type Query struct{ Key string }

func (Query) Name() string     { return "query" }
func (Query) Meta() hooks.Meta { return hooks.Meta{} }

func (q Query) ApplyParameter(_ context.Context, pc *hooks.ParameterContext) error {
	if pc.Value == nil {
		return nil
	}
	key := q.Key
	if key == "" {
		key = pc.Parameter.Name
	}
	for _, value := range formatValues(pc.Value) {
		pc.Request.Query.Add(key, value)
	}
	return nil
}

// Path 强制写入路径占位符，占位符不存在时返回错误。
type Path struct{}

func (Path) Name() string     { return "path" }
func (Path) Meta() hooks.Meta { return hooks.Meta{} }

func (Path) ApplyParameter(_ context.Context, pc *hooks.ParameterContext) error {
	if !pc.Request.HasPlaceholder(pc.Parameter.Name) {
		return fmt.Errorf("path has no placeholder {%s}", pc.Parameter.Name)
	}
	if pc.Value == nil {
		return fmt.Errorf("path parameter %s is nil", pc.Parameter.Name)
	}
	pc.Request.PathValues[pc.Parameter.Name] = formatValue(pc.Value)
	return nil
}

// Header 把参数写入请求头，Key 为空时使用参数名。
type Header struct{ Key string }

func (Header) Name() string     { return "header" }
func (Header) Meta() hooks.Meta { return hooks.Meta{} }

func (h Header) ApplyParameter(_ context.Context, pc *hooks.ParameterContext) error {
	if pc.Value == nil {
		return nil
	}
	key := h.Key
	if key == "" {
		key = pc.Parameter.Name
	}
	for _, value := range formatValues(pc.Value) {
		pc.Request.Header.Add(key, value)
	}
	return nil
}

// JSONBody 把参数序列化为 JSON 请求体。
type JSONBody struct{}

func (JSONBody) Name() string     { return "body" }
func (JSONBody) Meta() hooks.Meta { return hooks.Meta{} }

func (JSONBody) ApplyParameter(_ context.Context, pc *hooks.ParameterContext) error {
	data, err := json.Marshal(pc.Value)
	if err != nil {
		return fmt.Errorf("encode %s as json: %w", pc.Parameter.Name, err)
	}
	pc.Request.SetBody("application/json", data)
	return nil
}

// JSONField 把参数作为 JSON 对象的一个字段累积到请求体，多个参数共享同一对象。
type JSONField struct{}

const propertyJSONFields = "builtin.json_fields"

func (JSONField) Name() string     { return "json-field" }
func (JSONField) Meta() hooks.Meta { return hooks.Meta{} }

func (JSONField) ApplyParameter(_ context.Context, pc *hooks.ParameterContext) error {
	fields, _ := pc.Get(propertyJSONFields)
	object, ok := fields.(map[string]any)
	if !ok {
		object = make(map[string]any)
		pc.Set(propertyJSONFields, object)
	}
	object[pc.Parameter.Name] = pc.Value
	data, err := json.Marshal(object)
	if err != nil {
		return fmt.Errorf("encode %s as json: %w", pc.Parameter.Name, err)
	}
	pc.Request.SetBody("application/json", data)
	return nil
}

// XMLBody 把参数序列化为 XML 请求体。
type XMLBody struct{}

func (XMLBody) Name() string     { return "body" }
func (XMLBody) Meta() hooks.Meta { return hooks.Meta{} }

func (XMLBody) ApplyParameter(_ context.Context, pc *hooks.ParameterContext) error {
	data, err := xml.Marshal(pc.Value)
	if err != nil {
		return fmt.Errorf("encode %s as xml: %w", pc.Parameter.Name, err)
	}
	pc.Request.SetBody("application/xml", data)
	return nil
}

// Form 把参数写入 application/x-www-form-urlencoded 表单。
type Form struct{ Key string }

func (Form) Name() string     { return "form" }
func (Form) Meta() hooks.Meta { return hooks.Meta{} }

func (f Form) ApplyParameter(_ context.Context, pc *hooks.ParameterContext) error {
	if pc.Value == nil {
		return nil
	}
	key := f.Key
	if key == "" {
		key = pc.Parameter.Name
	}
	for _, value := range formatValues(pc.Value) {
		pc.Request.Form.Add(key, value)
	}
	return nil
}

// RawBody 发送 RawContent 或 io.Reader 参数的原始内容。
type RawBody struct{}

func (RawBody) Name() string     { return "raw-body" }
func (RawBody) Meta() hooks.Meta { return hooks.Meta{} }

func (RawBody) ApplyParameter(_ context.Context, pc *hooks.ParameterContext) error {
	switch value := pc.Value.(type) {
	case nil:
		return nil
	case RawContent:
		pc.Request.SetBody(contentTypeOr(value.ContentType), value.Data)
	case *RawContent:
		if value != nil {
			pc.Request.SetBody(contentTypeOr(value.ContentType), value.Data)
		}
	case io.Reader:
		pc.Request.SetBodyReader(contentTypeOr(""), value)
	default:
		return fmt.Errorf("parameter %s: %T is not raw content", pc.Parameter.Name, pc.Value)
	}
	return nil
}

// FileParam 把 File 参数追加为 multipart 文件。
type FileParam struct{}

func (FileParam) Name() string     { return "file" }
func (FileParam) Meta() hooks.Meta { return hooks.Meta{AllowMultiple: true} }

func (FileParam) ApplyParameter(_ context.Context, pc *hooks.ParameterContext) error {
	var file File
	switch value := pc.Value.(type) {
	case nil:
		return nil
	case File:
		file = value
	case *File:
		if value == nil {
			return nil
		}
		file = *value
	default:
		return fmt.Errorf("parameter %s: %T is not a file", pc.Parameter.Name, pc.Value)
	}
	field := file.Field
	if field == "" {
		field = pc.Parameter.Name
	}
	pc.Request.Files = append(pc.Request.Files, hooks.FormFile{Field: field, FileName: file.Name, Content: file.Content})
	return nil
}

// Cancellation 把 context.Context 参数登记为取消来源，不改动请求。
type Cancellation struct{}

func (Cancellation) Name() string     { return "cancellation" }
func (Cancellation) Meta() hooks.Meta { return hooks.Meta{} }

func (Cancellation) ApplyParameter(_ context.Context, pc *hooks.ParameterContext) error {
	if signal, ok := pc.Value.(context.Context); ok {
		pc.AddSignal(signal)
	}
	return nil
}

// SelfDescribed 把参数交给值自身的 ApplyParameter 处理。
type SelfDescribed struct{}

func (SelfDescribed) Name() string     { return "self-describing" }
func (SelfDescribed) Meta() hooks.Meta { return hooks.Meta{} }

func (SelfDescribed) ApplyParameter(ctx context.Context, pc *hooks.ParameterContext) error {
	value, ok := pc.Value.(hooks.SelfDescribing)
	if !ok || isNil(pc.Value) {
		return nil
	}
	return value.ApplyParameter(ctx, pc)
}

func contentTypeOr(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}

func isNil(value any) bool {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return value == nil
}

func formatValues(value any) []string {
	v := reflect.ValueOf(value)
	if (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && v.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			out = append(out, formatValue(v.Index(i).Interface()))
		}
		return out
	}
	return []string{formatValue(value)}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(value)
	}
}
