package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/apicall/apicall/internal/errs"
	"github.com/apicall/apicall/internal/hooks"
)

// DefaultReturnOrder 是默认返回 hook 的排序值，任何用户声明的 hook 都排在其之前。
const DefaultReturnOrder = 1 << 30

// DefaultReturnHooks 返回 JSON、XML、原始透传三个默认返回 hook，按此顺序尝试。
func DefaultReturnHooks() []hooks.ReturnHook {
	return []hooks.ReturnHook{
		JSONReturn{Order: DefaultReturnOrder},
		XMLReturn{Order: DefaultReturnOrder},
		RawReturn{Order: DefaultReturnOrder},
	}
}

// IsRawType 报告返回类型是否跳过内容反序列化：string、[]byte、io.ReadCloser、*http.Response。
func IsRawType(t reflect.Type) bool {
	if t == nil {
		return true
	}
	switch t {
	case reflect.TypeFor[string](), reflect.TypeFor[[]byte](),
		reflect.TypeFor[io.ReadCloser](), reflect.TypeFor[io.Reader](),
		reflect.TypeFor[*http.Response]():
		return true
	}
	return false
}

// XMLNode 是未声明结构时的通用 XML 树。
type XMLNode struct {
	XMLName  xml.Name   `json:"name"`
	Attrs    []xml.Attr `xml:",any,attr" json:"attrs,omitempty"`
	Children []XMLNode  `xml:",any" json:"children,omitempty"`
	Text     string     `xml:",chardata" json:"text,omitempty"`
}

// JSONReturn 解码 JSON 响应（或未标明类型的响应）。非 2xx 响应不论内容类型都转换为 StatusError。
type JSONReturn struct{ Order int }

func (JSONReturn) Name() string       { return "json" }
func (r JSONReturn) Meta() hooks.Meta { return hooks.Meta{Order: r.Order} }

func (JSONReturn) PrepareRequest(_ context.Context, rc *hooks.RequestContext) error {
	if !rc.Return.Raw {
		rc.Request.Header.Add("Accept", "application/json")
	}
	return nil
}

func (JSONReturn) ReadResult(_ context.Context, resp *hooks.ResponseContext) error {
	if resp.Return.Raw {
		return nil
	}
	body, err := successBody(resp)
	if err != nil {
		return err
	}
	mediaType := mediaTypeOf(resp)
	if mediaType != "" && mediaType != "application/json" && !strings.HasSuffix(mediaType, "+json") {
		return nil
	}
	if resp.Return.Type == nil || len(bytes.TrimSpace(body)) == 0 {
		resp.SetResult(zeroValue(resp.Return.Type))
		return nil
	}
	target := reflect.New(resp.Return.Type)
	if err := json.Unmarshal(body, target.Interface()); err != nil {
		return fmt.Errorf("decode json response: %w", err)
	}
	resp.SetResult(target.Elem().Interface())
	return nil
}

// XMLReturn 解码 XML 响应，状态码检查先于内容类型判断。
type XMLReturn struct{ Order int }

func (XMLReturn) Name() string       { return "xml" }
func (r XMLReturn) Meta() hooks.Meta { return hooks.Meta{Order: r.Order} }

func (XMLReturn) PrepareRequest(_ context.Context, rc *hooks.RequestContext) error {
	if !rc.Return.Raw {
		rc.Request.Header.Add("Accept", "application/xml")
	}
	return nil
}

func (XMLReturn) ReadResult(_ context.Context, resp *hooks.ResponseContext) error {
	if resp.Return.Raw {
		return nil
	}
	body, err := successBody(resp)
	if err != nil {
		return err
	}
	mediaType := mediaTypeOf(resp)
	if mediaType != "application/xml" && mediaType != "text/xml" && !strings.HasSuffix(mediaType, "+xml") {
		return nil
	}
	if resp.Return.Type == nil {
		resp.SetResult(nil)
		return nil
	}
	target := reflect.New(resp.Return.Type)
	if err := xml.Unmarshal(body, target.Interface()); err != nil {
		return fmt.Errorf("decode xml response: %w", err)
	}
	resp.SetResult(target.Elem().Interface())
	return nil
}

// RawReturn 把响应原样交给原始类型；非原始类型走到这里说明内容类型无法解码。
type RawReturn struct{ Order int }

func (RawReturn) Name() string       { return "raw" }
func (r RawReturn) Meta() hooks.Meta { return hooks.Meta{Order: r.Order} }

func (RawReturn) PrepareRequest(context.Context, *hooks.RequestContext) error { return nil }

func (RawReturn) ReadResult(_ context.Context, resp *hooks.ResponseContext) error {
	if resp.Return.Type == reflect.TypeFor[*http.Response]() {
		resp.SetResult(resp.Response)
		return nil
	}
	body, err := successBody(resp)
	if err != nil {
		return err
	}
	switch resp.Return.Type {
	case nil:
		resp.SetResult(nil)
	case reflect.TypeFor[string]():
		resp.SetResult(string(body))
	case reflect.TypeFor[[]byte]():
		resp.SetResult(body)
	case reflect.TypeFor[io.ReadCloser](), reflect.TypeFor[io.Reader]():
		resp.SetResult(io.NopCloser(bytes.NewReader(body)))
	default:
		return fmt.Errorf("cannot decode %q into %s", resp.ContentType(), resp.Return.Type)
	}
	return nil
}

// successBody 返回 2xx 响应的正文；其他状态码转换为 StatusError。
func successBody(resp *hooks.ResponseContext) ([]byte, error) {
	if resp.Response == nil {
		return nil, fmt.Errorf("no response")
	}
	body, err := resp.Body()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.Response.StatusCode < 200 || resp.Response.StatusCode > 299 {
		return nil, &errs.StatusError{
			StatusCode: resp.Response.StatusCode,
			Status:     resp.Response.Status,
			Body:       body,
		}
	}
	return body, nil
}

func mediaTypeOf(resp *hooks.ResponseContext) string {
	raw := resp.ContentType()
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mediaType
}

func zeroValue(t reflect.Type) any {
	if t == nil {
		return nil
	}
	return reflect.Zero(t).Interface()
}
