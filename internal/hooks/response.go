package hooks

import (
	"bytes"
	"io"
	"net/http"
)

// ResultStatus 是响应上下文的三态结果。
type ResultStatus int

const (
	ResultNone ResultStatus = iota
	ResultValue
	ResultException
)

func (s ResultStatus) String() string {
	switch s {
	case ResultValue:
		return "has_result"
	case ResultException:
		return "has_exception"
	default:
		return "none"
	}
}

// ResponseContext 在交换完成后扩展 RequestContext。Response 在传输失败时为 nil。
// 结果与异常互斥：设置其一会清除另一个。
type ResponseContext struct {
	*RequestContext
	Response *http.Response

	status ResultStatus
	value  any
	err    error

	body     []byte
	bodyRead bool
	bodyErr  error
}

// NewResponseContext 基于请求上下文和响应构造响应上下文。
func NewResponseContext(rc *RequestContext, resp *http.Response) *ResponseContext {
	return &ResponseContext{RequestContext: rc, Response: resp}
}

// Status 返回当前结果状态。
func (r *ResponseContext) Status() ResultStatus { return r.status }

// Value 返回结果值，仅在 ResultValue 时有意义。
func (r *ResponseContext) Value() any { return r.value }

// Err 返回异常，仅在 ResultException 时有意义。
func (r *ResponseContext) Err() error { return r.err }

// SetResult 记录结果并清除异常。
func (r *ResponseContext) SetResult(value any) {
	r.value = value
	r.err = nil
	r.status = ResultValue
}

// SetException 记录异常并清除结果，err 为 nil 时不做任何事。
func (r *ResponseContext) SetException(err error) {
	if err == nil {
		return
	}
	r.err = err
	r.value = nil
	r.status = ResultException
}

// Body 读取并缓存响应正文，之后 Response.Body 会被替换为可重复读取的副本。
func (r *ResponseContext) Body() ([]byte, error) {
	if r.bodyRead {
		return r.body, r.bodyErr
	}
	r.bodyRead = true
	if r.Response == nil || r.Response.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Response.Body)
	_ = r.Response.Body.Close()
	r.body, r.bodyErr = data, err
	r.Response.Body = io.NopCloser(bytes.NewReader(data))
	return r.body, r.bodyErr
}

// ContentType 返回响应的 Content-Type 头。
func (r *ResponseContext) ContentType() string {
	if r.Response == nil {
		return ""
	}
	return r.Response.Header.Get("Content-Type")
}
