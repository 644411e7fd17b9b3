package hooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/apicall/apicall/internal/errs"
)

// FormFile 是 multipart 请求中的单个文件。
type FormFile struct {
	Field    string
	FileName string
	Content  io.Reader
}

// Request 是出站请求的可变构建器，直到交换阶段才生成 *http.Request。
// Path 支持 {name} 占位符，由 PathValues 展开。
type Request struct {
	Method      string
	BaseURL     *url.URL
	Path        string
	PathValues  map[string]string
	Query       url.Values
	Header      http.Header
	Form        url.Values
	Files       []FormFile
	ContentType string

	body     io.Reader
	bodySize int64
}

// NewRequest 返回一个空的请求构建器。
func NewRequest(method string, base *url.URL, path string) *Request {
	if method == "" {
		method = http.MethodGet
	}
	return &Request{
		Method:     strings.ToUpper(method),
		BaseURL:    base,
		Path:       path,
		PathValues: make(map[string]string),
		Query:      url.Values{},
		Header:     http.Header{},
		Form:       url.Values{},
	}
}

// HasPlaceholder 判断路径模板中是否包含 {name}。
func (r *Request) HasPlaceholder(name string) bool {
	return strings.Contains(r.Path, "{"+name+"}")
}

// SetBody 设置原始请求体及其 Content-Type。
func (r *Request) SetBody(contentType string, body []byte) {
	r.ContentType = contentType
	r.body = bytes.NewReader(body)
	r.bodySize = int64(len(body))
}

// SetBodyReader 以流的方式设置请求体，长度未知。
func (r *Request) SetBodyReader(contentType string, body io.Reader) {
	r.ContentType = contentType
	r.body = body
	r.bodySize = -1
}

// HasBody 报告是否已经设置了正文（原始、表单或文件）。
func (r *Request) HasBody() bool {
	return r.body != nil || len(r.Form) > 0 || len(r.Files) > 0
}

// URL 展开路径模板并拼接查询参数。缺少 Host 时返回 ConfigError。
func (r *Request) URL() (*url.URL, error) {
	expanded := r.Path
	for name, value := range r.PathValues {
		expanded = strings.ReplaceAll(expanded, "{"+name+"}", url.PathEscape(value))
	}
	if idx := strings.Index(expanded, "{"); idx >= 0 {
		if end := strings.Index(expanded[idx:], "}"); end > 0 {
			return nil, &errs.ConfigError{Reason: fmt.Sprintf("unresolved path placeholder %s", expanded[idx:idx+end+1])}
		}
	}

	rel, err := url.Parse(expanded)
	if err != nil {
		return nil, &errs.ConfigError{Reason: "invalid request path", Err: err}
	}

	var target *url.URL
	switch {
	case rel.IsAbs():
		target = rel
	case r.BaseURL != nil && r.BaseURL.Host != "":
		base := *r.BaseURL
		if rel.Path != "" && !strings.HasPrefix(rel.Path, "/") && !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		target = base.ResolveReference(rel)
	default:
		return nil, &errs.ConfigError{Reason: "request has no host", Err: errs.ErrMissingHost}
	}

	if len(r.Query) > 0 {
		query := target.Query()
		keys := make([]string, 0, len(r.Query))
		for key := range r.Query {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			for _, value := range r.Query[key] {
				query.Add(key, value)
			}
		}
		target.RawQuery = query.Encode()
	}
	return target, nil
}

// Build 生成绑定 ctx 的 *http.Request。
func (r *Request) Build(ctx context.Context) (*http.Request, error) {
	target, err := r.URL()
	if err != nil {
		return nil, err
	}

	body, contentType, size, err := r.encodeBody()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, &errs.ConfigError{Reason: "build request", Err: err}
	}
	for key, values := range r.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if size >= 0 {
		req.ContentLength = size
	}
	return req, nil
}

func (r *Request) encodeBody() (io.Reader, string, int64, error) {
	switch {
	case len(r.Files) > 0:
		buf := &bytes.Buffer{}
		writer := multipart.NewWriter(buf)
		for key, values := range r.Form {
			for _, value := range values {
				if err := writer.WriteField(key, value); err != nil {
					return nil, "", 0, err
				}
			}
		}
		for _, file := range r.Files {
			part, err := writer.CreateFormFile(file.Field, file.FileName)
			if err != nil {
				return nil, "", 0, err
			}
			if _, err := io.Copy(part, file.Content); err != nil {
				return nil, "", 0, fmt.Errorf("copy form file %s: %w", file.FileName, err)
			}
		}
		if err := writer.Close(); err != nil {
			return nil, "", 0, err
		}
		return buf, writer.FormDataContentType(), int64(buf.Len()), nil
	case len(r.Form) > 0:
		encoded := r.Form.Encode()
		return strings.NewReader(encoded), "application/x-www-form-urlencoded", int64(len(encoded)), nil
	case r.body != nil:
		return r.body, r.ContentType, r.bodySize, nil
	default:
		return http.NoBody, "", 0, nil
	}
}
