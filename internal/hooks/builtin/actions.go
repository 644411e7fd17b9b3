package builtin

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/apicall/apicall/internal/hooks"
)

// Host 设置请求的 BaseURL。
type Host struct{ URL *url.URL }

func (Host) Name() string     { return "host" }
func (Host) Meta() hooks.Meta { return hooks.Meta{Order: -100} }

func (h Host) ApplyAction(_ context.Context, rc *hooks.RequestContext) error {
	if h.URL != nil {
		base := *h.URL
		rc.Request.BaseURL = &base
	}
	return nil
}

// Endpoint 设置请求方法与路径模板。
type Endpoint struct {
	Method string
	Path   string
}

func (Endpoint) Name() string     { return "endpoint" }
func (Endpoint) Meta() hooks.Meta { return hooks.Meta{Order: -90} }

func (e Endpoint) ApplyAction(_ context.Context, rc *hooks.RequestContext) error {
	if e.Method != "" {
		rc.Request.Method = strings.ToUpper(e.Method)
	}
	if e.Path != "" {
		rc.Request.Path = e.Path
	}
	return nil
}

// Headers 追加固定请求头，接口级与方法级声明会累积。
type Headers struct{ Values http.Header }

func (Headers) Name() string     { return "headers" }
func (Headers) Meta() hooks.Meta { return hooks.Meta{AllowMultiple: true} }

func (h Headers) ApplyAction(_ context.Context, rc *hooks.RequestContext) error {
	for key, values := range h.Values {
		for _, value := range values {
			rc.Request.Header.Add(key, value)
		}
	}
	return nil
}
