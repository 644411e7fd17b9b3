// Package transport 提供 HTTP 发送器及共享 http.Client，调用核心只依赖 Sender 接口。
package transport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Sender 把构建好的请求发送出去。请求携带的 context 即链接后的取消信号。
type Sender interface {
	Send(req *http.Request) (*http.Response, error)
}

// SenderFunc 让普通函数满足 Sender。
type SenderFunc func(req *http.Request) (*http.Response, error)

// Send implements Sender.
func (f SenderFunc) Send(req *http.Request) (*http.Response, error) {
	return f(req)
}

// HTTPSender 基于 http.Client 发送请求，并在返回前读完正文：
// 链接的取消信号在 Send 返回后立即释放，之后再读正文会失败。
type HTTPSender struct {
	client  *http.Client
	maxBody int64
}

// NewHTTPSender 构造发送器，client 为空时使用 NewHTTPClient(0)。
func NewHTTPSender(client *http.Client) *HTTPSender {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &HTTPSender{client: client, maxBody: 64 << 20}
}

// Send implements Sender.
func (s *HTTPSender) Send(req *http.Request) (*http.Response, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > s.maxBody {
		return nil, fmt.Errorf("response body exceeds %d bytes", s.maxBody)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}
