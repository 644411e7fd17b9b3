// Package errs 定义调用链路上的错误分类：配置错误、校验错误、传输错误以及
// 非成功状态码。所有类型都支持 errors.Is / errors.As 判定。
package errs

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoResult 表示所有 return hook 执行完毕却没有产生结果。
	ErrNoResult = errors.New("no return hook produced a result")
	// ErrMissingHost 表示请求缺少 BaseURL/Host。
	ErrMissingHost = errors.New("request host is required")
)

// ConfigError 描述声明或装配层面的错误，对单次调用是致命的，重试没有意义。
type ConfigError struct {
	Action string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Action != "" {
		msg = fmt.Sprintf("%s: %s", e.Action, msg)
	}
	return "config: " + msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config 构造 ConfigError。
func Config(action, reason string) error {
	return &ConfigError{Action: action, Reason: reason}
}

// ValidationError 指出未通过约束的参数或属性名。
type ValidationError struct {
	Member string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %v", e.Member, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransportError 统一包装 Sender 返回的失败（包括取消）。
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Canceled() {
		return fmt.Sprintf("transport: %s %s canceled: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Canceled 报告失败是否源于取消信号或超时。
func (e *TransportError) Canceled() bool {
	return errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, context.DeadlineExceeded)
}

// StatusError 表示响应状态码不在 2xx 范围内。
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return "http status: " + e.Status
	}
	return fmt.Sprintf("http status: %d", e.StatusCode)
}

// IsConfig 判断错误链中是否包含 ConfigError。
func IsConfig(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// IsValidation 判断错误链中是否包含 ValidationError。
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsTransport 判断错误链中是否包含 TransportError。
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsCanceled 判断错误是否为取消类传输错误。
func IsCanceled(err error) bool {
	var target *TransportError
	if errors.As(err, &target) {
		return target.Canceled()
	}
	return false
}
