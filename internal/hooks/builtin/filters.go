package builtin

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apicall/apicall/internal/hooks"
)

const propertyTimeoutCancel = "builtin.timeout_cancel"

// Timeout 在发送前登记一个带超时的取消来源，响应阶段释放它；
// 请求阶段中途失败时由调用结束时的 Release 兜底释放。
type Timeout struct {
	Duration time.Duration
	Order    int
}

func (Timeout) Name() string       { return "timeout" }
func (t Timeout) Meta() hooks.Meta { return hooks.Meta{Order: t.Order} }

func (t Timeout) BeforeSend(_ context.Context, rc *hooks.RequestContext) error {
	if t.Duration <= 0 {
		return nil
	}
	signal, cancel := context.WithTimeout(context.Background(), t.Duration)
	rc.AddSignal(signal)
	rc.Set(propertyTimeoutCancel, cancel)
	rc.OnRelease(cancel)
	return nil
}

func (Timeout) AfterReceive(_ context.Context, resp *hooks.ResponseContext) error {
	if value, ok := resp.Get(propertyTimeoutCancel); ok {
		if cancel, ok := value.(context.CancelFunc); ok {
			cancel()
		}
	}
	return nil
}

// Logging 以 debug 级别记录出站请求与响应结果。
type Logging struct{ Order int }

func (Logging) Name() string       { return "logging" }
func (l Logging) Meta() hooks.Meta { return hooks.Meta{Order: l.Order} }

func (Logging) BeforeSend(_ context.Context, rc *hooks.RequestContext) error {
	fields := logrus.Fields{"method": rc.Request.Method}
	if target, err := rc.Request.URL(); err == nil {
		fields["url"] = target.String()
	}
	rc.Logger.WithFields(fields).Debug("request_prepared")
	return nil
}

func (Logging) AfterReceive(_ context.Context, resp *hooks.ResponseContext) error {
	fields := logrus.Fields{"result": resp.Status().String()}
	if resp.Response != nil {
		fields["status"] = resp.Response.StatusCode
	}
	if err := resp.Err(); err != nil {
		fields["error"] = err.Error()
	}
	resp.Logger.WithFields(fields).Debug("response_received")
	return nil
}
