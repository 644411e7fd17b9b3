// Package pipeline 执行一次调用的完整链路：请求阶段的 hook、缓存或网络交换、
// 响应阶段的短路返回 hook 以及无条件执行的过滤器。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/apicall/apicall/internal/action"
	"github.com/apicall/apicall/internal/cache"
	"github.com/apicall/apicall/internal/errs"
	"github.com/apicall/apicall/internal/hooks"
	"github.com/apicall/apicall/internal/logging"
	"github.com/apicall/apicall/internal/telemetry"
	"github.com/apicall/apicall/internal/transport"
	"github.com/apicall/apicall/internal/validation"
)

// Options 汇总 Runner 的依赖，除 Sender 外均可为空。
type Options struct {
	Sender        transport.Sender
	Cache         *cache.Subsystem
	Validator     *validation.Validator
	GlobalFilters []hooks.FilterHook
	Logger        *logrus.Logger
	Metrics       *telemetry.Metrics
}

// Runner 无状态、可并发复用；每次调用的状态都在 RequestContext 中。
type Runner struct {
	sender    transport.Sender
	cache     *cache.Subsystem
	validator *validation.Validator
	filters   []hooks.FilterHook
	logger    *logrus.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// NewRunner 构造 Runner，Sender 为空时使用默认 HTTPSender。
func NewRunner(opts Options) *Runner {
	sender := opts.Sender
	if sender == nil {
		sender = transport.NewHTTPSender(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{
		sender:    sender,
		cache:     opts.Cache,
		validator: opts.Validator,
		filters:   append([]hooks.FilterHook(nil), opts.GlobalFilters...),
		logger:    logger,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// Invoke 执行调用并把响应上下文折叠为 (值, 错误)，二者恰有其一有意义。
func (r *Runner) Invoke(ctx context.Context, desc *action.Descriptor, rc *hooks.RequestContext) (any, error) {
	resp, err := r.Execute(ctx, desc, rc)
	if err != nil {
		return nil, err
	}
	if resp.Status() == hooks.ResultException {
		return nil, resp.Err()
	}
	return resp.Value(), nil
}

// Execute 运行完整链路。请求阶段的失败立即返回；返回 hook 的失败记录为异常；
// 过滤器失败在同一阶段所有过滤器都执行过之后合并返回。
//
// ctx 作为调用方的取消来源登记到 rc.Signals，hook 收到的是去除取消的 context，
// 取消只在网络交换时生效。
func (r *Runner) Execute(ctx context.Context, desc *action.Descriptor, rc *hooks.RequestContext) (*hooks.ResponseContext, error) {
	started := r.now()
	rc.Return = desc.Return
	rc.AddSignal(ctx)
	rc.Logger = r.logger.WithFields(logging.CallFields(desc.ID.Interface, desc.ID.Method, rc.ID))
	hookCtx := context.WithoutCancel(ctx)
	defer rc.Release()

	if err := r.requestPhase(hookCtx, desc, rc); err != nil {
		r.finish(rc, nil, err, started)
		return nil, err
	}

	req, err := rc.Request.Build(hookCtx)
	if err != nil {
		var configErr *errs.ConfigError
		if errors.As(err, &configErr) && configErr.Action == "" {
			configErr.Action = desc.ID.String()
		}
		r.finish(rc, nil, err, started)
		return nil, err
	}

	lookup := r.cache.TryRead(hookCtx, rc, desc.CacheHook, req)
	resp := lookup.Response
	var sendErr error
	if !lookup.Hit() {
		resp, sendErr = r.send(req, rc)
		if sendErr == nil {
			r.cache.Write(hookCtx, lookup, rc, desc.CacheHook, resp)
		}
	}

	respCtx := hooks.NewResponseContext(rc, resp)
	respCtx.SetException(sendErr)
	r.readResult(hookCtx, desc, respCtx)

	filterErr := r.afterReceive(hookCtx, desc, respCtx)
	r.finish(rc, respCtx, filterErr, started)
	if filterErr != nil {
		return respCtx, filterErr
	}
	return respCtx, nil
}

func (r *Runner) requestPhase(ctx context.Context, desc *action.Descriptor, rc *hooks.RequestContext) error {
	if r.validator != nil {
		for _, param := range desc.Parameters {
			value := rc.Arg(param.Index)
			switch value.(type) {
			case context.Context, io.Reader:
				continue
			}
			if err := r.validator.Parameter(param.Name, value, param.Constraint); err != nil {
				return err
			}
		}
	}

	for _, hook := range desc.ActionHooks {
		if err := hook.ApplyAction(ctx, rc); err != nil {
			return fmt.Errorf("action hook %s: %w", hook.Name(), err)
		}
	}

	for _, param := range desc.Parameters {
		pc := hooks.NewParameterContext(rc, param.Parameter)
		for _, hook := range param.Hooks {
			if err := hook.ApplyParameter(ctx, pc); err != nil {
				return fmt.Errorf("parameter %s hook %s: %w", param.Name, hook.Name(), err)
			}
		}
	}

	for _, hook := range desc.ReturnHooks {
		if err := hook.PrepareRequest(ctx, rc); err != nil {
			return fmt.Errorf("return hook %s: %w", hook.Name(), err)
		}
	}

	var filterErr error
	for _, hook := range r.orderedFilters(desc, false) {
		if err := hook.BeforeSend(ctx, rc); err != nil {
			filterErr = multierr.Append(filterErr, fmt.Errorf("filter %s: %w", hook.Name(), err))
		}
	}
	return filterErr
}

// send 在发送前把全部取消来源链接成一个 context，发送结束后立即释放。
func (r *Runner) send(req *http.Request, rc *hooks.RequestContext) (*http.Response, error) {
	linked, release := linkSignals(rc.Signals)
	defer release()

	resp, err := r.sender.Send(req.WithContext(linked))
	if err == nil {
		return resp, nil
	}
	if linked.Err() != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", err, context.Cause(linked))
	}
	return nil, &errs.TransportError{Method: req.Method, URL: req.URL.Redacted(), Err: err}
}

func (r *Runner) readResult(ctx context.Context, desc *action.Descriptor, resp *hooks.ResponseContext) {
	for _, hook := range desc.ReturnHooks {
		if resp.Status() != hooks.ResultNone {
			break
		}
		if err := hook.ReadResult(ctx, resp); err != nil {
			resp.SetException(fmt.Errorf("return hook %s: %w", hook.Name(), err))
		}
	}

	switch resp.Status() {
	case hooks.ResultNone:
		resp.SetException(&errs.ConfigError{
			Action: desc.ID.String(),
			Reason: errs.ErrNoResult.Error(),
			Err:    errs.ErrNoResult,
		})
	case hooks.ResultValue:
		if r.validator != nil && !resp.Return.Raw {
			if err := r.validator.Value(resp.Value()); err != nil {
				resp.SetException(err)
			}
		}
	}
}

func (r *Runner) afterReceive(ctx context.Context, desc *action.Descriptor, resp *hooks.ResponseContext) error {
	var filterErr error
	for _, hook := range r.orderedFilters(desc, true) {
		if err := hook.AfterReceive(ctx, resp); err != nil {
			filterErr = multierr.Append(filterErr, fmt.Errorf("filter %s: %w", hook.Name(), err))
		}
	}
	return filterErr
}

// orderedFilters 请求阶段为全局在前、方法级在后，响应阶段反过来。
func (r *Runner) orderedFilters(desc *action.Descriptor, response bool) []hooks.FilterHook {
	list := make([]hooks.FilterHook, 0, len(r.filters)+len(desc.FilterHooks))
	if response {
		list = append(list, desc.FilterHooks...)
		return append(list, r.filters...)
	}
	list = append(list, r.filters...)
	return append(list, desc.FilterHooks...)
}

func (r *Runner) finish(rc *hooks.RequestContext, resp *hooks.ResponseContext, err error, started time.Time) {
	elapsed := r.now().Sub(started)
	status := 0
	result := "aborted"
	cacheHit := false
	if resp != nil {
		result = resp.Status().String()
		if resp.Response != nil {
			status = resp.Response.StatusCode
		}
		_, cacheHit = resp.Get(cache.PropertyProvider)
		if err == nil {
			err = resp.Err()
		}
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
		if errs.IsCanceled(err) {
			outcome = "canceled"
		}
	}
	r.metrics.RecordCall(rc.Action, outcome, elapsed)

	entry := rc.Logger.WithFields(logging.OutcomeFields(status, result, cacheHit, elapsed.Milliseconds()))
	if err != nil {
		entry.WithError(err).Warn("call_failed")
		return
	}
	entry.Info("call_complete")
}
