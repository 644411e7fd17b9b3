package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/apicall/apicall/internal/action"
	"github.com/apicall/apicall/internal/cache"
	"github.com/apicall/apicall/internal/errs"
	"github.com/apicall/apicall/internal/hooks"
	"github.com/apicall/apicall/internal/hooks/builtin"
	"github.com/apicall/apicall/internal/transport"
	"github.com/apicall/apicall/internal/validation"
)

type fixedReturn struct {
	order int
	value any
	err   error
	calls *atomic.Int32
}

func (f fixedReturn) Name() string     { return "fixed" }
func (f fixedReturn) Meta() hooks.Meta { return hooks.Meta{Order: f.order, AllowMultiple: true} }

func (fixedReturn) PrepareRequest(context.Context, *hooks.RequestContext) error { return nil }

func (f fixedReturn) ReadResult(_ context.Context, resp *hooks.ResponseContext) error {
	if f.calls != nil {
		f.calls.Add(1)
	}
	if f.err != nil {
		return f.err
	}
	resp.SetResult(f.value)
	return nil
}

type countingFilter struct {
	name   string
	before *atomic.Int32
	after  *atomic.Int32
	err    error
}

func (f countingFilter) Name() string     { return f.name }
func (f countingFilter) Meta() hooks.Meta { return hooks.Meta{} }

func (f countingFilter) BeforeSend(context.Context, *hooks.RequestContext) error {
	f.before.Add(1)
	return nil
}

func (f countingFilter) AfterReceive(context.Context, *hooks.ResponseContext) error {
	f.after.Add(1)
	return f.err
}

type probeAction struct {
	run func(ctx context.Context, rc *hooks.RequestContext) error
}

func (probeAction) Name() string     { return "probe" }
func (probeAction) Meta() hooks.Meta { return hooks.Meta{} }

func (p probeAction) ApplyAction(ctx context.Context, rc *hooks.RequestContext) error {
	return p.run(ctx, rc)
}

type account struct {
	Email string `json:"email" validate:"required,email"`
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func okSender(calls *atomic.Int32, body string) transport.Sender {
	return transport.SenderFunc(func(req *http.Request) (*http.Response, error) {
		if calls != nil {
			calls.Add(1)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	})
}

func build(t *testing.T, method *action.Method) *action.Descriptor {
	t.Helper()
	base, _ := url.Parse("https://api.example.com")
	iface := &action.Interface{Name: "Users", Hooks: []hooks.Hook{builtin.Host{URL: base}}}
	iface.AddMethod(method)
	desc, err := action.Build(method)
	require.NoError(t, err)
	return desc
}

func newRC(args ...any) *hooks.RequestContext {
	return hooks.NewRequestContext("call-1", "Users.Get", hooks.NewRequest(http.MethodGet, nil, "users"), args)
}

func TestFirstResultWins(t *testing.T) {
	var laterCalls atomic.Int32
	desc := build(t, &action.Method{
		Name: "Get",
		Hooks: []hooks.Hook{
			fixedReturn{order: 1, value: 42},
			fixedReturn{order: 2, value: 99, calls: &laterCalls},
		},
		Return: action.ReturnSpec{Type: reflect.TypeFor[int]()},
	})
	runner := NewRunner(Options{Sender: okSender(nil, "{}"), Logger: quietLogger()})

	value, err := runner.Invoke(context.Background(), desc, newRC())
	require.NoError(t, err)
	require.Equal(t, 42, value)
	require.EqualValues(t, 0, laterCalls.Load())
}

func TestThrowingReturnHookStillRunsFilters(t *testing.T) {
	var laterCalls, globalBefore, globalAfter, localBefore, localAfter atomic.Int32
	boom := errors.New("boom")
	desc := build(t, &action.Method{
		Name: "Get",
		Hooks: []hooks.Hook{
			fixedReturn{order: 1, err: boom},
			fixedReturn{order: 2, value: 99, calls: &laterCalls},
			countingFilter{name: "local", before: &localBefore, after: &localAfter},
		},
		Return: action.ReturnSpec{Type: reflect.TypeFor[int]()},
	})
	runner := NewRunner(Options{
		Sender:        okSender(nil, "{}"),
		Logger:        quietLogger(),
		GlobalFilters: []hooks.FilterHook{countingFilter{name: "global", before: &globalBefore, after: &globalAfter}},
	})

	resp, err := runner.Execute(context.Background(), desc, newRC())
	require.NoError(t, err)
	require.Equal(t, hooks.ResultException, resp.Status())
	require.ErrorIs(t, resp.Err(), boom)
	require.Nil(t, resp.Value())
	require.EqualValues(t, 0, laterCalls.Load())
	require.EqualValues(t, 1, globalBefore.Load())
	require.EqualValues(t, 1, localBefore.Load())
	require.EqualValues(t, 1, globalAfter.Load())
	require.EqualValues(t, 1, localAfter.Load())
}

func TestFilterErrorsAreCombinedAfterAllFiltersRun(t *testing.T) {
	var before, after atomic.Int32
	first, second := errors.New("first"), errors.New("second")
	desc := build(t, &action.Method{
		Name: "Get",
		Hooks: []hooks.Hook{
			countingFilter{name: "a", before: &before, after: &after, err: first},
			countingFilter{name: "b", before: &before, after: &after, err: second},
		},
		Return: action.ReturnSpec{Type: reflect.TypeFor[map[string]any]()},
	})
	runner := NewRunner(Options{Sender: okSender(nil, `{"ok":true}`), Logger: quietLogger()})

	_, err := runner.Invoke(context.Background(), desc, newRC())
	require.ErrorIs(t, err, first)
	require.ErrorIs(t, err, second)
	require.EqualValues(t, 2, after.Load())
}

func TestNoReturnHookResultIsConfigError(t *testing.T) {
	desc := build(t, &action.Method{
		Name:   "Get",
		Hooks:  []hooks.Hook{builtin.XMLReturn{}},
		Return: action.ReturnSpec{Type: reflect.TypeFor[int]()},
	})
	runner := NewRunner(Options{Sender: okSender(nil, "{}"), Logger: quietLogger()})

	_, err := runner.Invoke(context.Background(), desc, newRC())
	require.ErrorIs(t, err, errs.ErrNoResult)
	require.True(t, errs.IsConfig(err))
}

func TestCancellationDuringRequestPhaseDoesNotAbortHooks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var laterRan atomic.Bool
	var hookCtxErr error
	desc, err := action.Build(&action.Method{
		Name: "Get",
		Hooks: []hooks.Hook{
			probeAction{run: func(hookCtx context.Context, rc *hooks.RequestContext) error {
				cancel()
				hookCtxErr = hookCtx.Err()
				return nil
			}},
		},
		Params: []action.Param{{
			Name:  "q",
			Type:  reflect.TypeFor[string](),
			Hooks: []hooks.ParameterHook{laterParam{ran: &laterRan}},
		}},
		Return: action.ReturnSpec{Type: reflect.TypeFor[string]()},
	})
	require.NoError(t, err)
	var sends atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sends.Add(1)
	}))
	defer server.Close()
	base, _ := url.Parse(server.URL)
	rc := newRC("value")
	rc.Request.BaseURL = base

	runner := NewRunner(Options{Sender: transport.NewHTTPSender(server.Client()), Logger: quietLogger()})
	_, err = runner.Invoke(ctx, desc, rc)

	require.NoError(t, hookCtxErr)
	require.True(t, laterRan.Load(), "hooks after the cancellation point must still run")
	require.True(t, errs.IsCanceled(err), "expected canceled transport error, got %v", err)
	require.EqualValues(t, 0, sends.Load())
}

type laterParam struct{ ran *atomic.Bool }

func (laterParam) Name() string     { return "later" }
func (laterParam) Meta() hooks.Meta { return hooks.Meta{} }

func (p laterParam) ApplyParameter(context.Context, *hooks.ParameterContext) error {
	p.ran.Store(true)
	return nil
}

func TestCancellationDuringExchangeIsTransportError(t *testing.T) {
	started := make(chan struct{})
	sender := transport.SenderFunc(func(req *http.Request) (*http.Response, error) {
		close(started)
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	desc := build(t, &action.Method{Name: "Get", Return: action.ReturnSpec{Type: reflect.TypeFor[string]()}})
	runner := NewRunner(Options{Sender: sender, Logger: quietLogger()})

	ambient, cancelAmbient := context.WithCancel(context.Background())
	rc := newRC()
	rc.AddSignal(ambient)
	go func() {
		<-started
		cancelAmbient()
	}()

	_, err := runner.Invoke(context.Background(), desc, rc)
	var transportErr *errs.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.True(t, transportErr.Canceled())
	require.Equal(t, "https://api.example.com/users", transportErr.URL)
}

func TestTransportFailureSkipsReturnHooks(t *testing.T) {
	var calls atomic.Int32
	sender := transport.SenderFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	desc := build(t, &action.Method{
		Name:   "Get",
		Hooks:  []hooks.Hook{fixedReturn{value: 1, calls: &calls}},
		Return: action.ReturnSpec{Type: reflect.TypeFor[int]()},
	})
	resp, err := NewRunner(Options{Sender: sender, Logger: quietLogger()}).Execute(context.Background(), desc, newRC())
	require.NoError(t, err)
	require.Nil(t, resp.Response)
	require.True(t, errs.IsTransport(resp.Err()))
	require.False(t, errs.IsCanceled(resp.Err()))
	require.EqualValues(t, 0, calls.Load())
}

func TestParameterValidationFailsFast(t *testing.T) {
	var sends atomic.Int32
	desc := build(t, &action.Method{
		Name:   "Get",
		Params: []action.Param{{Name: "id", Type: reflect.TypeFor[int](), Constraint: "min=1"}},
		Return: action.ReturnSpec{Type: reflect.TypeFor[string]()},
	})
	runner := NewRunner(Options{Sender: okSender(&sends, "{}"), Validator: validation.New(), Logger: quietLogger()})

	_, err := runner.Invoke(context.Background(), desc, newRC(0))
	var validationErr *errs.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "id", validationErr.Member)
	require.EqualValues(t, 0, sends.Load())
}

func TestResultValidationDemotesToException(t *testing.T) {
	desc := build(t, &action.Method{Name: "Get", Return: action.ReturnSpec{Type: reflect.TypeFor[account]()}})
	runner := NewRunner(Options{Sender: okSender(nil, `{"email":"not-an-email"}`), Validator: validation.New(), Logger: quietLogger()})

	resp, err := runner.Execute(context.Background(), desc, newRC())
	require.NoError(t, err)
	require.Equal(t, hooks.ResultException, resp.Status())
	require.True(t, errs.IsValidation(resp.Err()))
}

func TestMissingHostIsConfigError(t *testing.T) {
	var sends atomic.Int32
	method := &action.Method{Name: "Get", Return: action.ReturnSpec{Type: reflect.TypeFor[string]()}}
	desc, err := action.Build(method)
	require.NoError(t, err)

	_, err = NewRunner(Options{Sender: okSender(&sends, ""), Logger: quietLogger()}).Invoke(context.Background(), desc, newRC())
	require.ErrorIs(t, err, errs.ErrMissingHost)
	require.EqualValues(t, 0, sends.Load())
}

func TestCacheHitSkipsSender(t *testing.T) {
	var sends atomic.Int32
	desc := build(t, &action.Method{
		Name:   "Get",
		Hooks:  []hooks.Hook{cache.NewPolicy(time.Minute)},
		Return: action.ReturnSpec{Type: reflect.TypeFor[map[string]any]()},
	})
	runner := NewRunner(Options{
		Sender: okSender(&sends, `{"name":"ann"}`),
		Cache:  cache.NewSubsystem(cache.NewMemoryProvider(), quietLogger(), nil),
		Logger: quietLogger(),
	})

	for i := 0; i < 3; i++ {
		value, err := runner.Invoke(context.Background(), desc, newRC())
		require.NoError(t, err)
		require.Equal(t, map[string]any{"name": "ann"}, value)
	}
	require.EqualValues(t, 1, sends.Load())

	rc := newRC()
	resp, err := runner.Execute(context.Background(), desc, rc)
	require.NoError(t, err)
	require.Equal(t, "memory", resp.Response.Header.Get(cache.ProviderHeader))
}

func TestLinkSignalsReleasesRegistrations(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	linked, release := linkSignals([]context.Context{parent})
	release()
	require.Error(t, linked.Err())

	cancelParent()
	require.ErrorIs(t, context.Cause(linked), context.Canceled)

	done, cancelDone := context.WithCancelCause(context.Background())
	cancelDone(errors.New("shutdown"))
	linked, release = linkSignals([]context.Context{done})
	defer release()
	require.EqualError(t, context.Cause(linked), "shutdown")
}

type rejectingFilter struct{ err error }

func (rejectingFilter) Name() string     { return "reject" }
func (rejectingFilter) Meta() hooks.Meta { return hooks.Meta{Order: 10} }

func (f rejectingFilter) BeforeSend(context.Context, *hooks.RequestContext) error { return f.err }

func (rejectingFilter) AfterReceive(context.Context, *hooks.ResponseContext) error { return nil }

func TestAbortedRequestPhaseReleasesTimeoutSignal(t *testing.T) {
	rejected := errors.New("rejected")
	desc := build(t, &action.Method{
		Name: "Get",
		Hooks: []hooks.Hook{
			builtin.Timeout{Duration: time.Hour},
			rejectingFilter{err: rejected},
		},
		Return: action.ReturnSpec{Type: reflect.TypeFor[map[string]any]()},
	})
	var sent atomic.Int32
	runner := NewRunner(Options{Sender: okSender(&sent, "{}"), Logger: quietLogger()})
	rc := newRC()

	_, err := runner.Invoke(context.Background(), desc, rc)
	require.ErrorIs(t, err, rejected)
	require.Zero(t, sent.Load())
	require.Len(t, rc.Signals, 1)
	require.ErrorIs(t, rc.Signals[0].Err(), context.Canceled, "中途失败的调用应释放超时计时器")
}
