// Package client 是调用核心的装配层：根据配置生成方法声明，持有描述符注册表、
// 令牌注册表、缓存子系统与 Runner，并把每个动作登记到调用表。
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/apicall/apicall/internal/action"
	"github.com/apicall/apicall/internal/cache"
	"github.com/apicall/apicall/internal/config"
	"github.com/apicall/apicall/internal/errs"
	"github.com/apicall/apicall/internal/hooks"
	"github.com/apicall/apicall/internal/hooks/builtin"
	"github.com/apicall/apicall/internal/pipeline"
	"github.com/apicall/apicall/internal/telemetry"
	"github.com/apicall/apicall/internal/token"
	"github.com/apicall/apicall/internal/transport"
	"github.com/apicall/apicall/internal/validation"
)

// ErrUnknownAction 表示调用表中没有该动作。
var ErrUnknownAction = errors.New("unknown action")

// Options 是可注入的依赖，零值即可使用。
type Options struct {
	Logger     *logrus.Logger
	Metrics    *telemetry.Metrics
	HTTPClient *http.Client
	// Sender 覆盖默认的 HTTPSender，测试中用于替换网络层。
	Sender transport.Sender
	// Shutdown 是进程级取消来源，会登记到每次调用的信号集合。
	Shutdown context.Context
}

// Client 对外暴露按名称调用的能力，可并发使用。
type Client struct {
	actions  *action.Registry
	tokens   *token.Registry
	invokers *action.InvokerTable
	mu       sync.RWMutex
	methods  map[action.MethodID]*action.Method
	runner   *pipeline.Runner
	provider cache.Provider
	logger   *logrus.Logger

	signal   context.Context
	shutdown context.Context
	cancel   context.CancelFunc
}

// New 根据配置装配客户端。描述符在启动时全部构建一次，声明错误会立即返回。
func New(cfg *config.Config, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(cfg.Global.RequestTimeout.DurationValue())
	}
	sender := opts.Sender
	if sender == nil {
		sender = transport.NewHTTPSender(httpClient)
	}

	provider, err := openProvider(cfg.Cache)
	if err != nil {
		return nil, err
	}

	signal, cancel := context.WithCancel(context.Background())
	c := &Client{
		actions:  action.NewRegistry(),
		tokens:   token.NewRegistry(),
		invokers: action.NewInvokerTable(),
		methods:  make(map[action.MethodID]*action.Method),
		provider: provider,
		logger:   logger,
		signal:   signal,
		shutdown: opts.Shutdown,
		cancel:   cancel,
	}
	c.runner = pipeline.NewRunner(pipeline.Options{
		Sender:        sender,
		Cache:         cache.NewSubsystem(provider, logger, opts.Metrics),
		Validator:     validation.New(),
		GlobalFilters: []hooks.FilterHook{builtin.Logging{}},
		Logger:        logger,
		Metrics:       opts.Metrics,
	})

	for _, api := range cfg.APIs {
		var tokenProvider *token.Provider
		if api.Token != "" {
			tokenProvider, err = c.tokenProvider(cfg, api.Token, httpClient, opts.Metrics)
			if err != nil {
				_ = c.Close()
				return nil, err
			}
		}
		iface, err := declareInterface(cfg, api, tokenProvider)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		for _, method := range iface.Methods {
			if err := c.register(method); err != nil {
				_ = c.Close()
				return nil, err
			}
		}
	}
	return c, nil
}

// Register 登记额外的方法声明，供代码中直接声明的接口使用。
func (c *Client) Register(iface *action.Interface) error {
	for _, method := range iface.Methods {
		if err := c.register(method); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) register(method *action.Method) error {
	if _, err := c.actions.GetOrBuild(method); err != nil {
		return err
	}
	id := method.ID()
	if err := c.invokers.Register(id, action.InvokerFunc(func(ctx context.Context, args []any) (any, error) {
		return c.invoke(ctx, method, args)
	})); err != nil {
		return err
	}
	c.mu.Lock()
	c.methods[id] = method
	c.mu.Unlock()
	return nil
}

func (c *Client) tokenProvider(cfg *config.Config, name string, httpClient *http.Client, metrics *telemetry.Metrics) (*token.Provider, error) {
	tokenCfg, ok := cfg.FindToken(name)
	if !ok {
		return nil, errs.Config("", fmt.Sprintf("token %q is not defined", name))
	}
	window, err := windowFor(tokenCfg)
	if err != nil {
		return nil, &errs.ConfigError{Reason: fmt.Sprintf("token %q", name), Err: err}
	}
	return c.tokens.GetOrCreate(name, func() *token.Provider {
		requester := token.NewClientCredentials(tokenCfg.Endpoint, tokenCfg.ClientID, tokenCfg.ClientSecret, tokenCfg.Scope, httpClient)
		return token.NewProvider(name, requester, window, c.logger, metrics)
	}), nil
}

func (c *Client) invoke(ctx context.Context, method *action.Method, args []any) (any, error) {
	desc, err := c.actions.GetOrBuild(method)
	if err != nil {
		return nil, err
	}
	if len(args) > len(desc.Parameters) {
		return nil, errs.Config(desc.ID.String(), fmt.Sprintf("expected at most %d arguments, got %d", len(desc.Parameters), len(args)))
	}

	rc := hooks.NewRequestContext(uuid.NewString(), desc.ID.String(), hooks.NewRequest(http.MethodGet, nil, ""), args)
	rc.AddSignal(c.signal)
	rc.AddSignal(c.shutdown)
	return c.runner.Invoke(ctx, desc, rc)
}

// Invoke 按 "API.Action" 名称以位置参数调用。
func (c *Client) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	_, invoker, ok := c.invokers.LookupName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return invoker.Invoke(ctx, args)
}

// InvokeNamed 按参数名（声明名，非别名）组织实参后调用；缺省参数视为 nil。
func (c *Client) InvokeNamed(ctx context.Context, name string, named map[string]any) (any, error) {
	id, invoker, ok := c.invokers.LookupName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	c.mu.RLock()
	method := c.methods[id]
	c.mu.RUnlock()
	args := make([]any, len(method.Params))
	known := make(map[string]struct{}, len(method.Params))
	for i, param := range method.Params {
		args[i] = named[param.Name]
		known[param.Name] = struct{}{}
	}
	for key := range named {
		if _, ok := known[key]; !ok {
			return nil, &errs.ValidationError{Member: key, Err: errors.New("unknown parameter")}
		}
	}
	return invoker.Invoke(ctx, args)
}

// Call 调用动作并把结果断言为 T。
func Call[T any](ctx context.Context, c *Client, name string, args ...any) (T, error) {
	var zero T
	value, err := c.Invoke(ctx, name, args...)
	if err != nil {
		return zero, err
	}
	if value == nil {
		return zero, nil
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%s returned %T, not %T", name, value, zero)
	}
	return typed, nil
}

// Actions 返回所有已登记动作的诊断视图。
func (c *Client) Actions() []action.Summary {
	var list []action.Summary
	for _, id := range c.invokers.IDs() {
		if desc, ok := c.actions.Get(id); ok {
			list = append(list, desc.Summary())
		}
	}
	return list
}

// CacheProvider 返回缓存提供者名称，未启用时为 "none"。
func (c *Client) CacheProvider() string {
	if c.provider == nil {
		return "none"
	}
	return c.provider.Name()
}

// Close 取消客户端级信号，进行中的交换会以取消错误结束，并关闭缓存存储。
func (c *Client) Close() error {
	c.cancel()
	if closer, ok := c.provider.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func openProvider(cfg config.CacheConfig) (cache.Provider, error) {
	switch cfg.Provider {
	case "", "memory":
		return cache.NewMemoryProvider(), nil
	case "disk":
		return cache.NewFileProvider(cfg.Path)
	case "bolt":
		return cache.OpenBoltProvider(filepath.Join(cfg.Path, "cache.db"))
	case "none":
		return nil, nil
	default:
		return nil, errs.Config("", fmt.Sprintf("unknown cache provider %q", cfg.Provider))
	}
}
