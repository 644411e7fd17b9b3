package client

import (
	"fmt"
	"net/http"
	"net/url"
	"reflect"

	"github.com/apicall/apicall/internal/action"
	"github.com/apicall/apicall/internal/cache"
	"github.com/apicall/apicall/internal/config"
	"github.com/apicall/apicall/internal/hooks"
	"github.com/apicall/apicall/internal/hooks/builtin"
	"github.com/apicall/apicall/internal/token"
)

// bearerFilterOrder 让令牌过滤器先于其它方法级过滤器写入 Authorization。
const bearerFilterOrder = -100

// declareInterface 把一个 API 配置翻译为接口声明：接口级 hook 负责 Host、公共头与令牌，
// 方法级 hook 负责路径、方法、缓存、超时与返回解析。
func declareInterface(cfg *config.Config, api config.APIConfig, provider *token.Provider) (*action.Interface, error) {
	base, err := url.Parse(api.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("API[%s].BaseURL: %w", api.Name, err)
	}

	iface := &action.Interface{
		Name:  api.Name,
		Hooks: []hooks.Hook{builtin.Host{URL: base}},
	}
	if len(api.Headers) > 0 {
		iface.Hooks = append(iface.Hooks, builtin.Headers{Values: toHeader(api.Headers)})
	}
	if provider != nil {
		iface.Hooks = append(iface.Hooks, token.NewBearerFilter(provider, bearerFilterOrder))
	}

	for _, act := range api.Actions {
		iface.AddMethod(declareMethod(cfg, api, act))
	}
	return iface, nil
}

func declareMethod(cfg *config.Config, api config.APIConfig, act config.ActionConfig) *action.Method {
	method := &action.Method{
		Name:  act.Name,
		Hooks: []hooks.Hook{builtin.Endpoint{Method: act.Method, Path: act.Path}},
	}
	if len(act.Headers) > 0 {
		method.Hooks = append(method.Hooks, builtin.Headers{Values: toHeader(act.Headers)})
	}
	if act.CacheEnabled() {
		method.Hooks = append(method.Hooks, cache.NewPolicy(cfg.EffectiveCacheTTL(act), "Authorization", "Accept"))
	}
	if timeout := cfg.EffectiveTimeout(api, act); timeout > 0 {
		method.Hooks = append(method.Hooks, builtin.Timeout{Duration: timeout})
	}

	returnType, returnHook := returnFor(act.Return)
	if returnHook != nil {
		method.Hooks = append(method.Hooks, returnHook)
	}
	method.Return = action.ReturnSpec{Type: returnType, Shape: action.ShapeCall}

	for _, param := range act.Params {
		declared := action.Param{
			Name:       param.Name,
			Alias:      param.Alias,
			Constraint: param.Validate,
		}
		if hook := parameterHookFor(param.In); hook != nil {
			declared.Hooks = []hooks.ParameterHook{hook}
		}
		method.Params = append(method.Params, declared)
	}
	return method
}

// returnFor 返回配置中 Return 对应的返回类型与需要声明的返回 hook；
// json 不声明任何 hook，交给默认的 JSON/XML/原始三件套处理。
func returnFor(kind string) (reflect.Type, hooks.ReturnHook) {
	switch kind {
	case "xml":
		return reflect.TypeFor[builtin.XMLNode](), builtin.XMLReturn{}
	case "string":
		return reflect.TypeFor[string](), builtin.RawReturn{}
	case "bytes":
		return reflect.TypeFor[[]byte](), builtin.RawReturn{}
	case "raw":
		return reflect.TypeFor[*http.Response](), builtin.RawReturn{}
	default:
		return reflect.TypeFor[any](), nil
	}
}

func parameterHookFor(in string) hooks.ParameterHook {
	switch in {
	case "path":
		return builtin.Path{}
	case "query":
		return builtin.Query{}
	case "header":
		return builtin.Header{}
	case "json":
		return builtin.JSONField{}
	case "body":
		return builtin.JSONBody{}
	case "form":
		return builtin.Form{}
	default:
		return nil
	}
}

func toHeader(values map[string]string) http.Header {
	header := make(http.Header, len(values))
	for key, value := range values {
		header.Set(key, value)
	}
	return header
}

func windowFor(cfg config.TokenConfig) (token.RefreshWindow, error) {
	mode, err := token.ParseWindowMode(cfg.RefreshWindow)
	if err != nil {
		return token.RefreshWindow{}, err
	}
	return token.RefreshWindow{
		Mode:    mode,
		Seconds: cfg.RefreshSeconds.DurationValue(),
		Percent: cfg.RefreshPercent,
	}, nil
}
