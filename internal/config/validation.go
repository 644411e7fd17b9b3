package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var supportedCacheProviders = map[string]struct{}{
	"memory": {},
	"disk":   {},
	"bolt":   {},
	"none":   {},
}

var supportedReturns = map[string]struct{}{
	"json":   {},
	"xml":    {},
	"string": {},
	"bytes":  {},
	"raw":    {},
}

var supportedParamLocations = map[string]struct{}{
	"":       {},
	"path":   {},
	"query":  {},
	"header": {},
	"json":   {},
	"body":   {},
	"form":   {},
}

var supportedMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.RequestTimeout.DurationValue() < 0 {
		return newFieldError("Global.RequestTimeout", "不能为负数")
	}

	if _, ok := supportedCacheProviders[c.Cache.Provider]; !ok {
		return newFieldError("Cache.Provider", "仅支持 memory|disk|bolt|none")
	}
	if (c.Cache.Provider == "disk" || c.Cache.Provider == "bolt") && c.Cache.Path == "" {
		return newFieldError("Cache.Path", "disk/bolt 提供者需要存储路径")
	}

	tokens := map[string]struct{}{}
	for _, token := range c.Tokens {
		if token.Name == "" {
			return newFieldError("Token[].Name", "不能为空")
		}
		if _, exists := tokens[token.Name]; exists {
			return newFieldError(tokenField(token.Name, "Name"), "重复")
		}
		tokens[token.Name] = struct{}{}

		if err := validateBaseURL(token.Endpoint); err != nil {
			return fmt.Errorf("%s: %w", tokenField(token.Name, "Endpoint"), err)
		}
		switch token.RefreshWindow {
		case "fixed", "percentage", "auto":
		default:
			return newFieldError(tokenField(token.Name, "RefreshWindow"), "仅支持 fixed|percentage|auto")
		}
		if token.RefreshPercent < 0 || token.RefreshPercent > 100 {
			return newFieldError(tokenField(token.Name, "RefreshPercent"), "必须在 0-100")
		}
	}

	if len(c.APIs) == 0 {
		return errors.New("至少需要配置一个 API")
	}

	apis := map[string]struct{}{}
	for _, api := range c.APIs {
		if err := validateName(api.Name); err != nil {
			return fmt.Errorf("API[].Name: %w", err)
		}
		if _, exists := apis[api.Name]; exists {
			return newFieldError(apiField(api.Name, "Name"), "重复")
		}
		apis[api.Name] = struct{}{}

		if err := validateBaseURL(api.BaseURL); err != nil {
			return fmt.Errorf("%s: %w", apiField(api.Name, "BaseURL"), err)
		}
		if api.Token != "" {
			if _, ok := tokens[api.Token]; !ok {
				return newFieldError(apiField(api.Name, "Token"), fmt.Sprintf("未定义的令牌: %s", api.Token))
			}
		}
		if len(api.Actions) == 0 {
			return newFieldError(apiField(api.Name, "Action"), "至少需要一个动作")
		}
		if err := validateActions(api); err != nil {
			return err
		}
	}

	return nil
}

func validateActions(api APIConfig) error {
	seen := map[string]struct{}{}
	for _, act := range api.Actions {
		if err := validateName(act.Name); err != nil {
			return fmt.Errorf("%s: %w", apiField(api.Name, "Action[].Name"), err)
		}
		if _, exists := seen[act.Name]; exists {
			return newFieldError(actionField(api.Name, act.Name, "Name"), "重复")
		}
		seen[act.Name] = struct{}{}

		if _, ok := supportedMethods[act.Method]; !ok {
			return newFieldError(actionField(api.Name, act.Name, "Method"), fmt.Sprintf("不支持的方法: %s", act.Method))
		}
		if _, ok := supportedReturns[act.Return]; !ok {
			return newFieldError(actionField(api.Name, act.Name, "Return"), "仅支持 json|xml|string|bytes|raw")
		}

		params := map[string]struct{}{}
		for _, param := range act.Params {
			if param.Name == "" {
				return newFieldError(actionField(api.Name, act.Name, "Param[].Name"), "不能为空")
			}
			if _, exists := params[param.Name]; exists {
				return newFieldError(actionField(api.Name, act.Name, "Param["+param.Name+"]"), "重复")
			}
			params[param.Name] = struct{}{}
			if _, ok := supportedParamLocations[param.In]; !ok {
				return newFieldError(actionField(api.Name, act.Name, "Param["+param.Name+"].In"), "仅支持 path|query|header|json|body|form")
			}
			if param.In == "path" && !strings.Contains(act.Path, "{"+paramKey(param)+"}") {
				return newFieldError(actionField(api.Name, act.Name, "Param["+param.Name+"].In"), "路径中缺少对应占位符")
			}
		}
	}
	return nil
}

func paramKey(param ParamConfig) string {
	if param.Alias != "" {
		return param.Alias
	}
	return param.Name
}

func validateName(name string) error {
	if name == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(name, ". /") {
		return errors.New("不允许包含 '.'、空格或 '/'")
	}
	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
