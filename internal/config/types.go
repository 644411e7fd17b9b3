package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述进程级行为：网关端口、日志与默认请求超时。
type GlobalConfig struct {
	ListenPort     int      `mapstructure:"ListenPort"`
	LogLevel       string   `mapstructure:"LogLevel"`
	LogFilePath    string   `mapstructure:"LogFilePath"`
	LogMaxSize     int      `mapstructure:"LogMaxSize"`
	LogMaxBackups  int      `mapstructure:"LogMaxBackups"`
	LogCompress    bool     `mapstructure:"LogCompress"`
	RequestTimeout Duration `mapstructure:"RequestTimeout"`
}

// CacheConfig 选择响应缓存的存储提供者。
type CacheConfig struct {
	Provider   string   `mapstructure:"Provider"`
	Path       string   `mapstructure:"Path"`
	DefaultTTL Duration `mapstructure:"DefaultTTL"`
}

// TokenConfig 描述一个 OAuth2 client_credentials 令牌来源。
type TokenConfig struct {
	Name           string   `mapstructure:"Name"`
	Endpoint       string   `mapstructure:"Endpoint"`
	ClientID       string   `mapstructure:"ClientID"`
	ClientSecret   string   `mapstructure:"ClientSecret"`
	Scope          string   `mapstructure:"Scope"`
	RefreshWindow  string   `mapstructure:"RefreshWindow"`
	RefreshSeconds Duration `mapstructure:"RefreshSeconds"`
	RefreshPercent float64  `mapstructure:"RefreshPercent"`
}

// ParamConfig 描述动作的一个参数及其写入位置。
type ParamConfig struct {
	Name     string `mapstructure:"Name"`
	Alias    string `mapstructure:"Alias"`
	In       string `mapstructure:"In"`
	Validate string `mapstructure:"Validate"`
}

// ActionConfig 描述接口下的一个远程调用。
type ActionConfig struct {
	Name     string            `mapstructure:"Name"`
	Method   string            `mapstructure:"Method"`
	Path     string            `mapstructure:"Path"`
	Return   string            `mapstructure:"Return"`
	Cache    bool              `mapstructure:"Cache"`
	CacheTTL Duration          `mapstructure:"CacheTTL"`
	Timeout  Duration          `mapstructure:"Timeout"`
	Headers  map[string]string `mapstructure:"Headers"`
	Params   []ParamConfig     `mapstructure:"Param"`
}

// APIConfig 是一组共享 BaseURL、令牌与请求头的动作。
type APIConfig struct {
	Name    string            `mapstructure:"Name"`
	BaseURL string            `mapstructure:"BaseURL"`
	Token   string            `mapstructure:"Token"`
	Timeout Duration          `mapstructure:"Timeout"`
	Headers map[string]string `mapstructure:"Headers"`
	Actions []ActionConfig    `mapstructure:"Action"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig  `mapstructure:",squash"`
	Cache  CacheConfig   `mapstructure:"Cache"`
	Tokens []TokenConfig `mapstructure:"Token"`
	APIs   []APIConfig   `mapstructure:"API"`
}

// CacheEnabled 表示动作是否参与响应缓存。
func (a ActionConfig) CacheEnabled() bool {
	return a.Cache || a.CacheTTL.DurationValue() > 0
}

// EffectiveCacheTTL 返回动作生效的 TTL，未覆盖时回退至全局默认值。
func (c *Config) EffectiveCacheTTL(a ActionConfig) time.Duration {
	if a.CacheTTL.DurationValue() > 0 {
		return a.CacheTTL.DurationValue()
	}
	return c.Cache.DefaultTTL.DurationValue()
}

// EffectiveTimeout 按 动作 → API → 全局 的顺序取第一个非零超时。
func (c *Config) EffectiveTimeout(api APIConfig, a ActionConfig) time.Duration {
	for _, d := range []Duration{a.Timeout, api.Timeout, c.Global.RequestTimeout} {
		if d.DurationValue() > 0 {
			return d.DurationValue()
		}
	}
	return 0
}

// FindToken 按名称查找令牌配置。
func (c *Config) FindToken(name string) (TokenConfig, bool) {
	for _, token := range c.Tokens {
		if token.Name == name {
			return token, true
		}
	}
	return TokenConfig{}, false
}

// ActionNames 返回全部 "API.Action" 名称，顺序与配置一致。
func (c *Config) ActionNames() []string {
	var names []string
	for _, api := range c.APIs {
		for _, act := range api.Actions {
			names = append(names, api.Name+"."+act.Name)
		}
	}
	return names
}
