package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Cache.Path != "" {
		absPath, err := filepath.Abs(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Cache.Path = absPath
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("RequestTimeout", "30s")
	v.SetDefault("Cache.Provider", "memory")
	v.SetDefault("Cache.Path", "./storage")
	v.SetDefault("Cache.DefaultTTL", "5m")
}

func applyDefaults(cfg *Config) {
	if cfg.Global.ListenPort == 0 {
		cfg.Global.ListenPort = 5000
	}
	if cfg.Global.RequestTimeout.DurationValue() == 0 {
		cfg.Global.RequestTimeout = Duration(30 * time.Second)
	}
	cfg.Cache.Provider = strings.ToLower(strings.TrimSpace(cfg.Cache.Provider))
	if cfg.Cache.DefaultTTL.DurationValue() <= 0 {
		cfg.Cache.DefaultTTL = Duration(5 * time.Minute)
	}

	for i := range cfg.Tokens {
		token := &cfg.Tokens[i]
		token.RefreshWindow = strings.ToLower(strings.TrimSpace(token.RefreshWindow))
		if token.RefreshWindow == "" {
			token.RefreshWindow = "auto"
		}
		if token.RefreshSeconds.DurationValue() == 0 {
			token.RefreshSeconds = Duration(60 * time.Second)
		}
		if token.RefreshPercent == 0 {
			token.RefreshPercent = 10
		}
	}

	for i := range cfg.APIs {
		api := &cfg.APIs[i]
		for j := range api.Actions {
			act := &api.Actions[j]
			act.Method = strings.ToUpper(strings.TrimSpace(act.Method))
			if act.Method == "" {
				act.Method = "GET"
			}
			act.Return = strings.ToLower(strings.TrimSpace(act.Return))
			if act.Return == "" {
				act.Return = "json"
			}
			if act.CacheTTL.DurationValue() < 0 {
				act.CacheTTL = Duration(0)
			}
			for k := range act.Params {
				act.Params[k].In = strings.ToLower(strings.TrimSpace(act.Params[k].In))
			}
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
