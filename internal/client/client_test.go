package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/apicall/apicall/internal/config"
	"github.com/apicall/apicall/internal/errs"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func baseConfig(baseURL string) *config.Config {
	return &config.Config{
		Global: config.GlobalConfig{RequestTimeout: config.Duration(5 * time.Second)},
		Cache:  config.CacheConfig{Provider: "memory", DefaultTTL: config.Duration(time.Minute)},
		APIs: []config.APIConfig{{
			Name:    "users",
			BaseURL: baseURL,
			Headers: map[string]string{"x-client": "apicall"},
			Actions: []config.ActionConfig{
				{
					Name:   "get",
					Method: http.MethodGet,
					Path:   "/users/{id}",
					Return: "json",
					Cache:  true,
					Params: []config.ParamConfig{
						{Name: "id", In: "path", Validate: "required"},
						{Name: "verbose", In: "query"},
					},
				},
				{
					Name:   "create",
					Method: http.MethodPost,
					Path:   "/users",
					Return: "string",
					Params: []config.ParamConfig{
						{Name: "name", In: "json", Validate: "required,min=2"},
						{Name: "trace", Alias: "X-Trace", In: "header"},
					},
				},
			},
		}},
	}
}

func newUserServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/users/7":
			if r.Header.Get("X-Client") != "apicall" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":7,"verbose":"` + r.URL.Query().Get("verbose") + `"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/users":
			var payload map[string]any
			_ = json.NewDecoder(r.Body).Decode(&payload)
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("created " + payload["name"].(string) + " " + r.Header.Get("X-Trace")))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestInvokeDecodesJSONAndCaches(t *testing.T) {
	var hits atomic.Int32
	server := newUserServer(t, &hits)
	c, err := New(baseConfig(server.URL), Options{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	value, err := c.Invoke(context.Background(), "users.get", 7, "yes")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"id": float64(7), "verbose": "yes"}, value)

	_, err = c.Invoke(context.Background(), "users.get", 7, "yes")
	require.NoError(t, err)
	require.EqualValues(t, 1, hits.Load(), "第二次调用应命中缓存")
	require.Equal(t, "memory", c.CacheProvider())
}

func TestInvokeNamedWithAliasAndTypedCall(t *testing.T) {
	var hits atomic.Int32
	server := newUserServer(t, &hits)
	c, err := New(baseConfig(server.URL), Options{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	value, err := c.InvokeNamed(context.Background(), "users.create", map[string]any{"name": "ann", "trace": "t-1"})
	require.NoError(t, err)
	require.Equal(t, "created ann t-1", value)

	text, err := Call[string](context.Background(), c, "users.create", "bob", nil)
	require.NoError(t, err)
	require.Equal(t, "created bob ", text)

	_, err = c.InvokeNamed(context.Background(), "users.create", map[string]any{"nope": 1})
	require.True(t, errs.IsValidation(err), "未知参数应返回校验错误: %v", err)
}

func TestInvokeErrors(t *testing.T) {
	var hits atomic.Int32
	server := newUserServer(t, &hits)
	c, err := New(baseConfig(server.URL), Options{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Invoke(context.Background(), "users.missing")
	require.ErrorIs(t, err, ErrUnknownAction)

	_, err = c.Invoke(context.Background(), "users.create", "a")
	require.True(t, errs.IsValidation(err), "min=2 应拒绝单字符名称: %v", err)

	_, err = c.Invoke(context.Background(), "users.get", 1, 2, 3)
	require.True(t, errs.IsConfig(err), "多余实参应返回配置错误: %v", err)

	_, err = c.Invoke(context.Background(), "users.get", 404, nil)
	var statusErr *errs.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = Call[int](context.Background(), c, "users.create", "bob", nil)
	require.Error(t, err)
	require.EqualValues(t, 2, hits.Load(), "校验失败的调用不应到达上游")
}

func TestCloseCancelsPendingCalls(t *testing.T) {
	var hits atomic.Int32
	server := newUserServer(t, &hits)
	c, err := New(baseConfig(server.URL), Options{Logger: quietLogger()})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	_, err = c.Invoke(context.Background(), "users.get", 7, nil)
	require.True(t, errs.IsCanceled(err), "关闭后的调用应以取消结束: %v", err)
	require.Zero(t, hits.Load())
}

func TestShutdownSignalCancelsCalls(t *testing.T) {
	var hits atomic.Int32
	server := newUserServer(t, &hits)
	shutdown, stop := context.WithCancel(context.Background())
	c, err := New(baseConfig(server.URL), Options{Logger: quietLogger(), Shutdown: shutdown})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	stop()
	_, err = c.Invoke(context.Background(), "users.get", 7, nil)
	require.True(t, errs.IsCanceled(err), "进程级信号应取消调用: %v", err)
}

func TestBearerTokenFromConfiguredProvider(t *testing.T) {
	var tokenRequests atomic.Int32
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenRequests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenServer.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(api.Close)

	cfg := baseConfig(api.URL)
	cfg.Cache.Provider = "none"
	cfg.Tokens = []config.TokenConfig{{Name: "main", Endpoint: tokenServer.URL, ClientID: "id", ClientSecret: "secret"}}
	cfg.APIs[0].Token = "main"
	cfg.APIs[0].Headers = nil
	cfg.APIs[0].Actions = []config.ActionConfig{{Name: "ping", Method: http.MethodGet, Path: "/ping", Return: "json"}}

	c, err := New(cfg, Options{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	for range 3 {
		value, err := c.Invoke(context.Background(), "users.ping")
		require.NoError(t, err)
		require.Equal(t, map[string]any{"ok": true}, value)
	}
	require.EqualValues(t, 1, tokenRequests.Load(), "有效令牌应被复用")
	require.Equal(t, "none", c.CacheProvider())
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := baseConfig("http://example.com")
	cfg.Cache.Provider = "redis"
	_, err := New(cfg, Options{Logger: quietLogger()})
	require.True(t, errs.IsConfig(err))

	cfg = baseConfig("http://example.com")
	cfg.APIs[0].Token = "absent"
	_, err = New(cfg, Options{Logger: quietLogger()})
	require.True(t, errs.IsConfig(err))

	cfg = baseConfig("http://example.com")
	cfg.APIs[0].Actions = append(cfg.APIs[0].Actions, cfg.APIs[0].Actions[0])
	_, err = New(cfg, Options{Logger: quietLogger()})
	require.Error(t, err, "重复动作名应被拒绝")
}

func TestActionsAndBoltProvider(t *testing.T) {
	cfg := baseConfig("http://example.com")
	cfg.Cache = config.CacheConfig{Provider: "bolt", Path: t.TempDir()}
	c, err := New(cfg, Options{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Equal(t, "bolt", c.CacheProvider())
	summaries := c.Actions()
	require.Len(t, summaries, 2)
	require.Equal(t, "users.create", summaries[0].Action)
	require.Equal(t, "users.get", summaries[1].Action)
}

func TestXMLActionReportsUpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	t.Cleanup(server.Close)

	cfg := baseConfig(server.URL)
	cfg.Cache.Provider = "none"
	cfg.APIs[0].Name = "feed"
	cfg.APIs[0].Actions = []config.ActionConfig{{Name: "get", Method: http.MethodGet, Path: "/feed", Return: "xml"}}
	c, err := New(cfg, Options{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Invoke(context.Background(), "feed.get")
	var statusErr *errs.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	require.False(t, errs.IsConfig(err), "上游故障不应报告为配置错误")
}
