package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/apicall/apicall/internal/telemetry"
)

var (
	// ErrRefreshRejected 表示授权服务器拒绝了刷新令牌，调用方应退回完整请求。
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrEmptyToken 表示响应中没有访问令牌。
	ErrEmptyToken = errors.New("token response missing access token")
)

// Error 是令牌获取失败。发生后 Provider 回到无令牌状态。
type Error struct {
	Provider string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("token %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Requester 执行真正的令牌网络往返。
type Requester interface {
	RequestToken(ctx context.Context) (*Result, error)
	RefreshToken(ctx context.Context, refreshToken string) (*Result, error)
}

// Provider 缓存一个令牌并在过期或进入刷新窗口时续期。
// 缓存令牌的读写都在 gate 内完成，不存在绕过 gate 的快速读取路径。
type Provider struct {
	name      string
	requester Requester
	window    RefreshWindow
	gate      *semaphore.Weighted
	current   *Result

	logger  *logrus.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewProvider 构造令牌提供者；logger 为空时使用 logrus 标准 logger。
func NewProvider(name string, requester Requester, window RefreshWindow, logger *logrus.Logger, metrics *telemetry.Metrics) *Provider {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Provider{
		name:      name,
		requester: requester,
		window:    window,
		gate:      semaphore.NewWeighted(1),
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Name 返回提供者名称。
func (p *Provider) Name() string { return p.name }

// Window 返回刷新窗口配置。
func (p *Provider) Window() RefreshWindow { return p.window }

// GetToken 返回可用令牌。并发调用在 gate 上排队，排在后面的调用方直接拿到
// 前一次往返缓存下来的结果。
func (p *Provider) GetToken(ctx context.Context) (*Result, error) {
	if err := p.gate.Acquire(ctx, 1); err != nil {
		return nil, &Error{Provider: p.name, Op: "wait", Err: err}
	}
	defer p.gate.Release(1)

	current := p.current
	now := p.now()
	switch {
	case current != nil && !p.window.Due(current, now):
		return current, nil
	case current != nil && current.CanRefresh():
		result, err := p.roundTrip(ctx, "refresh", func(ctx context.Context) (*Result, error) {
			return p.requester.RefreshToken(ctx, current.RefreshToken)
		})
		if err == nil && result != nil && result.RefreshToken == "" {
			// 服务端可以不轮换 refresh_token，沿用旧值
			kept := *result
			kept.RefreshToken = current.RefreshToken
			result = &kept
		}
		if errors.Is(err, ErrRefreshRejected) {
			p.logger.WithFields(logrus.Fields{"provider": p.name}).
				WithError(err).Info("token_refresh_rejected")
			result, err = p.roundTrip(ctx, "request", p.requester.RequestToken)
		}
		return p.store(result, err)
	default:
		result, err := p.roundTrip(ctx, "request", p.requester.RequestToken)
		return p.store(result, err)
	}
}

// ClearToken 丢弃缓存的令牌，下一次 GetToken 会重新获取。
func (p *Provider) ClearToken() {
	_ = p.gate.Acquire(context.Background(), 1)
	defer p.gate.Release(1)
	p.current = nil
}

func (p *Provider) roundTrip(ctx context.Context, kind string, fn func(context.Context) (*Result, error)) (*Result, error) {
	started := p.now()
	result, err := fn(ctx)
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case !result.IsSuccess():
		outcome = "empty"
	}
	p.metrics.RecordTokenRequest(p.name, kind, outcome)

	entry := p.logger.WithFields(logrus.Fields{
		"provider":   p.name,
		"result":     outcome,
		"elapsed_ms": p.now().Sub(started).Milliseconds(),
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("token_" + kind)
	return result, err
}

func (p *Provider) store(result *Result, err error) (*Result, error) {
	if err != nil {
		p.current = nil
		return nil, &Error{Provider: p.name, Op: "acquire", Err: err}
	}
	if !result.IsSuccess() {
		p.current = nil
		return nil, &Error{Provider: p.name, Op: "acquire", Err: ErrEmptyToken}
	}
	if result.CreatedAt.IsZero() {
		stamped := *result
		stamped.CreatedAt = p.now()
		result = &stamped
	}
	p.current = result
	return result, nil
}
