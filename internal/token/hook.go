package token

import (
	"context"
	"net/http"

	"github.com/apicall/apicall/internal/hooks"
)

// PropertyProvider 是写入属性袋的令牌提供者名称键。
const PropertyProvider = "token.provider"

// BearerFilter 在发送前写入 Authorization 头，收到 401 时清除缓存令牌，
// 让下一次调用重新获取。
type BearerFilter struct {
	provider *Provider
	order    int
}

// NewBearerFilter 构造过滤器。order 决定其在过滤链中的位置。
func NewBearerFilter(provider *Provider, order int) *BearerFilter {
	return &BearerFilter{provider: provider, order: order}
}

// Name implements hooks.Hook.
func (f *BearerFilter) Name() string { return "token" }

// Meta implements hooks.Hook.
func (f *BearerFilter) Meta() hooks.Meta { return hooks.Meta{Order: f.order} }

// BeforeSend implements hooks.FilterHook.
func (f *BearerFilter) BeforeSend(ctx context.Context, rc *hooks.RequestContext) error {
	result, err := f.provider.GetToken(ctx)
	if err != nil {
		return err
	}
	rc.Request.Header.Set("Authorization", result.Authorization())
	rc.Set(PropertyProvider, f.provider.Name())
	return nil
}

// AfterReceive implements hooks.FilterHook.
func (f *BearerFilter) AfterReceive(_ context.Context, resp *hooks.ResponseContext) error {
	if resp.Response != nil && resp.Response.StatusCode == http.StatusUnauthorized {
		resp.Logger.WithField("provider", f.provider.Name()).Info("token_cleared_on_401")
		f.provider.ClearToken()
	}
	return nil
}
