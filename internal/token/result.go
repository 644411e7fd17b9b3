// Package token 实现带刷新窗口的 Bearer 令牌获取：同一 Provider 的所有
// GetToken 调用经过单一门控串行执行，并发调用方共享同一次网络往返的结果。
package token

import "time"

// Result 是一次令牌请求的结果，刷新时整体替换而不是原地修改。
type Result struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

// IsSuccess 报告是否拿到了访问令牌。
func (r *Result) IsSuccess() bool {
	return r != nil && r.AccessToken != ""
}

// CanRefresh 报告是否可以用刷新令牌续期。
func (r *Result) CanRefresh() bool {
	return r != nil && r.RefreshToken != ""
}

// IsExpired 报告令牌在 now 时刻是否已超过声明的有效期。ExpiresIn 为 0 表示不过期。
func (r *Result) IsExpired(now time.Time) bool {
	if r.ExpiresIn <= 0 {
		return false
	}
	return now.Sub(r.CreatedAt) > r.ExpiresIn
}

// Remaining 返回 now 时刻剩余的有效期，可能为负。
func (r *Result) Remaining(now time.Time) time.Duration {
	return r.ExpiresIn - now.Sub(r.CreatedAt)
}

// Authorization 返回 Authorization 头的值，TokenType 缺省为 Bearer。
func (r *Result) Authorization() string {
	kind := r.TokenType
	if kind == "" || kind == "bearer" {
		kind = "Bearer"
	}
	return kind + " " + r.AccessToken
}
