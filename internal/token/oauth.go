package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ClientCredentials 通过 OAuth2 client_credentials 授权获取令牌，
// 支持 refresh_token 续期。
type ClientCredentials struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Scope        string

	client *http.Client
	now    func() time.Time
}

// NewClientCredentials 构造请求器，client 为空时使用 http.DefaultClient。
func NewClientCredentials(endpoint, clientID, clientSecret, scope string, client *http.Client) *ClientCredentials {
	if client == nil {
		client = http.DefaultClient
	}
	return &ClientCredentials{
		Endpoint:     endpoint,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scope:        scope,
		client:       client,
		now:          time.Now,
	}
}

// RequestToken implements Requester.
func (c *ClientCredentials) RequestToken(ctx context.Context) (*Result, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if c.Scope != "" {
		form.Set("scope", c.Scope)
	}
	return c.exchange(ctx, form, false)
}

// RefreshToken implements Requester.
func (c *ClientCredentials) RefreshToken(ctx context.Context, refreshToken string) (*Result, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.exchange(ctx, form, true)
}

func (c *ClientCredentials) exchange(ctx context.Context, form url.Values, refresh bool) (*Result, error) {
	if c.Endpoint == "" {
		return nil, errors.New("token endpoint missing")
	}
	endpoint, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid token endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if c.ClientID != "" {
		req.SetBasicAuth(c.ClientID, c.ClientSecret)
	}

	requestedAt := c.now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf(
			"token request failed: status=%d body=%s",
			resp.StatusCode,
			strings.TrimSpace(string(body)),
		)
		if refresh && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %v", ErrRefreshRejected, err)
		}
		return nil, err
	}

	var tokenResp struct {
		Token        string `json:"token"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	token := tokenResp.AccessToken
	if token == "" {
		token = tokenResp.Token
	}
	return &Result{
		AccessToken:  token,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
		CreatedAt:    requestedAt,
		ExpiresIn:    time.Duration(tokenResp.ExpiresIn) * time.Second,
	}, nil
}
