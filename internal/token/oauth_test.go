package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apicall/apicall/internal/hooks"
)

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "client_credentials":
			_, _ = w.Write([]byte(`{"access_token":"abc","refresh_token":"r1","token_type":"bearer","expires_in":3600}`))
		case "refresh_token":
			if r.PostForm.Get("refresh_token") != "r1" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"def","expires_in":60}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientCredentialsRequestAndRefresh(t *testing.T) {
	server := newTokenServer(t)
	requester := NewClientCredentials(server.URL, "client", "secret", "read", server.Client())

	result, err := requester.RequestToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc", result.AccessToken)
	require.True(t, result.CanRefresh())
	require.Equal(t, time.Hour, result.ExpiresIn)
	require.Equal(t, "Bearer abc", result.Authorization())

	refreshed, err := requester.RefreshToken(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, "def", refreshed.AccessToken)

	_, err = requester.RefreshToken(context.Background(), "stale")
	require.ErrorIs(t, err, ErrRefreshRejected)
}

func TestClientCredentialsErrors(t *testing.T) {
	server := newTokenServer(t)

	_, err := NewClientCredentials(server.URL, "client", "wrong", "", server.Client()).RequestToken(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRefreshRejected)

	_, err = NewClientCredentials("", "client", "secret", "", nil).RequestToken(context.Background())
	require.ErrorContains(t, err, "endpoint")
}

func TestBearerFilterSetsHeaderAndClearsOn401(t *testing.T) {
	server := newTokenServer(t)
	provider := NewProvider("oauth", NewClientCredentials(server.URL, "client", "secret", "", server.Client()), Auto(time.Minute, 10), quietLogger(), nil)
	filter := NewBearerFilter(provider, -10)

	base, _ := url.Parse("https://api.example.com")
	rc := hooks.NewRequestContext("id", "Users.Get", hooks.NewRequest(http.MethodGet, base, "/users"), nil)
	require.NoError(t, filter.BeforeSend(context.Background(), rc))
	require.Equal(t, "Bearer abc", rc.Request.Header.Get("Authorization"))
	name, _ := rc.Get(PropertyProvider)
	require.Equal(t, "oauth", name)

	resp := hooks.NewResponseContext(rc, &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{}})
	require.NoError(t, filter.AfterReceive(context.Background(), resp))

	_ = provider.gate.Acquire(context.Background(), 1)
	cleared := provider.current == nil
	provider.gate.Release(1)
	require.True(t, cleared)
}
