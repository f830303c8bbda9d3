package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow-dev/toolsets/internal/store"
)

func TestStateSignVerifyRoundTrip(t *testing.T) {
	c := newOAuthCoordinator([]byte("secret"), "http://localhost/callback")

	state, err := c.signState("inst-1", "user-1")
	require.NoError(t, err)

	claims, err := c.verifyState(state)
	require.NoError(t, err)
	assert.Equal(t, "inst-1", claims.InstanceID)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestVerifyStateRejectsTampering(t *testing.T) {
	c := newOAuthCoordinator([]byte("secret"), "http://localhost/callback")
	state, err := c.signState("inst-1", "user-1")
	require.NoError(t, err)

	tests := []struct {
		name  string
		state string
	}{
		{name: "garbage", state: "not-a-jwt"},
		{name: "empty", state: ""},
		{name: "corrupted signature", state: state + "xx"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.verifyState(tc.state)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}

	// A state signed with a different secret fails too.
	other := newOAuthCoordinator([]byte("other-secret"), "http://localhost/callback")
	foreign, err := other.signState("inst-1", "user-1")
	require.NoError(t, err)
	_, err = c.verifyState(foreign)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAuthorizeURLPreconditions(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.AuthorizeURL(ctx, "missing", "u1", "")
	assert.ErrorIs(t, err, store.ErrNotFound)

	tokenInstance := createTokenInstance(t, svc)
	_, err = svc.AuthorizeURL(ctx, tokenInstance.ID, "u1", "")
	assert.ErrorIs(t, err, ErrNotOAuthInstance)

	instance := createOAuthInstance(t, svc)
	config, err := st.GetOAuthConfig(ctx, instance.OAuthConfigID)
	require.NoError(t, err)
	config.ClientSecret = ""
	require.NoError(t, st.UpdateOAuthConfig(ctx, config))
	_, err = svc.AuthorizeURL(ctx, instance.ID, "u1", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAuthorizeURLShape(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	instance := createOAuthInstance(t, svc)

	result, err := svc.AuthorizeURL(ctx, instance.ID, "u1", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.State)

	parsed, err := url.Parse(result.AuthorizationURL)
	require.NoError(t, err)
	assert.Equal(t, "acme.example.com", parsed.Host)
	query := parsed.Query()
	assert.Equal(t, "client-1", query.Get("client_id"))
	assert.Equal(t, result.State, query.Get("state"))
	assert.Equal(t, "offline", query.Get("access_type"))
	assert.Contains(t, query.Get("redirect_uri"), "/api/v1/toolsets/oauth/callback")
	assert.Contains(t, query.Get("scope"), "read")
}

func TestAuthorizeURLHonorsBaseURL(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	instance := createOAuthInstance(t, svc)

	// The stored redirect URI wins while it is set.
	result, err := svc.AuthorizeURL(ctx, instance.ID, "u1", "https://app.example.com")
	require.NoError(t, err)
	parsed, err := url.Parse(result.AuthorizationURL)
	require.NoError(t, err)
	assert.NotContains(t, parsed.Query().Get("redirect_uri"), "app.example.com")

	config, err := st.GetOAuthConfig(ctx, instance.OAuthConfigID)
	require.NoError(t, err)
	config.RedirectURI = ""
	require.NoError(t, st.UpdateOAuthConfig(ctx, config))

	result, err = svc.AuthorizeURL(ctx, instance.ID, "u1", "https://app.example.com")
	require.NoError(t, err)
	parsed, err = url.Parse(result.AuthorizationURL)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/api/v1/toolsets/oauth/callback", parsed.Query().Get("redirect_uri"))
}

func TestCompleteOAuth(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-123","token_type":"Bearer","refresh_token":"rt-456","expires_in":3600}`))
	}))
	defer provider.Close()

	svc, st := newTestService(t)
	ctx := context.Background()
	instance := createOAuthInstance(t, svc)

	config, err := st.GetOAuthConfig(ctx, instance.OAuthConfigID)
	require.NoError(t, err)
	config.TokenURL = provider.URL + "/token"
	require.NoError(t, st.UpdateOAuthConfig(ctx, config))

	result, err := svc.AuthorizeURL(ctx, instance.ID, "u1", "")
	require.NoError(t, err)

	require.NoError(t, svc.CompleteOAuth(ctx, result.State, "good-code"))

	credential, err := st.GetCredential(ctx, "u1", instance.ID)
	require.NoError(t, err)
	assert.True(t, credential.Authenticated)
	assert.Equal(t, "at-123", credential.Secret["accessToken"])
	assert.Equal(t, "rt-456", credential.Secret["refreshToken"])
	assert.NotEmpty(t, credential.Secret["expiresAt"])

	assert.True(t, svc.InstanceStatus(ctx, instance.ID, "u1").IsAuthenticated)
}

func TestCompleteOAuthRejectsBadState(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.CompleteOAuth(context.Background(), "bogus-state", "code")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteOAuthExchangeFailure(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer provider.Close()

	svc, st := newTestService(t)
	ctx := context.Background()
	instance := createOAuthInstance(t, svc)
	config, err := st.GetOAuthConfig(ctx, instance.OAuthConfigID)
	require.NoError(t, err)
	config.TokenURL = provider.URL + "/token"
	require.NoError(t, st.UpdateOAuthConfig(ctx, config))

	result, err := svc.AuthorizeURL(ctx, instance.ID, "u1", "")
	require.NoError(t, err)

	err = svc.CompleteOAuth(ctx, result.State, "bad-code")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "token exchange failed"))

	_, err = st.GetCredential(ctx, "u1", instance.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
