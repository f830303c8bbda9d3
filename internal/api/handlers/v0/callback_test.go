package v0_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v0 "github.com/agentflow-dev/toolsets/internal/api/handlers/v0"
	"github.com/agentflow-dev/toolsets/internal/models"
	"github.com/agentflow-dev/toolsets/internal/service"
)

func TestOAuthCallbackSuccess(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer"}`))
	}))
	defer provider.Close()

	_, svc, st := newTestMux(t)
	ctx := context.Background()

	instance, err := svc.CreateInstance(ctx, service.CreateInstanceParams{
		OrgID: "org-1", CreatedBy: "u1", InstanceName: "Acme Sales",
		ToolsetType: "acme", AuthType: models.AuthTypeOAuth,
		OAuthInstanceName: "App",
		AuthConfig: map[string]string{
			"clientId":     "client-1",
			"clientSecret": "secret-1",
			"authorizeUrl": provider.URL + "/authorize",
			"tokenUrl":     provider.URL + "/token",
		},
	})
	require.NoError(t, err)

	result, err := svc.AuthorizeURL(ctx, instance.ID, "u1", "")
	require.NoError(t, err)

	handler := v0.OAuthCallbackHandler(svc)
	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?state="+result.State+"&code=good-code", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	// The popup page notifies the opener window before closing itself.
	assert.Contains(t, w.Body.String(), "oauth-success")
	assert.Contains(t, w.Body.String(), "window.opener.postMessage")

	credential, err := st.GetCredential(ctx, "u1", instance.ID)
	require.NoError(t, err)
	assert.True(t, credential.Authenticated)
}

func TestOAuthCallbackErrors(t *testing.T) {
	_, svc, _ := newTestMux(t)
	handler := v0.OAuthCallbackHandler(svc)

	tests := []struct {
		name       string
		target     string
		contains   string
		statusCode int
	}{
		{
			name:       "provider error param",
			target:     "/oauth/callback?error=access_denied&error_description=User+said+no",
			contains:   "User said no",
			statusCode: http.StatusBadRequest,
		},
		{
			name:       "missing state",
			target:     "/oauth/callback?code=abc",
			contains:   "Missing state or code",
			statusCode: http.StatusBadRequest,
		},
		{
			name:       "missing code",
			target:     "/oauth/callback?state=abc",
			contains:   "Missing state or code",
			statusCode: http.StatusBadRequest,
		},
		{
			name:       "invalid state",
			target:     "/oauth/callback?state=bogus&code=abc",
			contains:   "could not be completed",
			statusCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.statusCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
			assert.NotContains(t, w.Body.String(), "oauth-success")
		})
	}
}

func TestOAuthCallbackEscapesProviderError(t *testing.T) {
	_, svc, _ := newTestMux(t)
	handler := v0.OAuthCallbackHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?error=x&error_description=%3Cscript%3Ealert(1)%3C%2Fscript%3E", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, w.Body.String(), "<script>alert")
	assert.Contains(t, w.Body.String(), "&lt;script&gt;")
}
