package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow-dev/toolsets/pkg/client"
)

// fakeAPI records calls and serves canned responses. All methods are
// mutex-guarded because the poll goroutine calls into it concurrently.
type fakeAPI struct {
	mu sync.Mutex

	schema    *client.ToolsetSchema
	schemaErr error

	status      client.InstanceStatus
	statusCalls int

	createResult *client.ToolsetInstance
	createErr    error
	createParams []client.CreateInstanceParams

	updateResult *client.UpdateInstanceResult
	updateErr    error
	updateParams []client.UpdateInstanceParams

	deleteErr error
	authErr   error
	authCreds []map[string]string
	removeErr error
	reauthErr error

	authorizeResult *client.AuthorizeURLResult
	authorizeErr    error

	detail    *client.InstanceDetail
	detailErr error

	configs []client.OAuthConfigView

	oauthUpdateResult   *client.UpdateOAuthConfigResult
	oauthUpdateErr      error
	oauthUpdatePayloads []map[string]string
}

func (f *fakeAPI) GetToolsetSchema(_ context.Context, _ string) (*client.ToolsetSchema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schema, f.schemaErr
}

func (f *fakeAPI) CreateToolsetInstance(_ context.Context, params client.CreateInstanceParams) (*client.ToolsetInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createParams = append(f.createParams, params)
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createResult != nil {
		return f.createResult, nil
	}
	return &client.ToolsetInstance{ID: "created-1", ToolsetType: params.ToolsetType, InstanceName: params.InstanceName, AuthType: params.AuthType}, nil
}

func (f *fakeAPI) UpdateToolsetInstance(_ context.Context, _ string, params client.UpdateInstanceParams) (*client.UpdateInstanceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateParams = append(f.updateParams, params)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.updateResult != nil {
		return f.updateResult, nil
	}
	return &client.UpdateInstanceResult{}, nil
}

func (f *fakeAPI) DeleteToolsetInstance(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteErr
}

func (f *fakeAPI) AuthenticateToolsetInstance(_ context.Context, _ string, credentials map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCreds = append(f.authCreds, credentials)
	return f.authErr
}

func (f *fakeAPI) RemoveToolsetCredentials(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removeErr
}

func (f *fakeAPI) ReauthenticateToolsetInstance(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reauthErr
}

func (f *fakeAPI) GetInstanceOAuthAuthorizationURL(_ context.Context, _, _ string) (*client.AuthorizeURLResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authorizeErr != nil {
		return nil, f.authorizeErr
	}
	if f.authorizeResult != nil {
		return f.authorizeResult, nil
	}
	return &client.AuthorizeURLResult{Success: true, AuthorizationURL: "https://provider.example.com/authorize", State: "state-1"}, nil
}

func (f *fakeAPI) GetInstanceStatus(_ context.Context, _ string) client.InstanceStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	return f.status
}

func (f *fakeAPI) GetToolsetInstance(_ context.Context, _ string) (*client.InstanceDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detail, f.detailErr
}

func (f *fakeAPI) ListToolsetOAuthConfigs(_ context.Context, _ string) ([]client.OAuthConfigView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configs, nil
}

func (f *fakeAPI) UpdateToolsetOAuthConfig(_ context.Context, _, _ string, authConfig map[string]string) (*client.UpdateOAuthConfigResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oauthUpdatePayloads = append(f.oauthUpdatePayloads, authConfig)
	if f.oauthUpdateErr != nil {
		return nil, f.oauthUpdateErr
	}
	if f.oauthUpdateResult != nil {
		return f.oauthUpdateResult, nil
	}
	return &client.UpdateOAuthConfigResult{OAuthConfigID: "config-1"}, nil
}

func (f *fakeAPI) statusCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeAPI) oauthUpdateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.oauthUpdatePayloads)
}

func dialogTestSchema() *client.ToolsetSchema {
	return &client.ToolsetSchema{
		ToolsetType: "acme",
		Schemas: map[client.AuthType]client.AuthSchema{
			client.AuthTypeOAuth: {
				Fields: []client.SchemaField{
					{Name: "clientId", Label: "Client ID", Required: true},
					{Name: "clientSecret", Label: "Client Secret", Required: true, Secret: true},
					{Name: "authorizeUrl", Label: "Authorize URL", Required: true, Pattern: "^https://", Message: "Authorize URL must use https"},
					{Name: "tokenUrl", Label: "Token URL", Required: true},
				},
				ShowRedirectURI: true,
			},
			client.AuthTypeAPIToken: {
				Fields: []client.SchemaField{
					{Name: "apiToken", Label: "API Token", Required: true, MinLength: 8},
					{Name: "endpoint", Label: "Endpoint", Pattern: "^https://", Message: "Endpoint must use https"},
				},
			},
		},
	}
}

func newCreateDialog(t *testing.T, api *fakeAPI, opts ...func(*Options)) *Dialog {
	t.Helper()
	if api.schema == nil {
		api.schema = dialogTestSchema()
	}
	o := Options{API: api, Mode: ModeCreate, ToolsetType: "acme"}
	for _, opt := range opts {
		opt(&o)
	}
	d, err := New(o)
	require.NoError(t, err)
	require.NoError(t, d.Load(context.Background()))
	return d
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{Mode: ModeCreate, ToolsetType: "acme"})
	assert.Error(t, err)

	_, err = New(Options{API: &fakeAPI{}, Mode: ModeManage, ToolsetType: "acme"})
	assert.Error(t, err)

	_, err = New(Options{API: &fakeAPI{}, Mode: ModeCreate})
	assert.Error(t, err)
}

func TestLoadSelectsDefaultAuthType(t *testing.T) {
	api := &fakeAPI{}
	d := newCreateDialog(t, api)

	// OAUTH sorts first in the schema order.
	d.mu.Lock()
	selected := d.selectedAuthType
	d.mu.Unlock()
	assert.Equal(t, client.AuthTypeOAuth, selected)
}

func TestValidationReportsAllInvalidFieldsAtOnce(t *testing.T) {
	api := &fakeAPI{}
	d := newCreateDialog(t, api)
	d.SelectAuthType(client.AuthTypeAPIToken)
	d.SetInstanceName("")
	d.SetField("apiToken", "short")
	d.SetField("endpoint", "http://insecure.example.com")

	_, err := d.SaveConfiguration(context.Background())
	require.ErrorIs(t, err, ErrValidation)

	errs := d.FormErrors()
	assert.Len(t, errs, 3)
	assert.Contains(t, errs["apiToken"], "at least 8 characters")
	assert.Equal(t, "Endpoint must use https", errs["endpoint"])
	assert.Equal(t, "Instance name is required", errs["instanceName"])

	// Nothing reached the network.
	assert.Empty(t, api.createParams)
}

func TestFormErrorsHiddenUntilSubmit(t *testing.T) {
	d := newCreateDialog(t, &fakeAPI{})
	d.SelectAuthType(client.AuthTypeAPIToken)
	d.SetField("apiToken", "short")

	// No submit attempt yet, so nothing shows.
	assert.Empty(t, d.FormErrors())

	_, err := d.SaveConfiguration(context.Background())
	require.ErrorIs(t, err, ErrValidation)
	assert.NotEmpty(t, d.FormErrors())

	// Editing the field clears its stale error.
	d.SetField("apiToken", "long-enough-token")
	assert.NotContains(t, d.FormErrors(), "apiToken")
}

func TestSaveConfigurationAPIToken(t *testing.T) {
	api := &fakeAPI{}
	d := newCreateDialog(t, api)
	d.SelectAuthType(client.AuthTypeAPIToken)
	d.SetInstanceName("Acme Token")
	d.SetField("apiToken", "12345678")

	msg, err := d.SaveConfiguration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Configuration saved successfully.", msg)
	assert.True(t, d.ConfigSaved())
	assert.Equal(t, "created-1", d.InstanceID())

	require.Len(t, api.createParams, 1)
	assert.Equal(t, client.AuthTypeAPIToken, api.createParams[0].AuthType)
	assert.Equal(t, "12345678", api.createParams[0].AuthConfig["apiToken"])
}

func TestSaveConfigurationOAuthNeverAuthenticates(t *testing.T) {
	api := &fakeAPI{}
	d := newCreateDialog(t, api, func(o *Options) { o.IsAdmin = true })
	d.SetInstanceName("Acme Sales")
	d.SetField("clientId", "client-1")
	d.SetField("clientSecret", "secret-1")
	d.SetField("authorizeUrl", "https://acme.example.com/authorize")
	d.SetField("tokenUrl", "https://acme.example.com/token")
	d.SetField("oauthInstanceName", "Acme Prod App")

	msg, err := d.SaveConfiguration(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg, "authenticate separately")
	assert.False(t, d.IsAuthenticated())

	require.Len(t, api.createParams, 1)
	params := api.createParams[0]
	assert.Equal(t, "Acme Prod App", params.OAuthInstanceName)
	// The helper field is stripped from the credential payload.
	assert.NotContains(t, params.AuthConfig, "oauthInstanceName")
}

func TestSaveConfigurationOAuthRequiresAppChoice(t *testing.T) {
	d := newCreateDialog(t, &fakeAPI{}, func(o *Options) { o.IsAdmin = true })
	d.SetInstanceName("Acme Sales")
	d.SetField("clientId", "client-1")
	d.SetField("clientSecret", "secret-1")
	d.SetField("authorizeUrl", "https://acme.example.com/authorize")
	d.SetField("tokenUrl", "https://acme.example.com/token")

	_, err := d.SaveConfiguration(context.Background())
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, d.FormErrors(), "oauthInstanceName")

	// Selecting an existing shared app satisfies the choice.
	d.SelectOAuthConfig("config-1")
	_, err = d.SaveConfiguration(context.Background())
	assert.NoError(t, err)
}

func TestSaveConfigurationReusesSelectedConfig(t *testing.T) {
	api := &fakeAPI{}
	d := newCreateDialog(t, api, func(o *Options) { o.IsAdmin = true })
	d.SetInstanceName("Acme Sales")
	d.SelectOAuthConfig("config-9")
	d.SetField("clientId", "client-1")
	d.SetField("clientSecret", "secret-1")
	d.SetField("authorizeUrl", "https://acme.example.com/authorize")
	d.SetField("tokenUrl", "https://acme.example.com/token")

	_, err := d.SaveConfiguration(context.Background())
	require.NoError(t, err)

	params := api.createParams[0]
	assert.Equal(t, "config-9", params.OAuthConfigID)
	// Reusing a shared app sends no credential fields at all.
	assert.Nil(t, params.AuthConfig)
}

func TestAuthenticateUpdatesStateAndNotifies(t *testing.T) {
	api := &fakeAPI{
		schema: dialogTestSchema(),
		status: client.InstanceStatus{IsConfigured: true, AuthType: client.AuthTypeAPIToken, InstanceName: "Acme Token"},
	}
	notified := 0
	d, err := New(Options{
		API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1",
		OnSuccess: func() { notified++ },
	})
	require.NoError(t, err)
	require.NoError(t, d.Load(context.Background()))
	d.SetField("apiToken", "12345678")

	require.NoError(t, d.Authenticate(context.Background()))
	assert.True(t, d.IsAuthenticated())
	assert.Equal(t, 1, notified)
	require.Len(t, api.authCreds, 1)
	assert.Equal(t, "12345678", api.authCreds[0]["apiToken"])
}

func TestAuthenticateFailureSetsBannerFromAPIError(t *testing.T) {
	api := &fakeAPI{
		schema:  dialogTestSchema(),
		status:  client.InstanceStatus{IsConfigured: true, AuthType: client.AuthTypeAPIToken},
		authErr: &client.APIError{StatusCode: 400, Detail: "apiToken is required"},
	}
	d, err := New(Options{API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1"})
	require.NoError(t, err)
	require.NoError(t, d.Load(context.Background()))
	d.SetField("apiToken", "12345678")

	err = d.Authenticate(context.Background())
	require.Error(t, err)
	assert.Equal(t, "apiToken is required", d.Banner())
	assert.False(t, d.IsAuthenticated())
}

func TestManageModeSeedsFromProjection(t *testing.T) {
	api := &fakeAPI{}
	d, err := New(Options{
		API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1",
		Seed: &client.MyToolset{InstanceID: "i1", InstanceName: "Acme Sales", IsAuthenticated: true},
	})
	require.NoError(t, err)

	assert.True(t, d.ConfigSaved())
	assert.True(t, d.IsAuthenticated())
}

func TestDeleteInstanceResetsState(t *testing.T) {
	api := &fakeAPI{}
	notified := 0
	d, err := New(Options{
		API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1",
		Seed:      &client.MyToolset{IsAuthenticated: true},
		OnSuccess: func() { notified++ },
	})
	require.NoError(t, err)

	require.NoError(t, d.DeleteInstance(context.Background()))
	assert.Empty(t, d.InstanceID())
	assert.False(t, d.ConfigSaved())
	assert.False(t, d.IsAuthenticated())
	assert.Equal(t, 1, notified)

	// Without an instance there is nothing left to delete.
	assert.ErrorIs(t, d.DeleteInstance(context.Background()), ErrNoInstance)
}

func TestRemoveCredentialsKeepsInstance(t *testing.T) {
	api := &fakeAPI{}
	d, err := New(Options{
		API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1",
		Seed: &client.MyToolset{IsAuthenticated: true},
	})
	require.NoError(t, err)

	require.NoError(t, d.RemoveCredentials(context.Background()))
	assert.False(t, d.IsAuthenticated())
	assert.Equal(t, "i1", d.InstanceID())
	assert.True(t, d.ConfigSaved())
}

func TestReauthenticateClearsAuthOnly(t *testing.T) {
	api := &fakeAPI{}
	d, err := New(Options{
		API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1",
		Seed: &client.MyToolset{IsAuthenticated: true},
	})
	require.NoError(t, err)

	require.NoError(t, d.Reauthenticate(context.Background()))
	assert.False(t, d.IsAuthenticated())
	assert.True(t, d.ConfigSaved())
}

func TestLoadAdminOAuthManagement(t *testing.T) {
	api := &fakeAPI{
		schema: dialogTestSchema(),
		status: client.InstanceStatus{
			IsConfigured: true, IsAuthenticated: true,
			AuthType: client.AuthTypeOAuth, InstanceName: "Acme Sales",
		},
		detail: &client.InstanceDetail{
			Instance: client.ToolsetInstance{ID: "i1", OAuthConfigID: "config-1", AuthType: client.AuthTypeOAuth},
			OAuthConfig: &client.OAuthConfigView{
				ID: "config-1", Name: "Acme Prod App", ClientID: "client-1",
				ClientSecretSet: true, Scopes: []string{"read", "write"},
			},
			AuthenticatedUserCount: 5,
		},
		configs: []client.OAuthConfigView{{ID: "config-1"}, {ID: "config-2"}},
	}
	d, err := New(Options{API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1", IsAdmin: true})
	require.NoError(t, err)
	require.NoError(t, d.Load(context.Background()))

	assert.Equal(t, 5, d.AuthenticatedUserCount())
	assert.True(t, d.IsAuthenticated())

	d.mu.Lock()
	assert.Equal(t, "config-1", d.selectedOAuthConfigID)
	assert.Len(t, d.availableOAuthConfigs, 2)
	// The write-only secret seeds empty, meaning "keep existing" on save.
	assert.Equal(t, "", d.oauthFormData["clientSecret"])
	assert.Equal(t, "client-1", d.oauthFormData["clientId"])
	assert.Equal(t, "read,write", d.oauthFormData["scopes"])
	d.mu.Unlock()
}

func TestLoadSchemaFailureSetsBanner(t *testing.T) {
	api := &fakeAPI{schemaErr: errors.New("boom")}
	d, err := New(Options{API: api, Mode: ModeCreate, ToolsetType: "acme"})
	require.NoError(t, err)

	require.Error(t, d.Load(context.Background()))
	assert.NotEmpty(t, d.Banner())
}
