package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow-dev/toolsets/pkg/client"
)

// fakePopup reports itself closed after a fixed number of Closed() checks,
// or immediately once Close() is called.
type fakePopup struct {
	mu          sync.Mutex
	closedAfter int
	checks      int
	closeCalls  int
	closed      bool
}

func (p *fakePopup) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks++
	if p.closed {
		return true
	}
	return p.closedAfter > 0 && p.checks >= p.closedAfter
}

func (p *fakePopup) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCalls++
	p.closed = true
}

func (p *fakePopup) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}

type fakeOpener struct {
	mu         sync.Mutex
	popup      Popup
	err        error
	openedURLs []string
}

func (o *fakeOpener) Open(url string, _, _ int) (Popup, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openedURLs = append(o.openedURLs, url)
	if o.err != nil {
		return nil, o.err
	}
	return o.popup, nil
}

func newFlowDialog(t *testing.T, api *fakeAPI, popup *fakePopup, opts ...func(*Options)) *Dialog {
	t.Helper()
	if api.schema == nil {
		api.schema = dialogTestSchema()
	}
	o := Options{
		API:          api,
		Mode:         ModeManage,
		ToolsetType:  "acme",
		InstanceID:   "i1",
		Popup:        &fakeOpener{popup: popup},
		PollInterval: 2 * time.Millisecond,
		GracePeriod:  time.Millisecond,
		MaxPolls:     200,
	}
	for _, opt := range opts {
		opt(&o)
	}
	d, err := New(o)
	require.NoError(t, err)
	return d
}

func waitResult(t *testing.T, results <-chan FlowResult) FlowResult {
	t.Helper()
	select {
	case result := <-results:
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for flow result")
		return FlowResult{}
	}
}

func TestStartOAuthFlowPreconditions(t *testing.T) {
	api := &fakeAPI{schema: dialogTestSchema()}

	// No instance yet.
	d, err := New(Options{API: api, Mode: ModeCreate, ToolsetType: "acme"})
	require.NoError(t, err)
	_, err = d.StartOAuthFlow(context.Background())
	assert.ErrorIs(t, err, ErrNoInstance)

	// Instance known but configuration not saved in CREATE mode.
	d.mu.Lock()
	d.instanceID = "i1"
	d.mu.Unlock()
	_, err = d.StartOAuthFlow(context.Background())
	assert.ErrorIs(t, err, ErrConfigNotSaved)
}

func TestStartOAuthFlowRejectsConcurrentFlows(t *testing.T) {
	popup := &fakePopup{}
	d := newFlowDialog(t, &fakeAPI{}, popup)
	defer d.Close()

	results, err := d.StartOAuthFlow(context.Background())
	require.NoError(t, err)

	_, err = d.StartOAuthFlow(context.Background())
	assert.ErrorIs(t, err, ErrFlowInProgress)

	d.Close()
	result := waitResult(t, results)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.GreaterOrEqual(t, popup.closeCount(), 1)
}

func TestStartOAuthFlowPopupBlocked(t *testing.T) {
	api := &fakeAPI{schema: dialogTestSchema()}
	d, err := New(Options{
		API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1",
		Popup: &fakeOpener{err: errors.New("blocked")},
	})
	require.NoError(t, err)

	_, err = d.StartOAuthFlow(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Popup blocked. Allow popups for this site and try again.", d.Banner())
}

func TestStartOAuthFlowAuthorizeFailure(t *testing.T) {
	api := &fakeAPI{
		schema:       dialogTestSchema(),
		authorizeErr: &client.APIError{StatusCode: 400, Detail: "OAuth is not configured"},
	}
	d, err := New(Options{API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1"})
	require.NoError(t, err)

	_, err = d.StartOAuthFlow(context.Background())
	require.Error(t, err)
	assert.Equal(t, "OAuth is not configured", d.Banner())
}

func TestOAuthFlowSuccess(t *testing.T) {
	popup := &fakePopup{closedAfter: 3}
	api := &fakeAPI{status: client.InstanceStatus{IsConfigured: true, IsAuthenticated: true}}
	notified := 0
	d := newFlowDialog(t, api, popup, func(o *Options) {
		o.OnSuccess = func() { notified++ }
	})

	results, err := d.StartOAuthFlow(context.Background())
	require.NoError(t, err)

	result := waitResult(t, results)
	require.NoError(t, result.Err)
	assert.True(t, result.Authenticated)
	assert.True(t, d.IsAuthenticated())
	assert.Empty(t, d.Banner())
	assert.Equal(t, 1, notified)

	// Status was checked exactly once, after the popup closed.
	assert.Equal(t, 1, api.statusCallCount())

	// The flow registration is released, so a new flow may start.
	d.mu.Lock()
	assert.Nil(t, d.stopPoll)
	d.mu.Unlock()
}

func TestOAuthFlowPopupClosedWithoutAuth(t *testing.T) {
	popup := &fakePopup{closedAfter: 1}
	api := &fakeAPI{status: client.InstanceStatus{IsConfigured: true}}
	d := newFlowDialog(t, api, popup)

	results, err := d.StartOAuthFlow(context.Background())
	require.NoError(t, err)

	result := waitResult(t, results)
	require.NoError(t, result.Err)
	assert.False(t, result.Authenticated)
	assert.False(t, d.IsAuthenticated())
	assert.Equal(t, "Authentication failed or was cancelled.", d.Banner())
}

func TestOAuthFlowTimesOut(t *testing.T) {
	popup := &fakePopup{}
	api := &fakeAPI{}
	d := newFlowDialog(t, api, popup, func(o *Options) {
		o.MaxPolls = 3
	})

	results, err := d.StartOAuthFlow(context.Background())
	require.NoError(t, err)

	result := waitResult(t, results)
	assert.ErrorIs(t, result.Err, ErrPopupTimeout)
	assert.GreaterOrEqual(t, popup.closeCount(), 1)
	// The backend is never asked when the window never closed.
	assert.Zero(t, api.statusCallCount())
	assert.False(t, d.IsAuthenticated())
}

func TestCloseWaitsForPoll(t *testing.T) {
	popup := &fakePopup{}
	d := newFlowDialog(t, &fakeAPI{}, popup)

	results, err := d.StartOAuthFlow(context.Background())
	require.NoError(t, err)

	d.Close()
	result := waitResult(t, results)
	assert.ErrorIs(t, result.Err, context.Canceled)

	// Once closed, new flows are refused outright.
	_, err = d.StartOAuthFlow(context.Background())
	assert.Error(t, err)
}

func newAdminOAuthDialog(t *testing.T, api *fakeAPI, userCount int) *Dialog {
	t.Helper()
	api.schema = dialogTestSchema()
	api.status = client.InstanceStatus{IsConfigured: true, IsAuthenticated: true, AuthType: client.AuthTypeOAuth}
	api.detail = &client.InstanceDetail{
		Instance: client.ToolsetInstance{ID: "i1", OAuthConfigID: "config-1", AuthType: client.AuthTypeOAuth},
		OAuthConfig: &client.OAuthConfigView{
			ID: "config-1", Name: "Acme App", ClientID: "client-1",
			ClientSecretSet: true, Scopes: []string{"read"},
		},
		AuthenticatedUserCount: userCount,
	}
	api.configs = []client.OAuthConfigView{{ID: "config-1"}, {ID: "config-2"}}

	d, err := New(Options{API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1", IsAdmin: true})
	require.NoError(t, err)
	require.NoError(t, d.Load(context.Background()))
	return d
}

func TestSaveOAuthConfigRunsImmediatelyWithNoUsersAtRisk(t *testing.T) {
	api := &fakeAPI{}
	d := newAdminOAuthDialog(t, api, 0)

	require.NoError(t, d.SaveOAuthConfig(context.Background()))
	assert.Equal(t, 1, api.oauthUpdateCount())

	_, pending := d.PendingConfirmation()
	assert.False(t, pending)
}

func TestSaveOAuthConfigGatedBehindConfirmation(t *testing.T) {
	api := &fakeAPI{
		oauthUpdateResult: &client.UpdateOAuthConfigResult{OAuthConfigID: "config-1", DeauthenticatedUserCount: 5},
	}
	d := newAdminOAuthDialog(t, api, 5)
	d.SetOAuthField("clientId", "client-2")

	// The gate defers the call; nothing hits the API yet.
	require.NoError(t, d.SaveOAuthConfig(context.Background()))
	assert.Zero(t, api.oauthUpdateCount())

	label, pending := d.PendingConfirmation()
	require.True(t, pending)
	assert.Equal(t, "update the OAuth configuration", label)

	require.NoError(t, d.Confirm(context.Background()))
	require.Equal(t, 1, api.oauthUpdateCount())

	// Everyone on the config was deauthenticated, the admin included.
	assert.Zero(t, d.AuthenticatedUserCount())
	assert.False(t, d.IsAuthenticated())

	_, pending = d.PendingConfirmation()
	assert.False(t, pending)
	assert.ErrorIs(t, d.Confirm(context.Background()), ErrNothingToConfirm)
}

func TestCancelConfirmationDiscardsPendingAction(t *testing.T) {
	api := &fakeAPI{}
	d := newAdminOAuthDialog(t, api, 2)

	require.NoError(t, d.SaveOAuthConfig(context.Background()))
	_, pending := d.PendingConfirmation()
	require.True(t, pending)

	d.CancelConfirmation()
	assert.Zero(t, api.oauthUpdateCount())
	assert.ErrorIs(t, d.Confirm(context.Background()), ErrNothingToConfirm)
}

func TestSaveOAuthConfigOmitsEmptySecret(t *testing.T) {
	api := &fakeAPI{}
	d := newAdminOAuthDialog(t, api, 0)

	require.NoError(t, d.SaveOAuthConfig(context.Background()))
	require.Len(t, api.oauthUpdatePayloads, 1)
	payload := api.oauthUpdatePayloads[0]
	_, hasSecret := payload["clientSecret"]
	assert.False(t, hasSecret)
	assert.Equal(t, "client-1", payload["clientId"])

	// A typed-in secret travels with the payload and rotates the stored one.
	d.SetOAuthField("clientSecret", "rotated-secret")
	require.NoError(t, d.SaveOAuthConfig(context.Background()))
	require.Len(t, api.oauthUpdatePayloads, 2)
	assert.Equal(t, "rotated-secret", api.oauthUpdatePayloads[1]["clientSecret"])
}

func TestSaveOAuthConfigAccessChecks(t *testing.T) {
	api := &fakeAPI{schema: dialogTestSchema()}
	d, err := New(Options{API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1"})
	require.NoError(t, err)
	assert.ErrorIs(t, d.SaveOAuthConfig(context.Background()), ErrNotAdmin)

	d, err = New(Options{API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1", IsAdmin: true})
	require.NoError(t, err)
	assert.ErrorIs(t, d.SaveOAuthConfig(context.Background()), ErrOAuthAppChoice)
}

func TestSwitchOAuthConfig(t *testing.T) {
	api := &fakeAPI{
		updateResult: &client.UpdateInstanceResult{DeauthenticatedUserCount: 3},
	}
	d := newAdminOAuthDialog(t, api, 3)

	require.NoError(t, d.SwitchOAuthConfig(context.Background(), "config-2"))
	assert.Empty(t, api.updateParams)

	label, pending := d.PendingConfirmation()
	require.True(t, pending)
	assert.Equal(t, "switch the OAuth configuration", label)

	require.NoError(t, d.Confirm(context.Background()))
	require.Len(t, api.updateParams, 1)
	require.NotNil(t, api.updateParams[0].OAuthConfigID)
	assert.Equal(t, "config-2", *api.updateParams[0].OAuthConfigID)
	assert.Nil(t, api.updateParams[0].InstanceName)

	assert.Zero(t, d.AuthenticatedUserCount())
	assert.False(t, d.IsAuthenticated())

	d.mu.Lock()
	assert.Equal(t, "config-2", d.selectedOAuthConfigID)
	d.mu.Unlock()
}

func TestSwitchOAuthConfigRequiresAdmin(t *testing.T) {
	api := &fakeAPI{schema: dialogTestSchema()}
	d, err := New(Options{API: api, Mode: ModeManage, ToolsetType: "acme", InstanceID: "i1"})
	require.NoError(t, err)
	assert.ErrorIs(t, d.SwitchOAuthConfig(context.Background(), "config-2"), ErrNotAdmin)
}
