// Package dialog implements the toolset configuration dialog as an explicit
// state machine. A dialog operates in exactly one mode, chosen at
// construction: CREATE provisions a new org-wide instance, MANAGE
// authenticates against or edits an existing one.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentflow-dev/toolsets/pkg/client"
)

// Mode selects the dialog variant once at construction.
type Mode int

const (
	ModeCreate Mode = iota
	ModeManage
)

// Dialog-local errors. These never reach the network.
var (
	ErrValidation       = errors.New("form validation failed")
	ErrNoInstance       = errors.New("instance does not exist yet")
	ErrConfigNotSaved   = errors.New("configuration must be saved before authenticating")
	ErrPopupBlocked     = errors.New("popup blocked by the browser")
	ErrPopupTimeout     = errors.New("authentication timed out")
	ErrActionInFlight   = errors.New("another action is in progress")
	ErrOAuthAppChoice   = errors.New("select an OAuth app or name a new one")
	ErrNotAdmin         = errors.New("administrator role required")
	ErrFlowInProgress   = errors.New("an OAuth flow is already in progress")
	ErrNothingToConfirm = errors.New("no action awaiting confirmation")
)

// API is the client surface the dialog depends on. *client.Client
// implements it.
type API interface {
	GetToolsetSchema(ctx context.Context, toolsetType string) (*client.ToolsetSchema, error)
	CreateToolsetInstance(ctx context.Context, params client.CreateInstanceParams) (*client.ToolsetInstance, error)
	UpdateToolsetInstance(ctx context.Context, id string, params client.UpdateInstanceParams) (*client.UpdateInstanceResult, error)
	DeleteToolsetInstance(ctx context.Context, id string) error
	AuthenticateToolsetInstance(ctx context.Context, id string, credentials map[string]string) error
	RemoveToolsetCredentials(ctx context.Context, id string) error
	ReauthenticateToolsetInstance(ctx context.Context, id string) error
	GetInstanceOAuthAuthorizationURL(ctx context.Context, id, baseURL string) (*client.AuthorizeURLResult, error)
	GetInstanceStatus(ctx context.Context, id string) client.InstanceStatus
	GetToolsetInstance(ctx context.Context, id string) (*client.InstanceDetail, error)
	ListToolsetOAuthConfigs(ctx context.Context, toolsetType string) ([]client.OAuthConfigView, error)
	UpdateToolsetOAuthConfig(ctx context.Context, toolsetType, configID string, authConfig map[string]string) (*client.UpdateOAuthConfigResult, error)
}

// Options configures a dialog.
type Options struct {
	API         API
	Mode        Mode
	ToolsetType string
	// InstanceID is required in MANAGE mode.
	InstanceID string
	// Seed carries the projection the dialog was opened from; MANAGE mode
	// uses it to seed isAuthenticated before the first status poll.
	Seed    *client.MyToolset
	IsAdmin bool
	Logger  *zap.Logger

	// Popup opens the OAuth authorization window. Defaults to the system
	// browser.
	Popup PopupOpener
	// BaseURL is forwarded to the authorize endpoint when set.
	BaseURL string

	// Poll tuning. Zero values use the defaults: 1s interval, 300 polls,
	// 500ms grace.
	PollInterval time.Duration
	MaxPolls     int
	GracePeriod  time.Duration

	// OnSuccess fires after any action that changes auth state succeeds;
	// callers refresh their toolset list here.
	OnSuccess func()
}

const (
	defaultPollInterval = time.Second
	defaultMaxPolls     = 300
	defaultGracePeriod  = 500 * time.Millisecond

	popupWidth  = 600
	popupHeight = 700
)

// pendingAction is the deferred mutation held by the confirmation gate.
type pendingAction struct {
	label  string
	action func(ctx context.Context) error
}

// Dialog is the configuration dialog state machine. All exported methods
// are safe for concurrent use; mutating actions are serialized by busy
// flags, mirroring the one-action-at-a-time UI contract.
type Dialog struct {
	api    API
	mode   Mode
	admin  bool
	logger *zap.Logger

	popup        PopupOpener
	baseURL      string
	pollInterval time.Duration
	maxPolls     int
	gracePeriod  time.Duration
	onSuccess    func()

	mu sync.Mutex

	toolsetType  string
	instanceID   string
	instanceName string

	schema           *client.ToolsetSchema
	selectedAuthType client.AuthType
	formData         map[string]string
	formErrors       map[string]string
	saveAttempted    bool

	loading         bool
	configSaved     bool
	isAuthenticated bool

	saving           bool
	authenticating   bool
	deleting         bool
	reauthenticating bool
	savingOAuth      bool

	banner string

	// Admin MANAGE+OAUTH state.
	instanceDetail         *client.InstanceDetail
	availableOAuthConfigs  []client.OAuthConfigView
	oauthFormData          map[string]string
	selectedOAuthConfigID  string
	authenticatedUserCount int

	pending *pendingAction

	// OAuth flow lifetime. stopPoll is non-nil while a poll is running;
	// Close always releases it.
	stopPoll context.CancelFunc
	pollDone chan struct{}

	closed bool
}

// New builds a dialog. MANAGE mode requires InstanceID.
func New(opts Options) (*Dialog, error) {
	if opts.API == nil {
		return nil, errors.New("dialog: API is required")
	}
	if opts.Mode == ModeManage && opts.InstanceID == "" {
		return nil, errors.New("dialog: MANAGE mode requires an instance id")
	}
	if opts.ToolsetType == "" {
		return nil, errors.New("dialog: toolset type is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	popup := opts.Popup
	if popup == nil {
		popup = BrowserOpener{}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}
	gracePeriod := opts.GracePeriod
	if gracePeriod <= 0 {
		gracePeriod = defaultGracePeriod
	}

	d := &Dialog{
		api:           opts.API,
		mode:          opts.Mode,
		admin:         opts.IsAdmin,
		logger:        logger.Named("dialog"),
		popup:         popup,
		baseURL:       opts.BaseURL,
		pollInterval:  pollInterval,
		maxPolls:      maxPolls,
		gracePeriod:   gracePeriod,
		onSuccess:     opts.OnSuccess,
		toolsetType:   opts.ToolsetType,
		instanceID:    opts.InstanceID,
		formData:      make(map[string]string),
		formErrors:    make(map[string]string),
		oauthFormData: map[string]string{},
	}

	switch opts.Mode {
	case ModeCreate:
		d.loading = true
	case ModeManage:
		d.configSaved = true
		if opts.Seed != nil {
			d.isAuthenticated = opts.Seed.IsAuthenticated
			d.instanceName = opts.Seed.InstanceName
		}
	}
	return d, nil
}

// Load fetches the schema and, for admin MANAGE+OAUTH, the instance detail
// and the org's shared OAuth apps.
func (d *Dialog) Load(ctx context.Context) error {
	schema, err := d.api.GetToolsetSchema(ctx, d.toolsetType)
	if err != nil {
		d.mu.Lock()
		d.loading = false
		d.banner = errorBanner(err)
		d.mu.Unlock()
		return err
	}

	authType, _, _ := schema.Resolve("")

	d.mu.Lock()
	d.schema = schema
	if d.selectedAuthType == "" {
		d.selectedAuthType = authType
	}
	d.loading = false
	admin := d.admin
	mode := d.mode
	instanceID := d.instanceID
	d.mu.Unlock()

	if mode == ModeManage && instanceID != "" {
		status := d.api.GetInstanceStatus(ctx, instanceID)
		d.mu.Lock()
		if status.AuthType != "" {
			d.selectedAuthType = status.AuthType
		}
		if status.InstanceName != "" {
			d.instanceName = status.InstanceName
		}
		d.isAuthenticated = status.IsAuthenticated
		oauth := d.selectedAuthType == client.AuthTypeOAuth
		d.mu.Unlock()

		if admin && oauth {
			if err := d.loadOAuthManagement(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Dialog) loadOAuthManagement(ctx context.Context) error {
	detail, err := d.api.GetToolsetInstance(ctx, d.instanceID)
	if err != nil {
		d.setBanner(err)
		return err
	}
	configs, err := d.api.ListToolsetOAuthConfigs(ctx, d.toolsetType)
	if err != nil {
		d.setBanner(err)
		return err
	}

	d.mu.Lock()
	d.instanceDetail = detail
	d.availableOAuthConfigs = configs
	d.authenticatedUserCount = detail.AuthenticatedUserCount
	d.selectedOAuthConfigID = detail.Instance.OAuthConfigID
	if detail.OAuthConfig != nil {
		// Seed the form from the view; the secret is write-only and starts
		// empty, meaning "keep existing" on save.
		d.oauthFormData = map[string]string{
			"name":         detail.OAuthConfig.Name,
			"clientId":     detail.OAuthConfig.ClientID,
			"clientSecret": "",
			"authorizeUrl": detail.OAuthConfig.AuthorizeURL,
			"tokenUrl":     detail.OAuthConfig.TokenURL,
			"scopes":       strings.Join(detail.OAuthConfig.Scopes, ","),
		}
	}
	d.mu.Unlock()
	return nil
}

// SelectAuthType switches the active auth type in CREATE mode. The field
// list re-derivation is a pure schema lookup.
func (d *Dialog) SelectAuthType(t client.AuthType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode != ModeCreate || d.schema == nil {
		return
	}
	if _, ok := d.schema.Schemas[t]; !ok {
		return
	}
	d.selectedAuthType = t
	d.formErrors = make(map[string]string)
	d.saveAttempted = false
}

// SetField records a credential form value.
func (d *Dialog) SetField(name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.formData[name] = value
	// Errors only show after a submit attempt; editing clears the field's
	// stale error so the next submit revalidates.
	delete(d.formErrors, name)
}

// SetInstanceName sets the instance display name (CREATE mode).
func (d *Dialog) SetInstanceName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.instanceName = name
}

// SetOAuthField records a value in the admin OAuth-config form.
func (d *Dialog) SetOAuthField(name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.oauthFormData[name] = value
}

// activeFields returns the field list for the current auth type.
func (d *Dialog) activeFields() []client.SchemaField {
	if d.schema == nil {
		return nil
	}
	_, authSchema, ok := d.schema.Resolve(d.selectedAuthType)
	if !ok {
		return nil
	}
	return authSchema.Fields
}

// validateForm applies required/min/max/pattern rules to the active field
// list and returns the error map keyed by field name.
func validateForm(fields []client.SchemaField, values map[string]string) map[string]string {
	errs := make(map[string]string)
	for _, field := range fields {
		value := strings.TrimSpace(values[field.Name])
		if value == "" {
			if field.Required {
				errs[field.Name] = field.Label + " is required"
			}
			continue
		}
		if field.MinLength > 0 && len(value) < field.MinLength {
			errs[field.Name] = fmt.Sprintf("%s must be at least %d characters", field.Label, field.MinLength)
			continue
		}
		if field.MaxLength > 0 && len(value) > field.MaxLength {
			errs[field.Name] = fmt.Sprintf("%s must be at most %d characters", field.Label, field.MaxLength)
			continue
		}
		if field.Pattern != "" {
			re, err := regexp.Compile(field.Pattern)
			if err == nil && !re.MatchString(value) {
				if field.Message != "" {
					errs[field.Name] = field.Message
				} else {
					errs[field.Name] = "Invalid format"
				}
			}
		}
	}
	return errs
}

// Validate runs validation, marks the submit attempt and returns whether
// the form is submittable.
func (d *Dialog) Validate() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.validateLocked()
}

func (d *Dialog) validateLocked() bool {
	d.saveAttempted = true
	errs := validateForm(d.activeFields(), d.formData)
	if d.mode == ModeCreate && strings.TrimSpace(d.instanceName) == "" {
		errs["instanceName"] = "Instance name is required"
	}
	if d.mode == ModeCreate && d.admin && d.selectedAuthType == client.AuthTypeOAuth {
		if d.selectedOAuthConfigID == "" && strings.TrimSpace(d.formData["oauthInstanceName"]) == "" {
			errs["oauthInstanceName"] = "Select an OAuth app or name a new one"
		}
	}
	d.formErrors = errs
	return len(errs) == 0
}

// FormErrors returns the per-field errors; empty until a submit attempt has
// been made.
func (d *Dialog) FormErrors() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.saveAttempted {
		return map[string]string{}
	}
	out := make(map[string]string, len(d.formErrors))
	for k, v := range d.formErrors {
		out[k] = v
	}
	return out
}

// busy reports whether any action is in progress; the UI disables all
// buttons while true.
func (d *Dialog) busyLocked() bool {
	return d.saving || d.authenticating || d.deleting || d.reauthenticating || d.savingOAuth
}

// Busy reports whether any mutating action is in flight.
func (d *Dialog) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busyLocked()
}

// SaveConfiguration creates the instance (CREATE mode). OAuth instances
// report that a separate authentication step is still required; creation
// never authenticates anyone.
func (d *Dialog) SaveConfiguration(ctx context.Context) (string, error) {
	d.mu.Lock()
	if d.mode != ModeCreate {
		d.mu.Unlock()
		return "", errors.New("dialog: SaveConfiguration is a CREATE-mode action")
	}
	if d.busyLocked() {
		d.mu.Unlock()
		return "", ErrActionInFlight
	}
	if !d.validateLocked() {
		d.mu.Unlock()
		return "", ErrValidation
	}

	authType := d.selectedAuthType
	params := client.CreateInstanceParams{
		InstanceName: d.instanceName,
		ToolsetType:  d.toolsetType,
		AuthType:     authType,
		AuthConfig:   copyMap(d.formData),
	}
	if authType == client.AuthTypeOAuth {
		if d.selectedOAuthConfigID != "" {
			params.OAuthConfigID = d.selectedOAuthConfigID
			params.AuthConfig = nil
		} else {
			params.OAuthInstanceName = d.formData["oauthInstanceName"]
			delete(params.AuthConfig, "oauthInstanceName")
		}
	}
	d.saving = true
	d.banner = ""
	d.mu.Unlock()

	instance, err := d.api.CreateToolsetInstance(ctx, params)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.saving = false
	if err != nil {
		d.banner = errorBanner(err)
		return "", err
	}
	d.instanceID = instance.ID
	d.configSaved = true
	if authType == client.AuthTypeOAuth {
		return "Configuration saved. Users must authenticate separately.", nil
	}
	return "Configuration saved successfully.", nil
}

// Authenticate posts raw credential fields for a non-OAuth instance
// (MANAGE mode).
func (d *Dialog) Authenticate(ctx context.Context) error {
	d.mu.Lock()
	if d.instanceID == "" {
		d.mu.Unlock()
		return ErrNoInstance
	}
	if d.busyLocked() {
		d.mu.Unlock()
		return ErrActionInFlight
	}
	if !d.validateLocked() {
		d.mu.Unlock()
		return ErrValidation
	}
	instanceID := d.instanceID
	credentials := copyMap(d.formData)
	d.authenticating = true
	d.banner = ""
	d.mu.Unlock()

	err := d.api.AuthenticateToolsetInstance(ctx, instanceID, credentials)

	d.mu.Lock()
	d.authenticating = false
	if err != nil {
		d.banner = errorBanner(err)
		d.mu.Unlock()
		return err
	}
	d.isAuthenticated = true
	d.configSaved = true
	onSuccess := d.onSuccess
	d.mu.Unlock()

	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

// DeleteInstance deletes the instance org-wide (admin) or the just-created
// instance in CREATE mode.
func (d *Dialog) DeleteInstance(ctx context.Context) error {
	d.mu.Lock()
	if d.instanceID == "" {
		d.mu.Unlock()
		return ErrNoInstance
	}
	if d.busyLocked() {
		d.mu.Unlock()
		return ErrActionInFlight
	}
	instanceID := d.instanceID
	d.deleting = true
	d.banner = ""
	d.mu.Unlock()

	err := d.api.DeleteToolsetInstance(ctx, instanceID)

	d.mu.Lock()
	d.deleting = false
	if err != nil {
		d.banner = errorBanner(err)
		d.mu.Unlock()
		return err
	}
	d.instanceID = ""
	d.configSaved = false
	d.isAuthenticated = false
	onSuccess := d.onSuccess
	d.mu.Unlock()

	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

// RemoveCredentials clears only the caller's own credential; the instance
// and the dialog stay alive.
func (d *Dialog) RemoveCredentials(ctx context.Context) error {
	d.mu.Lock()
	if d.instanceID == "" {
		d.mu.Unlock()
		return ErrNoInstance
	}
	if d.busyLocked() {
		d.mu.Unlock()
		return ErrActionInFlight
	}
	instanceID := d.instanceID
	d.deleting = true
	d.banner = ""
	d.mu.Unlock()

	err := d.api.RemoveToolsetCredentials(ctx, instanceID)

	d.mu.Lock()
	d.deleting = false
	if err != nil {
		d.banner = errorBanner(err)
		d.mu.Unlock()
		return err
	}
	d.isAuthenticated = false
	onSuccess := d.onSuccess
	d.mu.Unlock()

	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

// Reauthenticate clears the stored token so the next OAuth flow starts
// fresh.
func (d *Dialog) Reauthenticate(ctx context.Context) error {
	d.mu.Lock()
	if d.instanceID == "" {
		d.mu.Unlock()
		return ErrNoInstance
	}
	if d.busyLocked() {
		d.mu.Unlock()
		return ErrActionInFlight
	}
	instanceID := d.instanceID
	d.reauthenticating = true
	d.banner = ""
	d.mu.Unlock()

	err := d.api.ReauthenticateToolsetInstance(ctx, instanceID)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.reauthenticating = false
	if err != nil {
		d.banner = errorBanner(err)
		return err
	}
	d.isAuthenticated = false
	return nil
}

// Banner returns the current error banner, empty when none.
func (d *Dialog) Banner() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.banner
}

// IsAuthenticated reports the dialog's view of the caller's auth state.
func (d *Dialog) IsAuthenticated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isAuthenticated
}

// ConfigSaved reports whether the instance configuration exists server-side.
func (d *Dialog) ConfigSaved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configSaved
}

// InstanceID returns the backing instance id, empty before CREATE saves.
func (d *Dialog) InstanceID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.instanceID
}

// AuthenticatedUserCount is the admin MANAGE-mode count of users at risk
// from destructive OAuth changes.
func (d *Dialog) AuthenticatedUserCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authenticatedUserCount
}

// Close tears the dialog down. Any running OAuth poll is cancelled so no
// timer outlives the dialog.
func (d *Dialog) Close() {
	d.mu.Lock()
	d.closed = true
	stop := d.stopPoll
	done := d.pollDone
	d.stopPoll = nil
	d.mu.Unlock()

	if stop != nil {
		stop()
	}
	if done != nil {
		<-done
	}
}

func (d *Dialog) setBanner(err error) {
	d.mu.Lock()
	d.banner = errorBanner(err)
	d.mu.Unlock()
}

// errorBanner extracts a user-facing message from an error, preferring the
// structured API detail.
func errorBanner(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return "Something went wrong. Please try again."
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
