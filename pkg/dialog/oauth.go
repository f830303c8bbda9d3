package dialog

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentflow-dev/toolsets/pkg/client"
)

// FlowResult is delivered when an OAuth popup flow finishes.
type FlowResult struct {
	Authenticated bool
	Err           error
}

// StartOAuthFlow runs the popup handshake: fetch the authorization URL,
// open the popup and poll for closure once per interval, capped at maxPolls.
// On closure the status check runs after a short grace period so the
// backend can persist the token. The returned channel receives exactly one
// result.
//
// Preconditions are local errors: the instance must exist, and in CREATE
// mode the configuration must already be saved.
func (d *Dialog) StartOAuthFlow(ctx context.Context) (<-chan FlowResult, error) {
	d.mu.Lock()
	if d.instanceID == "" {
		d.mu.Unlock()
		return nil, ErrNoInstance
	}
	if d.mode == ModeCreate && !d.configSaved {
		d.mu.Unlock()
		return nil, ErrConfigNotSaved
	}
	if d.stopPoll != nil {
		d.mu.Unlock()
		return nil, ErrFlowInProgress
	}
	instanceID := d.instanceID
	baseURL := d.baseURL
	d.banner = ""
	d.mu.Unlock()

	auth, err := d.api.GetInstanceOAuthAuthorizationURL(ctx, instanceID, baseURL)
	if err != nil {
		d.setBanner(err)
		return nil, err
	}

	popup, err := d.popup.Open(auth.AuthorizationURL, popupWidth, popupHeight)
	if err != nil {
		d.mu.Lock()
		d.banner = "Popup blocked. Allow popups for this site and try again."
		d.mu.Unlock()
		return nil, err
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	results := make(chan FlowResult, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cancel()
		popup.Close()
		close(done)
		return nil, ErrNoInstance
	}
	d.stopPoll = cancel
	d.pollDone = done
	d.mu.Unlock()

	go d.pollPopup(pollCtx, popup, instanceID, results, done)
	return results, nil
}

// pollPopup is the flow's only long-lived resource. Every exit path clears
// the dialog's poll registration before delivering the result.
func (d *Dialog) pollPopup(ctx context.Context, popup Popup, instanceID string, results chan<- FlowResult, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	finish := func(result FlowResult) {
		d.mu.Lock()
		d.stopPoll = nil
		d.pollDone = nil
		if result.Err != nil {
			d.banner = result.Err.Error()
		} else if result.Authenticated {
			d.isAuthenticated = true
		} else {
			d.banner = "Authentication failed or was cancelled."
		}
		onSuccess := d.onSuccess
		authenticated := result.Authenticated
		d.mu.Unlock()

		if authenticated && onSuccess != nil {
			onSuccess()
		}
		results <- result
	}

	for ticks := 0; ; {
		select {
		case <-ctx.Done():
			popup.Close()
			finish(FlowResult{Err: ctx.Err()})
			return
		case <-ticker.C:
			ticks++
			if popup.Closed() {
				// Grace period: the callback may still be persisting the
				// token when the window closes.
				select {
				case <-ctx.Done():
					finish(FlowResult{Err: ctx.Err()})
					return
				case <-time.After(d.gracePeriod):
				}
				status := d.api.GetInstanceStatus(ctx, instanceID)
				finish(FlowResult{Authenticated: status.IsAuthenticated})
				return
			}
			if ticks >= d.maxPolls {
				popup.Close()
				d.logger.Warn("oauth flow timed out", zap.String("instance_id", instanceID))
				finish(FlowResult{Err: ErrPopupTimeout})
				return
			}
		}
	}
}

// PendingConfirmation returns the label of the action awaiting confirmation.
func (d *Dialog) PendingConfirmation() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return "", false
	}
	return d.pending.label, true
}

// Confirm executes the deferred action.
func (d *Dialog) Confirm(ctx context.Context) error {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()
	if pending == nil {
		return ErrNothingToConfirm
	}
	return pending.action(ctx)
}

// CancelConfirmation discards the deferred action.
func (d *Dialog) CancelConfirmation() {
	d.mu.Lock()
	d.pending = nil
	d.mu.Unlock()
}

// gate runs action immediately when no one is at risk, otherwise defers it
// behind the confirmation dialog.
func (d *Dialog) gate(ctx context.Context, label string, action func(ctx context.Context) error) error {
	d.mu.Lock()
	atRisk := d.authenticatedUserCount > 0
	if atRisk {
		d.pending = &pendingAction{label: label, action: action}
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()
	return action(ctx)
}

// SaveOAuthConfig updates the currently selected shared OAuth app with the
// admin's form values. An empty clientSecret is omitted from the payload so
// the stored secret is kept. Destructive whenever authenticated users exist
// on any instance sharing the config; the gate defers it in that case.
func (d *Dialog) SaveOAuthConfig(ctx context.Context) error {
	d.mu.Lock()
	if !d.admin {
		d.mu.Unlock()
		return ErrNotAdmin
	}
	if d.selectedOAuthConfigID == "" {
		d.mu.Unlock()
		return ErrOAuthAppChoice
	}
	if d.busyLocked() {
		d.mu.Unlock()
		return ErrActionInFlight
	}
	configID := d.selectedOAuthConfigID
	payload := make(map[string]string, len(d.oauthFormData))
	for k, v := range d.oauthFormData {
		if k == "clientSecret" && strings.TrimSpace(v) == "" {
			continue
		}
		payload[k] = v
	}
	d.mu.Unlock()

	return d.gate(ctx, "update the OAuth configuration", func(ctx context.Context) error {
		return d.runOAuthUpdate(ctx, configID, payload)
	})
}

func (d *Dialog) runOAuthUpdate(ctx context.Context, configID string, payload map[string]string) error {
	d.mu.Lock()
	d.savingOAuth = true
	d.banner = ""
	d.mu.Unlock()

	result, err := d.api.UpdateToolsetOAuthConfig(ctx, d.toolsetType, configID, payload)

	d.mu.Lock()
	d.savingOAuth = false
	if err != nil {
		d.banner = errorBanner(err)
		d.mu.Unlock()
		return err
	}
	// Every credential for the config is gone, the admin's own included.
	d.authenticatedUserCount = 0
	d.isAuthenticated = false
	onSuccess := d.onSuccess
	d.mu.Unlock()

	d.logger.Info("oauth config updated",
		zap.String("oauth_config_id", result.OAuthConfigID),
		zap.Int("deauthenticated_users", result.DeauthenticatedUserCount))
	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

// SwitchOAuthConfig points the instance at a different shared OAuth app.
// Always destructive for this instance's users; gated while any exist.
func (d *Dialog) SwitchOAuthConfig(ctx context.Context, configID string) error {
	d.mu.Lock()
	if !d.admin {
		d.mu.Unlock()
		return ErrNotAdmin
	}
	if d.instanceID == "" {
		d.mu.Unlock()
		return ErrNoInstance
	}
	if d.busyLocked() {
		d.mu.Unlock()
		return ErrActionInFlight
	}
	instanceID := d.instanceID
	d.mu.Unlock()

	return d.gate(ctx, "switch the OAuth configuration", func(ctx context.Context) error {
		return d.runOAuthSwitch(ctx, instanceID, configID)
	})
}

func (d *Dialog) runOAuthSwitch(ctx context.Context, instanceID, configID string) error {
	d.mu.Lock()
	d.savingOAuth = true
	d.banner = ""
	d.mu.Unlock()

	result, err := d.api.UpdateToolsetInstance(ctx, instanceID, client.UpdateInstanceParams{
		OAuthConfigID: &configID,
	})

	d.mu.Lock()
	d.savingOAuth = false
	if err != nil {
		d.banner = errorBanner(err)
		d.mu.Unlock()
		return err
	}
	d.selectedOAuthConfigID = configID
	d.authenticatedUserCount = 0
	d.isAuthenticated = false
	onSuccess := d.onSuccess
	d.mu.Unlock()

	d.logger.Info("oauth config switched",
		zap.String("instance_id", instanceID),
		zap.String("oauth_config_id", configID),
		zap.Int("deauthenticated_users", result.DeauthenticatedUserCount))
	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

// SelectOAuthConfig records the admin's selection without mutating the
// server; CREATE mode sends it on save, MANAGE mode switches via
// SwitchOAuthConfig.
func (d *Dialog) SelectOAuthConfig(configID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selectedOAuthConfigID = configID
}
