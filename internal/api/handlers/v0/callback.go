package v0

import (
	"fmt"
	"html"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agentflow-dev/toolsets/internal/service"
	"github.com/agentflow-dev/toolsets/internal/telemetry"
)

// The callback renders a tiny page inside the OAuth popup. It notifies any
// opener via postMessage and then closes itself; the dialog also polls
// popup closure, so the message is best-effort.
const oauthSuccessPage = `<!DOCTYPE html>
<html>
<head><title>Authentication Successful</title></head>
<body>
<h2>Authentication successful</h2>
<p>You can close this window.</p>
<script>
if (window.opener) {
  window.opener.postMessage({type: 'oauth-success', status: 'success'}, '*');
}
window.close();
</script>
</body>
</html>`

const oauthErrorPage = `<!DOCTYPE html>
<html>
<head><title>Authentication Failed</title></head>
<body>
<h2>Authentication failed</h2>
<p>%s</p>
<p>Close this window and try again.</p>
</body>
</html>`

// OAuthCallbackHandler completes the authorization-code exchange when the
// provider redirects back, then hands control back to the opener window.
func OAuthCallbackHandler(svc service.ToolsetService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		query := r.URL.Query()
		if errMsg := query.Get("error"); errMsg != "" {
			desc := query.Get("error_description")
			if desc == "" {
				desc = errMsg
			}
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, oauthErrorPage, html.EscapeString(desc))
			return
		}

		state := query.Get("state")
		code := query.Get("code")
		if state == "" || code == "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, oauthErrorPage, "Missing state or code parameter.")
			return
		}

		if err := svc.CompleteOAuth(r.Context(), state, code); err != nil {
			telemetry.SetOutcome(r.Context(), telemetry.Outcome{
				Level:      zapcore.WarnLevel,
				StatusCode: http.StatusBadRequest,
				Error:      err,
				Message:    "oauth callback failed",
			})
			telemetry.FromContext(r.Context()).AddFields(zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, oauthErrorPage, "The authorization could not be completed.")
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, oauthSuccessPage)
	}
}
