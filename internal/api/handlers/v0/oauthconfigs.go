package v0

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/agentflow-dev/toolsets/internal/models"
	"github.com/agentflow-dev/toolsets/internal/service"
	"github.com/agentflow-dev/toolsets/internal/telemetry"
)

// ListOAuthConfigsInput lists the shared OAuth apps of one toolset type.
type ListOAuthConfigsInput struct {
	Identity
	ToolsetType string `path:"type" doc:"Toolset type" example:"gmail"`
}

// OAuthConfigListBody wraps the config views.
type OAuthConfigListBody struct {
	Configs []models.OAuthConfigView `json:"configs"`
	Count   int                      `json:"count"`
}

// UpdateOAuthConfigInput mutates one shared OAuth app. The authConfig map
// carries form fields; an absent or empty clientSecret keeps the stored one.
type UpdateOAuthConfigInput struct {
	Identity
	ToolsetType string `path:"type" doc:"Toolset type"`
	ConfigID    string `path:"configId" doc:"OAuth config id"`
	Body        struct {
		AuthConfig map[string]string `json:"authConfig"`
		BaseURL    string            `json:"baseUrl,omitempty"`
	} `body:""`
}

// DeleteOAuthConfigInput removes one shared OAuth app.
type DeleteOAuthConfigInput struct {
	Identity
	ToolsetType string `path:"type" doc:"Toolset type"`
	ConfigID    string `path:"configId" doc:"OAuth config id"`
}

// RegisterOAuthConfigEndpoints registers shared-OAuth-app management routes.
func RegisterOAuthConfigEndpoints(api huma.API, pathPrefix string, svc service.ToolsetService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-oauth-configs",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/oauth-configs/{type}",
		Summary:     "List OAuth configs",
		Description: "Get the org's shared OAuth apps for one toolset type. Client secrets are replaced by a presence flag.",
		Tags:        []string{"oauth-configs"},
	}, func(ctx context.Context, input *ListOAuthConfigsInput) (*Response[OAuthConfigListBody], error) {
		configs, err := svc.ListOAuthConfigs(ctx, input.OrgID, input.ToolsetType)
		if err != nil {
			return nil, mapServiceError(err, "OAuth configs not found")
		}
		return &Response[OAuthConfigListBody]{Body: OAuthConfigListBody{Configs: configs, Count: len(configs)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-oauth-config",
		Method:      http.MethodPut,
		Path:        pathPrefix + "/oauth-configs/{type}/{configId}",
		Summary:     "Update OAuth config",
		Description: "Update a shared OAuth app. Changing client id, secret, endpoints or scopes deauthenticates every user across all instances sharing the config.",
		Tags:        []string{"oauth-configs"},
	}, func(ctx context.Context, input *UpdateOAuthConfigInput) (*Response[service.UpdateOAuthConfigResult], error) {
		ac := input.Body.AuthConfig
		params := service.UpdateOAuthConfigParams{
			Name:         ac["name"],
			ClientID:     ac["clientId"],
			ClientSecret: ac["clientSecret"],
			AuthorizeURL: ac["authorizeUrl"],
			TokenURL:     ac["tokenUrl"],
			RedirectURI:  ac["redirectUri"],
		}
		if raw, ok := ac["scopes"]; ok {
			params.Scopes = splitList(raw)
		}
		result, err := svc.UpdateOAuthConfig(ctx, input.ToolsetType, input.ConfigID, params)
		if err != nil {
			return nil, mapServiceError(err, "OAuth config not found")
		}
		telemetry.FromContext(ctx).AddNamespacedFields("handler",
			zap.String("oauth_config_id", input.ConfigID),
			zap.Int("deauthenticated_users", result.DeauthenticatedUserCount))
		return &Response[service.UpdateOAuthConfigResult]{Body: *result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-oauth-config",
		Method:      http.MethodDelete,
		Path:        pathPrefix + "/oauth-configs/{type}/{configId}",
		Summary:     "Delete OAuth config",
		Description: "Delete a shared OAuth app. Rejected with 409 while any instance still references it.",
		Tags:        []string{"oauth-configs"},
	}, func(ctx context.Context, input *DeleteOAuthConfigInput) (*Response[EmptyResponse], error) {
		if err := svc.DeleteOAuthConfig(ctx, input.ToolsetType, input.ConfigID); err != nil {
			return nil, mapServiceError(err, "OAuth config not found")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "OAuth config deleted"}}, nil
	})
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	// Empty slice (not nil) marks an explicit clear.
	if out == nil {
		out = []string{}
	}
	return out
}
