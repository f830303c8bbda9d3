package v0

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentflow-dev/toolsets/internal/models"
	"github.com/agentflow-dev/toolsets/internal/service"
	"github.com/agentflow-dev/toolsets/internal/store"
)

// The legacy surface predates multi-instance toolsets: each (user, type)
// pair maps to one synthetic instance with id "{userId}_{toolsetType}".
// New callers should use the /instances routes.

// LegacyTypeInput selects the caller's singleton instance of one type.
type LegacyTypeInput struct {
	Identity
	ToolsetType string `path:"type" doc:"Toolset type" example:"gmail"`
}

// LegacyAuthorizeInput starts OAuth for the caller's singleton instance.
type LegacyAuthorizeInput struct {
	Identity
	ToolsetType string `path:"type" doc:"Toolset type"`
	BaseURL     string `query:"base_url" doc:"Override for the externally visible base URL" required:"false"`
}

// LegacyCreateInput creates or reuses the caller's singleton instance.
type LegacyCreateInput struct {
	Identity
	Body struct {
		ToolsetType string            `json:"toolsetType" minLength:"1"`
		AuthConfig  map[string]string `json:"authConfig,omitempty"`
	} `body:""`
}

// LegacyUpdateConfigInput stores the caller's credentials for the singleton
// instance.
type LegacyUpdateConfigInput struct {
	Identity
	ToolsetType string `path:"type" doc:"Toolset type"`
	Body        struct {
		AuthConfig map[string]string `json:"authConfig"`
	} `body:""`
}

// FindOrCreateInput resolves the caller's singleton instance, creating it on
// first use.
type FindOrCreateInput struct {
	Identity
	Body struct {
		ToolsetType string `json:"toolsetType" minLength:"1"`
	} `body:""`
}

// ConfiguredBody lists the caller's ready-to-use toolsets.
type ConfiguredBody struct {
	Toolsets []models.MyToolset `json:"toolsets"`
	Count    int                `json:"count"`
}

// RegisterLegacyEndpoints registers the single-config compatibility routes.
func RegisterLegacyEndpoints(api huma.API, pathPrefix string, svc service.ToolsetService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-configured-toolsets",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/configured",
		Summary:     "List configured toolsets",
		Description: "The caller's toolsets that are both configured and authenticated.",
		Tags:        []string{"legacy"},
	}, func(ctx context.Context, input *struct {
		Identity
	}) (*Response[ConfiguredBody], error) {
		toolsets, err := svc.MyToolsets(ctx, input.OrgID, input.UserID, "")
		if err != nil {
			return nil, mapServiceError(err, "Toolsets not found")
		}
		configured := make([]models.MyToolset, 0, len(toolsets))
		for _, t := range toolsets {
			if t.IsConfigured && t.IsAuthenticated {
				configured = append(configured, t)
			}
		}
		return &Response[ConfiguredBody]{Body: ConfiguredBody{Toolsets: configured, Count: len(configured)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-legacy-status",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/{type}/status",
		Summary:     "Get legacy toolset status",
		Description: "Status of the caller's singleton instance. Never errors; unknown types yield the zero status.",
		Tags:        []string{"legacy"},
	}, func(ctx context.Context, input *LegacyTypeInput) (*Response[models.InstanceStatus], error) {
		status := svc.InstanceStatus(ctx, service.LegacyInstanceID(input.UserID, input.ToolsetType), input.UserID)
		return &Response[models.InstanceStatus]{Body: status}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-legacy-config",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/{type}/config",
		Summary:     "Get legacy toolset config",
		Tags:        []string{"legacy"},
	}, func(ctx context.Context, input *LegacyTypeInput) (*Response[service.InstanceDetail], error) {
		detail, err := svc.GetInstanceDetail(ctx, service.LegacyInstanceID(input.UserID, input.ToolsetType))
		if err != nil {
			return nil, mapServiceError(err, "Toolset not configured")
		}
		return &Response[service.InstanceDetail]{Body: *detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-legacy-toolset",
		Method:      http.MethodPost,
		Path:        pathPrefix + "/",
		Summary:     "Create legacy toolset",
		Description: "Create (or reuse) the caller's singleton instance and store the supplied credentials when present.",
		Tags:        []string{"legacy"},
	}, func(ctx context.Context, input *LegacyCreateInput) (*Response[models.ToolsetInstance], error) {
		instance, err := svc.FindOrCreate(ctx, input.OrgID, input.UserID, input.Body.ToolsetType)
		if err != nil {
			return nil, mapServiceError(err, "Toolset type not found")
		}
		if len(input.Body.AuthConfig) > 0 && instance.AuthType != models.AuthTypeOAuth {
			if err := svc.Authenticate(ctx, instance.ID, input.UserID, input.Body.AuthConfig); err != nil {
				return nil, mapServiceError(err, "Instance not found")
			}
		}
		return &Response[models.ToolsetInstance]{Body: *instance}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-legacy-config",
		Method:      http.MethodPut,
		Path:        pathPrefix + "/{type}/config",
		Summary:     "Update legacy toolset config",
		Tags:        []string{"legacy"},
	}, func(ctx context.Context, input *LegacyUpdateConfigInput) (*Response[EmptyResponse], error) {
		instance, err := svc.FindOrCreate(ctx, input.OrgID, input.UserID, input.ToolsetType)
		if err != nil {
			return nil, mapServiceError(err, "Toolset type not found")
		}
		if instance.AuthType == models.AuthTypeOAuth {
			return nil, huma.Error400BadRequest("OAuth toolsets authenticate via the authorization flow")
		}
		if err := svc.Authenticate(ctx, instance.ID, input.UserID, input.Body.AuthConfig); err != nil {
			return nil, mapServiceError(err, "Instance not found")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Configuration saved"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-legacy-config",
		Method:      http.MethodDelete,
		Path:        pathPrefix + "/{type}/config",
		Summary:     "Delete legacy toolset config",
		Description: "Delete the caller's singleton instance and its stored credentials.",
		Tags:        []string{"legacy"},
	}, func(ctx context.Context, input *LegacyTypeInput) (*Response[EmptyResponse], error) {
		err := svc.DeleteInstance(ctx, service.LegacyInstanceID(input.UserID, input.ToolsetType))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, mapServiceError(err, "Toolset not configured")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Configuration removed"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reauthenticate-legacy",
		Method:      http.MethodPost,
		Path:        pathPrefix + "/{type}/reauthenticate",
		Summary:     "Reset legacy authentication",
		Tags:        []string{"legacy"},
	}, func(ctx context.Context, input *LegacyTypeInput) (*Response[EmptyResponse], error) {
		if err := svc.Reauthenticate(ctx, service.LegacyInstanceID(input.UserID, input.ToolsetType), input.UserID); err != nil {
			return nil, mapServiceError(err, "Toolset not configured")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Authentication reset"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "legacy-oauth-authorize",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/{type}/oauth/authorize",
		Summary:     "Start legacy OAuth authorization",
		Tags:        []string{"legacy", "oauth"},
	}, func(ctx context.Context, input *LegacyAuthorizeInput) (*Response[models.AuthorizeURLResult], error) {
		result, err := svc.AuthorizeURL(ctx, service.LegacyInstanceID(input.UserID, input.ToolsetType), input.UserID, input.BaseURL)
		if err != nil {
			return nil, mapServiceError(err, "Toolset not configured")
		}
		return &Response[models.AuthorizeURLResult]{Body: *result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "find-or-create-toolset",
		Method:      http.MethodPost,
		Path:        pathPrefix + "/find-or-create",
		Summary:     "Find or create legacy toolset",
		Description: "Resolve the caller's singleton instance for a type, creating it on first use.",
		Tags:        []string{"legacy"},
	}, func(ctx context.Context, input *FindOrCreateInput) (*Response[models.ToolsetInstance], error) {
		instance, err := svc.FindOrCreate(ctx, input.OrgID, input.UserID, input.Body.ToolsetType)
		if err != nil {
			return nil, mapServiceError(err, "Toolset type not found")
		}
		return &Response[models.ToolsetInstance]{Body: *instance}, nil
	})
}
