package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/agentflow-dev/toolsets/internal/models"
	"github.com/agentflow-dev/toolsets/internal/service"
	"github.com/agentflow-dev/toolsets/internal/store"
	"github.com/agentflow-dev/toolsets/internal/telemetry"
)

// ListInstancesInput is the input for the admin instance listing.
type ListInstancesInput struct {
	Identity
	Page   int    `query:"page" doc:"Page number" default:"1" minimum:"1"`
	Limit  int    `query:"limit" doc:"Items per page" default:"30" minimum:"1" maximum:"100"`
	Search string `query:"search" doc:"Substring match on instance name or type" required:"false"`
}

// InstanceListBody is one page of instances.
type InstanceListBody struct {
	Instances  []models.ToolsetInstance `json:"instances"`
	TotalCount int                      `json:"totalCount"`
	Page       int                      `json:"page"`
	Limit      int                      `json:"limit"`
}

// InstanceIDInput selects one instance.
type InstanceIDInput struct {
	Identity
	InstanceID string `path:"id" doc:"Toolset instance id"`
}

// CreateInstanceInput is the admin create payload. For OAUTH exactly one of
// oauthConfigId or oauthInstanceName must be set.
type CreateInstanceInput struct {
	Identity
	Body struct {
		InstanceName      string            `json:"instanceName" minLength:"1"`
		ToolsetType       string            `json:"toolsetType" minLength:"1"`
		AuthType          models.AuthType   `json:"authType"`
		BaseURL           string            `json:"baseUrl,omitempty"`
		AuthConfig        map[string]string `json:"authConfig,omitempty"`
		OAuthConfigID     string            `json:"oauthConfigId,omitempty"`
		OAuthInstanceName string            `json:"oauthInstanceName,omitempty"`
	} `body:""`
}

// UpdateInstanceInput is the admin update payload; absent fields are left
// unchanged.
type UpdateInstanceInput struct {
	Identity
	InstanceID string `path:"id" doc:"Toolset instance id"`
	Body       struct {
		InstanceName  *string           `json:"instanceName,omitempty"`
		BaseURL       *string           `json:"baseUrl,omitempty"`
		OAuthConfigID *string           `json:"oauthConfigId,omitempty"`
		AuthConfig    map[string]string `json:"authConfig,omitempty"`
	} `body:""`
}

// UpdateInstanceBody reports the update and its deauthentication impact.
type UpdateInstanceBody struct {
	Instance                 models.ToolsetInstance `json:"instance"`
	DeauthenticatedUserCount int                    `json:"deauthenticatedUserCount"`
	Message                  string                 `json:"message"`
}

// AuthenticateInput carries raw credential fields for non-OAuth instances.
type AuthenticateInput struct {
	Identity
	InstanceID string `path:"id" doc:"Toolset instance id"`
	Body       struct {
		Credentials map[string]string `json:"credentials"`
	} `body:""`
}

// AuthorizeInput starts the OAuth redirect for one instance.
type AuthorizeInput struct {
	Identity
	InstanceID string `path:"id" doc:"Toolset instance id"`
	BaseURL    string `query:"base_url" doc:"Override for the externally visible base URL" required:"false"`
}

// MyToolsetsInput is the per-user merged projection request.
type MyToolsetsInput struct {
	Identity
	Search string `query:"search" doc:"Substring match on instance name or type" required:"false"`
}

// MyToolsetsBody wraps the projection.
type MyToolsetsBody struct {
	Toolsets []models.MyToolset `json:"toolsets"`
	Count    int                `json:"count"`
}

// AddInstanceToolsInput attaches registry tools to an instance.
type AddInstanceToolsInput struct {
	Identity
	InstanceID string `path:"id" doc:"Toolset instance id"`
	Body       struct {
		Tools  []models.RegistryTool `json:"tools" minItems:"1"`
		UserID string                `json:"userId,omitempty"`
	} `body:""`
}

// InstanceToolsBody lists the tools attached to an instance.
type InstanceToolsBody struct {
	Tools []models.InstanceTool `json:"tools"`
	Count int                   `json:"count"`
}

// DeleteInstanceToolInput removes one attached tool.
type DeleteInstanceToolInput struct {
	Identity
	InstanceID string `path:"id" doc:"Toolset instance id"`
	ToolID     string `path:"toolId" doc:"Attached tool id"`
}

// RegisterInstanceEndpoints registers the multi-instance admin and per-user
// routes.
func RegisterInstanceEndpoints(api huma.API, pathPrefix string, svc service.ToolsetService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-instances",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/instances",
		Summary:     "List toolset instances",
		Description: "Get a paginated list of the org's toolset instances.",
		Tags:        []string{"instances"},
	}, func(ctx context.Context, input *ListInstancesInput) (*Response[InstanceListBody], error) {
		instances, total, err := svc.ListInstances(ctx, store.InstanceFilter{
			OrgID:  input.OrgID,
			Search: input.Search,
			Page:   input.Page,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, mapServiceError(err, "Instances not found")
		}
		values := make([]models.ToolsetInstance, len(instances))
		for i, instance := range instances {
			values[i] = *instance
		}
		return &Response[InstanceListBody]{Body: InstanceListBody{
			Instances:  values,
			TotalCount: total,
			Page:       input.Page,
			Limit:      input.Limit,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-instance",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/instances/{id}",
		Summary:     "Get toolset instance",
		Description: "Get one instance with its OAuth config view and the authenticated-user count.",
		Tags:        []string{"instances"},
	}, func(ctx context.Context, input *InstanceIDInput) (*Response[service.InstanceDetail], error) {
		detail, err := svc.GetInstanceDetail(ctx, input.InstanceID)
		if err != nil {
			return nil, mapServiceError(err, "Instance not found")
		}
		return &Response[service.InstanceDetail]{Body: *detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-instance",
		Method:      http.MethodPost,
		Path:        pathPrefix + "/instances",
		Summary:     "Create toolset instance",
		Description: "Create a named instance of a toolset type. OAuth instances reference a shared OAuth config or create one; creation never authenticates anyone.",
		Tags:        []string{"instances"},
	}, func(ctx context.Context, input *CreateInstanceInput) (*Response[models.ToolsetInstance], error) {
		if !input.Body.AuthType.Valid() {
			return nil, huma.Error400BadRequest("Unknown auth type")
		}
		instance, err := svc.CreateInstance(ctx, service.CreateInstanceParams{
			OrgID:             input.OrgID,
			CreatedBy:         input.UserID,
			InstanceName:      input.Body.InstanceName,
			ToolsetType:       input.Body.ToolsetType,
			AuthType:          input.Body.AuthType,
			BaseURL:           input.Body.BaseURL,
			AuthConfig:        input.Body.AuthConfig,
			OAuthConfigID:     input.Body.OAuthConfigID,
			OAuthInstanceName: input.Body.OAuthInstanceName,
		})
		if err != nil {
			return nil, mapServiceError(err, "Toolset type not found")
		}
		telemetry.FromContext(ctx).AddNamespacedFields("handler",
			zap.String("instance_id", instance.ID),
			zap.String("toolset_type", instance.ToolsetType))
		return &Response[models.ToolsetInstance]{Body: *instance}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-instance",
		Method:      http.MethodPut,
		Path:        pathPrefix + "/instances/{id}",
		Summary:     "Update toolset instance",
		Description: "Update an instance. Swapping the OAuth config or changing auth fields deauthenticates every user of the instance.",
		Tags:        []string{"instances"},
	}, func(ctx context.Context, input *UpdateInstanceInput) (*Response[UpdateInstanceBody], error) {
		result, err := svc.UpdateInstance(ctx, input.InstanceID, service.UpdateInstanceParams{
			InstanceName:  input.Body.InstanceName,
			BaseURL:       input.Body.BaseURL,
			OAuthConfigID: input.Body.OAuthConfigID,
			AuthConfig:    input.Body.AuthConfig,
		})
		if err != nil {
			return nil, mapServiceError(err, "Instance not found")
		}
		body := UpdateInstanceBody{
			Instance:                 *result.Instance,
			DeauthenticatedUserCount: result.DeauthenticatedUserCount,
			Message:                  "Instance updated successfully",
		}
		return &Response[UpdateInstanceBody]{Body: body}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-instance",
		Method:      http.MethodDelete,
		Path:        pathPrefix + "/instances/{id}",
		Summary:     "Delete toolset instance",
		Description: "Delete an instance. Every user credential and tool selection for the instance is removed with it.",
		Tags:        []string{"instances"},
	}, func(ctx context.Context, input *InstanceIDInput) (*Response[EmptyResponse], error) {
		if err := svc.DeleteInstance(ctx, input.InstanceID); err != nil {
			return nil, mapServiceError(err, "Instance not found")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Instance deleted successfully"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "authenticate-instance",
		Method:      http.MethodPost,
		Path:        pathPrefix + "/instances/{id}/authenticate",
		Summary:     "Authenticate with an instance",
		Description: "Store the caller's credentials for a non-OAuth instance after validating them against the toolset schema.",
		Tags:        []string{"credentials"},
	}, func(ctx context.Context, input *AuthenticateInput) (*Response[EmptyResponse], error) {
		if err := svc.Authenticate(ctx, input.InstanceID, input.UserID, input.Body.Credentials); err != nil {
			return nil, mapServiceError(err, "Instance not found")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Authenticated successfully"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-instance-credentials",
		Method:      http.MethodDelete,
		Path:        pathPrefix + "/instances/{id}/credentials",
		Summary:     "Remove own credentials",
		Description: "Delete the caller's stored credentials for one instance.",
		Tags:        []string{"credentials"},
	}, func(ctx context.Context, input *InstanceIDInput) (*Response[EmptyResponse], error) {
		if err := svc.RemoveCredentials(ctx, input.InstanceID, input.UserID); err != nil {
			return nil, mapServiceError(err, "Credentials not found")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Credentials removed"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reauthenticate-instance",
		Method:      http.MethodPost,
		Path:        pathPrefix + "/instances/{id}/reauthenticate",
		Summary:     "Reset authentication",
		Description: "Clear the caller's stored token so the next authenticate starts fresh. Succeeds even when no credential exists.",
		Tags:        []string{"credentials"},
	}, func(ctx context.Context, input *InstanceIDInput) (*Response[EmptyResponse], error) {
		if err := svc.Reauthenticate(ctx, input.InstanceID, input.UserID); err != nil {
			return nil, mapServiceError(err, "Instance not found")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Authentication reset"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "instance-oauth-authorize",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/instances/{id}/oauth/authorize",
		Summary:     "Start OAuth authorization",
		Description: "Build the provider authorization URL with a signed state bound to the caller and instance.",
		Tags:        []string{"oauth"},
	}, func(ctx context.Context, input *AuthorizeInput) (*Response[models.AuthorizeURLResult], error) {
		result, err := svc.AuthorizeURL(ctx, input.InstanceID, input.UserID, input.BaseURL)
		if err != nil {
			return nil, mapServiceError(err, "Instance not found")
		}
		return &Response[models.AuthorizeURLResult]{Body: *result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-instance-status",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/instances/{id}/status",
		Summary:     "Get instance status",
		Description: "Per-user configured/authenticated status. Never errors: unknown instances yield the zero status.",
		Tags:        []string{"instances"},
	}, func(ctx context.Context, input *InstanceIDInput) (*Response[models.InstanceStatus], error) {
		status := svc.InstanceStatus(ctx, input.InstanceID, input.UserID)
		return &Response[models.InstanceStatus]{Body: status}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-toolsets",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/my-toolsets",
		Summary:     "List my toolsets",
		Description: "The caller's merged projection of instances, registry metadata and auth status.",
		Tags:        []string{"instances"},
	}, func(ctx context.Context, input *MyToolsetsInput) (*Response[MyToolsetsBody], error) {
		toolsets, err := svc.MyToolsets(ctx, input.OrgID, input.UserID, input.Search)
		if err != nil {
			return nil, mapServiceError(err, "Toolsets not found")
		}
		return &Response[MyToolsetsBody]{Body: MyToolsetsBody{Toolsets: toolsets, Count: len(toolsets)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-instance-tools",
		Method:      http.MethodPost,
		Path:        pathPrefix + "/{id}/tools",
		Summary:     "Attach tools to an instance",
		Description: "Record the tools the caller placed on the flow-builder canvas for one instance.",
		Tags:        []string{"tools"},
	}, func(ctx context.Context, input *AddInstanceToolsInput) (*Response[InstanceToolsBody], error) {
		userID := input.Body.UserID
		if userID == "" {
			userID = input.UserID
		}
		records, err := svc.AddInstanceTools(ctx, input.InstanceID, userID, input.Body.Tools)
		if err != nil {
			return nil, mapServiceError(err, "Instance not found")
		}
		values := make([]models.InstanceTool, len(records))
		for i, record := range records {
			values[i] = *record
		}
		return &Response[InstanceToolsBody]{Body: InstanceToolsBody{Tools: values, Count: len(values)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-instance-tools",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/{id}/tools",
		Summary:     "List attached tools",
		Tags:        []string{"tools"},
	}, func(ctx context.Context, input *InstanceIDInput) (*Response[InstanceToolsBody], error) {
		records, err := svc.ListInstanceTools(ctx, input.InstanceID)
		if err != nil {
			return nil, mapServiceError(err, "Instance not found")
		}
		values := make([]models.InstanceTool, len(records))
		for i, record := range records {
			values[i] = *record
		}
		return &Response[InstanceToolsBody]{Body: InstanceToolsBody{Tools: values, Count: len(values)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-instance-tool",
		Method:      http.MethodDelete,
		Path:        pathPrefix + "/{id}/tools/{toolId}",
		Summary:     "Detach a tool",
		Tags:        []string{"tools"},
	}, func(ctx context.Context, input *DeleteInstanceToolInput) (*Response[EmptyResponse], error) {
		if err := svc.DeleteInstanceTool(ctx, input.InstanceID, input.ToolID); err != nil {
			return nil, mapServiceError(err, "Tool not found")
		}
		return &Response[EmptyResponse]{Body: EmptyResponse{Message: "Tool removed"}}, nil
	})
}
