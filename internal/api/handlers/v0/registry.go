package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/agentflow-dev/toolsets/internal/models"
	"github.com/agentflow-dev/toolsets/internal/service"
	"github.com/agentflow-dev/toolsets/internal/telemetry"
)

// ListRegistryInput is the input for browsing the toolset catalog.
type ListRegistryInput struct {
	Page             int    `query:"page" doc:"Page number" default:"1" minimum:"1"`
	Limit            int    `query:"limit" doc:"Items per page" default:"30" minimum:"1" maximum:"100"`
	Search           string `query:"search" doc:"Substring match on type, display name or description" required:"false"`
	IncludeTools     bool   `query:"include_tools" doc:"Include the full tool list per entry" default:"false"`
	IncludeToolCount bool   `query:"include_tool_count" doc:"Include the tool count per entry" default:"false"`
	GroupByCategory  bool   `query:"group_by_category" doc:"Group entries by category instead of paginating" default:"false"`
}

// SchemaInput selects a toolset type.
type SchemaInput struct {
	ToolsetType string `path:"type" doc:"Toolset type" example:"gmail"`
}

// SearchToolsInput is the input for the tool search endpoint.
type SearchToolsInput struct {
	AppName string `query:"app_name" doc:"Restrict to one toolset type" required:"false"`
	Tag     string `query:"tag" doc:"Reserved; currently unused" required:"false"`
	Search  string `query:"search" doc:"Substring match on tool name or description" required:"false"`
}

// ToolListBody is the tool search response.
type ToolListBody struct {
	Tools []models.RegistryTool `json:"tools"`
	Count int                   `json:"count"`
}

// RegisterRegistryEndpoints registers catalog browsing routes.
func RegisterRegistryEndpoints(api huma.API, pathPrefix string, svc service.ToolsetService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-registry",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/registry",
		Summary:     "List toolset registry",
		Description: "Get the catalog of available toolset types, paginated or grouped by category.",
		Tags:        []string{"registry"},
	}, func(ctx context.Context, input *ListRegistryInput) (*Response[service.RegistryPage], error) {
		page, err := svc.ListRegistry(ctx, service.RegistryFilter{
			Page:             input.Page,
			Limit:            input.Limit,
			Search:           input.Search,
			IncludeTools:     input.IncludeTools,
			IncludeToolCount: input.IncludeToolCount,
			GroupByCategory:  input.GroupByCategory,
		})
		if err != nil {
			return nil, mapServiceError(err, "Registry not available")
		}
		telemetry.FromContext(ctx).AddNamespacedFields("handler",
			zap.Int("result_count", page.TotalCount))
		return &Response[service.RegistryPage]{Body: *page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-toolset-schema",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/registry/{type}/schema",
		Summary:     "Get toolset auth schema",
		Description: "Get the per-auth-type form field definitions for a toolset type.",
		Tags:        []string{"registry"},
	}, func(ctx context.Context, input *SchemaInput) (*Response[models.ToolsetSchema], error) {
		schema, err := svc.Schema(ctx, input.ToolsetType)
		if err != nil {
			return nil, huma.Error404NotFound("Unknown toolset type")
		}
		return &Response[models.ToolsetSchema]{Body: *schema}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-tools",
		Method:      http.MethodGet,
		Path:        pathPrefix + "/tools",
		Summary:     "Search tools",
		Description: "Search tools across the registry, optionally scoped to one toolset type.",
		Tags:        []string{"registry"},
	}, func(ctx context.Context, input *SearchToolsInput) (*Response[ToolListBody], error) {
		tools := svc.SearchTools(ctx, input.AppName, input.Search)
		return &Response[ToolListBody]{Body: ToolListBody{Tools: tools, Count: len(tools)}}, nil
	})
}
