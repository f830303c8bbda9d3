package router

import (
	"github.com/danielgtaylor/huma/v2"

	v0 "github.com/agentflow-dev/toolsets/internal/api/handlers/v0"
	"github.com/agentflow-dev/toolsets/internal/service"
)

// BasePath is the mount point of the toolset API.
const BasePath = "/api/v1/toolsets"

// RegisterRoutes registers every operation under BasePath.
func RegisterRoutes(api huma.API, svc service.ToolsetService) {
	v0.RegisterHealthEndpoints(api)
	v0.RegisterRegistryEndpoints(api, BasePath, svc)
	v0.RegisterInstanceEndpoints(api, BasePath, svc)
	v0.RegisterOAuthConfigEndpoints(api, BasePath, svc)
	v0.RegisterLegacyEndpoints(api, BasePath, svc)
}
