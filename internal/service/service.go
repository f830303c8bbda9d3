// Package service orchestrates the toolset registry, the store and the
// OAuth layer. It owns the cascade semantics: instance deletion, credential
// rotation and shared-OAuth-config updates all invalidate user credentials
// here, never in the handlers.
package service

import (
	"context"

	"github.com/agentflow-dev/toolsets/internal/models"
	"github.com/agentflow-dev/toolsets/internal/store"
)

// CreateInstanceParams is the admin input for creating an instance.
// For OAUTH instances exactly one of OAuthConfigID (reuse a shared app) or
// OAuthInstanceName (create a new shared app from AuthConfig) must be set.
type CreateInstanceParams struct {
	OrgID             string
	CreatedBy         string
	InstanceName      string
	ToolsetType       string
	AuthType          models.AuthType
	BaseURL           string
	AuthConfig        map[string]string
	OAuthConfigID     string
	OAuthInstanceName string
}

// UpdateInstanceParams is the admin input for mutating an instance. Nil
// pointers mean "leave unchanged".
type UpdateInstanceParams struct {
	InstanceName  *string
	BaseURL       *string
	OAuthConfigID *string
	AuthConfig    map[string]string
}

// UpdateInstanceResult reports the outcome of an instance update including
// how many users the change deauthenticated.
type UpdateInstanceResult struct {
	Instance                 *models.ToolsetInstance
	DeauthenticatedUserCount int
}

// UpdateOAuthConfigParams mutates a shared OAuth app. An empty ClientSecret
// means "keep the existing secret".
type UpdateOAuthConfigParams struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	Scopes       []string
	RedirectURI  string
}

// UpdateOAuthConfigResult is returned by UpdateOAuthConfig; the count covers
// every instance sharing the config, not just the one being managed.
type UpdateOAuthConfigResult struct {
	OAuthConfigID            string `json:"oauthConfigId"`
	Message                  string `json:"message"`
	DeauthenticatedUserCount int    `json:"deauthenticatedUserCount"`
}

// InstanceDetail is the admin MANAGE-mode view: the instance plus its OAuth
// config (if any) and the count of currently-authenticated users.
type InstanceDetail struct {
	Instance               *models.ToolsetInstance  `json:"instance"`
	OAuthConfig            *models.OAuthConfigView  `json:"oauthConfig,omitempty"`
	AuthenticatedUserCount int                      `json:"authenticatedUserCount"`
}

// ToolsetService is the operation surface consumed by the REST handlers.
type ToolsetService interface {
	// Registry browsing.
	ListRegistry(ctx context.Context, filter RegistryFilter) (*RegistryPage, error)
	Schema(ctx context.Context, toolsetType string) (*models.ToolsetSchema, error)
	SearchTools(ctx context.Context, appName, search string) []models.RegistryTool

	// Instance CRUD.
	CreateInstance(ctx context.Context, params CreateInstanceParams) (*models.ToolsetInstance, error)
	GetInstanceDetail(ctx context.Context, id string) (*InstanceDetail, error)
	ListInstances(ctx context.Context, filter store.InstanceFilter) ([]*models.ToolsetInstance, int, error)
	UpdateInstance(ctx context.Context, id string, params UpdateInstanceParams) (*UpdateInstanceResult, error)
	DeleteInstance(ctx context.Context, id string) error

	// Per-user authentication.
	Authenticate(ctx context.Context, instanceID, userID string, credentials map[string]string) error
	RemoveCredentials(ctx context.Context, instanceID, userID string) error
	Reauthenticate(ctx context.Context, instanceID, userID string) error
	InstanceStatus(ctx context.Context, instanceID, userID string) models.InstanceStatus
	MyToolsets(ctx context.Context, orgID, userID, search string) ([]models.MyToolset, error)

	// OAuth handshake.
	AuthorizeURL(ctx context.Context, instanceID, userID, baseURL string) (*models.AuthorizeURLResult, error)
	CompleteOAuth(ctx context.Context, state, code string) error

	// Shared OAuth app management.
	ListOAuthConfigs(ctx context.Context, orgID, toolsetType string) ([]models.OAuthConfigView, error)
	UpdateOAuthConfig(ctx context.Context, toolsetType, configID string, params UpdateOAuthConfigParams) (*UpdateOAuthConfigResult, error)
	DeleteOAuthConfig(ctx context.Context, toolsetType, configID string) error

	// Legacy single-config surface, keyed by {userId}_{toolsetType}.
	FindOrCreate(ctx context.Context, orgID, userID, toolsetType string) (*models.ToolsetInstance, error)

	// Flow-builder tool selections.
	AddInstanceTools(ctx context.Context, instanceID, userID string, tools []models.RegistryTool) ([]*models.InstanceTool, error)
	ListInstanceTools(ctx context.Context, instanceID string) ([]*models.InstanceTool, error)
	DeleteInstanceTool(ctx context.Context, instanceID, toolID string) error
}

// RegistryFilter shapes a registry listing request.
type RegistryFilter struct {
	Page             int
	Limit            int
	Search           string
	IncludeTools     bool
	IncludeToolCount bool
	GroupByCategory  bool
}

// RegistryPage is one page of the registry, or the grouped view when
// GroupByCategory was requested.
type RegistryPage struct {
	Toolsets   []models.RegistryEntry            `json:"toolsets,omitempty"`
	Groups     map[string][]models.RegistryEntry `json:"groups,omitempty"`
	TotalCount int                               `json:"totalCount"`
	Page       int                               `json:"page"`
	Limit      int                               `json:"limit"`
}
