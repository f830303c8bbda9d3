package client

// Wire types mirror the JSON bodies of the toolset API. They are defined
// here rather than shared with the server so this package stays importable
// without the server's internal dependencies.

// AuthType identifies the credential shape of a toolset instance.
type AuthType string

const (
	AuthTypeOAuth            AuthType = "OAUTH"
	AuthTypeAPIToken         AuthType = "API_TOKEN"
	AuthTypeBearerToken      AuthType = "BEARER_TOKEN"
	AuthTypeUsernamePassword AuthType = "USERNAME_PASSWORD"
	AuthTypeNone             AuthType = "NONE"
)

// SchemaField is one credential form field with its validation rules.
type SchemaField struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Required  bool   `json:"required"`
	Secret    bool   `json:"secret,omitempty"`
	MinLength int    `json:"minLength,omitempty"`
	MaxLength int    `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Message   string `json:"message,omitempty"`
}

// AuthSchema is the field list for one auth type.
type AuthSchema struct {
	Fields          []SchemaField `json:"fields"`
	ShowRedirectURI bool          `json:"showRedirectUri,omitempty"`
}

// ToolsetSchema is the auth-schema document for a toolset type.
type ToolsetSchema struct {
	ToolsetType string                  `json:"toolsetType"`
	Schemas     map[AuthType]AuthSchema `json:"schemas"`
}

// AuthTypes returns the supported auth types in a stable order, OAUTH first.
func (s *ToolsetSchema) AuthTypes() []AuthType {
	order := []AuthType{AuthTypeOAuth, AuthTypeAPIToken, AuthTypeBearerToken, AuthTypeUsernamePassword, AuthTypeNone}
	var out []AuthType
	for _, t := range order {
		if _, ok := s.Schemas[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Resolve returns the sub-schema for the selected auth type, falling back to
// the first available type. Pure and idempotent: it never mutates the
// document.
func (s *ToolsetSchema) Resolve(selected AuthType) (AuthType, AuthSchema, bool) {
	if s == nil || len(s.Schemas) == 0 {
		return "", AuthSchema{}, false
	}
	if schema, ok := s.Schemas[selected]; ok {
		return selected, schema, true
	}
	types := s.AuthTypes()
	first := types[0]
	return first, s.Schemas[first], true
}

// RegistryTool is one capability of a toolset type.
type RegistryTool struct {
	Name        string `json:"name"`
	FullName    string `json:"fullName"`
	Description string `json:"description"`
}

// RegistryEntry describes a toolset type in the catalog.
type RegistryEntry struct {
	Type        string         `json:"type"`
	DisplayName string         `json:"displayName"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Icon        string         `json:"icon"`
	AuthTypes   []AuthType     `json:"authTypes"`
	Tools       []RegistryTool `json:"tools,omitempty"`
	ToolCount   int            `json:"toolCount"`
}

// RegistryPage is one page of the registry listing, or the grouped view.
type RegistryPage struct {
	Toolsets   []RegistryEntry            `json:"toolsets,omitempty"`
	Groups     map[string][]RegistryEntry `json:"groups,omitempty"`
	TotalCount int                        `json:"totalCount"`
	Page       int                        `json:"page"`
	Limit      int                        `json:"limit"`
}

// RegistryFilters shapes a registry listing request.
type RegistryFilters struct {
	Page             int
	Limit            int
	Search           string
	IncludeTools     bool
	IncludeToolCount bool
	GroupByCategory  bool
}

// ToolsetInstance is an admin-provisioned configuration of a toolset type.
type ToolsetInstance struct {
	ID            string   `json:"id"`
	ToolsetType   string   `json:"toolsetType"`
	OrgID         string   `json:"orgId"`
	InstanceName  string   `json:"instanceName"`
	AuthType      AuthType `json:"authType"`
	OAuthConfigID string   `json:"oauthConfigId,omitempty"`
	BaseURL       string   `json:"baseUrl,omitempty"`
	CreatedBy     string   `json:"createdBy"`
	CreatedAt     int64    `json:"createdAt"`
	UpdatedAt     int64    `json:"updatedAt"`
}

// OAuthConfigView is the read model of a shared OAuth app; the secret is
// replaced by a presence flag.
type OAuthConfigView struct {
	ID              string   `json:"id"`
	ToolsetType     string   `json:"toolsetType"`
	Name            string   `json:"name"`
	ClientID        string   `json:"clientId"`
	ClientSecretSet bool     `json:"clientSecretSet"`
	AuthorizeURL    string   `json:"authorizeUrl"`
	TokenURL        string   `json:"tokenUrl"`
	Scopes          []string `json:"scopes"`
	RedirectURI     string   `json:"redirectUri"`
}

// InstanceDetail is the MANAGE-mode view of one instance.
type InstanceDetail struct {
	Instance               ToolsetInstance  `json:"instance"`
	OAuthConfig            *OAuthConfigView `json:"oauthConfig,omitempty"`
	AuthenticatedUserCount int              `json:"authenticatedUserCount"`
}

// InstanceStatus is the per-user polled status of one instance.
type InstanceStatus struct {
	IsConfigured    bool     `json:"isConfigured"`
	IsAuthenticated bool     `json:"isAuthenticated"`
	AuthType        AuthType `json:"authType,omitempty"`
	InstanceName    string   `json:"instanceName,omitempty"`
	ToolsetType     string   `json:"toolsetType,omitempty"`
}

// MyToolset is the merged per-user projection consumed by the sidebar.
type MyToolset struct {
	InstanceID      string         `json:"instanceId"`
	InstanceName    string         `json:"instanceName"`
	ToolsetType     string         `json:"toolsetType"`
	DisplayName     string         `json:"displayName"`
	Category        string         `json:"category"`
	Icon            string         `json:"icon"`
	AuthType        AuthType       `json:"authType"`
	Tools           []RegistryTool `json:"tools"`
	IsConfigured    bool           `json:"isConfigured"`
	IsAuthenticated bool           `json:"isAuthenticated"`
}

// CreateInstanceParams is the admin create payload.
type CreateInstanceParams struct {
	InstanceName      string            `json:"instanceName"`
	ToolsetType       string            `json:"toolsetType"`
	AuthType          AuthType          `json:"authType"`
	BaseURL           string            `json:"baseUrl,omitempty"`
	AuthConfig        map[string]string `json:"authConfig,omitempty"`
	OAuthConfigID     string            `json:"oauthConfigId,omitempty"`
	OAuthInstanceName string            `json:"oauthInstanceName,omitempty"`
}

// UpdateInstanceParams is the admin update payload; nil pointers are left
// unchanged.
type UpdateInstanceParams struct {
	InstanceName  *string           `json:"instanceName,omitempty"`
	BaseURL       *string           `json:"baseUrl,omitempty"`
	OAuthConfigID *string           `json:"oauthConfigId,omitempty"`
	AuthConfig    map[string]string `json:"authConfig,omitempty"`
}

// UpdateInstanceResult reports the update and its deauthentication impact.
type UpdateInstanceResult struct {
	Instance                 ToolsetInstance `json:"instance"`
	DeauthenticatedUserCount int             `json:"deauthenticatedUserCount"`
	Message                  string          `json:"message"`
}

// UpdateOAuthConfigResult is the outcome of a shared-OAuth-app update.
type UpdateOAuthConfigResult struct {
	OAuthConfigID            string `json:"oauthConfigId"`
	Message                  string `json:"message"`
	DeauthenticatedUserCount int    `json:"deauthenticatedUserCount"`
}

// AuthorizeURLResult starts the OAuth redirect.
type AuthorizeURLResult struct {
	Success          bool   `json:"success"`
	AuthorizationURL string `json:"authorizationUrl"`
	State            string `json:"state"`
}
