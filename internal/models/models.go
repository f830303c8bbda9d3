// Package models holds the domain types shared between the store, the
// service layer and the REST handlers.
package models

// AuthType identifies the credential shape of a toolset instance.
// It is fixed at instance creation time; only the OAuth config an OAUTH
// instance points to may be swapped afterwards.
type AuthType string

const (
	AuthTypeOAuth            AuthType = "OAUTH"
	AuthTypeAPIToken         AuthType = "API_TOKEN"
	AuthTypeBearerToken      AuthType = "BEARER_TOKEN"
	AuthTypeUsernamePassword AuthType = "USERNAME_PASSWORD"
	AuthTypeNone             AuthType = "NONE"
)

// Valid reports whether t is one of the supported auth types.
func (t AuthType) Valid() bool {
	switch t {
	case AuthTypeOAuth, AuthTypeAPIToken, AuthTypeBearerToken, AuthTypeUsernamePassword, AuthTypeNone:
		return true
	}
	return false
}

// ToolsetInstance is an admin-created, org-scoped configuration of a
// toolset type.
type ToolsetInstance struct {
	ID            string   `json:"id"`
	ToolsetType   string   `json:"toolsetType"`
	OrgID         string   `json:"orgId"`
	InstanceName  string   `json:"instanceName"`
	AuthType      AuthType `json:"authType"`
	OAuthConfigID string   `json:"oauthConfigId,omitempty"`
	BaseURL       string   `json:"baseUrl,omitempty"`
	CreatedBy     string   `json:"createdBy"`
	// AuthConfig holds the non-secret admin-level settings for non-OAuth
	// auth types. Secret fields are stored but never serialized.
	AuthConfig map[string]string `json:"-"`
	// Epoch milliseconds. The store stamps these on every write.
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// OAuthConfig is a shareable OAuth application definition scoped to one
// toolset type within an org. The client secret is write-only: read paths
// expose only ClientSecretSet.
type OAuthConfig struct {
	ID           string   `json:"id"`
	ToolsetType  string   `json:"toolsetType"`
	OrgID        string   `json:"orgId"`
	Name         string   `json:"name"`
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"-"`
	AuthorizeURL string   `json:"authorizeUrl"`
	TokenURL     string   `json:"tokenUrl"`
	Scopes       []string `json:"scopes"`
	RedirectURI  string   `json:"redirectUri"`
	CreatedAt    int64    `json:"createdAt"`
	UpdatedAt    int64    `json:"updatedAt"`
}

// View returns the read-model projection of the config with the secret
// replaced by a presence flag.
func (c *OAuthConfig) View() OAuthConfigView {
	return OAuthConfigView{
		ID:              c.ID,
		ToolsetType:     c.ToolsetType,
		Name:            c.Name,
		ClientID:        c.ClientID,
		ClientSecretSet: c.ClientSecret != "",
		AuthorizeURL:    c.AuthorizeURL,
		TokenURL:        c.TokenURL,
		Scopes:          c.Scopes,
		RedirectURI:     c.RedirectURI,
	}
}

// OAuthConfigView is what GET endpoints return for an OAuth config.
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

// UserCredential is the authenticated state of one (user, instance) pair.
// Secret holds raw credential fields for non-OAuth instances or the stored
// token for OAUTH ones.
type UserCredential struct {
	UserID        string            `json:"userId"`
	InstanceID    string            `json:"instanceId"`
	Secret        map[string]string `json:"-"`
	Authenticated bool              `json:"authenticated"`
	CreatedAt     int64             `json:"createdAt"`
	UpdatedAt     int64             `json:"updatedAt"`
}

// RegistryTool is a capability exposed by a toolset type. Immutable,
// defined by the registry entry, not instance-specific.
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

// MyToolset is the merged per-user projection the sidebar and the
// "My Toolsets" page consume. It is recomputed on every fetch.
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

// InstanceStatus is the polled status of one (user, instance) pair.
// Status checks fail soft: an unknown instance yields the zero value.
type InstanceStatus struct {
	IsConfigured    bool     `json:"isConfigured"`
	IsAuthenticated bool     `json:"isAuthenticated"`
	AuthType        AuthType `json:"authType,omitempty"`
	InstanceName    string   `json:"instanceName,omitempty"`
	ToolsetType     string   `json:"toolsetType,omitempty"`
}

// AuthorizeURLResult is returned when starting an OAuth redirect.
type AuthorizeURLResult struct {
	Success          bool   `json:"success"`
	AuthorizationURL string `json:"authorizationUrl"`
	State            string `json:"state"`
}

// InstanceTool is a tool the user attached to an instance on the
// flow-builder canvas.
type InstanceTool struct {
	ID          string `json:"id"`
	InstanceID  string `json:"instanceId"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	FullName    string `json:"fullName"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"createdAt"`
}
