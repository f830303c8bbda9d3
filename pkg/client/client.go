// Package client is a typed client for the toolset configuration API.
//
// Every method logs and returns errors except the status checks, which
// degrade to a zero status: they are polled speculatively and must never
// break callers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentflow-dev/toolsets/pkg/cache"
)

const (
	basePath = "/api/v1/toolsets"

	// Schemas are static per toolset type; the projection changes with every
	// credential action, so it only papers over rapid poll bursts.
	schemaTTL     = 5 * time.Minute
	myToolsetsTTL = 15 * time.Second
)

// APIError is a structured error response from the API. The message is
// taken from the problem body's detail or message field.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// Client talks to the toolset API on behalf of one user.
type Client struct {
	baseURL    string
	userID     string
	orgID      string
	httpClient *http.Client
	logger     *zap.Logger

	schemaCache     *cache.Cache[*ToolsetSchema]
	myToolsetsCache *cache.Cache[[]MyToolset]
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger.Named("toolsets-client") }
}

// New builds a client for the API at baseURL acting as the given user.
func New(baseURL, userID, orgID string, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		userID:          userID,
		orgID:           orgID,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		logger:          zap.NewNop(),
		schemaCache:     cache.New[*ToolsetSchema](schemaTTL),
		myToolsetsCache: cache.New[[]MyToolset](myToolsetsTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeToolsetID accepts both a bare toolset type and a synthetic
// "{userId}_{toolsetType}" composite id, returning the type.
func NormalizeToolsetID(id string) string {
	if i := strings.LastIndex(id, "_"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + basePath + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-ID", c.userID)
	req.Header.Set("X-Org-ID", c.orgID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: extractErrorDetail(resp.Body)}
		c.logger.Warn("api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("detail", apiErr.Detail))
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// extractErrorDetail pulls a human-readable message from a problem body's
// detail or message field, falling back to a generic string.
func extractErrorDetail(r io.Reader) string {
	var body struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Title   string `json:"title"`
	}
	if err := json.NewDecoder(r).Decode(&body); err == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Message != "" {
			return body.Message
		}
		if body.Title != "" {
			return body.Title
		}
	}
	return "request failed"
}

// GetRegistryToolsets lists the toolset catalog.
func (c *Client) GetRegistryToolsets(ctx context.Context, filters RegistryFilters) (*RegistryPage, error) {
	query := url.Values{}
	if filters.Page > 0 {
		query.Set("page", strconv.Itoa(filters.Page))
	}
	if filters.Limit > 0 {
		query.Set("limit", strconv.Itoa(filters.Limit))
	}
	if filters.Search != "" {
		query.Set("search", filters.Search)
	}
	if filters.IncludeTools {
		query.Set("include_tools", "true")
	}
	if filters.IncludeToolCount {
		query.Set("include_tool_count", "true")
	}
	if filters.GroupByCategory {
		query.Set("group_by_category", "true")
	}
	var page RegistryPage
	if err := c.do(ctx, http.MethodGet, "/registry", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetToolsetSchema fetches the auth-schema document for a toolset type.
// Schemas are cached; concurrent misses share one request.
func (c *Client) GetToolsetSchema(ctx context.Context, toolsetType string) (*ToolsetSchema, error) {
	normalized := NormalizeToolsetID(toolsetType)
	return c.schemaCache.Get(ctx, normalized, func(ctx context.Context) (*ToolsetSchema, error) {
		var schema ToolsetSchema
		path := "/registry/" + url.PathEscape(normalized) + "/schema"
		if err := c.do(ctx, http.MethodGet, path, nil, nil, &schema); err != nil {
			return nil, err
		}
		return &schema, nil
	})
}

// SearchTools searches tools, optionally scoped to one toolset type.
func (c *Client) SearchTools(ctx context.Context, appName, search string) ([]RegistryTool, error) {
	query := url.Values{}
	if appName != "" {
		query.Set("app_name", NormalizeToolsetID(appName))
	}
	if search != "" {
		query.Set("search", search)
	}
	var body struct {
		Tools []RegistryTool `json:"tools"`
	}
	if err := c.do(ctx, http.MethodGet, "/tools", query, nil, &body); err != nil {
		return nil, err
	}
	return body.Tools, nil
}

// GetMyToolsets fetches the caller's merged toolset projection. Results are
// briefly cached; any mutating call drops the cache.
func (c *Client) GetMyToolsets(ctx context.Context, search string) ([]MyToolset, error) {
	return c.myToolsetsCache.Get(ctx, search, func(ctx context.Context) ([]MyToolset, error) {
		query := url.Values{}
		if search != "" {
			query.Set("search", search)
		}
		var body struct {
			Toolsets []MyToolset `json:"toolsets"`
		}
		if err := c.do(ctx, http.MethodGet, "/my-toolsets", query, nil, &body); err != nil {
			return nil, err
		}
		return body.Toolsets, nil
	})
}

// invalidateProjection drops the cached my-toolsets view after any call that
// can change it.
func (c *Client) invalidateProjection() {
	c.myToolsetsCache.Reset()
}

// CreateToolsetInstance creates an admin instance.
func (c *Client) CreateToolsetInstance(ctx context.Context, params CreateInstanceParams) (*ToolsetInstance, error) {
	var instance ToolsetInstance
	if err := c.do(ctx, http.MethodPost, "/instances", nil, params, &instance); err != nil {
		return nil, err
	}
	c.invalidateProjection()
	return &instance, nil
}

// GetToolsetInstance fetches one instance with its OAuth config view.
func (c *Client) GetToolsetInstance(ctx context.Context, id string) (*InstanceDetail, error) {
	var detail InstanceDetail
	if err := c.do(ctx, http.MethodGet, "/instances/"+url.PathEscape(id), nil, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdateToolsetInstance updates an instance; destructive changes return the
// count of users the server deauthenticated.
func (c *Client) UpdateToolsetInstance(ctx context.Context, id string, params UpdateInstanceParams) (*UpdateInstanceResult, error) {
	var result UpdateInstanceResult
	if err := c.do(ctx, http.MethodPut, "/instances/"+url.PathEscape(id), nil, params, &result); err != nil {
		return nil, err
	}
	c.invalidateProjection()
	return &result, nil
}

// DeleteToolsetInstance deletes an instance org-wide.
func (c *Client) DeleteToolsetInstance(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/instances/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return err
	}
	c.invalidateProjection()
	return nil
}

// AuthenticateToolsetInstance posts raw credential fields for a non-OAuth
// instance.
func (c *Client) AuthenticateToolsetInstance(ctx context.Context, id string, credentials map[string]string) error {
	body := struct {
		Credentials map[string]string `json:"credentials"`
	}{Credentials: credentials}
	if err := c.do(ctx, http.MethodPost, "/instances/"+url.PathEscape(id)+"/authenticate", nil, body, nil); err != nil {
		return err
	}
	c.invalidateProjection()
	return nil
}

// RemoveToolsetCredentials deletes the caller's own credential.
func (c *Client) RemoveToolsetCredentials(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/instances/"+url.PathEscape(id)+"/credentials", nil, nil, nil); err != nil {
		return err
	}
	c.invalidateProjection()
	return nil
}

// ReauthenticateToolsetInstance clears stored tokens without deleting the
// instance.
func (c *Client) ReauthenticateToolsetInstance(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/instances/"+url.PathEscape(id)+"/reauthenticate", nil, nil, nil); err != nil {
		return err
	}
	c.invalidateProjection()
	return nil
}

// GetInstanceOAuthAuthorizationURL starts the OAuth redirect for one
// instance.
func (c *Client) GetInstanceOAuthAuthorizationURL(ctx context.Context, id, baseURL string) (*AuthorizeURLResult, error) {
	query := url.Values{}
	if baseURL != "" {
		query.Set("base_url", baseURL)
	}
	var result AuthorizeURLResult
	if err := c.do(ctx, http.MethodGet, "/instances/"+url.PathEscape(id)+"/oauth/authorize", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetInstanceStatus returns the per-user status of an instance. It fails
// soft: on any error the zero status is returned.
func (c *Client) GetInstanceStatus(ctx context.Context, id string) InstanceStatus {
	var status InstanceStatus
	if err := c.do(ctx, http.MethodGet, "/instances/"+url.PathEscape(id)+"/status", nil, nil, &status); err != nil {
		c.logger.Debug("status check failed", zap.String("instance_id", id), zap.Error(err))
		return InstanceStatus{}
	}
	return status
}

// CheckToolsetStatus is the legacy per-type status check. Fails soft like
// GetInstanceStatus.
func (c *Client) CheckToolsetStatus(ctx context.Context, toolsetType string) InstanceStatus {
	var status InstanceStatus
	path := "/" + url.PathEscape(NormalizeToolsetID(toolsetType)) + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &status); err != nil {
		c.logger.Debug("status check failed", zap.String("toolset_type", toolsetType), zap.Error(err))
		return InstanceStatus{}
	}
	return status
}

// ListToolsetOAuthConfigs lists the shared OAuth apps of a toolset type.
func (c *Client) ListToolsetOAuthConfigs(ctx context.Context, toolsetType string) ([]OAuthConfigView, error) {
	var body struct {
		Configs []OAuthConfigView `json:"configs"`
	}
	path := "/oauth-configs/" + url.PathEscape(NormalizeToolsetID(toolsetType))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &body); err != nil {
		return nil, err
	}
	return body.Configs, nil
}

// UpdateToolsetOAuthConfig updates a shared OAuth app. Callers must omit
// clientSecret from authConfig to keep the stored secret.
func (c *Client) UpdateToolsetOAuthConfig(ctx context.Context, toolsetType, configID string, authConfig map[string]string) (*UpdateOAuthConfigResult, error) {
	body := struct {
		AuthConfig map[string]string `json:"authConfig"`
	}{AuthConfig: authConfig}
	var result UpdateOAuthConfigResult
	path := "/oauth-configs/" + url.PathEscape(NormalizeToolsetID(toolsetType)) + "/" + url.PathEscape(configID)
	if err := c.do(ctx, http.MethodPut, path, nil, body, &result); err != nil {
		return nil, err
	}
	c.invalidateProjection()
	return &result, nil
}

// DeleteToolsetOAuthConfig deletes a shared OAuth app; the server rejects
// the delete while any instance still references it.
func (c *Client) DeleteToolsetOAuthConfig(ctx context.Context, toolsetType, configID string) error {
	path := "/oauth-configs/" + url.PathEscape(NormalizeToolsetID(toolsetType)) + "/" + url.PathEscape(configID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// FindOrCreateToolset resolves the caller's legacy singleton instance.
func (c *Client) FindOrCreateToolset(ctx context.Context, toolsetType string) (*ToolsetInstance, error) {
	body := struct {
		ToolsetType string `json:"toolsetType"`
	}{ToolsetType: NormalizeToolsetID(toolsetType)}
	var instance ToolsetInstance
	if err := c.do(ctx, http.MethodPost, "/find-or-create", nil, body, &instance); err != nil {
		return nil, err
	}
	c.invalidateProjection()
	return &instance, nil
}

// AddInstanceTools attaches registry tools to an instance.
func (c *Client) AddInstanceTools(ctx context.Context, instanceID string, tools []RegistryTool) error {
	body := struct {
		Tools  []RegistryTool `json:"tools"`
		UserID string         `json:"userId,omitempty"`
	}{Tools: tools, UserID: c.userID}
	return c.do(ctx, http.MethodPost, "/"+url.PathEscape(instanceID)+"/tools", nil, body, nil)
}
