package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentflow-dev/toolsets/internal/models"
	"github.com/agentflow-dev/toolsets/internal/registry"
	"github.com/agentflow-dev/toolsets/internal/store"
)

// Validation errors surface to the handler layer as 400s.
var (
	ErrUnknownToolsetType = errors.New("unknown toolset type")
	ErrInvalidAuthType    = errors.New("auth type not supported by toolset")
	ErrInvalidCredentials = errors.New("credential fields failed validation")
	ErrOAuthChoice        = errors.New("exactly one of oauthConfigId or oauthInstanceName is required")
	ErrNotOAuthInstance   = errors.New("instance does not use OAuth")
)

type toolsetService struct {
	store   store.Store
	catalog *registry.Catalog
	oauth   *oauthCoordinator
	logger  *zap.Logger
}

// New builds the ToolsetService. stateSecret signs the OAuth state
// parameter; callbackURL is where providers redirect back to.
func New(st store.Store, catalog *registry.Catalog, stateSecret []byte, callbackURL string, logger *zap.Logger) ToolsetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &toolsetService{
		store:   st,
		catalog: catalog,
		oauth:   newOAuthCoordinator(stateSecret, callbackURL),
		logger:  logger.Named("service"),
	}
}

// LegacyInstanceID derives the synthetic per-user singleton instance id used
// by the single-config surface.
func LegacyInstanceID(userID, toolsetType string) string {
	return userID + "_" + toolsetType
}

func (s *toolsetService) ListRegistry(_ context.Context, filter RegistryFilter) (*RegistryPage, error) {
	lf := registry.ListFilter{
		Search:           filter.Search,
		IncludeTools:     filter.IncludeTools,
		IncludeToolCount: filter.IncludeToolCount,
		Page:             filter.Page,
		Limit:            filter.Limit,
	}
	if filter.GroupByCategory {
		groups := s.catalog.ListGrouped(lf)
		total := 0
		for _, entries := range groups {
			total += len(entries)
		}
		return &RegistryPage{Groups: groups, TotalCount: total}, nil
	}
	page := s.catalog.List(lf)
	return &RegistryPage{
		Toolsets:   page.Toolsets,
		TotalCount: page.TotalCount,
		Page:       page.Page,
		Limit:      page.Limit,
	}, nil
}

func (s *toolsetService) Schema(_ context.Context, toolsetType string) (*models.ToolsetSchema, error) {
	schema, ok := s.catalog.Schema(toolsetType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToolsetType, toolsetType)
	}
	return schema, nil
}

func (s *toolsetService) SearchTools(_ context.Context, appName, search string) []models.RegistryTool {
	return s.catalog.SearchTools(appName, search)
}

// validateAgainstSchema applies required/min/max/pattern rules. It mirrors
// the dialog's client-side validation so malformed payloads cannot bypass
// the UI.
func validateAgainstSchema(fields []models.SchemaField, values map[string]string) error {
	var bad []string
	for _, field := range fields {
		value := strings.TrimSpace(values[field.Name])
		if value == "" {
			if field.Required {
				bad = append(bad, field.Name+" is required")
			}
			continue
		}
		if field.MinLength > 0 && len(value) < field.MinLength {
			bad = append(bad, fmt.Sprintf("%s must be at least %d characters", field.Name, field.MinLength))
			continue
		}
		if field.MaxLength > 0 && len(value) > field.MaxLength {
			bad = append(bad, fmt.Sprintf("%s must be at most %d characters", field.Name, field.MaxLength))
			continue
		}
		if field.Pattern != "" {
			re, err := regexp.Compile(field.Pattern)
			if err == nil && !re.MatchString(value) {
				msg := field.Message
				if msg == "" {
					msg = field.Name + " has an invalid format"
				}
				bad = append(bad, msg)
			}
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, strings.Join(bad, "; "))
	}
	return nil
}

func (s *toolsetService) CreateInstance(ctx context.Context, params CreateInstanceParams) (*models.ToolsetInstance, error) {
	schema, ok := s.catalog.Schema(params.ToolsetType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToolsetType, params.ToolsetType)
	}
	authSchema, ok := schema.Schemas[params.AuthType]
	if !ok {
		return nil, fmt.Errorf("%w: %s does not support %s", ErrInvalidAuthType, params.ToolsetType, params.AuthType)
	}
	if strings.TrimSpace(params.InstanceName) == "" {
		return nil, fmt.Errorf("%w: instance name is required", ErrInvalidCredentials)
	}

	instance := &models.ToolsetInstance{
		ID:           uuid.NewString(),
		ToolsetType:  params.ToolsetType,
		OrgID:        params.OrgID,
		InstanceName: params.InstanceName,
		AuthType:     params.AuthType,
		BaseURL:      params.BaseURL,
		CreatedBy:    params.CreatedBy,
	}

	switch params.AuthType {
	case models.AuthTypeOAuth:
		hasConfig := params.OAuthConfigID != ""
		hasNewApp := params.OAuthInstanceName != ""
		if hasConfig == hasNewApp {
			return nil, ErrOAuthChoice
		}
		if hasConfig {
			config, err := s.store.GetOAuthConfig(ctx, params.OAuthConfigID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve oauth config: %w", err)
			}
			if config.ToolsetType != params.ToolsetType {
				return nil, fmt.Errorf("%w: oauth config belongs to %s", ErrInvalidCredentials, config.ToolsetType)
			}
			instance.OAuthConfigID = config.ID
		} else {
			if err := validateAgainstSchema(authSchema.Fields, params.AuthConfig); err != nil {
				return nil, err
			}
			config := &models.OAuthConfig{
				ID:           uuid.NewString(),
				ToolsetType:  params.ToolsetType,
				OrgID:        params.OrgID,
				Name:         params.OAuthInstanceName,
				ClientID:     params.AuthConfig["clientId"],
				ClientSecret: params.AuthConfig["clientSecret"],
				AuthorizeURL: params.AuthConfig["authorizeUrl"],
				TokenURL:     params.AuthConfig["tokenUrl"],
				Scopes:       splitScopes(params.AuthConfig["scopes"]),
				RedirectURI:  s.oauth.callbackURL,
			}
			if err := s.store.CreateOAuthConfig(ctx, config); err != nil {
				return nil, fmt.Errorf("failed to create oauth config: %w", err)
			}
			instance.OAuthConfigID = config.ID
		}
	case models.AuthTypeNone:
		// Nothing to validate or store.
	default:
		if err := validateAgainstSchema(authSchema.Fields, params.AuthConfig); err != nil {
			return nil, err
		}
		instance.AuthConfig = params.AuthConfig
	}

	if err := s.store.CreateInstance(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}
	s.logger.Info("toolset instance created",
		zap.String("instance_id", instance.ID),
		zap.String("toolset_type", instance.ToolsetType),
		zap.String("auth_type", string(instance.AuthType)))
	return instance, nil
}

func (s *toolsetService) GetInstanceDetail(ctx context.Context, id string) (*InstanceDetail, error) {
	instance, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &InstanceDetail{Instance: instance}
	if instance.OAuthConfigID != "" {
		config, err := s.store.GetOAuthConfig(ctx, instance.OAuthConfigID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if config != nil {
			view := config.View()
			detail.OAuthConfig = &view
		}
	}
	count, err := s.store.CountAuthenticatedByInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.AuthenticatedUserCount = count
	return detail, nil
}

func (s *toolsetService) ListInstances(ctx context.Context, filter store.InstanceFilter) ([]*models.ToolsetInstance, int, error) {
	return s.store.ListInstances(ctx, filter)
}

func (s *toolsetService) UpdateInstance(ctx context.Context, id string, params UpdateInstanceParams) (*UpdateInstanceResult, error) {
	instance, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}

	destructive := false
	if params.InstanceName != nil {
		instance.InstanceName = *params.InstanceName
	}
	if params.BaseURL != nil {
		instance.BaseURL = *params.BaseURL
	}
	if params.OAuthConfigID != nil && *params.OAuthConfigID != instance.OAuthConfigID {
		if instance.AuthType != models.AuthTypeOAuth {
			return nil, ErrNotOAuthInstance
		}
		config, err := s.store.GetOAuthConfig(ctx, *params.OAuthConfigID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve oauth config: %w", err)
		}
		if config.ToolsetType != instance.ToolsetType {
			return nil, fmt.Errorf("%w: oauth config belongs to %s", ErrInvalidCredentials, config.ToolsetType)
		}
		instance.OAuthConfigID = config.ID
		destructive = true
	}
	if params.AuthConfig != nil {
		schema, _ := s.catalog.Schema(instance.ToolsetType)
		if schema != nil {
			if authSchema, ok := schema.Schemas[instance.AuthType]; ok {
				if err := validateAgainstSchema(authSchema.Fields, params.AuthConfig); err != nil {
					return nil, err
				}
			}
		}
		instance.AuthConfig = params.AuthConfig
		destructive = true
	}

	result := &UpdateInstanceResult{Instance: instance}
	if destructive {
		count, err := s.store.RevokeByInstance(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to revoke credentials: %w", err)
		}
		result.DeauthenticatedUserCount = count
	}
	if err := s.store.UpdateInstance(ctx, instance); err != nil {
		return nil, err
	}
	s.logger.Info("toolset instance updated",
		zap.String("instance_id", id),
		zap.Bool("destructive", destructive),
		zap.Int("deauthenticated_users", result.DeauthenticatedUserCount))
	return result, nil
}

func (s *toolsetService) DeleteInstance(ctx context.Context, id string) error {
	if err := s.store.DeleteInstance(ctx, id); err != nil {
		return err
	}
	s.logger.Info("toolset instance deleted", zap.String("instance_id", id))
	return nil
}

func (s *toolsetService) Authenticate(ctx context.Context, instanceID, userID string, credentials map[string]string) error {
	instance, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.AuthType == models.AuthTypeOAuth {
		return fmt.Errorf("%w: OAuth instances authenticate via the authorization flow", ErrInvalidAuthType)
	}
	schema, ok := s.catalog.Schema(instance.ToolsetType)
	if ok {
		if authSchema, found := schema.Schemas[instance.AuthType]; found {
			if err := validateAgainstSchema(authSchema.Fields, credentials); err != nil {
				return err
			}
		}
	}
	return s.store.UpsertCredential(ctx, &models.UserCredential{
		UserID:        userID,
		InstanceID:    instanceID,
		Secret:        credentials,
		Authenticated: true,
	})
}

func (s *toolsetService) RemoveCredentials(ctx context.Context, instanceID, userID string) error {
	return s.store.DeleteCredential(ctx, userID, instanceID)
}

func (s *toolsetService) Reauthenticate(ctx context.Context, instanceID, userID string) error {
	// Clears the stored token only; the instance stays intact and a later
	// status check reports isAuthenticated=false.
	err := s.store.DeleteCredential(ctx, userID, instanceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// InstanceStatus fails soft: any lookup error degrades to the zero status
// so speculative polling never breaks callers.
func (s *toolsetService) InstanceStatus(ctx context.Context, instanceID, userID string) models.InstanceStatus {
	instance, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return models.InstanceStatus{}
	}
	status := models.InstanceStatus{
		AuthType:     instance.AuthType,
		InstanceName: instance.InstanceName,
		ToolsetType:  instance.ToolsetType,
		IsConfigured: s.isConfigured(ctx, instance),
	}
	credential, err := s.store.GetCredential(ctx, userID, instanceID)
	if err == nil && credential.Authenticated {
		status.IsAuthenticated = true
	}
	if instance.AuthType == models.AuthTypeNone {
		status.IsAuthenticated = status.IsConfigured
	}
	return status
}

func (s *toolsetService) isConfigured(ctx context.Context, instance *models.ToolsetInstance) bool {
	if instance.AuthType != models.AuthTypeOAuth {
		return true
	}
	if instance.OAuthConfigID == "" {
		return false
	}
	config, err := s.store.GetOAuthConfig(ctx, instance.OAuthConfigID)
	if err != nil {
		return false
	}
	return config.ClientID != "" && config.ClientSecret != ""
}

func (s *toolsetService) MyToolsets(ctx context.Context, orgID, userID, search string) ([]models.MyToolset, error) {
	instances, _, err := s.store.ListInstances(ctx, store.InstanceFilter{OrgID: orgID, Search: search, Limit: 500})
	if err != nil {
		return nil, err
	}
	out := make([]models.MyToolset, 0, len(instances))
	for _, instance := range instances {
		entry, ok := s.catalog.Entry(instance.ToolsetType)
		if !ok {
			continue
		}
		status := s.InstanceStatus(ctx, instance.ID, userID)
		out = append(out, models.MyToolset{
			InstanceID:      instance.ID,
			InstanceName:    instance.InstanceName,
			ToolsetType:     instance.ToolsetType,
			DisplayName:     entry.DisplayName,
			Category:        entry.Category,
			Icon:            entry.Icon,
			AuthType:        instance.AuthType,
			Tools:           entry.Tools,
			IsConfigured:    status.IsConfigured,
			IsAuthenticated: status.IsAuthenticated,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ToolsetType != out[j].ToolsetType {
			return out[i].ToolsetType < out[j].ToolsetType
		}
		return out[i].InstanceName < out[j].InstanceName
	})
	return out, nil
}

func (s *toolsetService) ListOAuthConfigs(ctx context.Context, orgID, toolsetType string) ([]models.OAuthConfigView, error) {
	configs, err := s.store.ListOAuthConfigs(ctx, orgID, toolsetType)
	if err != nil {
		return nil, err
	}
	out := make([]models.OAuthConfigView, 0, len(configs))
	for _, config := range configs {
		out = append(out, config.View())
	}
	return out, nil
}

// sameScopeSet compares scope lists as sets: order is for display only.
func sameScopeSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, scope := range a {
		set[scope] = true
	}
	for _, scope := range b {
		if !set[scope] {
			return false
		}
	}
	return true
}

func (s *toolsetService) UpdateOAuthConfig(ctx context.Context, toolsetType, configID string, params UpdateOAuthConfigParams) (*UpdateOAuthConfigResult, error) {
	config, err := s.store.GetOAuthConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	if config.ToolsetType != toolsetType {
		return nil, store.ErrNotFound
	}

	credentialsChanged := false
	if params.ClientID != "" && params.ClientID != config.ClientID {
		config.ClientID = params.ClientID
		credentialsChanged = true
	}
	// Empty secret means "keep existing": the write-only secret never round
	// trips through the UI, so its absence is not a clear.
	if params.ClientSecret != "" {
		config.ClientSecret = params.ClientSecret
		credentialsChanged = true
	}
	if params.AuthorizeURL != "" && params.AuthorizeURL != config.AuthorizeURL {
		config.AuthorizeURL = params.AuthorizeURL
		credentialsChanged = true
	}
	if params.TokenURL != "" && params.TokenURL != config.TokenURL {
		config.TokenURL = params.TokenURL
		credentialsChanged = true
	}
	if params.Scopes != nil && !sameScopeSet(params.Scopes, config.Scopes) {
		config.Scopes = params.Scopes
		credentialsChanged = true
	}
	if params.RedirectURI != "" {
		config.RedirectURI = params.RedirectURI
	}
	if params.Name != "" {
		config.Name = params.Name
	}

	result := &UpdateOAuthConfigResult{OAuthConfigID: config.ID}
	if credentialsChanged {
		count, err := s.store.RevokeByOAuthConfig(ctx, config.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to revoke credentials: %w", err)
		}
		result.DeauthenticatedUserCount = count
		result.Message = fmt.Sprintf("OAuth configuration updated; %d user(s) were deauthenticated", count)
	} else {
		result.Message = "OAuth configuration updated"
	}

	if err := s.store.UpdateOAuthConfig(ctx, config); err != nil {
		return nil, err
	}
	s.logger.Info("oauth config updated",
		zap.String("oauth_config_id", config.ID),
		zap.Bool("credentials_changed", credentialsChanged),
		zap.Int("deauthenticated_users", result.DeauthenticatedUserCount))
	return result, nil
}

func (s *toolsetService) DeleteOAuthConfig(ctx context.Context, toolsetType, configID string) error {
	config, err := s.store.GetOAuthConfig(ctx, configID)
	if err != nil {
		return err
	}
	if config.ToolsetType != toolsetType {
		return store.ErrNotFound
	}
	return s.store.DeleteOAuthConfig(ctx, configID)
}

func (s *toolsetService) FindOrCreate(ctx context.Context, orgID, userID, toolsetType string) (*models.ToolsetInstance, error) {
	id := LegacyInstanceID(userID, toolsetType)
	instance, err := s.store.GetInstance(ctx, id)
	if err == nil {
		return instance, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	entry, ok := s.catalog.Entry(toolsetType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToolsetType, toolsetType)
	}
	schema, _ := s.catalog.Schema(toolsetType)
	authType, _, _ := schema.Resolve("")

	instance = &models.ToolsetInstance{
		ID:           id,
		ToolsetType:  toolsetType,
		OrgID:        orgID,
		InstanceName: entry.DisplayName,
		AuthType:     authType,
		CreatedBy:    userID,
	}
	if err := s.store.CreateInstance(ctx, instance); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return s.store.GetInstance(ctx, id)
		}
		return nil, err
	}
	return instance, nil
}

func (s *toolsetService) AddInstanceTools(ctx context.Context, instanceID, userID string, tools []models.RegistryTool) ([]*models.InstanceTool, error) {
	if _, err := s.store.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	records := make([]*models.InstanceTool, 0, len(tools))
	for _, tool := range tools {
		records = append(records, &models.InstanceTool{
			ID:          uuid.NewString(),
			InstanceID:  instanceID,
			UserID:      userID,
			Name:        tool.Name,
			FullName:    tool.FullName,
			Description: tool.Description,
		})
	}
	if err := s.store.AddInstanceTools(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *toolsetService) ListInstanceTools(ctx context.Context, instanceID string) ([]*models.InstanceTool, error) {
	return s.store.ListInstanceTools(ctx, instanceID)
}

func (s *toolsetService) DeleteInstanceTool(ctx context.Context, instanceID, toolID string) error {
	return s.store.DeleteInstanceTool(ctx, instanceID, toolID)
}

func splitScopes(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
