package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentflow-dev/toolsets/internal/models"
)

// MemoryStore is a map-backed Store used by tests and dev mode. All reads
// return copies so callers cannot mutate shared state.
type MemoryStore struct {
	mu          sync.RWMutex
	instances   map[string]*models.ToolsetInstance
	configs     map[string]*models.OAuthConfig
	credentials map[string]*models.UserCredential // key: userID + "\x00" + instanceID
	tools       map[string]*models.InstanceTool

	// now is swappable in tests.
	now func() int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances:   make(map[string]*models.ToolsetInstance),
		configs:     make(map[string]*models.OAuthConfig),
		credentials: make(map[string]*models.UserCredential),
		tools:       make(map[string]*models.InstanceTool),
		now:         func() int64 { return time.Now().UnixMilli() },
	}
}

func credKey(userID, instanceID string) string {
	return userID + "\x00" + instanceID
}

func copyInstance(in *models.ToolsetInstance) *models.ToolsetInstance {
	out := *in
	if in.AuthConfig != nil {
		out.AuthConfig = make(map[string]string, len(in.AuthConfig))
		for k, v := range in.AuthConfig {
			out.AuthConfig[k] = v
		}
	}
	return &out
}

func copyConfig(in *models.OAuthConfig) *models.OAuthConfig {
	out := *in
	out.Scopes = append([]string(nil), in.Scopes...)
	return &out
}

func copyCredential(in *models.UserCredential) *models.UserCredential {
	out := *in
	if in.Secret != nil {
		out.Secret = make(map[string]string, len(in.Secret))
		for k, v := range in.Secret {
			out.Secret[k] = v
		}
	}
	return &out
}

func (s *MemoryStore) CreateInstance(_ context.Context, instance *models.ToolsetInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[instance.ID]; ok {
		return ErrDuplicate
	}
	instance.CreatedAt = s.now()
	instance.UpdatedAt = instance.CreatedAt
	s.instances[instance.ID] = copyInstance(instance)
	return nil
}

func (s *MemoryStore) GetInstance(_ context.Context, id string) (*models.ToolsetInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	instance, ok := s.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyInstance(instance), nil
}

func (s *MemoryStore) ListInstances(_ context.Context, filter InstanceFilter) ([]*models.ToolsetInstance, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.ToolsetInstance
	needle := strings.ToLower(filter.Search)
	for _, instance := range s.instances {
		if filter.OrgID != "" && instance.OrgID != filter.OrgID {
			continue
		}
		if filter.ToolsetType != "" && instance.ToolsetType != filter.ToolsetType {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(instance.InstanceName), needle) &&
			!strings.Contains(strings.ToLower(instance.ToolsetType), needle) {
			continue
		}
		matched = append(matched, copyInstance(instance))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt != matched[j].CreatedAt {
			return matched[i].CreatedAt > matched[j].CreatedAt
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 30
	}
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) UpdateInstance(_ context.Context, instance *models.ToolsetInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.instances[instance.ID]
	if !ok {
		return ErrNotFound
	}
	instance.CreatedAt = existing.CreatedAt
	instance.UpdatedAt = s.now()
	s.instances[instance.ID] = copyInstance(instance)
	return nil
}

func (s *MemoryStore) DeleteInstance(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[id]; !ok {
		return ErrNotFound
	}
	delete(s.instances, id)
	for key, cred := range s.credentials {
		if cred.InstanceID == id {
			delete(s.credentials, key)
		}
	}
	for key, tool := range s.tools {
		if tool.InstanceID == id {
			delete(s.tools, key)
		}
	}
	return nil
}

func (s *MemoryStore) CreateOAuthConfig(_ context.Context, config *models.OAuthConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[config.ID]; ok {
		return ErrDuplicate
	}
	config.CreatedAt = s.now()
	config.UpdatedAt = config.CreatedAt
	s.configs[config.ID] = copyConfig(config)
	return nil
}

func (s *MemoryStore) GetOAuthConfig(_ context.Context, id string) (*models.OAuthConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	config, ok := s.configs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConfig(config), nil
}

func (s *MemoryStore) ListOAuthConfigs(_ context.Context, orgID, toolsetType string) ([]*models.OAuthConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.OAuthConfig
	for _, config := range s.configs {
		if orgID != "" && config.OrgID != orgID {
			continue
		}
		if toolsetType != "" && config.ToolsetType != toolsetType {
			continue
		}
		out = append(out, copyConfig(config))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) UpdateOAuthConfig(_ context.Context, config *models.OAuthConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.configs[config.ID]
	if !ok {
		return ErrNotFound
	}
	config.CreatedAt = existing.CreatedAt
	config.UpdatedAt = s.now()
	s.configs[config.ID] = copyConfig(config)
	return nil
}

func (s *MemoryStore) DeleteOAuthConfig(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[id]; !ok {
		return ErrNotFound
	}
	for _, instance := range s.instances {
		if instance.OAuthConfigID == id {
			return ErrConfigInUse
		}
	}
	delete(s.configs, id)
	return nil
}

func (s *MemoryStore) CountInstancesByOAuthConfig(_ context.Context, configID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, instance := range s.instances {
		if instance.OAuthConfigID == configID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) UpsertCredential(_ context.Context, credential *models.UserCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := credKey(credential.UserID, credential.InstanceID)
	if existing, ok := s.credentials[key]; ok {
		credential.CreatedAt = existing.CreatedAt
	} else {
		credential.CreatedAt = s.now()
	}
	credential.UpdatedAt = s.now()
	s.credentials[key] = copyCredential(credential)
	return nil
}

func (s *MemoryStore) GetCredential(_ context.Context, userID, instanceID string) (*models.UserCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credential, ok := s.credentials[credKey(userID, instanceID)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCredential(credential), nil
}

func (s *MemoryStore) DeleteCredential(_ context.Context, userID, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := credKey(userID, instanceID)
	if _, ok := s.credentials[key]; !ok {
		return ErrNotFound
	}
	delete(s.credentials, key)
	return nil
}

func (s *MemoryStore) CountAuthenticatedByInstance(_ context.Context, instanceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, credential := range s.credentials {
		if credential.InstanceID == instanceID && credential.Authenticated {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) RevokeByInstance(_ context.Context, instanceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for key, credential := range s.credentials {
		if credential.InstanceID == instanceID {
			if credential.Authenticated {
				count++
			}
			delete(s.credentials, key)
		}
	}
	return count, nil
}

func (s *MemoryStore) RevokeByOAuthConfig(_ context.Context, configID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	affected := make(map[string]bool)
	for _, instance := range s.instances {
		if instance.OAuthConfigID == configID {
			affected[instance.ID] = true
		}
	}
	count := 0
	for key, credential := range s.credentials {
		if affected[credential.InstanceID] {
			if credential.Authenticated {
				count++
			}
			delete(s.credentials, key)
		}
	}
	return count, nil
}

func (s *MemoryStore) AddInstanceTools(_ context.Context, tools []*models.InstanceTool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tool := range tools {
		tool.CreatedAt = s.now()
		s.tools[tool.ID] = &models.InstanceTool{
			ID:          tool.ID,
			InstanceID:  tool.InstanceID,
			UserID:      tool.UserID,
			Name:        tool.Name,
			FullName:    tool.FullName,
			Description: tool.Description,
			CreatedAt:   tool.CreatedAt,
		}
	}
	return nil
}

func (s *MemoryStore) ListInstanceTools(_ context.Context, instanceID string) ([]*models.InstanceTool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.InstanceTool
	for _, tool := range s.tools {
		if tool.InstanceID == instanceID {
			t := *tool
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *MemoryStore) DeleteInstanceTool(_ context.Context, instanceID, toolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tool, ok := s.tools[toolID]
	if !ok || tool.InstanceID != instanceID {
		return ErrNotFound
	}
	delete(s.tools, toolID)
	return nil
}

func (s *MemoryStore) Close() {}
