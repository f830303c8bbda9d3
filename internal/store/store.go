// Package store persists toolset instances, shared OAuth configs, per-user
// credentials and per-instance tool selections. Two implementations exist:
// an in-memory store for tests and dev mode, and a pgx-backed Postgres
// store for deployments.
package store

import (
	"context"
	"errors"

	"github.com/agentflow-dev/toolsets/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConfigInUse is returned when deleting an OAuth config that is
	// still referenced by at least one instance (safe-delete invariant).
	ErrConfigInUse = errors.New("oauth config is referenced by one or more instances")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("record already exists")
)

// InstanceFilter narrows instance listings.
type InstanceFilter struct {
	OrgID       string
	ToolsetType string
	Search      string
	Page        int
	Limit       int
}

// Store is the persistence boundary of the service layer.
//
// Mutations that stamp timestamps use epoch milliseconds; callers never set
// CreatedAt/UpdatedAt themselves.
type Store interface {
	// Instances.
	CreateInstance(ctx context.Context, instance *models.ToolsetInstance) error
	GetInstance(ctx context.Context, id string) (*models.ToolsetInstance, error)
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*models.ToolsetInstance, int, error)
	UpdateInstance(ctx context.Context, instance *models.ToolsetInstance) error
	// DeleteInstance removes the instance and cascades: every credential
	// and tool selection for the instance is deleted with it.
	DeleteInstance(ctx context.Context, id string) error

	// OAuth configs.
	CreateOAuthConfig(ctx context.Context, config *models.OAuthConfig) error
	GetOAuthConfig(ctx context.Context, id string) (*models.OAuthConfig, error)
	ListOAuthConfigs(ctx context.Context, orgID, toolsetType string) ([]*models.OAuthConfig, error)
	UpdateOAuthConfig(ctx context.Context, config *models.OAuthConfig) error
	// DeleteOAuthConfig fails with ErrConfigInUse while any instance
	// references the config.
	DeleteOAuthConfig(ctx context.Context, id string) error
	CountInstancesByOAuthConfig(ctx context.Context, configID string) (int, error)

	// Credentials.
	UpsertCredential(ctx context.Context, credential *models.UserCredential) error
	GetCredential(ctx context.Context, userID, instanceID string) (*models.UserCredential, error)
	DeleteCredential(ctx context.Context, userID, instanceID string) error
	CountAuthenticatedByInstance(ctx context.Context, instanceID string) (int, error)
	// RevokeByInstance deletes every credential of one instance and
	// returns how many users were deauthenticated.
	RevokeByInstance(ctx context.Context, instanceID string) (int, error)
	// RevokeByOAuthConfig deletes every credential across all instances
	// referencing the config and returns the deauthenticated count.
	RevokeByOAuthConfig(ctx context.Context, configID string) (int, error)

	// Instance tool selections (flow-builder canvas state).
	AddInstanceTools(ctx context.Context, tools []*models.InstanceTool) error
	ListInstanceTools(ctx context.Context, instanceID string) ([]*models.InstanceTool, error)
	DeleteInstanceTool(ctx context.Context, instanceID, toolID string) error

	Close()
}
