// Package v0 contains the HTTP handlers for the toolset configuration API.
// Handlers translate service errors into RFC 7807 problem responses and keep
// all cascade logic in the service layer.
package v0

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentflow-dev/toolsets/internal/service"
	"github.com/agentflow-dev/toolsets/internal/store"
)

// Response is a generic wrapper for all success responses.
type Response[T any] struct {
	Body T
}

// EmptyResponse carries only a human-readable message.
type EmptyResponse struct {
	Message string `json:"message"`
}

// Identity is the caller identity resolved by the upstream gateway. Every
// route embeds it; OrgID scopes admin reads, UserID keys credentials.
type Identity struct {
	UserID string `header:"X-User-ID" doc:"Authenticated user id" required:"true"`
	OrgID  string `header:"X-Org-ID" doc:"Organization id" required:"true"`
}

// mapServiceError converts service and store errors into huma status errors.
func mapServiceError(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return huma.Error404NotFound(notFoundMsg)
	case errors.Is(err, store.ErrConfigInUse):
		return huma.Error409Conflict("OAuth config is still referenced by one or more instances", err)
	case errors.Is(err, store.ErrDuplicate):
		return huma.Error409Conflict("Record already exists", err)
	case errors.Is(err, service.ErrUnknownToolsetType),
		errors.Is(err, service.ErrInvalidAuthType),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrOAuthChoice),
		errors.Is(err, service.ErrNotOAuthInstance),
		errors.Is(err, service.ErrNotConfigured),
		errors.Is(err, service.ErrInvalidState):
		return huma.Error400BadRequest(err.Error())
	default:
		return huma.Error500InternalServerError("Internal error", err)
	}
}
