package v0

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// HealthBody is the health check response.
type HealthBody struct {
	Status string `json:"status" example:"ok"`
}

// PingBody is the ping response.
type PingBody struct {
	Pong bool `json:"pong"`
}

// RegisterHealthEndpoints registers /health and /ping.
func RegisterHealthEndpoints(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"health"},
	}, func(ctx context.Context, _ *struct{}) (*Response[HealthBody], error) {
		return &Response[HealthBody]{Body: HealthBody{Status: "ok"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ping",
		Method:      http.MethodGet,
		Path:        "/ping",
		Summary:     "Ping",
		Tags:        []string{"ping"},
	}, func(ctx context.Context, _ *struct{}) (*Response[PingBody], error) {
		return &Response[PingBody]{Body: PingBody{Pong: true}}, nil
	})
}
