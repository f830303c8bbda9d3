// Package router assembles the HTTP API: huma operations, telemetry
// middleware, CORS and the Prometheus scrape endpoint.
package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	v0 "github.com/agentflow-dev/toolsets/internal/api/handlers/v0"
	"github.com/agentflow-dev/toolsets/internal/config"
	"github.com/agentflow-dev/toolsets/internal/service"
	"github.com/agentflow-dev/toolsets/internal/telemetry"
)

type middlewareConfig struct {
	skipPaths map[string]bool
}

type MiddlewareOption func(*middlewareConfig)

// WithSkipPaths skips instrumentation for specific paths.
func WithSkipPaths(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		for _, path := range paths {
			c.skipPaths[path] = true
		}
	}
}

// getRoutePath prefers the route pattern over the raw URL so metrics do not
// explode on path parameters.
func getRoutePath(ctx huma.Context) string {
	if op := ctx.Operation().Path; op != "" {
		return op
	}
	return ctx.URL().Path
}

// humaContext avoids a name clash when embedding the interface.
type humaContext huma.Context

type requestLoggerContext struct {
	humaContext
	ctx context.Context
}

func (c *requestLoggerContext) Context() context.Context {
	return c.ctx
}

// RequestLoggingMiddleware creates one RequestLogger per request and stores
// it in context; handlers retrieve it via telemetry.FromContext and the
// middleware emits the wide entry after the handler returns.
func RequestLoggingMiddleware(cfg *telemetry.LoggingConfig, options ...MiddlewareOption) func(huma.Context, func(huma.Context)) {
	mwCfg := &middlewareConfig{skipPaths: make(map[string]bool)}
	for _, opt := range options {
		opt(mwCfg)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		path := ctx.URL().Path
		if mwCfg.skipPaths[path] {
			next(ctx)
			return
		}

		requestID := ctx.Header("X-Request-ID")
		if requestID == "" {
			requestID = ctx.Header("X-Correlation-ID")
		}

		var reqLog *telemetry.RequestLogger
		if requestID != "" {
			reqLog = telemetry.NewRequestLoggerWithID("api", path, requestID, cfg)
		} else {
			reqLog = telemetry.NewRequestLogger("api", path, cfg)
		}
		reqLog.AddFields(
			zap.String("method", ctx.Method()),
			zap.String("user_agent", ctx.Header("User-Agent")),
			zap.String("remote_addr", ctx.RemoteAddr()),
		)
		ctx.SetHeader("X-Request-ID", reqLog.RequestID())

		outcomeHolder := &telemetry.OutcomeHolder{}
		newCtx := telemetry.ContextWithLogger(ctx.Context(), reqLog)
		newCtx = telemetry.ContextWithOutcomeHolder(newCtx, outcomeHolder)
		next(&requestLoggerContext{humaContext: ctx, ctx: newCtx})

		if outcomeHolder.Outcome != nil {
			outcomeHolder.Outcome.StatusCode = ctx.Status()
			reqLog.Finalize(*outcomeHolder.Outcome)
		} else {
			reqLog.Finalize(telemetry.Outcome{
				Level:      telemetry.LevelFromStatusCode(ctx.Status()),
				StatusCode: ctx.Status(),
				Message:    "request completed",
			})
		}
	}
}

// MetricTelemetryMiddleware records request count, error count and latency.
func MetricTelemetryMiddleware(metrics *telemetry.Metrics, options ...MiddlewareOption) func(huma.Context, func(huma.Context)) {
	mwCfg := &middlewareConfig{skipPaths: make(map[string]bool)}
	for _, opt := range options {
		opt(mwCfg)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		path := ctx.URL().Path
		if mwCfg.skipPaths[path] {
			next(ctx)
			return
		}

		start := time.Now()
		method := ctx.Method()
		routePath := getRoutePath(ctx)

		next(ctx)

		duration := time.Since(start).Seconds()
		statusCode := ctx.Status()
		attrs := []attribute.KeyValue{
			attribute.String("method", method),
			attribute.String("path", routePath),
			attribute.Int("status_code", statusCode),
		}

		metrics.Requests.Add(ctx.Context(), 1, metric.WithAttributes(attrs...))
		if statusCode >= 400 {
			metrics.ErrorCount.Add(ctx.Context(), 1, metric.WithAttributes(attrs...))
		}
		metrics.RequestDuration.Record(ctx.Context(), duration, metric.WithAttributes(attrs...))
	}
}

// NewHumaAPI builds the full API on the given mux and returns it together
// with the handler callers should serve (CORS-wrapped mux).
func NewHumaAPI(cfg *config.Config, svc service.ToolsetService, mux *http.ServeMux, metrics *telemetry.Metrics) (huma.API, http.Handler) {
	humaConfig := huma.DefaultConfig("Toolset Configuration API", "1.0.0")
	humaConfig.Info.Description = "Admin-provisioned toolset instances, shareable OAuth configs and per-user credentials for agent flows."
	// Disable $schema property in responses.
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}

	api := humago.New(mux, humaConfig)

	api.OpenAPI().Tags = []*huma.Tag{
		{Name: "registry", Description: "Catalog of available toolset types, their tools and auth schemas"},
		{Name: "instances", Description: "Admin-provisioned toolset instances"},
		{Name: "credentials", Description: "Per-user authentication against instances"},
		{Name: "oauth", Description: "OAuth authorization handshake"},
		{Name: "oauth-configs", Description: "Shared OAuth application management"},
		{Name: "tools", Description: "Per-instance tool selections for the flow builder"},
		{Name: "legacy", Description: "Single-config compatibility surface keyed by user and type"},
		{Name: "health", Description: "Health check for monitoring"},
		{Name: "ping", Description: "Connectivity test"},
	}

	api.UseMiddleware(RequestLoggingMiddleware(&cfg.Logging,
		WithSkipPaths("/health", "/metrics", "/ping", "/docs"),
	))
	api.UseMiddleware(MetricTelemetryMiddleware(metrics,
		WithSkipPaths("/health", "/metrics", "/ping", "/docs"),
	))

	RegisterRoutes(api, svc)

	mux.HandleFunc(BasePath+"/oauth/callback", v0.OAuthCallbackHandler(svc))
	mux.Handle("/metrics", metrics.PrometheusHandler())

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-User-ID", "X-Org-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})

	return api, corsMiddleware.Handler(withAPIFallback(mux))
}

// withAPIFallback returns a helpful 404 for unknown API paths.
func withAPIFallback(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := mux.Handler(r); pattern == "" && strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"title":"Not Found","status":404,"detail":"Endpoint not found. See /docs for the API documentation."}`))
			return
		}
		mux.ServeHTTP(w, r)
	})
}
