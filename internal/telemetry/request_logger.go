package telemetry

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type requestLoggerKeyType struct{}
type outcomeHolderKeyType struct{}

var requestLoggerKey = requestLoggerKeyType{}
var outcomeHolderKey = outcomeHolderKeyType{}

func ContextWithLogger(ctx context.Context, logger *RequestLogger) context.Context {
	return context.WithValue(ctx, requestLoggerKey, logger)
}

// FromContext returns the request logger, or a no-op logger outside a
// request scope so callers never nil-check.
func FromContext(ctx context.Context) *RequestLogger {
	if logger, ok := ctx.Value(requestLoggerKey).(*RequestLogger); ok {
		return logger
	}
	return newNoOpRequestLogger()
}

// OutcomeHolder is a mutable container handlers write their final outcome
// into; the middleware reads it when emitting the wide log entry.
type OutcomeHolder struct {
	Outcome *Outcome
}

func ContextWithOutcomeHolder(ctx context.Context, holder *OutcomeHolder) context.Context {
	return context.WithValue(ctx, outcomeHolderKey, holder)
}

// SetOutcome records a custom outcome (message, error, level) for the
// current request.
func SetOutcome(ctx context.Context, outcome Outcome) {
	if holder, ok := ctx.Value(outcomeHolderKey).(*OutcomeHolder); ok && holder != nil {
		holder.Outcome = &outcome
	}
}

// LoggingConfig holds sampling, filtering and redaction settings.
type LoggingConfig struct {
	SuccessSampleRate float64 `env:"LOG_SUCCESS_SAMPLE_RATE" envDefault:"0.1"`
	ExcludePaths      string  `env:"LOG_EXCLUDE_PATHS" envDefault:"/health,/ping,/metrics"`
	ErrorOnlyPaths    string  `env:"LOG_ERROR_ONLY_PATHS" envDefault:""`
	RedactPatterns    string  `env:"LOG_REDACT_PATTERNS" envDefault:"password,token,secret,key,authorization,credential,bearer,api_key,apikey,private,client_secret"`
}

func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		SuccessSampleRate: 0.1,
		ExcludePaths:      "/health,/ping,/metrics",
		RedactPatterns:    "password,token,secret,key,authorization,credential,bearer,api_key,apikey,private,client_secret",
	}
}

type parsedLoggingConfig struct {
	successSampleRate float64
	excludePaths      map[string]bool
	errorOnlyPaths    map[string]bool
	redactRegex       *regexp.Regexp
}

func parseLoggingConfig(cfg *LoggingConfig) *parsedLoggingConfig {
	parsed := &parsedLoggingConfig{
		successSampleRate: cfg.SuccessSampleRate,
		excludePaths:      splitSet(cfg.ExcludePaths),
		errorOnlyPaths:    splitSet(cfg.ErrorOnlyPaths),
	}
	var parts []string
	for _, p := range strings.Split(cfg.RedactPatterns, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, regexp.QuoteMeta(p))
		}
	}
	if len(parts) > 0 {
		parsed.redactRegex = regexp.MustCompile("(?i)(" + strings.Join(parts, "|") + ")")
	}
	return parsed
}

func splitSet(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = true
		}
	}
	return set
}

// Outcome is the terminal status of one request.
type Outcome struct {
	Level      zapcore.Level
	StatusCode int
	Error      error
	Message    string
}

// RequestLogger accumulates fields over a request lifecycle and emits one
// wide log entry in Finalize. Fields can be added at the top level or under
// namespaces ("handler", "service", "store") for ownership in the output.
type RequestLogger struct {
	baseLogger *zap.Logger
	config     *parsedLoggingConfig
	requestID  string
	path       string
	startTime  time.Time
	fields     []zap.Field
	namespaces map[string][]zap.Field
	skipLog    bool
	errorOnly  bool
	finalized  bool
	noop       bool
}

func NewRequestLogger(name, path string, cfg *LoggingConfig) *RequestLogger {
	baseLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	if cfg == nil {
		cfg = DefaultLoggingConfig()
	}
	requestID := ulid.Make().String()
	return &RequestLogger{
		baseLogger: baseLogger.Named(name),
		config:     parseLoggingConfig(cfg),
		requestID:  requestID,
		path:       path,
		startTime:  time.Now(),
		fields:     []zap.Field{zap.String("request_id", requestID)},
		namespaces: make(map[string][]zap.Field),
	}
}

// NewRequestLoggerWithID reuses an upstream correlation id instead of
// minting one.
func NewRequestLoggerWithID(name, path, requestID string, cfg *LoggingConfig) *RequestLogger {
	logger := NewRequestLogger(name, path, cfg)
	logger.requestID = requestID
	logger.fields[0] = zap.String("request_id", requestID)
	return logger
}

func newNoOpRequestLogger() *RequestLogger {
	return &RequestLogger{noop: true, namespaces: make(map[string][]zap.Field)}
}

func (l *RequestLogger) RequestID() string {
	return l.requestID
}

func (l *RequestLogger) AddFields(fields ...zap.Field) {
	if l.noop {
		return
	}
	for _, f := range fields {
		l.fields = append(l.fields, l.redactField(f))
	}
}

// AddNamespacedFields nests fields under a namespace in the final entry:
//
//	{"request_id": "...", "handler": {...}, "service": {...}}
func (l *RequestLogger) AddNamespacedFields(namespace string, fields ...zap.Field) {
	if l.noop {
		return
	}
	for _, f := range fields {
		l.namespaces[namespace] = append(l.namespaces[namespace], l.redactField(f))
	}
}

func (l *RequestLogger) Skip() {
	l.skipLog = true
}

func (l *RequestLogger) SetErrorOnly() {
	l.errorOnly = true
}

func (l *RequestLogger) Finalize(outcome Outcome) {
	if l.noop || l.finalized {
		return
	}
	l.finalized = true
	if !l.shouldLog(outcome) {
		return
	}

	duration := time.Since(l.startTime)
	finalFields := make([]zap.Field, 0, len(l.fields)+len(l.namespaces)+4)
	finalFields = append(finalFields, l.fields...)
	for ns, nsFields := range l.namespaces {
		fields := nsFields
		finalFields = append(finalFields, zap.Object(ns, zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
			for _, f := range fields {
				f.AddTo(enc)
			}
			return nil
		})))
	}
	finalFields = append(finalFields,
		zap.String("path", l.path),
		zap.Int("status_code", outcome.StatusCode),
		zap.Int64("duration_ms", duration.Milliseconds()),
	)
	if outcome.Error != nil {
		finalFields = append(finalFields, zap.Error(outcome.Error))
	}

	msg := outcome.Message
	if msg == "" {
		msg = "request completed"
	}
	if ce := l.baseLogger.Check(outcome.Level, msg); ce != nil {
		ce.Write(finalFields...)
	}
}

func (l *RequestLogger) shouldLog(outcome Outcome) bool {
	if l.config.excludePaths[l.path] || l.skipLog {
		return false
	}
	if outcome.Level >= zapcore.WarnLevel || outcome.Error != nil {
		return true
	}
	if l.errorOnly || l.config.errorOnlyPaths[l.path] {
		return false
	}
	return l.hashToFloat() < l.config.successSampleRate
}

// hashToFloat maps the request id to [0,1) so sampling is deterministic per
// request and stable across replicas sharing a correlation id.
func (l *RequestLogger) hashToFloat() float64 {
	h := fnv.New64a()
	h.Write([]byte(l.requestID))
	return float64(h.Sum64()) / float64(^uint64(0))
}

const redactedValue = "***"

func (l *RequestLogger) redactField(f zap.Field) zap.Field {
	if l.config.redactRegex == nil {
		return f
	}
	if l.config.redactRegex.MatchString(f.Key) {
		return zap.String(f.Key, redactedValue)
	}
	return f
}

func LevelFromStatusCode(statusCode int) zapcore.Level {
	switch {
	case statusCode >= 500:
		return zapcore.ErrorLevel
	case statusCode >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
