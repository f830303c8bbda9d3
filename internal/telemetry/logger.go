// Package telemetry provides structured logging and metrics for the toolset
// service. Request handling emits a single wide log entry per request; the
// per-request logger travels through context.
package telemetry

import (
	"go.uber.org/zap"
)

// NewLogger builds the process-level zap logger. Development mode switches
// to the console encoder.
func NewLogger(name string, development bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger.Named(name)
}
