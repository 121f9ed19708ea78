/*
Package log provides structured logging for Drover using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Usage

Initializing the logger:

	import "github.com/cuemby/drover/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	regLog := log.WithComponent("registration")
	regLog.Info().Str("address", addr).Int("worker_id", id).Msg("Worker registered")

	jobLog := log.WithJobID(jobID)
	jobLog.Error().Err(err).Msg("Dispatch attempt failed")

# Integration Points

This package integrates with:

  - pkg/master: Logs listener lifecycle, client sessions and dispatch decisions
  - pkg/worker: Logs registration, utilization reporting and job execution
  - pkg/client: Logs submission progress
*/
package log
