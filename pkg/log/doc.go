/*
Package log provides structured logging for CRADLE using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers attach a fixed field to every message:

	cacheLog := log.WithComponent("cache")
	cacheLog.Debug().Uint64("size", size).Msg("entry evicted")

This package integrates with:

  - pkg/cache: warnings on unexpected state transitions
  - pkg/resolve: secondary storage read/write failures, remote
    submissions, failed cancellation forwarding, failed async resolutions
  - pkg/secondary: disk cache evictions
  - pkg/rpcserver: the listening address
*/
package log
