// Package log provides the logging abstraction used across mpcwatch.
//
// Library packages (discovery, endpoint, transport, failover, dashboard)
// accept a Logger rather than a concrete zerolog.Logger so they can be
// embedded in other programs and silenced in tests.
//
// # Usage
//
//	logger := log.NewZerologAdapter(os.Stderr, cfg.Debug)
//	cache := endpoint.NewCache(resolver, endpoint.WithLogger(logger))
//
// Tests use the no-op logger:
//
//	logger := log.NewNoopLogger()
package log
