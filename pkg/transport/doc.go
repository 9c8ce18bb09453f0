// Package transport is the request pipeline every backend call goes through.
//
// A Client reads its destination from an endpoint Source on every call,
// strips headers the backends reject, enforces fixed timeout and size
// bounds, and classifies failures:
//
//   - connectivity (refused, unreachable, DNS, dial): ErrConnectivity. When a
//     failover prober is configured the client probes once for a live
//     backend, updates the endpoint cache and replays the request once.
//   - application (a non-2xx answer): *StatusError, never retried.
//   - validation (oversized or malformed request/response): ErrValidation.
//
// # Usage
//
//	cache := endpoint.NewCache(resolver)
//	client := transport.New(cache,
//	    transport.WithFailover(failover.New(), cache),
//	    transport.WithLogger(logger))
//
//	resp, err := client.Do(ctx, transport.Request{Path: "/api/participant/status"})
package transport
