// Package backpressure rate-limits scan intake per client identity. It is
// a boundary collaborator: the parsing and decision core never consults it,
// so evaluation stays pure and deterministic.
package backpressure

import "context"

// Limiter decides whether a request from the given identity may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether identity has budget for one request.
	Allow(ctx context.Context, identity string) (bool, error)
}
