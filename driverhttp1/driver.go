package driverhttp1

import "github.com/badu/evserve"

// New builds a fresh per-connection HTTP/1.1 evserve.Driver: a new
// parser (so incremental state like chunk-decoding position is never
// shared across connections) paired with the stateless Codec, optionally
// composed with filters (gzip, logging, ...) supplied by the caller.
func New(filters ...evserve.Filter) evserve.Driver {
	return evserve.NewDriver(evserve.HTTP1_1, NewParser(), NewCodec(), filters...)
}
