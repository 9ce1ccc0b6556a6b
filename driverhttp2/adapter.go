package driverhttp2

import "github.com/badu/evserve"

// New builds a fresh per-connection HTTP/2 evserve.Driver (see package
// doc for this reference implementation's single-stream scope).
func New(filters ...evserve.Filter) evserve.Driver {
	return evserve.NewDriver("HTTP/2", NewParser(), NewCodec(), filters...)
}
