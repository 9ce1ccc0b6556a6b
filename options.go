package evserve

import (
	"sync/atomic"
	"time"
)

// Options is C2: a validated, lockable configuration record. Fields mirror
// spec §6's "Recognized Options (core-relevant)" exactly; parsing Options
// out of a file, flags, or env is an external collaborator's job (spec §1
// lists configuration parsing as out of scope), so Options itself never
// reads a file — see DESIGN.md for that boundary call.
//
// Grounded on badu-http/server.go's Server struct and its defaulted
// accessors (maxHeaderBytes, idleTimeout, readHeaderTimeout).
type Options struct {
	// MaxConnections is the global admission cap (inclusive).
	MaxConnections int64
	// ConnectionsPerIP is the per-IP-block admission cap (inclusive;
	// IPv6 aggregated to /56).
	ConnectionsPerIP int64
	// MaxRequestsPerConnection is carried in Options but not read by the
	// core: no per-connection request limit is enforced.
	MaxRequestsPerConnection int64
	// ConnectionTimeout is the idle keep-alive interval.
	ConnectionTimeout time.Duration
	// SocketBacklogSize is the listen backlog.
	SocketBacklogSize int
	// IOGranularity caps bytes read per readable-path iteration.
	IOGranularity int
	// SoftStreamCap/HardStreamCap are the backpressure thresholds.
	SoftStreamCap int64
	HardStreamCap int64
	// AllowedMethods is the method whitelist for pre-app fast path 2.
	AllowedMethods []string
	// NormalizeMethodCase upper-cases the method before dispatch.
	NormalizeMethodCase bool
	// ShutdownTimeout bounds Stop().
	ShutdownTimeout time.Duration
	// Debug is carried in Options but not read by the core: error
	// responses and listener setup are the same with it set.
	Debug bool
	// User is the POSIX user Start drops privileges to, if non-empty.
	User string

	locked atomic.Bool
}

// DefaultOptions returns a usable configuration for tests and small
// deployments.
func DefaultOptions() Options {
	return Options{
		MaxConnections:           10000,
		ConnectionsPerIP:         256,
		MaxRequestsPerConnection: 1000,
		ConnectionTimeout:        5 * time.Second,
		SocketBacklogSize:        1024,
		IOGranularity:            64 * 1024,
		SoftStreamCap:            1 << 20,
		HardStreamCap:            8 << 20,
		AllowedMethods:           []string{GET, HEAD, POST, PUT, DELETE, PATCH, OPTIONS, TRACE, CONNECT},
		NormalizeMethodCase:      true,
		ShutdownTimeout:          30 * time.Second,
	}
}

// Validate rejects an Options record that can never serve correctly.
func (o *Options) Validate() error {
	if o.MaxConnections <= 0 {
		return badRequestError("MaxConnections must be positive")
	}
	if o.ConnectionsPerIP <= 0 {
		return badRequestError("ConnectionsPerIP must be positive")
	}
	if o.SoftStreamCap <= 0 || o.HardStreamCap < o.SoftStreamCap {
		return badRequestError("HardStreamCap must be >= SoftStreamCap > 0")
	}
	if len(o.AllowedMethods) == 0 {
		return badRequestError("AllowedMethods must be non-empty")
	}
	return nil
}

// Freeze locks Options against further mutation; called by the lifecycle
// at STARTING (§4.1 step 4).
func (o *Options) Freeze() { o.locked.Store(true) }

// Locked reports whether Freeze has been called.
func (o *Options) Locked() bool { return o.locked.Load() }

// AllowsMethod reports whether method is in the whitelist.
func (o *Options) AllowsMethod(method string) bool {
	for _, m := range o.AllowedMethods {
		if m == method {
			return true
		}
	}
	return false
}

// MethodAllowHeader builds the Allow: header value for a 405/OPTIONS *
// response (§4.5 fast paths 2 and 5).
func (o *Options) MethodAllowHeader() string {
	out := ""
	for i, m := range o.AllowedMethods {
		if i > 0 {
			out += ", "
		}
		out += m
	}
	return out
}
