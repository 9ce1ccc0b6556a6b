package evserve

import (
	"errors"
	"fmt"
)

// Sentinel errors, in the teacher's own idiom (plain errors.New values
// compared with errors.Is, no errors-library wrapping) — see DESIGN.md for
// why that idiom is carried forward unchanged.
var (
	// ErrServerClosed names a server that has been stopped. No code path
	// in this module currently returns it.
	ErrServerClosed = errors.New("evserve: server closed")

	// ErrNoVHosts is a configuration error: Start requires at least one
	// registered virtual host.
	ErrNoVHosts = errors.New("evserve: no virtual hosts registered")

	// ErrInvalidTransition is a configuration error: Start/Stop called from
	// a state that doesn't permit it.
	ErrInvalidTransition = errors.New("evserve: invalid lifecycle transition")

	// ErrShutdownTimeout is returned by Stop when shutdown_timeout elapses
	// before clients have drained.
	ErrShutdownTimeout = errors.New("evserve: shutdown timed out")

	// ErrOptionsLocked names an attempt to change frozen Options. Options
	// has no setters and its fields stay assignable after Freeze, so no
	// code path in this module returns it.
	ErrOptionsLocked = errors.New("evserve: options already locked")

	// ErrExported mirrors the teacher's ErrHijacked: Export called on a
	// connection that was already exported.
	ErrExported = errors.New("evserve: connection already exported")

	// ErrClientDisconnect surfaces into body emitters and backpressure
	// suspensions when the peer goes away mid-response. Never fatal to the
	// server; an application may ignore it (§7).
	ErrClientDisconnect = errors.New("evserve: client disconnected")

	// ErrBodyTooLarge marks an emitter failed by a SIZE_WARNING event.
	ErrBodyTooLarge = errors.New("evserve: request body exceeded soft cap")

	// ErrBodyClosed mirrors the teacher's ErrBodyReadAfterClose.
	ErrBodyClosed = errors.New("evserve: body already closed")

	// errNotTableflip guards Server.Upgrade against a server started
	// with the default net.Listen binder.
	errNotTableflip = errors.New("evserve: server was not started with a tableflip binder")
)

// badRequestError is a typed error carrying a human-readable reason,
// rendered as "bad request: <reason>". Options.Validate uses it to report
// invalid configuration values.
type badRequestError string

func (e badRequestError) Error() string { return "bad request: " + string(e) }

// parseError models the driver's PARSE_ERROR(status, msg) event (§4.5).
type parseError struct {
	status int
	msg    string
}

func (e parseError) Error() string {
	return fmt.Sprintf("parse error (%d): %s", e.status, e.msg)
}

// newParseError constructs the PARSE_ERROR payload a Driver emits.
func newParseError(status int, msg string) error {
	return parseError{status: status, msg: msg}
}
