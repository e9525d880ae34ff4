package ice

import "errors"

// Error taxonomy: protocol violations
// are dropped silently and never reach these; these are the ones that can
// surface to a caller or to the state-change callback.
var (
	// ErrInvalidArgument covers malformed SDP and oversized input.
	ErrInvalidArgument = errors.New("ice: invalid argument")

	// ErrNotAvailable covers no usable local interface or a socket bind
	// failure during gathering.
	ErrNotAvailable = errors.New("ice: not available")

	// ErrFailed is returned by Send once the agent has entered the Failed
	// state. It is terminal.
	ErrFailed = errors.New("ice: agent failed")

	// ErrClosed is returned by Send and other operations after the agent
	// has been destroyed.
	ErrClosed = errors.New("ice: agent closed")

	errReadTimeout        = errors.New("ice: read timeout")
	errSTUNInvalidMessage = errors.New("ice: STUN message is malformed")
	errNoRemoteCandidate  = errors.New("ice: no selected pair yet")
)
