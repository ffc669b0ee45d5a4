package bridge

import "errors"

// Sentinel errors returned by Bridge.Call. Callers should use errors.Is.
var (
	// ErrTransportUnavailable is returned when the command queue cannot
	// accept a call because the transport loop has stopped.
	ErrTransportUnavailable = errors.New("bridge: transport unavailable")

	// ErrCallAborted is returned when the reply slot for an in-flight call
	// is dropped because the connection to the daemon was lost.
	ErrCallAborted = errors.New("bridge: call aborted")

	// ErrDaemonError wraps an error object returned by the daemon itself.
	// The stringified daemon payload is appended via fmt.Errorf("%w: %s", ...).
	ErrDaemonError = errors.New("bridge: daemon error")
)
