package nova

import "errors"

var (
	// ErrSessionExists is returned by CreateSession when the requested id
	// collides with a live session.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound is returned when an operation that must report its
	// target (CreateSession's transport launch, the websocket bridge) cannot
	// find the session. Protocol operations never surface it; they no-op.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnsupportedTool is returned by the tool bridge for tool names with
	// no registered implementation.
	ErrUnsupportedTool = errors.New("unsupported tool")

	// ErrStreamFailed wraps upstream connection establishment failures.
	ErrStreamFailed = errors.New("upstream stream failed")
)
