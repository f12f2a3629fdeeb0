package ws

import "errors"

// Sentinel kinds for hub errors.
var (
	ErrHubClosed = errors.New("websocket hub closed")
)
