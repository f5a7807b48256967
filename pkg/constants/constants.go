package constants

import "time"

const (
	// DefaultWSTimeout bounds how long a single RPC waits for its response
	// after the request was written. Zero disables the bound.
	DefaultWSTimeout = 30 * time.Second

	// RequestIDLength is the length of the random id attached to each RPC.
	RequestIDLength = 16

	// CloseMessageCode is sent in the websocket close frame on shutdown.
	CloseMessageCode = 1000
)
