// Package server exposes the runtime and the event stream to the overlay UI.
package server

import "time"

const (
	// Per-connection sliding window for inbound websocket messages.
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// EventBuffer is each websocket's bus subscription buffer.
	EventBuffer = 64

	// WriteTimeout bounds one websocket write.
	WriteTimeout = 5 * time.Second

	// TextPreviewLimit truncates latest text in status responses.
	TextPreviewLimit = 500

	maxBodyBytes = 64 << 10
)
