package ports

import "github.com/austinromano/creator.v3/internal/core/domain"

// MessageSender delivers a signal message to a connected client. The
// websocket server implements it over its connection table; tests implement
// it with an in-memory capture.
type MessageSender interface {
	Send(conn domain.ConnID, msg domain.SignalMessage) error
}

// SignalMetrics receives relay lifecycle events. Implemented by the
// Prometheus collector; a no-op implementation is used in tests.
type SignalMetrics interface {
	StreamStarted(streamID domain.StreamID)
	StreamStopped(streamID domain.StreamID)
	ViewerJoined(streamID domain.StreamID)
	ViewerLeft(streamID domain.StreamID)
	MessageRelayed(msgType string)
	HandleDuration(msgType string, seconds float64)
}
