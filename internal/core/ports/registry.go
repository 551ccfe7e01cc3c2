package ports

import "github.com/austinromano/creator.v3/internal/core/domain"

// ViewerRef pairs a viewer's transport connection with the stable viewer id
// assigned at join time. The id is generated once and never recomputed from
// the current set order, so it survives other viewers leaving.
type ViewerRef struct {
	Conn   domain.ConnID
	Viewer domain.ViewerID
}

// SessionRegistry is the single shared mutable table of stream sessions:
// streamId -> {broadcaster, viewer set}. Implementations must serialize all
// mutation; the relay holds one handle and never touches session state
// outside it. A session exists iff it has a broadcaster or at least one
// viewer, and is removed the moment both are gone.
type SessionRegistry interface {
	// SetBroadcaster creates the session if absent and installs conn as its
	// broadcaster. Last joiner wins; a pre-existing broadcaster is silently
	// replaced. Returns the current viewers so the caller can notify them.
	SetBroadcaster(streamID domain.StreamID, conn domain.ConnID) []ViewerRef

	// AddViewer creates the session if absent and appends the viewer.
	// Returns whether a broadcaster is currently present.
	AddViewer(streamID domain.StreamID, conn domain.ConnID, viewer domain.ViewerID) bool

	// Broadcaster returns the session's broadcaster connection, if any.
	Broadcaster(streamID domain.StreamID) (domain.ConnID, bool)

	// Viewers returns the session's viewers in join order.
	Viewers(streamID domain.StreamID) []ViewerRef

	// ResolveViewer maps a viewer id back to its connection.
	ResolveViewer(streamID domain.StreamID, viewer domain.ViewerID) (domain.ConnID, bool)

	// RemoveBroadcaster clears the broadcaster field if conn still holds it
	// (a later joiner may have overwritten it). Returns the viewers to
	// notify and whether the now-empty session was deleted.
	RemoveBroadcaster(streamID domain.StreamID, conn domain.ConnID) (removed bool, viewers []ViewerRef, deleted bool)

	// RemoveViewer drops the viewer connection from the session. Returns the
	// remaining viewer count and whether the session was deleted.
	RemoveViewer(streamID domain.StreamID, conn domain.ConnID) (remaining int, deleted bool)

	// ViewerCount reports the number of viewers; zero for unknown streams.
	ViewerCount(streamID domain.StreamID) int

	// Exists reports whether the session is present in the registry.
	Exists(streamID domain.StreamID) bool
}
