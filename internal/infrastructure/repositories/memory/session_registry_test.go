package memory

import (
	"testing"

	"github.com/austinromano/creator.v3/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestSetBroadcasterCreatesSession(t *testing.T) {
	registry := NewSessionRegistry()

	viewers := registry.SetBroadcaster("stream-1", "conn-b")

	assert.Empty(t, viewers)
	assert.True(t, registry.Exists("stream-1"))

	broadcaster, ok := registry.Broadcaster("stream-1")
	assert.True(t, ok)
	assert.Equal(t, domain.ConnID("conn-b"), broadcaster)
}

func TestSetBroadcasterLastJoinerWins(t *testing.T) {
	registry := NewSessionRegistry()

	registry.SetBroadcaster("stream-1", "conn-old")
	registry.SetBroadcaster("stream-1", "conn-new")

	broadcaster, ok := registry.Broadcaster("stream-1")
	assert.True(t, ok)
	assert.Equal(t, domain.ConnID("conn-new"), broadcaster)
}

func TestSetBroadcasterReturnsWaitingViewers(t *testing.T) {
	registry := NewSessionRegistry()

	registry.AddViewer("stream-1", "conn-v1", "viewer-1")
	registry.AddViewer("stream-1", "conn-v2", "viewer-2")

	viewers := registry.SetBroadcaster("stream-1", "conn-b")

	assert.Len(t, viewers, 2)
	assert.Equal(t, domain.ConnID("conn-v1"), viewers[0].Conn)
	assert.Equal(t, domain.ConnID("conn-v2"), viewers[1].Conn)
}

func TestAddViewerReportsBroadcasterPresence(t *testing.T) {
	registry := NewSessionRegistry()

	assert.False(t, registry.AddViewer("stream-1", "conn-v1", "viewer-1"))

	registry.SetBroadcaster("stream-1", "conn-b")
	assert.True(t, registry.AddViewer("stream-1", "conn-v2", "viewer-2"))
}

func TestAddViewerIsIdempotentPerConnection(t *testing.T) {
	registry := NewSessionRegistry()

	registry.AddViewer("stream-1", "conn-v1", "viewer-1")
	registry.AddViewer("stream-1", "conn-v1", "viewer-1")

	assert.Equal(t, 1, registry.ViewerCount("stream-1"))
}

func TestResolveViewer(t *testing.T) {
	registry := NewSessionRegistry()

	registry.AddViewer("stream-1", "conn-v1", "viewer-1")

	conn, ok := registry.ResolveViewer("stream-1", "viewer-1")
	assert.True(t, ok)
	assert.Equal(t, domain.ConnID("conn-v1"), conn)

	_, ok = registry.ResolveViewer("stream-1", "viewer-unknown")
	assert.False(t, ok)
}

func TestViewerIDStableAcrossOtherDepartures(t *testing.T) {
	registry := NewSessionRegistry()

	registry.AddViewer("stream-1", "conn-v1", "viewer-1")
	registry.AddViewer("stream-1", "conn-v2", "viewer-2")
	registry.AddViewer("stream-1", "conn-v3", "viewer-3")

	registry.RemoveViewer("stream-1", "conn-v1")

	conn, ok := registry.ResolveViewer("stream-1", "viewer-3")
	assert.True(t, ok)
	assert.Equal(t, domain.ConnID("conn-v3"), conn)
}

func TestRemoveBroadcasterKeepsSessionWithViewers(t *testing.T) {
	registry := NewSessionRegistry()

	registry.SetBroadcaster("stream-1", "conn-b")
	registry.AddViewer("stream-1", "conn-v1", "viewer-1")

	removed, viewers, deleted := registry.RemoveBroadcaster("stream-1", "conn-b")

	assert.True(t, removed)
	assert.Len(t, viewers, 1)
	assert.False(t, deleted)
	assert.True(t, registry.Exists("stream-1"))

	_, ok := registry.Broadcaster("stream-1")
	assert.False(t, ok)
}

func TestRemoveBroadcasterDeletesEmptySession(t *testing.T) {
	registry := NewSessionRegistry()

	registry.SetBroadcaster("stream-1", "conn-b")

	removed, viewers, deleted := registry.RemoveBroadcaster("stream-1", "conn-b")

	assert.True(t, removed)
	assert.Empty(t, viewers)
	assert.True(t, deleted)
	assert.False(t, registry.Exists("stream-1"))
}

func TestRemoveBroadcasterIgnoresSupersededConnection(t *testing.T) {
	registry := NewSessionRegistry()

	registry.SetBroadcaster("stream-1", "conn-old")
	registry.SetBroadcaster("stream-1", "conn-new")

	removed, _, _ := registry.RemoveBroadcaster("stream-1", "conn-old")
	assert.False(t, removed)

	broadcaster, ok := registry.Broadcaster("stream-1")
	assert.True(t, ok)
	assert.Equal(t, domain.ConnID("conn-new"), broadcaster)
}

func TestRemoveLastViewerDeletesSessionWithoutBroadcaster(t *testing.T) {
	registry := NewSessionRegistry()

	registry.AddViewer("stream-1", "conn-v1", "viewer-1")

	remaining, deleted := registry.RemoveViewer("stream-1", "conn-v1")

	assert.Equal(t, 0, remaining)
	assert.True(t, deleted)
	assert.False(t, registry.Exists("stream-1"))
}

func TestRemoveViewerKeepsSessionWithBroadcaster(t *testing.T) {
	registry := NewSessionRegistry()

	registry.SetBroadcaster("stream-1", "conn-b")
	registry.AddViewer("stream-1", "conn-v1", "viewer-1")

	remaining, deleted := registry.RemoveViewer("stream-1", "conn-v1")

	assert.Equal(t, 0, remaining)
	assert.False(t, deleted)
	assert.True(t, registry.Exists("stream-1"))
}

func TestViewersPreserveJoinOrder(t *testing.T) {
	registry := NewSessionRegistry()

	registry.AddViewer("stream-1", "conn-v1", "viewer-1")
	registry.AddViewer("stream-1", "conn-v2", "viewer-2")
	registry.AddViewer("stream-1", "conn-v3", "viewer-3")
	registry.RemoveViewer("stream-1", "conn-v2")

	viewers := registry.Viewers("stream-1")
	assert.Len(t, viewers, 2)
	assert.Equal(t, domain.ViewerID("viewer-1"), viewers[0].Viewer)
	assert.Equal(t, domain.ViewerID("viewer-3"), viewers[1].Viewer)
}

func TestUnknownStreamQueries(t *testing.T) {
	registry := NewSessionRegistry()

	_, ok := registry.Broadcaster("nope")
	assert.False(t, ok)
	assert.Nil(t, registry.Viewers("nope"))
	assert.Equal(t, 0, registry.ViewerCount("nope"))
	assert.False(t, registry.Exists("nope"))

	remaining, deleted := registry.RemoveViewer("nope", "conn-x")
	assert.Equal(t, 0, remaining)
	assert.False(t, deleted)
}
