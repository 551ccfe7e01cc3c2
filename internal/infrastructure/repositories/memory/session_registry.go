package memory

import (
	"sync"

	"github.com/austinromano/creator.v3/internal/core/domain"
	"github.com/austinromano/creator.v3/internal/core/ports"
)

// streamSession holds the broadcaster connection and the viewer set for one
// stream id. Viewers keep join order so fan-out is deterministic.
type streamSession struct {
	broadcaster domain.ConnID
	viewers     []ports.ViewerRef
}

func (s *streamSession) empty() bool {
	return s.broadcaster == "" && len(s.viewers) == 0
}

// SessionRegistry is the in-memory streamId -> session table. One mutex
// serializes every mutation, preserving the single-threaded message
// processing semantics the relay relies on: concurrent joins to the same
// stream never interleave partial updates.
type SessionRegistry struct {
	sessions map[domain.StreamID]*streamSession
	mu       sync.Mutex
}

func NewSessionRegistry() ports.SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[domain.StreamID]*streamSession),
	}
}

func (r *SessionRegistry) SetBroadcaster(streamID domain.StreamID, conn domain.ConnID) []ports.ViewerRef {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.getOrCreate(streamID)
	session.broadcaster = conn

	viewers := make([]ports.ViewerRef, len(session.viewers))
	copy(viewers, session.viewers)
	return viewers
}

func (r *SessionRegistry) AddViewer(streamID domain.StreamID, conn domain.ConnID, viewer domain.ViewerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.getOrCreate(streamID)
	for _, ref := range session.viewers {
		if ref.Conn == conn {
			return session.broadcaster != ""
		}
	}
	session.viewers = append(session.viewers, ports.ViewerRef{Conn: conn, Viewer: viewer})
	return session.broadcaster != ""
}

func (r *SessionRegistry) Broadcaster(streamID domain.StreamID) (domain.ConnID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[streamID]
	if !exists || session.broadcaster == "" {
		return "", false
	}
	return session.broadcaster, true
}

func (r *SessionRegistry) Viewers(streamID domain.StreamID) []ports.ViewerRef {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[streamID]
	if !exists {
		return nil
	}
	viewers := make([]ports.ViewerRef, len(session.viewers))
	copy(viewers, session.viewers)
	return viewers
}

func (r *SessionRegistry) ResolveViewer(streamID domain.StreamID, viewer domain.ViewerID) (domain.ConnID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[streamID]
	if !exists {
		return "", false
	}
	for _, ref := range session.viewers {
		if ref.Viewer == viewer {
			return ref.Conn, true
		}
	}
	return "", false
}

func (r *SessionRegistry) RemoveBroadcaster(streamID domain.StreamID, conn domain.ConnID) (bool, []ports.ViewerRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[streamID]
	if !exists || session.broadcaster != conn {
		// A later join-as-broadcaster overwrote this connection; nothing to do.
		return false, nil, false
	}

	session.broadcaster = ""
	viewers := make([]ports.ViewerRef, len(session.viewers))
	copy(viewers, session.viewers)

	deleted := r.deleteIfEmpty(streamID, session)
	return true, viewers, deleted
}

func (r *SessionRegistry) RemoveViewer(streamID domain.StreamID, conn domain.ConnID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[streamID]
	if !exists {
		return 0, false
	}

	for i, ref := range session.viewers {
		if ref.Conn == conn {
			session.viewers = append(session.viewers[:i], session.viewers[i+1:]...)
			break
		}
	}

	remaining := len(session.viewers)
	deleted := r.deleteIfEmpty(streamID, session)
	return remaining, deleted
}

func (r *SessionRegistry) ViewerCount(streamID domain.StreamID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[streamID]
	if !exists {
		return 0
	}
	return len(session.viewers)
}

func (r *SessionRegistry) Exists(streamID domain.StreamID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.sessions[streamID]
	return exists
}

// callers must hold r.mu
func (r *SessionRegistry) getOrCreate(streamID domain.StreamID) *streamSession {
	session, exists := r.sessions[streamID]
	if !exists {
		session = &streamSession{}
		r.sessions[streamID] = session
	}
	return session
}

// callers must hold r.mu
func (r *SessionRegistry) deleteIfEmpty(streamID domain.StreamID, session *streamSession) bool {
	if session.empty() {
		delete(r.sessions, streamID)
		return true
	}
	return false
}
