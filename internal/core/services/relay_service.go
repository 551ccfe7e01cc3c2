package services

import (
	"context"
	"sync"

	"github.com/austinromano/creator.v3/internal/core/domain"
	"github.com/austinromano/creator.v3/internal/core/ports"
	"github.com/austinromano/creator.v3/pkg/utils"

	"go.uber.org/zap"
)

// connState tracks the per-connection state machine:
// unjoined -> joined(role) -> closed. Role assignment is a single forward
// transition; a later join with a different role overwrites role and
// streamID without leaving the previous session. Disconnect removes the
// connection only from its current stream, so the abandoned session keeps
// a dead member entry for good and never empties out. That mirrors the
// wire protocol as deployed.
type connState struct {
	role     domain.Role
	streamID domain.StreamID
	viewerID domain.ViewerID
}

// RelayService routes signal messages between the parties of a stream
// session. It owns no transport: the websocket server feeds it decoded
// messages and provides delivery through the MessageSender port. All
// session state lives in the registry handle passed in at construction.
//
// Failure semantics: an unroutable message is logged and dropped, never an
// error to the caller; the server never closes a connection over a payload
// problem. Unknown stream ids are silently ignored. Message types are not
// validated against the sender's prior role.
type RelayService struct {
	registry  ports.SessionRegistry
	sender    ports.MessageSender
	directory ports.StreamDirectory
	metrics   ports.SignalMetrics
	logger    *zap.SugaredLogger

	conns map[domain.ConnID]*connState
	mu    sync.Mutex
}

func NewRelayService(
	registry ports.SessionRegistry,
	sender ports.MessageSender,
	directory ports.StreamDirectory,
	metrics ports.SignalMetrics,
	logger *zap.SugaredLogger,
) *RelayService {
	return &RelayService{
		registry:  registry,
		sender:    sender,
		directory: directory,
		metrics:   metrics,
		logger:    logger,
		conns:     make(map[domain.ConnID]*connState),
	}
}

// Register installs connection-local state. Must be called before the first
// HandleMessage for the connection.
func (s *RelayService) Register(conn domain.ConnID) {
	s.mu.Lock()
	s.conns[conn] = &connState{}
	s.mu.Unlock()
}

// HandleMessage processes one inbound message. Every message names the
// stream it concerns; messages without a stream id are protocol errors and
// are dropped.
func (s *RelayService) HandleMessage(ctx context.Context, conn domain.ConnID, msg domain.SignalMessage) {
	if msg.StreamID == "" {
		s.logger.Warnw("dropping message without stream id", "conn_id", conn, "type", msg.Type)
		return
	}

	if s.metrics != nil {
		s.metrics.MessageRelayed(msg.Type)
	}

	switch msg.Type {
	case domain.MsgJoinAsBroadcaster:
		s.handleJoinAsBroadcaster(ctx, conn, msg)
	case domain.MsgJoinAsViewer:
		s.handleJoinAsViewer(ctx, conn, msg)
	case domain.MsgRequestStream:
		s.handleRequestStream(conn, msg)
	case domain.MsgOffer, domain.MsgAnswer, domain.MsgICECandidate:
		s.relayNegotiation(conn, msg)
	default:
		s.logger.Warnw("dropping message of unknown type", "conn_id", conn, "type", msg.Type)
	}
}

func (s *RelayService) handleJoinAsBroadcaster(ctx context.Context, conn domain.ConnID, msg domain.SignalMessage) {
	s.setConnState(conn, domain.RoleBroadcaster, msg.StreamID, "")

	viewers := s.registry.SetBroadcaster(msg.StreamID, conn)
	for _, viewer := range viewers {
		s.send(viewer.Conn, domain.SignalMessage{
			Type:     domain.MsgBroadcasterAvailable,
			StreamID: msg.StreamID,
		})
	}

	s.updateDirectory(ctx, msg.StreamID)
	if s.metrics != nil {
		s.metrics.StreamStarted(msg.StreamID)
	}

	s.logger.Infow("broadcaster joined",
		"conn_id", conn,
		"stream_id", msg.StreamID,
		"viewers_notified", len(viewers),
	)
}

func (s *RelayService) handleJoinAsViewer(ctx context.Context, conn domain.ConnID, msg domain.SignalMessage) {
	// The viewer id is generated here, once, and stays stable for the
	// lifetime of the membership regardless of who else joins or leaves.
	viewerID := domain.ViewerID(utils.NewViewerID())
	s.setConnState(conn, domain.RoleViewer, msg.StreamID, viewerID)

	broadcasterPresent := s.registry.AddViewer(msg.StreamID, conn, viewerID)
	if broadcasterPresent {
		s.send(conn, domain.SignalMessage{
			Type:     domain.MsgBroadcasterAvailable,
			StreamID: msg.StreamID,
		})
	}

	s.updateDirectory(ctx, msg.StreamID)
	if s.metrics != nil {
		s.metrics.ViewerJoined(msg.StreamID)
	}

	s.logger.Infow("viewer joined",
		"conn_id", conn,
		"stream_id", msg.StreamID,
		"viewer_id", viewerID,
		"broadcaster_present", broadcasterPresent,
	)
}

func (s *RelayService) handleRequestStream(conn domain.ConnID, msg domain.SignalMessage) {
	broadcaster, ok := s.registry.Broadcaster(msg.StreamID)
	if !ok {
		s.logger.Debugw("request-stream with no broadcaster", "conn_id", conn, "stream_id", msg.StreamID)
		return
	}

	s.send(broadcaster, domain.SignalMessage{
		Type:     domain.MsgViewerRequest,
		StreamID: msg.StreamID,
		ViewerID: s.viewerIDFor(conn),
	})
}

// relayNegotiation forwards offer/answer/ice-candidate verbatim. From the
// session's broadcaster: unicast to the resolved target viewer, falling
// back to a fan-out across all viewers when the target is missing or
// unknown. From anyone else: deliver to the broadcaster, tagged with the
// sender's viewer id.
func (s *RelayService) relayNegotiation(conn domain.ConnID, msg domain.SignalMessage) {
	broadcaster, hasBroadcaster := s.registry.Broadcaster(msg.StreamID)

	if hasBroadcaster && broadcaster == conn {
		if msg.TargetViewerID != "" {
			if target, ok := s.registry.ResolveViewer(msg.StreamID, msg.TargetViewerID); ok {
				s.send(target, msg)
				return
			}
			s.logger.Debugw("target viewer unknown, falling back to fan-out",
				"stream_id", msg.StreamID,
				"target_viewer_id", msg.TargetViewerID,
			)
		}
		for _, viewer := range s.registry.Viewers(msg.StreamID) {
			s.send(viewer.Conn, msg)
		}
		return
	}

	if !hasBroadcaster {
		s.logger.Debugw("dropping negotiation message, no broadcaster",
			"conn_id", conn,
			"stream_id", msg.StreamID,
			"type", msg.Type,
		)
		return
	}

	msg.ViewerID = s.viewerIDFor(conn)
	s.send(broadcaster, msg)
}

// Disconnect runs the close handling for a connection: a closing
// broadcaster clears the broadcaster field and every viewer learns about
// it; a closing viewer is removed from the set. Either way the session is
// deleted once it holds neither.
func (s *RelayService) Disconnect(ctx context.Context, conn domain.ConnID) {
	s.mu.Lock()
	state, exists := s.conns[conn]
	delete(s.conns, conn)
	s.mu.Unlock()

	if !exists || state.role == domain.RoleNone {
		return
	}

	switch state.role {
	case domain.RoleBroadcaster:
		removed, viewers, deleted := s.registry.RemoveBroadcaster(state.streamID, conn)
		if !removed {
			return
		}
		for _, viewer := range viewers {
			s.send(viewer.Conn, domain.SignalMessage{
				Type:     domain.MsgBroadcasterLeft,
				StreamID: state.streamID,
			})
		}
		if s.metrics != nil {
			s.metrics.StreamStopped(state.streamID)
		}
		s.finishDirectoryUpdate(ctx, state.streamID, deleted)
		s.logger.Infow("broadcaster left",
			"conn_id", conn,
			"stream_id", state.streamID,
			"session_deleted", deleted,
		)

	case domain.RoleViewer:
		remaining, deleted := s.registry.RemoveViewer(state.streamID, conn)
		if s.metrics != nil {
			s.metrics.ViewerLeft(state.streamID)
		}
		s.finishDirectoryUpdate(ctx, state.streamID, deleted)
		s.logger.Infow("viewer left",
			"conn_id", conn,
			"stream_id", state.streamID,
			"viewers_remaining", remaining,
			"session_deleted", deleted,
		)
	}
}

func (s *RelayService) setConnState(conn domain.ConnID, role domain.Role, streamID domain.StreamID, viewerID domain.ViewerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.conns[conn]
	if !exists {
		state = &connState{}
		s.conns[conn] = state
	}
	state.role = role
	state.streamID = streamID
	state.viewerID = viewerID
}

func (s *RelayService) viewerIDFor(conn domain.ConnID) domain.ViewerID {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.conns[conn]
	if !exists {
		return ""
	}
	if state.viewerID == "" {
		// Connections that skipped join-as-viewer still get a stable id the
		// first time one is needed.
		state.viewerID = domain.ViewerID(utils.NewViewerID())
	}
	return state.viewerID
}

func (s *RelayService) send(conn domain.ConnID, msg domain.SignalMessage) {
	if err := s.sender.Send(conn, msg); err != nil {
		s.logger.Warnw("failed to deliver message",
			"conn_id", conn,
			"type", msg.Type,
			"stream_id", msg.StreamID,
			"error", err,
		)
	}
}

func (s *RelayService) updateDirectory(ctx context.Context, streamID domain.StreamID) {
	if s.directory == nil {
		return
	}
	_, live := s.registry.Broadcaster(streamID)
	if err := s.directory.SetLive(ctx, streamID, live); err != nil {
		s.logger.Warnw("directory live update failed", "stream_id", streamID, "error", err)
	}
	if err := s.directory.SetViewerCount(ctx, streamID, s.registry.ViewerCount(streamID)); err != nil {
		s.logger.Warnw("directory viewer count update failed", "stream_id", streamID, "error", err)
	}
}

func (s *RelayService) finishDirectoryUpdate(ctx context.Context, streamID domain.StreamID, deleted bool) {
	if s.directory == nil {
		return
	}
	if deleted {
		if err := s.directory.Remove(ctx, streamID); err != nil {
			s.logger.Warnw("directory remove failed", "stream_id", streamID, "error", err)
		}
		return
	}
	s.updateDirectory(ctx, streamID)
}
