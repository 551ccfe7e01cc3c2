package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/austinromano/creator.v3/internal/client/bitrate"
	"github.com/austinromano/creator.v3/internal/client/coordinator"
	"github.com/austinromano/creator.v3/internal/client/peer"
	"github.com/austinromano/creator.v3/internal/client/restream"
	"github.com/austinromano/creator.v3/internal/core/domain"
	"github.com/austinromano/creator.v3/internal/core/ports"
	apperrors "github.com/austinromano/creator.v3/pkg/errors"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

type Config struct {
	SignalURL            string
	HandshakeTimeout     time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxAttempts int

	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}

	// SampleInterval drives the adaptive bitrate loop.
	SampleInterval time.Duration

	// Ladder overrides the default quality ladder when non-empty.
	Ladder []domain.EncodingProfile
}

// Status is a point-in-time snapshot of the session.
type Status struct {
	Live        bool
	Elapsed     time.Duration
	Quality     string
	SignalState coordinator.State
}

// Session is the client-side entry point: one coordinator connection, one
// peer transport, and on the broadcaster path an encoding pipeline with the
// bitrate controller and optional restream destinations. A Session serves
// one role in one stream at a time.
type Session struct {
	cfg    Config
	logger *zap.SugaredLogger

	coord *coordinator.Coordinator
	peers *peer.Manager
	relay *restream.Relay

	mu        sync.Mutex
	source    ports.MediaSource
	pipeline  *EncodingPipeline
	stats     *bitrate.RTCPSource
	abr       *bitrate.Controller
	streamID  domain.StreamID
	live      bool
	startedAt time.Time
	cancel    context.CancelFunc
	closed    bool
}

func NewSession(cfg Config, forwarder ports.MediaForwarder, logger *zap.SugaredLogger) *Session {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 5 * time.Second
	}
	if len(cfg.Ladder) == 0 {
		cfg.Ladder = domain.DefaultLadder()
	}

	coord := coordinator.New(coordinator.Config{
		URL:              cfg.SignalURL,
		HandshakeTimeout: cfg.HandshakeTimeout,
		BaseDelay:        cfg.ReconnectBaseDelay,
		MaxAttempts:      cfg.ReconnectMaxAttempts,
	}, logger)

	peerCfg := peer.Config{ICEServers: cfg.ICEServers}
	peerCfg.PortRange = cfg.PortRange

	s := &Session{
		cfg:    cfg,
		logger: logger,
		coord:  coord,
		relay:  restream.NewRelay(forwarder, logger),
	}
	s.peers = peer.NewManager(peerCfg, coord.Send, logger)
	return s
}

// OnStateChange exposes the coordinator's lifecycle to the caller.
func (s *Session) OnStateChange(fn func(coordinator.State)) {
	s.coord.OnStateChange(fn)
}

// StartBroadcast goes live: validate the capture source, connect to the
// relay, join as broadcaster, and start the encoding and bitrate loops.
// The media check happens before anything touches the network so a
// trackless source never half-registers a stream.
func (s *Session) StartBroadcast(ctx context.Context, streamID domain.StreamID, source ports.MediaSource) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.Transport("start broadcast", domain.ErrConnectionClosed)
	}
	if s.live {
		s.mu.Unlock()
		return fmt.Errorf("session already live on stream %s", s.streamID)
	}
	s.mu.Unlock()

	if len(source.AudioTracks()) == 0 && source.VideoSource() == nil {
		return apperrors.Resource("start broadcast", domain.ErrNoMediaTracks)
	}

	pipeline, err := NewEncodingPipeline(s.cfg.Ladder)
	if err != nil {
		return apperrors.Resource("start broadcast", err)
	}
	stats := bitrate.NewRTCPSource(s.logger)
	abr := bitrate.NewController(s.cfg.Ladder, s.cfg.SampleInterval, stats, pipeline, s.logger)

	s.mu.Lock()
	s.source = source
	s.pipeline = pipeline
	s.stats = stats
	s.abr = abr
	s.streamID = streamID
	s.mu.Unlock()

	s.coord.OnMessage(s.handleBroadcasterSignal)
	if err := s.coord.Connect(ctx); err != nil {
		return err
	}
	if err := s.coord.JoinAsBroadcaster(streamID); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	go abr.Run(runCtx)
	if videoSource := source.VideoSource(); videoSource != nil {
		go s.pumpVideo(runCtx, videoSource, pipeline)
	}

	s.mu.Lock()
	s.live = true
	s.startedAt = time.Now()
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Infow("broadcast started", "stream_id", streamID)
	return nil
}

// StartViewing joins as a viewer. The peer connection is created before the
// join goes out so a fast broadcaster's first candidates have somewhere to
// land; onTrack fires for each inbound media track.
func (s *Session) StartViewing(ctx context.Context, streamID domain.StreamID, onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.Transport("start viewing", domain.ErrConnectionClosed)
	}
	s.streamID = streamID
	s.mu.Unlock()

	s.peers.OnRemoteTrack(onTrack)
	if err := s.peers.CreateViewerConnection(streamID); err != nil {
		return err
	}

	s.coord.OnMessage(s.handleViewerSignal)
	if err := s.coord.Connect(ctx); err != nil {
		return err
	}
	return s.coord.JoinAsViewer(streamID)
}

// StartRestream enables forwarding of the live broadcast to one external
// platform.
func (s *Session) StartRestream(ctx context.Context, platform restream.Platform, streamKey string) error {
	s.mu.Lock()
	source := s.source
	live := s.live
	s.mu.Unlock()

	if !live || source == nil {
		return fmt.Errorf("restream requires a live broadcast")
	}
	return s.relay.Start(ctx, platform, streamKey, source)
}

// StopRestream disables one forwarding destination.
func (s *Session) StopRestream(ctx context.Context, platform restream.Platform) error {
	return s.relay.Stop(ctx, platform)
}

// RestreamHealth reports per-platform forwarding state.
func (s *Session) RestreamHealth() map[restream.Platform]bool {
	return s.relay.Health()
}

// StopBroadcast ends the live broadcast but keeps the signaling connection
// usable. Safe to call when not live.
func (s *Session) StopBroadcast(ctx context.Context) error {
	s.mu.Lock()
	if !s.live {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.live = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.relay.Close(ctx)
	if err := s.peers.Close(); err != nil {
		s.logger.Warnw("failed to close peer transport", "error", err)
	}

	s.logger.Infow("broadcast stopped", "stream_id", s.streamID)
	return nil
}

// Close tears the whole session down. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.StopBroadcast(context.Background())
	s.peers.Close()
	return s.coord.Close()
}

// Status reports the session snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Live:        s.live,
		SignalState: s.coord.State(),
	}
	if s.live {
		status.Elapsed = time.Since(s.startedAt)
	}
	if s.abr != nil {
		status.Quality = s.abr.Current().Name
	}
	return status
}

// handleBroadcasterSignal routes relay traffic on the broadcaster path.
// Each viewer request restarts negotiation on a fresh peer connection with
// every audio track plus the full tier ladder attached.
func (s *Session) handleBroadcasterSignal(msg domain.SignalMessage) {
	switch msg.Type {
	case domain.MsgViewerRequest:
		s.mu.Lock()
		source := s.source
		pipeline := s.pipeline
		stats := s.stats
		s.mu.Unlock()
		if source == nil || pipeline == nil {
			s.logger.Warnw("viewer request before broadcast media is ready", "stream_id", msg.StreamID)
			return
		}

		tracks := append([]webrtc.TrackLocal{}, source.AudioTracks()...)
		tracks = append(tracks, pipeline.Tracks()...)
		if err := s.peers.StartBroadcastOffer(msg.StreamID, msg.ViewerID, tracks); err != nil {
			s.logger.Errorw("failed to start offer",
				"stream_id", msg.StreamID,
				"viewer_id", msg.ViewerID,
				"error", err,
			)
			return
		}
		for _, sender := range s.peers.VideoSenders() {
			stats.Watch(sender)
		}

	case domain.MsgAnswer:
		if err := s.peers.HandleAnswer(msg); err != nil {
			s.logger.Warnw("failed to apply answer", "stream_id", msg.StreamID, "error", err)
		}

	case domain.MsgICECandidate:
		if err := s.peers.HandleRemoteCandidate(msg); err != nil {
			s.logger.Warnw("failed to apply candidate", "stream_id", msg.StreamID, "error", err)
		}
	}
}

// handleViewerSignal routes relay traffic on the viewer path.
func (s *Session) handleViewerSignal(msg domain.SignalMessage) {
	switch msg.Type {
	case domain.MsgBroadcasterAvailable:
		if err := s.coord.Send(domain.SignalMessage{
			Type:     domain.MsgRequestStream,
			StreamID: msg.StreamID,
		}); err != nil {
			s.logger.Warnw("failed to request stream", "stream_id", msg.StreamID, "error", err)
		}

	case domain.MsgOffer:
		if err := s.peers.HandleOffer(msg); err != nil {
			s.logger.Errorw("failed to answer offer", "stream_id", msg.StreamID, "error", err)
		}

	case domain.MsgICECandidate:
		if err := s.peers.HandleRemoteCandidate(msg); err != nil {
			s.logger.Warnw("failed to apply candidate", "stream_id", msg.StreamID, "error", err)
		}

	case domain.MsgBroadcasterLeft:
		s.logger.Infow("broadcaster left, waiting for return", "stream_id", msg.StreamID)
	}
}

// pumpVideo moves capture packets into the encoding pipeline until the
// broadcast stops or the source drains.
func (s *Session) pumpVideo(ctx context.Context, source ports.RTPSource, pipeline *EncodingPipeline) {
	for {
		packet, err := source.ReadRTP()
		if err != nil {
			s.logger.Infow("video source drained", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := pipeline.WriteVideo(packet); err != nil {
			s.logger.Warnw("failed to write video packet", "error", err)
		}
	}
}
