package peer

import (
	"encoding/json"
	"sync"

	"github.com/austinromano/creator.v3/internal/core/domain"
	apperrors "github.com/austinromano/creator.v3/pkg/errors"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// SendFunc delivers a signal message through the session coordinator.
type SendFunc func(domain.SignalMessage) error

type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// Manager negotiates and maintains the peer media transport for one stream
// session: at most one active peer connection at a time. Replacement is
// guarded by a generation counter so a stale async completion (a late SDP
// callback, a candidate from a superseded connection) can never resurrect a
// connection that has already been replaced.
//
// Remote ICE candidates that arrive before the remote description is set
// are queued and flushed in arrival order immediately after it is set;
// candidates that arrive with no peer connection at all are dropped and
// logged. Locally discovered candidates are forwarded the moment they are
// generated.
type Manager struct {
	cfg    Config
	send   SendFunc
	logger *zap.SugaredLogger

	onRemoteTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)

	mu         sync.Mutex
	pc         *webrtc.PeerConnection
	generation uint64
	remoteSet  bool
	pending    []webrtc.ICECandidateInit
	senders    []*webrtc.RTPSender
}

func NewManager(cfg Config, send SendFunc, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		cfg:    cfg,
		send:   send,
		logger: logger,
	}
}

// OnRemoteTrack sets the remote media callback for the viewer path. Set
// before CreateViewerConnection.
func (m *Manager) OnRemoteTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	m.onRemoteTrack = fn
}

// StartBroadcastOffer runs the broadcaster path for one viewer request:
// discard any previous peer connection, attach every local track to a fresh
// one, create an offer and send it through the relay addressed to the
// requesting viewer.
func (m *Manager) StartBroadcastOffer(streamID domain.StreamID, target domain.ViewerID, tracks []webrtc.TrackLocal) error {
	if len(tracks) == 0 {
		return apperrors.Resource("start broadcast offer", domain.ErrNoMediaTracks)
	}

	pc, gen, err := m.replaceConnection(streamID, target)
	if err != nil {
		return err
	}

	for _, track := range tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			return apperrors.Negotiation("add track", err)
		}
		m.mu.Lock()
		if gen == m.generation {
			m.senders = append(m.senders, sender)
		}
		m.mu.Unlock()
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return apperrors.Negotiation("create offer", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return apperrors.Negotiation("set local description", err)
	}

	data, err := json.Marshal(offer)
	if err != nil {
		return apperrors.Negotiation("marshal offer", err)
	}
	return m.send(domain.SignalMessage{
		Type:           domain.MsgOffer,
		StreamID:       streamID,
		Data:           data,
		TargetViewerID: target,
	})
}

// CreateViewerConnection prepares the viewer-side peer connection. It must
// run synchronously before the join is announced, otherwise an early
// candidate from the broadcaster would find no connection and be dropped.
func (m *Manager) CreateViewerConnection(streamID domain.StreamID) error {
	_, _, err := m.replaceConnection(streamID, "")
	return err
}

// HandleOffer runs the viewer path: apply the remote offer, flush any
// queued candidates, answer.
func (m *Manager) HandleOffer(msg domain.SignalMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Data, &offer); err != nil {
		return apperrors.Protocol("decode offer", err)
	}

	m.mu.Lock()
	pc := m.pc
	gen := m.generation
	m.mu.Unlock()
	if pc == nil {
		return apperrors.Negotiation("handle offer", domain.ErrNoPeerConnection)
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		return apperrors.Negotiation("set remote description", err)
	}
	m.flushPending(gen, pc)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return apperrors.Negotiation("create answer", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return apperrors.Negotiation("set local description", err)
	}

	data, err := json.Marshal(answer)
	if err != nil {
		return apperrors.Negotiation("marshal answer", err)
	}
	return m.send(domain.SignalMessage{
		Type:     domain.MsgAnswer,
		StreamID: msg.StreamID,
		Data:     data,
	})
}

// HandleAnswer applies the viewer's answer on the broadcaster side.
func (m *Manager) HandleAnswer(msg domain.SignalMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Data, &answer); err != nil {
		return apperrors.Protocol("decode answer", err)
	}

	m.mu.Lock()
	pc := m.pc
	gen := m.generation
	m.mu.Unlock()
	if pc == nil {
		return apperrors.Negotiation("handle answer", domain.ErrNoPeerConnection)
	}

	if err := pc.SetRemoteDescription(answer); err != nil {
		return apperrors.Negotiation("set remote description", err)
	}
	m.flushPending(gen, pc)
	return nil
}

// HandleRemoteCandidate applies, queues, or drops one remote candidate
// depending on negotiation progress. Queued candidates are applied exactly
// once, in arrival order, never silently lost once the description is set.
func (m *Manager) HandleRemoteCandidate(msg domain.SignalMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(msg.Data, &candidate); err != nil {
		return apperrors.Protocol("decode candidate", err)
	}

	m.mu.Lock()
	if m.pc == nil {
		m.mu.Unlock()
		m.logger.Warnw("dropping remote candidate, no peer connection", "stream_id", msg.StreamID)
		return nil
	}
	if !m.remoteSet {
		m.pending = append(m.pending, candidate)
		m.mu.Unlock()
		return nil
	}
	pc := m.pc
	m.mu.Unlock()

	if err := pc.AddICECandidate(candidate); err != nil {
		return apperrors.Negotiation("add candidate", err)
	}
	return nil
}

// VideoSenders returns the RTP senders of the current connection, for RTCP
// feedback consumption by the bitrate controller.
func (m *Manager) VideoSenders() []*webrtc.RTPSender {
	m.mu.Lock()
	defer m.mu.Unlock()
	senders := make([]*webrtc.RTPSender, len(m.senders))
	copy(senders, m.senders)
	return senders
}

func (m *Manager) ConnectionState() webrtc.PeerConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pc == nil {
		return webrtc.PeerConnectionStateClosed
	}
	return m.pc.ConnectionState()
}

// Close tears down the current connection. Idempotent; any in-flight
// completion for it is invalidated by the generation bump.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.generation++
	old := m.pc
	m.pc = nil
	m.remoteSet = false
	m.pending = nil
	m.senders = nil
	m.mu.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}

// replaceConnection supersedes the current peer connection with a fresh
// one. The returned generation ties every async callback to this instance.
func (m *Manager) replaceConnection(streamID domain.StreamID, target domain.ViewerID) (*webrtc.PeerConnection, uint64, error) {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	old := m.pc
	m.pc = nil
	m.remoteSet = false
	m.pending = nil
	m.senders = nil
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	pc, err := m.createPeerConnection()
	if err != nil {
		return nil, 0, apperrors.Negotiation("create peer connection", err)
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		if m.stale(gen) {
			return
		}
		init := candidate.ToJSON()
		data, err := json.Marshal(init)
		if err != nil {
			m.logger.Errorw("failed to marshal local candidate", "error", err)
			return
		}
		// Forwarded as generated, no batching. A send failure is logged so
		// no locally generated candidate disappears without trace.
		if err := m.send(domain.SignalMessage{
			Type:           domain.MsgICECandidate,
			StreamID:       streamID,
			Data:           data,
			TargetViewerID: target,
		}); err != nil {
			m.logger.Warnw("failed to forward local candidate", "stream_id", streamID, "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if m.stale(gen) {
			return
		}
		m.logger.Infow("peer connection state changed", "stream_id", streamID, "state", state.String())
	})

	if m.onRemoteTrack != nil {
		onTrack := m.onRemoteTrack
		pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
			if m.stale(gen) {
				return
			}
			onTrack(track, receiver)
		})
	}

	m.mu.Lock()
	if gen != m.generation {
		// Superseded while being built; drop it.
		m.mu.Unlock()
		pc.Close()
		return nil, 0, apperrors.Negotiation("create peer connection", domain.ErrConnectionClosed)
	}
	m.pc = pc
	m.mu.Unlock()

	return pc, gen, nil
}

func (m *Manager) createPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers:   m.cfg.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}

	settingEngine := webrtc.SettingEngine{}
	if m.cfg.PortRange.Min > 0 && m.cfg.PortRange.Max > 0 {
		settingEngine.SetEphemeralUDPPortRange(m.cfg.PortRange.Min, m.cfg.PortRange.Max)
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}

func (m *Manager) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.generation
}

// flushPending applies queued remote candidates after the remote
// description lands, preserving arrival order.
func (m *Manager) flushPending(gen uint64, pc *webrtc.PeerConnection) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	queued := m.pending
	m.pending = nil
	m.remoteSet = true
	m.mu.Unlock()

	for _, candidate := range queued {
		if err := pc.AddICECandidate(candidate); err != nil {
			m.logger.Warnw("failed to apply queued candidate", "error", err)
		}
	}
}
