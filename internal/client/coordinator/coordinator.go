package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/austinromano/creator.v3/internal/core/domain"
	apperrors "github.com/austinromano/creator.v3/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the coordinator's connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateFailed means the reconnect ceiling was reached. The coordinator
	// stops retrying on its own; only a manual Reconnect leaves this state.
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	// BaseDelay scales the linear backoff: attempt n waits n*BaseDelay.
	BaseDelay time.Duration
	// MaxAttempts is the reconnect ceiling.
	MaxAttempts int
}

// resumeState is the resumable session descriptor. Reconnection is a pure
// function of this state: same role, same stream, replayed join.
type resumeState struct {
	role     domain.Role
	streamID domain.StreamID
	joined   bool
}

// Coordinator owns the signaling transport for one role in one stream. It
// dials, reads, and on unexpected close schedules exactly one reconnect
// attempt with a linearly increasing delay, up to the configured ceiling.
type Coordinator struct {
	cfg    Config
	logger *zap.SugaredLogger

	onMessage func(domain.SignalMessage)
	onState   func(State)

	mu             sync.Mutex
	conn           *websocket.Conn
	state          State
	session        resumeState
	attempts       int
	reconnectTimer *time.Timer
	closed         bool

	// writeMu serializes WriteJSON; gorilla connections allow one
	// concurrent writer.
	writeMu sync.Mutex
}

func New(cfg Config, logger *zap.SugaredLogger) *Coordinator {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Coordinator{
		cfg:    cfg,
		logger: logger,
		state:  StateDisconnected,
	}
}

// OnMessage sets the inbound message handler. Set before Connect.
func (c *Coordinator) OnMessage(fn func(domain.SignalMessage)) {
	c.onMessage = fn
}

// OnStateChange sets the state observer. Invoked asynchronously.
func (c *Coordinator) OnStateChange(fn func(State)) {
	c.onState = fn
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the signaling transport. It returns once the transport is
// open, or with a transport error when the dial fails.
func (c *Coordinator) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.Transport("connect", domain.ErrConnectionClosed)
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return apperrors.Transport("connect", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return apperrors.Transport("connect", domain.ErrConnectionClosed)
	}
	c.conn = conn
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// JoinAsBroadcaster establishes the broadcaster role for streamID and sends
// the join message. The role is what arms reconnection: an unexpected close
// before any join is not retried.
func (c *Coordinator) JoinAsBroadcaster(streamID domain.StreamID) error {
	return c.join(domain.RoleBroadcaster, streamID)
}

// JoinAsViewer establishes the viewer role for streamID and sends the join.
func (c *Coordinator) JoinAsViewer(streamID domain.StreamID) error {
	return c.join(domain.RoleViewer, streamID)
}

func (c *Coordinator) join(role domain.Role, streamID domain.StreamID) error {
	c.mu.Lock()
	c.session = resumeState{role: role, streamID: streamID, joined: true}
	c.attempts = 0
	c.mu.Unlock()

	return c.Send(joinMessage(role, streamID))
}

// Send writes one signal message to the relay. After the reconnect ceiling
// the error identifies the exhausted retries so callers can distinguish
// "give up" from a plain closed transport.
func (c *Coordinator) Send(msg domain.SignalMessage) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil {
		if state == StateFailed {
			return apperrors.Transport("send", domain.ErrReconnectExhausted)
		}
		return apperrors.Transport("send", domain.ErrConnectionClosed)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return apperrors.Transport("send", err)
	}
	return nil
}

// Reconnect is the manual restart path. It works even after the automatic
// ceiling was reached: attempts reset and the join is replayed.
func (c *Coordinator) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.Transport("reconnect", domain.ErrConnectionClosed)
	}
	c.stopTimerLocked()
	c.attempts = 0
	session := c.session
	c.mu.Unlock()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	if session.joined {
		return c.Send(joinMessage(session.role, session.streamID))
	}
	return nil
}

// Close cancels any pending reconnect timer and closes the transport.
// Safe to call repeatedly.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return nil
}

func (c *Coordinator) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	return conn, err
}

func (c *Coordinator) readLoop(conn *websocket.Conn) {
	for {
		var msg domain.SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.handleClose(conn, err)
			return
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

// handleClose runs on unexpected transport loss. With an established role it
// schedules exactly one reconnect after attempts*BaseDelay and increments
// the counter; past the ceiling it goes terminal instead.
func (c *Coordinator) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn != conn {
		// Deliberate close, or a stale loop for a superseded connection.
		return
	}
	c.conn = nil

	if !c.session.joined {
		c.setStateLocked(StateDisconnected)
		return
	}

	c.logger.Warnw("signaling transport lost",
		"stream_id", c.session.streamID,
		"role", c.session.role,
		"error", err,
	)
	c.scheduleReconnectLocked()
}

// callers must hold c.mu
func (c *Coordinator) scheduleReconnectLocked() {
	if c.attempts >= c.cfg.MaxAttempts {
		c.logger.Errorw("reconnect ceiling reached, giving up",
			"stream_id", c.session.streamID,
			"attempts", c.attempts,
		)
		c.setStateLocked(StateFailed)
		return
	}

	delay := time.Duration(c.attempts) * c.cfg.BaseDelay
	c.attempts++
	c.setStateLocked(StateReconnecting)
	c.reconnectTimer = time.AfterFunc(delay, c.attemptReconnect)

	c.logger.Infow("reconnect scheduled",
		"stream_id", c.session.streamID,
		"attempt", c.attempts,
		"delay", delay,
	)
}

func (c *Coordinator) attemptReconnect() {
	c.mu.Lock()
	if c.closed || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	conn, err := c.dial(ctx)
	cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}

	c.conn = conn
	c.attempts = 0
	c.setStateLocked(StateConnected)
	session := c.session
	c.mu.Unlock()

	go c.readLoop(conn)

	// Replay the original join: same role, same stream.
	if err := c.Send(joinMessage(session.role, session.streamID)); err != nil {
		c.logger.Warnw("failed to replay join after reconnect", "error", err)
	}
}

// callers must hold c.mu
func (c *Coordinator) stopTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// callers must hold c.mu
func (c *Coordinator) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state
	if c.onState != nil {
		go c.onState(state)
	}
}

func joinMessage(role domain.Role, streamID domain.StreamID) domain.SignalMessage {
	msgType := domain.MsgJoinAsViewer
	if role == domain.RoleBroadcaster {
		msgType = domain.MsgJoinAsBroadcaster
	}
	return domain.SignalMessage{Type: msgType, StreamID: streamID}
}
