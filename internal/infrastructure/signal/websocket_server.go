package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/austinromano/creator.v3/internal/core/domain"
	"github.com/austinromano/creator.v3/internal/core/ports"
	"github.com/austinromano/creator.v3/internal/core/services"
	"github.com/austinromano/creator.v3/pkg/tracing"
	"github.com/austinromano/creator.v3/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Config holds the transport knobs of the signaling server.
type Config struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendQueueSize     int
	MessagesPerSecond float64
	MessageBurst      int
}

func DefaultConfig() Config {
	return Config{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendQueueSize:     64,
		MessagesPerSecond: 50,
		MessageBurst:      100,
	}
}

// client is one connected participant. Outbound messages go through a
// bounded queue drained by a dedicated writer goroutine; when the queue is
// full the message is dropped rather than letting a slow consumer grow
// memory without limit.
type client struct {
	conn   *websocket.Conn
	sendCh chan domain.SignalMessage
	done   chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WebSocketServer is the signaling transport. It upgrades connections,
// decodes envelopes and hands them to the relay service; it also implements
// the MessageSender port over its connection table.
type WebSocketServer struct {
	relay   *services.RelayService
	metrics ports.SignalMetrics

	clients map[domain.ConnID]*client
	mu      sync.RWMutex

	cfg    Config
	logger *zap.SugaredLogger
}

func NewWebSocketServer(cfg Config, metrics ports.SignalMetrics, logger *zap.SugaredLogger) *WebSocketServer {
	return &WebSocketServer{
		metrics: metrics,
		clients: make(map[domain.ConnID]*client),
		cfg:     cfg,
		logger:  logger,
	}
}

// SetRelay wires the relay service. Split from the constructor because the
// relay needs the server as its MessageSender.
func (s *WebSocketServer) SetRelay(relay *services.RelayService) {
	s.relay = relay
}

// Send implements ports.MessageSender.
func (s *WebSocketServer) Send(connID domain.ConnID, msg domain.SignalMessage) error {
	s.mu.RLock()
	cl, exists := s.clients[connID]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("connection %s not registered", connID)
	}

	select {
	case cl.sendCh <- msg:
		return nil
	default:
		return fmt.Errorf("send queue full for connection %s, dropping %s", connID, msg.Type)
	}
}

// ConnectionCount reports the number of open signaling connections.
func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	connID := domain.ConnID(utils.NewConnID())
	cl := &client{
		conn:   conn,
		sendCh: make(chan domain.SignalMessage, s.cfg.SendQueueSize),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[connID] = cl
	s.mu.Unlock()
	s.relay.Register(connID)

	s.logger.Infow("client connected", "conn_id", connID, "remote_addr", r.RemoteAddr)

	go s.writePump(connID, cl)
	s.readPump(r.Context(), connID, cl)

	// Clean up on disconnect. Transport-level close is the only thing that
	// ends a connection; payload errors never do.
	s.mu.Lock()
	delete(s.clients, connID)
	s.mu.Unlock()
	cl.close()
	s.relay.Disconnect(context.Background(), connID)

	s.logger.Infow("client disconnected", "conn_id", connID)
}

func (s *WebSocketServer) readPump(ctx context.Context, connID domain.ConnID, cl *client) {
	conn := cl.conn
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.MessageBurst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Infow("error reading message", "conn_id", connID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		if !limiter.Allow() {
			s.logger.Warnw("message rate limit exceeded, dropping", "conn_id", connID)
			continue
		}

		var msg domain.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed payloads are discarded; the connection stays open.
			s.logger.Warnw("dropping malformed message", "conn_id", connID, "error", err)
			continue
		}

		s.handleMessage(ctx, connID, msg)
	}
}

func (s *WebSocketServer) handleMessage(ctx context.Context, connID domain.ConnID, msg domain.SignalMessage) {
	msgCtx, span := tracing.StartSignalSpan(ctx, msg.Type, string(msg.StreamID))
	defer span.End()

	start := time.Now()
	s.relay.HandleMessage(msgCtx, connID, msg)
	if s.metrics != nil {
		s.metrics.HandleDuration(msg.Type, time.Since(start).Seconds())
	}
}

func (s *WebSocketServer) writePump(connID domain.ConnID, cl *client) {
	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case msg := <-cl.sendCh:
			cl.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := cl.conn.WriteJSON(msg); err != nil {
				s.logger.Infow("error writing message", "conn_id", connID, "type", msg.Type, "error", err)
				cl.close()
				return
			}

		case <-pingTicker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "conn_id", connID, "error", err)
				cl.close()
				return
			}

		case <-cl.done:
			return
		}
	}
}
