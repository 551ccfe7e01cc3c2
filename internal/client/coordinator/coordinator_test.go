package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/austinromano/creator.v3/internal/core/domain"
	apperrors "github.com/austinromano/creator.v3/pkg/errors"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// signalEndpoint is a minimal relay stand-in: it accepts websocket upgrades,
// records every envelope it reads, and can drop connections or refuse new
// ones on demand.
type signalEndpoint struct {
	srv       *httptest.Server
	accepting atomic.Bool
	received  chan domain.SignalMessage
	dials     chan time.Time

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newSignalEndpoint(t *testing.T) *signalEndpoint {
	t.Helper()
	e := &signalEndpoint{
		received: make(chan domain.SignalMessage, 16),
		dials:    make(chan time.Time, 16),
	}
	e.accepting.Store(true)

	upgrader := websocket.Upgrader{}
	e.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.dials <- time.Now()
		if !e.accepting.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		e.mu.Lock()
		e.conns = append(e.conns, conn)
		e.mu.Unlock()

		for {
			var msg domain.SignalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			e.received <- msg
		}
	}))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *signalEndpoint) url() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http")
}

func (e *signalEndpoint) dropConnections() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, conn := range e.conns {
		conn.Close()
	}
	e.conns = nil
}

func (e *signalEndpoint) expectMessage(t *testing.T, msgType string) domain.SignalMessage {
	t.Helper()
	select {
	case msg := <-e.received:
		require.Equal(t, msgType, msg.Type)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", msgType)
		return domain.SignalMessage{}
	}
}

func newTestCoordinator(e *signalEndpoint, maxAttempts int) *Coordinator {
	return New(Config{
		URL:              e.url(),
		HandshakeTimeout: time.Second,
		BaseDelay:        20 * time.Millisecond,
		MaxAttempts:      maxAttempts,
	}, zap.NewNop().Sugar())
}

func waitForState(t *testing.T, c *Coordinator, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, stuck at %s", want, c.State())
}

func TestConnectAndJoin(t *testing.T) {
	endpoint := newSignalEndpoint(t)
	coord := newTestCoordinator(endpoint, 3)
	defer coord.Close()

	require.NoError(t, coord.Connect(context.Background()))
	assert.Equal(t, StateConnected, coord.State())

	require.NoError(t, coord.JoinAsBroadcaster("stream-1"))
	msg := endpoint.expectMessage(t, domain.MsgJoinAsBroadcaster)
	assert.Equal(t, domain.StreamID("stream-1"), msg.StreamID)
}

func TestReconnectReplaysJoin(t *testing.T) {
	endpoint := newSignalEndpoint(t)
	coord := newTestCoordinator(endpoint, 3)
	defer coord.Close()

	require.NoError(t, coord.Connect(context.Background()))
	require.NoError(t, coord.JoinAsViewer("stream-1"))
	endpoint.expectMessage(t, domain.MsgJoinAsViewer)

	endpoint.dropConnections()

	// The coordinator redials on its own and replays the identical join.
	msg := endpoint.expectMessage(t, domain.MsgJoinAsViewer)
	assert.Equal(t, domain.StreamID("stream-1"), msg.StreamID)
	waitForState(t, coord, StateConnected)
}

func TestNoReconnectBeforeJoin(t *testing.T) {
	endpoint := newSignalEndpoint(t)
	coord := newTestCoordinator(endpoint, 3)
	defer coord.Close()

	require.NoError(t, coord.Connect(context.Background()))
	endpoint.dropConnections()

	waitForState(t, coord, StateDisconnected)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateDisconnected, coord.State())
}

func TestReconnectCeilingIsTerminal(t *testing.T) {
	endpoint := newSignalEndpoint(t)
	coord := newTestCoordinator(endpoint, 2)
	defer coord.Close()

	require.NoError(t, coord.Connect(context.Background()))
	require.NoError(t, coord.JoinAsViewer("stream-1"))
	endpoint.expectMessage(t, domain.MsgJoinAsViewer)

	endpoint.accepting.Store(false)
	endpoint.dropConnections()

	waitForState(t, coord, StateFailed)

	// Terminal: it stays failed, no further dial attempts fire.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateFailed, coord.State())

	// Sends now report the exhausted retries, not a plain closed transport.
	err := coord.Send(domain.SignalMessage{Type: domain.MsgOffer, StreamID: "stream-1"})
	assert.ErrorIs(t, err, domain.ErrReconnectExhausted)
	assert.True(t, apperrors.IsTransport(err))
}

func TestReconnectDelaysGrowLinearly(t *testing.T) {
	endpoint := newSignalEndpoint(t)
	coord := New(Config{
		URL:              endpoint.url(),
		HandshakeTimeout: time.Second,
		BaseDelay:        100 * time.Millisecond,
		MaxAttempts:      3,
	}, zap.NewNop().Sugar())
	defer coord.Close()

	require.NoError(t, coord.Connect(context.Background()))
	require.NoError(t, coord.JoinAsViewer("stream-1"))
	endpoint.expectMessage(t, domain.MsgJoinAsViewer)
	<-endpoint.dials // the initial connect

	endpoint.accepting.Store(false)
	endpoint.dropConnections()
	waitForState(t, coord, StateFailed)

	var redials []time.Time
	for len(endpoint.dials) > 0 {
		redials = append(redials, <-endpoint.dials)
	}
	require.Len(t, redials, 3)

	// Attempt n waits n*BaseDelay: 0, then 100ms, then 200ms. The gaps
	// between consecutive dials grow by at least BaseDelay each round.
	first := redials[1].Sub(redials[0])
	second := redials[2].Sub(redials[1])
	assert.GreaterOrEqual(t, first, 100*time.Millisecond)
	assert.GreaterOrEqual(t, second, 200*time.Millisecond)
	assert.Greater(t, second, first)
}

func TestManualReconnectAfterCeiling(t *testing.T) {
	endpoint := newSignalEndpoint(t)
	coord := newTestCoordinator(endpoint, 1)
	defer coord.Close()

	require.NoError(t, coord.Connect(context.Background()))
	require.NoError(t, coord.JoinAsViewer("stream-1"))
	endpoint.expectMessage(t, domain.MsgJoinAsViewer)

	endpoint.accepting.Store(false)
	endpoint.dropConnections()
	waitForState(t, coord, StateFailed)

	endpoint.accepting.Store(true)
	require.NoError(t, coord.Reconnect(context.Background()))
	assert.Equal(t, StateConnected, coord.State())

	msg := endpoint.expectMessage(t, domain.MsgJoinAsViewer)
	assert.Equal(t, domain.StreamID("stream-1"), msg.StreamID)
}

func TestSendWithoutConnectionFails(t *testing.T) {
	endpoint := newSignalEndpoint(t)
	coord := newTestCoordinator(endpoint, 3)
	defer coord.Close()

	err := coord.Send(domain.SignalMessage{Type: domain.MsgOffer, StreamID: "stream-1"})
	assert.True(t, apperrors.IsTransport(err))
}

func TestCloseIsIdempotent(t *testing.T) {
	endpoint := newSignalEndpoint(t)
	coord := newTestCoordinator(endpoint, 3)

	require.NoError(t, coord.Connect(context.Background()))
	assert.NoError(t, coord.Close())
	assert.NoError(t, coord.Close())
	assert.Equal(t, StateClosed, coord.State())

	err := coord.Connect(context.Background())
	assert.True(t, apperrors.IsTransport(err))
}
