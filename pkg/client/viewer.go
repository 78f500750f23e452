package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/notetree/notetree/pkg/events"
)

// ErrConnectionLost is returned by Viewer.Run when the retry budget is
// exhausted and the viewer gives up.
var ErrConnectionLost = errors.New("viewer: connection lost")

// ViewerState is the connection lifecycle state of a Viewer.
type ViewerState int32

const (
	ViewerDisconnected ViewerState = iota
	ViewerConnecting
	ViewerConnected
	ViewerReconnecting
	// ViewerConnectionLost is terminal: the retry budget ran out.
	ViewerConnectionLost
)

func (s ViewerState) String() string {
	switch s {
	case ViewerDisconnected:
		return "disconnected"
	case ViewerConnecting:
		return "connecting"
	case ViewerConnected:
		return "connected"
	case ViewerReconnecting:
		return "reconnecting"
	case ViewerConnectionLost:
		return "connection_lost"
	}
	return "unknown"
}

// ViewerConfig configures a Viewer.
type ViewerConfig struct {
	// URL is the WebSocket endpoint, e.g. "ws://localhost:8080/api/events".
	URL string

	// Retryer controls the redial schedule. Defaults to exponential backoff
	// capped at [DefaultMaxRetries] attempts; after that Run returns
	// [ErrConnectionLost].
	Retryer Retryer

	// Header is sent with the WebSocket handshake (auth token etc.).
	Header http.Header

	// OnStateChange, when set, observes every state transition.
	OnStateChange func(ViewerState)

	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Viewer maintains a WebSocket subscription to the server's event stream and
// hands every received event to the handler. When the connection drops it
// redials per the configured Retryer; a fresh connection resets the schedule.
type Viewer struct {
	cfg     ViewerConfig
	handler func(events.Event)
	state   atomic.Int32
	log     zerolog.Logger
}

// NewViewer creates a viewer delivering events to handler.
func NewViewer(cfg ViewerConfig, handler func(events.Event)) *Viewer {
	if cfg.Retryer == nil {
		cfg.Retryer = NewExponentialBackoffRetryer()
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Viewer{cfg: cfg, handler: handler, log: log}
}

// State returns the current connection state.
func (v *Viewer) State() ViewerState {
	return ViewerState(v.state.Load())
}

func (v *Viewer) setState(s ViewerState) {
	v.state.Store(int32(s))
	v.log.Debug().Str("state", s.String()).Msg("viewer state changed")
	if v.cfg.OnStateChange != nil {
		v.cfg.OnStateChange(s)
	}
}

// Run connects and consumes events until ctx is cancelled or the retry
// budget is exhausted. It returns ctx.Err() on cancellation and wraps
// [ErrConnectionLost] when it gives up.
func (v *Viewer) Run(ctx context.Context) error {
	attempt := 0
	connectedOnce := false

	for {
		if connectedOnce {
			v.setState(ViewerReconnecting)
		} else {
			v.setState(ViewerConnecting)
		}

		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, v.cfg.URL, v.cfg.Header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err == nil {
			connectedOnce = true
			attempt = 0
			v.cfg.Retryer.Reset()
			v.setState(ViewerConnected)
			err = v.readLoop(ctx, conn)
		}
		if ctx.Err() != nil {
			v.setState(ViewerDisconnected)
			return ctx.Err()
		}

		delay, retry := v.cfg.Retryer.NextDelay(attempt, err)
		attempt++
		if !retry {
			v.setState(ViewerConnectionLost)
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		v.log.Warn().Err(err).Dur("delay", delay).Int("attempt", attempt).
			Msg("viewer connection failed, retrying")

		select {
		case <-ctx.Done():
			v.setState(ViewerDisconnected)
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// readLoop decodes events until the connection fails or ctx is cancelled.
func (v *Viewer) readLoop(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	// Unblock ReadJSON when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		v.handler(ev)
	}
}
