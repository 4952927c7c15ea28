////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package hub

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/edudesk/chatkit/creds"
)

// State describes the lifecycle of the hub connection.
type State uint8

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

// String adheres to the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}

// StateListener is called on every connection state transition. err is
// non-nil when the transition was caused by a failure (an unexpected drop or
// exhausted reconnect attempts).
type StateListener func(s State, err error)

// connectAttempt tracks an in-flight Connect so that concurrent callers join
// the same attempt instead of dialing twice.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// Conn owns the single persistent connection to the messaging hub. At most
// one live connection exists per application session; all components other
// than the Conn itself treat it as read/invoke-only.
type Conn struct {
	hubURL string
	token  creds.Provider
	params Params

	mux      sync.Mutex
	writeMux sync.Mutex

	state      State
	ws         *websocket.Conn
	attempt    *connectAttempt
	userClosed bool

	// pending maps invocation IDs to the channel the waiting Invoke call
	// receives its completion on.
	pending map[string]chan error

	// handlers are the named-event handlers keyed by event name, then by the
	// unique ID handed out on registration.
	handlers      map[string]map[uint64]EventHandler
	nextHandlerID uint64

	stateListeners map[uint64]StateListener
	nextStateID    uint64
}

// NewConn creates a new hub connection manager. The token provider is read
// fresh on every connection attempt so a refreshed credential is picked up on
// reconnect. No connection is made until Connect is called.
func NewConn(hubURL string, token creds.Provider, params Params) *Conn {
	return &Conn{
		hubURL:         hubURL,
		token:          token,
		params:         params,
		state:          Disconnected,
		pending:        make(map[string]chan error),
		handlers:       make(map[string]map[uint64]EventHandler),
		stateListeners: make(map[uint64]StateListener),
	}
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.state
}

// OnStateChange registers a listener called on every state transition.
// Returns a unique ID that can be used to remove the listener.
func (c *Conn) OnStateChange(l StateListener) uint64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	id := c.nextStateID
	c.nextStateID++
	c.stateListeners[id] = l
	return id
}

// RemoveStateListener unregisters the state listener with the given ID.
func (c *Conn) RemoveStateListener(id uint64) {
	c.mux.Lock()
	defer c.mux.Unlock()
	delete(c.stateListeners, id)
}

// transitionLocked updates the state and returns a closure that notifies all
// registered listeners. The closure must be called after the mutex is
// released so listeners can call back into the Conn.
func (c *Conn) transitionLocked(s State, err error) func() {
	c.state = s
	listeners := make([]StateListener, 0, len(c.stateListeners))
	for _, l := range c.stateListeners {
		listeners = append(listeners, l)
	}
	return func() {
		for _, l := range listeners {
			l(s, err)
		}
	}
}

// Connect establishes the hub connection. It is idempotent: if a connection
// attempt is already in flight, the caller joins it; if the connection is
// already established, it is a no-op. On failure the state is left
// Disconnected; there is no automatic retry of the initial connect.
func (c *Conn) Connect(ctx context.Context) error {
	c.mux.Lock()
	if c.state == Connected {
		c.mux.Unlock()
		return nil
	}
	if c.state == Reconnecting {
		c.mux.Unlock()
		return errors.New("hub: automatic reconnection in progress")
	}
	if c.attempt != nil {
		a := c.attempt
		c.mux.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	a := &connectAttempt{done: make(chan struct{})}
	c.attempt = a
	c.userClosed = false
	notify := c.transitionLocked(Connecting, nil)
	c.mux.Unlock()
	notify()

	ws, err := c.dial(ctx)

	c.mux.Lock()
	c.attempt = nil
	if err == nil && c.userClosed {
		err = errors.New("disconnected while connecting")
		_ = ws.Close()
		ws = nil
	}
	if err != nil {
		notify = c.transitionLocked(Disconnected, err)
		c.mux.Unlock()
		notify()
		a.err = err
		close(a.done)
		return err
	}

	c.ws = ws
	notify = c.transitionLocked(Connected, nil)
	c.mux.Unlock()
	notify()

	go c.readLoop(ws)

	jww.INFO.Printf("[HUB] Connected to %s", c.hubURL)
	close(a.done)
	return nil
}

// Disconnect closes the hub connection and suppresses automatic
// reconnection. It is idempotent.
func (c *Conn) Disconnect() error {
	c.mux.Lock()
	if c.state == Disconnected && c.attempt == nil {
		c.mux.Unlock()
		return nil
	}
	c.userClosed = true
	ws := c.ws
	c.ws = nil
	c.failPendingLocked(ErrNotConnected)
	notify := c.transitionLocked(Disconnected, nil)
	c.mux.Unlock()
	notify()

	if ws != nil {
		_ = ws.Close()
	}
	jww.INFO.Printf("[HUB] Disconnected from %s", c.hubURL)
	return nil
}

// dial opens the websocket, attaches a freshly read credential, and performs
// the protocol handshake.
func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := c.token()
	if err != nil {
		return nil, errors.WithMessage(err, "could not read credential")
	}

	u, err := url.Parse(c.hubURL)
	if err != nil {
		return nil, errors.Errorf("invalid hub URL %q: %+v", c.hubURL, err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: c.params.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "websocket dial failed")
	}

	if err = c.handshake(ws); err != nil {
		_ = ws.Close()
		return nil, err
	}

	return ws, nil
}

// handshake negotiates the JSON hub protocol on a freshly opened websocket.
func (c *Conn) handshake(ws *websocket.Conn) error {
	frame, err := encodeFrame(handshakeRequest{Protocol: "json", Version: 1})
	if err != nil {
		return err
	}
	if err = ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.Wrap(err, "failed to send handshake")
	}

	_ = ws.SetReadDeadline(time.Now().Add(c.params.HandshakeTimeout))
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()

	_, data, err := ws.ReadMessage()
	if err != nil {
		return errors.Wrap(err, "failed to read handshake response")
	}
	frames := splitFrames(data)
	if len(frames) == 0 {
		return errors.New("empty handshake response")
	}

	var resp handshakeResponse
	if err = json.Unmarshal(frames[0], &resp); err != nil {
		return errors.Errorf("malformed handshake response: %+v", err)
	}
	if resp.Error != "" {
		return errors.Errorf("hub rejected handshake: %s", resp.Error)
	}

	return nil
}

// readLoop processes frames from the hub sequentially, preserving transport
// order, until the connection drops.
func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleDrop(ws, err)
			return
		}
		for _, frame := range splitFrames(data) {
			c.handleFrame(ws, frame)
		}
	}
}

// handleFrame routes a single decoded frame.
func (c *Conn) handleFrame(ws *websocket.Conn, frame []byte) {
	var msg hubMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		jww.WARN.Printf("[HUB] Dropping malformed frame: %+v", err)
		return
	}

	switch msg.Type {
	case invocationType:
		c.logFrame("received", frame)
		c.dispatch(msg.Target, msg.Arguments)
	case completionType:
		c.complete(msg.InvocationID, msg.Error)
	case pingType:
		// Keep-alive; nothing to do.
	case closeType:
		jww.INFO.Printf("[HUB] Server closed the connection: %s", msg.Error)
		_ = ws.Close()
	default:
		jww.WARN.Printf("[HUB] Ignoring frame with unknown type %d", msg.Type)
	}
}

// handleDrop runs when the read loop exits. A drop after a user-initiated
// Disconnect is final; an unexpected drop starts automatic reconnection.
func (c *Conn) handleDrop(ws *websocket.Conn, err error) {
	c.mux.Lock()
	if c.ws != ws {
		// A stale read loop for a connection that was already replaced.
		c.mux.Unlock()
		return
	}
	c.ws = nil
	c.failPendingLocked(ErrNotConnected)

	if c.userClosed {
		notify := c.transitionLocked(Disconnected, nil)
		c.mux.Unlock()
		notify()
		return
	}

	jww.WARN.Printf("[HUB] Connection dropped: %+v", err)
	notify := c.transitionLocked(Reconnecting, err)
	c.mux.Unlock()
	notify()

	go c.reconnect()
}

// reconnect retries the connection with exponential backoff up to the
// configured attempt cap. Exhausting the cap transitions to a terminal
// Disconnected state; the error is reported to state listeners rather than
// swallowed.
func (c *Conn) reconnect() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.params.ReconnectInitialInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = c.params.ReconnectMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= c.params.MaxReconnectAttempts; attempt++ {
		time.Sleep(bo.NextBackOff())

		c.mux.Lock()
		if c.userClosed || c.state != Reconnecting {
			c.mux.Unlock()
			return
		}
		c.mux.Unlock()

		ws, err := c.dial(context.Background())
		if err != nil {
			lastErr = err
			jww.WARN.Printf("[HUB] Reconnect attempt %d/%d failed: %+v",
				attempt, c.params.MaxReconnectAttempts, err)
			continue
		}

		c.mux.Lock()
		if c.userClosed {
			c.mux.Unlock()
			_ = ws.Close()
			return
		}
		c.ws = ws
		notify := c.transitionLocked(Connected, nil)
		c.mux.Unlock()
		notify()

		go c.readLoop(ws)
		jww.INFO.Printf("[HUB] Reconnected after %d attempt(s)", attempt)
		return
	}

	if lastErr == nil {
		lastErr = errors.New("connection lost")
	}
	err := errors.WithMessagef(lastErr, "gave up after %d reconnect attempts",
		c.params.MaxReconnectAttempts)
	jww.ERROR.Printf("[HUB] %+v", err)

	c.mux.Lock()
	if c.state != Reconnecting {
		c.mux.Unlock()
		return
	}
	notify := c.transitionLocked(Disconnected, err)
	c.mux.Unlock()
	notify()
}
