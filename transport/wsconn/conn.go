// Package wsconn is the reference Transport: a single WebSocket connection
// built on gorilla/websocket, driven by the Connection Manager through the
// connection.Transport contract.
package wsconn

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/wireclient/internal/connection"
	"github.com/nextlevelbuilder/wireclient/pkg/protocol"
)

// Conn is a connection.Transport implementation wrapping one
// gorilla/websocket.Conn for the lifetime of a single connection attempt. A
// fresh Conn is created per attempt; it is never reused across reconnects.
type Conn struct {
	dialer  *websocket.Dialer
	logger  *slog.Logger
	dialCtx context.Context

	mu       sync.Mutex
	conn     *websocket.Conn
	observer connection.TransportObserver
	state    connection.TransportState
}

// Option configures a Conn.
type Option func(*Conn)

// WithDialer overrides the gorilla/websocket.Dialer used to open the
// connection, e.g. to set a custom TLS config or proxy.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) { c.dialer = d }
}

// WithLogger sets the logger used for read-loop diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) { c.logger = logger }
}

// WithDialContext sets the context governing the initial dial. Defaults to
// context.Background(); it does not bound the connection's lifetime, only
// the handshake.
func WithDialContext(ctx context.Context) Option {
	return func(c *Conn) { c.dialCtx = ctx }
}

// New creates a Conn ready for a single Connect call. Intended to be used
// as the connection.Manager's transportFactory: func() connection.Transport
// { return wsconn.New() }.
func New(opts ...Option) *Conn {
	c := &Conn{
		dialer:  websocket.DefaultDialer,
		logger:  slog.Default(),
		dialCtx: context.Background(),
		state:   connection.TransportConnecting,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials address and, once the handshake completes, calls OnOpen
// and spawns the read loop that delivers OnMessage/OnClose to observer.
// OnError is never called by this transport.
func (c *Conn) Connect(address string, observer connection.TransportObserver) error {
	conn, _, err := c.dialer.DialContext(c.dialCtx, address, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.observer = observer
	c.state = connection.TransportOpen
	c.mu.Unlock()

	observer.OnOpen()
	go c.readLoop(conn, observer)
	return nil
}

// readLoop blocks on ReadMessage until the connection closes or errors,
// matching the corpus's own dedicated-goroutine receive loop.
func (c *Conn) readLoop(conn *websocket.Conn, observer connection.TransportObserver) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.state = connection.TransportClosed
			c.mu.Unlock()
			observer.OnClose(closeCodeFromError(err))
			return
		}
		observer.OnMessage(data)
	}
}

// closeCodeFromError extracts the server's close code from a
// websocket.CloseError, falling back to WebsocketAbnormalClosure for
// anything else (timeouts, reset connections, EOF on a non-clean close).
func closeCodeFromError(err error) protocol.CloseCode {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return protocol.CloseCode(closeErr.Code)
	}
	return protocol.WebsocketAbnormalClosure
}

// Send writes data as one text frame. The Connection Manager passes one
// encoded command (or the heartbeat frame) per call; this just ships the
// bytes.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("wsconn: not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal-closure control frame and closes the underlying
// socket. Safe to call multiple times.
func (c *Conn) Close() error {
	c.mu.Lock()
	conn := c.conn
	if c.state == connection.TransportClosed || c.state == connection.TransportClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = connection.TransportClosing
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}

// State reports the transport's current lifecycle state.
func (c *Conn) State() connection.TransportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
