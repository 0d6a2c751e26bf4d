package wireclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/wireclient/clock"
	"github.com/nextlevelbuilder/wireclient/internal/connection"
	"github.com/nextlevelbuilder/wireclient/reachability"
	"github.com/nextlevelbuilder/wireclient/telemetry"
	"github.com/nextlevelbuilder/wireclient/transport/wsconn"
)

// Config configures a Client. Address and AccessToken are required;
// everything else has a working default.
type Config struct {
	// Address is the WebSocket URL to connect to, e.g. "wss://host/connection/websocket".
	Address string
	// AccessToken authenticates the Connect handshake.
	AccessToken string
	// MaxServerPingDelay is added to the server-advertised ping interval to
	// compute the ping deadline: if no frame arrives for Ping+this long, the
	// connection is treated as stalled and force-closed to trigger a
	// reconnect. Defaults to 5s.
	MaxServerPingDelay time.Duration
	// CommandTimeout bounds how long a command waits for its reply before
	// failing with CommandTimeout. Defaults to 10s.
	CommandTimeout time.Duration
	// ReachabilityPoll is how often the reachability gate is polled while a
	// reconnect is suspended for lack of network. Defaults to 1s.
	ReachabilityPoll time.Duration

	// Transport, if set, overrides the default transport/wsconn.Conn.
	Transport func() Transport
	// Scheduler, if set, overrides the default clock.Scheduler.
	Scheduler Scheduler
	// NetworkReachability, if set, overrides the default reachability.PingGate.
	NetworkReachability NetworkReachability
	// MetricsSink, if set, overrides the default no-op sink.
	MetricsSink MetricsSink
	// Logger, if set, overrides the default slog.Default().
	Logger *slog.Logger
}

// Client is the public facade over the Connection Manager, Subscription
// Registry, and Command Manager: one Client corresponds to one logical
// real-time connection.
type Client struct {
	manager *connection.Manager
}

// New creates a Client. It does not connect; call Connect to bring the
// connection up.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transportFactory := cfg.Transport
	if transportFactory == nil {
		transportFactory = func() Transport { return wsconn.New(wsconn.WithLogger(logger)) }
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = clock.New()
	}
	netReach := cfg.NetworkReachability
	if netReach == nil {
		netReach = reachability.New(reachability.WithLogger(logger))
	}
	metrics := cfg.MetricsSink
	if metrics == nil {
		metrics = telemetry.NoopSink{}
	}

	maxPingDelay := cfg.MaxServerPingDelay
	if maxPingDelay <= 0 {
		maxPingDelay = 5 * time.Second
	}

	manager := connection.New(connection.Config{
		Address:            cfg.Address,
		AccessToken:        cfg.AccessToken,
		MaxServerPingDelay: maxPingDelay,
		CommandTimeout:     cfg.CommandTimeout,
		ReachabilityPoll:   cfg.ReachabilityPoll,
	}, transportFactory, scheduler, netReach, metrics, logger)

	return &Client{manager: manager}
}

// State is the connection lifecycle's current value: Disconnected,
// Connecting, Connected, or Disconnecting.
type State = connection.State

const (
	Disconnected  State = connection.Disconnected
	Connecting    State = connection.Connecting
	Connected     State = connection.Connected
	Disconnecting State = connection.Disconnecting
)

// StateObserver is notified of every connection lifecycle transition.
type StateObserver = connection.StateObserver

// OnStateChange installs the observer notified of connection lifecycle
// transitions. Only one observer may be installed; a later call replaces
// the earlier one.
func (c *Client) OnStateChange(o StateObserver) { c.manager.OnStateChange(o) }

// State returns the current connection lifecycle state.
func (c *Client) State() State { return c.manager.State() }

// Connect brings the connection up: dials the transport, runs the Connect
// handshake, and (once handshake succeeds) resumes any tracked
// subscriptions. Blocks until the handshake completes, fails, or ctx is
// canceled.
func (c *Client) Connect(ctx context.Context) error { return c.manager.Connect(ctx) }

// Disconnect brings the connection down deliberately and suppresses
// automatic reconnection until the next Connect call.
func (c *Client) Disconnect(ctx context.Context) error { return c.manager.Disconnect(ctx) }

// Disable stops the connection and prevents any further automatic or
// explicit reconnection until Enable is called.
func (c *Client) Disable() { c.manager.Disable() }

// Enable clears a prior Disable.
func (c *Client) Enable() { c.manager.Enable() }

// OnIdentityChanged reconnects with a new access token, clearing all
// pending commands and tracked subscriptions first. An empty newToken
// leaves the client disconnected.
func (c *Client) OnIdentityChanged(ctx context.Context, newToken string) error {
	return c.manager.OnIdentityChanged(ctx, newToken)
}

// Subscribe creates a Subscription for channel, fetching the initial token
// from tp and starting the subscribe handshake asynchronously.
func (c *Client) Subscribe(channel string, tp TokenProvider) (*Subscription, error) {
	entity, err := c.manager.CreateChannel(channel, tp)
	if err != nil {
		return nil, err
	}
	return newSubscription(entity, c.manager), nil
}

// Unsubscribe leaves channel, per the semantics of
// Subscription.Unsubscribe. It's provided directly on Client for callers
// that didn't keep the Subscription handle around.
func (c *Client) Unsubscribe(ctx context.Context, channel string) error {
	return c.manager.UnsubscribeChannel(ctx, channel)
}
