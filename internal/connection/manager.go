// Package connection implements the Connection Manager: the state machine
// driving connect/disconnect lifecycles, the Connect handshake,
// reconnection with exponential backoff, network-reachability gating, and
// the server ping/pong liveness deadline. It owns the single Transport
// instance and marshals every transport callback onto one dispatch
// goroutine, which alone touches the Manager's own lifecycle state. The
// Command Manager and Subscription Registry are mutex-guarded and are also
// called from other goroutines.
package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/wireclient/internal/backoff"
	"github.com/nextlevelbuilder/wireclient/internal/command"
	"github.com/nextlevelbuilder/wireclient/internal/subscription"
	"github.com/nextlevelbuilder/wireclient/pkg/protocol"
)

// State is the connection lifecycle's single global state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// StateObserver is notified of every lifecycle transition, on the dispatch
// goroutine.
type StateObserver interface {
	OnConnectionStateChange(from, to State)
}

// Config configures a Manager.
type Config struct {
	Address            string
	AccessToken        string
	MaxServerPingDelay time.Duration
	CommandTimeout     time.Duration
	ReachabilityPoll   time.Duration
}

const defaultReachabilityPoll = time.Second

// Manager is the Connection Manager. All exported methods are safe to call
// concurrently; internally they hand off to the single dispatch goroutine.
type Manager struct {
	cfg Config

	transportFactory func() Transport
	scheduler        Scheduler
	reachability     NetworkReachability
	metrics          MetricsSink
	logger           *slog.Logger

	commands *command.Manager
	registry *subscription.Registry
	dispatch *dispatcher

	backoff *backoff.Strategy

	observer StateObserver

	// Everything below is touched only on the dispatch goroutine.
	state              State
	wantConnected      bool
	disabled           bool
	transport          Transport
	transportEpoch     uint64 // bumped each time a new transport is created; late callbacks from a stale transport are ignored
	connectWaiters     []chan error
	disconnectWaiters  []chan struct{}
	serverPingInterval time.Duration
	serverPongRequired bool
	hasReconnect       bool
	reconnectActionID  uint64
	hasPingDeadline    bool
	pingDeadlineID     uint64
	waitingReachable   bool
	tokenProviders     map[string]TokenProvider
}

// New creates a Manager. transportFactory builds a fresh Transport for
// each connection attempt, matching the "transport is created on connect
// and discarded on close" lifecycle.
func New(cfg Config, transportFactory func() Transport, scheduler Scheduler, reachability NetworkReachability, metrics MetricsSink, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	if cfg.ReachabilityPoll <= 0 {
		cfg.ReachabilityPoll = defaultReachabilityPoll
	}
	registry := subscription.NewRegistry()
	m := &Manager{
		cfg:              cfg,
		transportFactory: transportFactory,
		scheduler:        scheduler,
		reachability:     reachability,
		metrics:          metrics,
		logger:           logger,
		registry:         registry,
		backoff:          backoff.New(),
		state:            Disconnected,
		tokenProviders:   make(map[string]TokenProvider),
	}
	m.commands = command.New(
		command.WithTimeout(cfg.CommandTimeout),
		command.WithMetrics(commandMetricsAdapter{metrics}),
		command.WithLogger(logger),
	)
	registry.OnCountChanged(func(n int) {
		metrics.Gauge("subscription_count", float64(n))
	})
	m.dispatch = newDispatcher(logger)
	return m
}

// Registry exposes the subscription registry so the public facade can wire
// CreateChannel/Unsubscribe to it.
func (m *Manager) Registry() *subscription.Registry { return m.registry }

// OnStateChange installs the StateObserver notified of lifecycle
// transitions.
func (m *Manager) OnStateChange(o StateObserver) {
	done := make(chan struct{})
	m.dispatch.Post(func() {
		m.observer = o
		close(done)
	})
	<-done
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	result := make(chan State, 1)
	m.dispatch.Post(func() { result <- m.state })
	return <-result
}

// commandMetricsAdapter satisfies command.MetricsSink on top of the wider
// MetricsSink interface, mapping the "command" histogram metric.
type commandMetricsAdapter struct{ sink MetricsSink }

func (a commandMetricsAdapter) ObserveCommandLatency(method, result string, d time.Duration) {
	a.sink.Histogram("command", float64(d.Milliseconds()), map[string]string{"method": method, "result": result})
}

func (m *Manager) setState(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.metrics.Counter("connection_state_change", 1, map[string]string{"state": to.String()})
	if m.observer != nil {
		m.observer.OnConnectionStateChange(from, to)
	}
}

// Connect brings the connection up, per the algorithm in the module's
// design notes: cancel any in-flight reconnect timer, wait out an
// in-progress Disconnecting/Connecting, no-op if already Connected, then
// open a fresh transport and run the handshake.
func (m *Manager) Connect(ctx context.Context) error {
	result := make(chan error, 1)
	m.dispatch.Post(func() { m.handleConnect(result) })
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) handleConnect(result chan error) {
	if m.disabled {
		result <- DisabledError{}
		return
	}

	m.cancelReconnect()
	m.waitingReachable = false

	switch m.state {
	case Connected:
		result <- nil
		return
	case Connecting:
		m.connectWaiters = append(m.connectWaiters, result)
		return
	case Disconnecting:
		ch := make(chan struct{})
		m.disconnectWaiters = append(m.disconnectWaiters, ch)
		go func() {
			<-ch
			m.dispatch.Post(func() { m.handleConnect(result) })
		}()
		return
	}

	m.wantConnected = true
	m.setState(Connecting)
	m.connectWaiters = append(m.connectWaiters, result)

	m.transportEpoch++
	epoch := m.transportEpoch
	t := m.transportFactory()
	m.transport = t

	if err := t.Connect(m.cfg.Address, &transportBridge{m: m, epoch: epoch}); err != nil {
		m.failConnectWaiters(&ConnectionFailedError{Reason: err})
		m.setState(Disconnected)
	}
}

func (m *Manager) failConnectWaiters(err error) {
	waiters := m.connectWaiters
	m.connectWaiters = nil
	for _, ch := range waiters {
		ch <- err
	}
}

func (m *Manager) succeedConnectWaiters() {
	waiters := m.connectWaiters
	m.connectWaiters = nil
	for _, ch := range waiters {
		ch <- nil
	}
}

// transportBridge adapts TransportObserver callbacks, which may arrive on
// an arbitrary I/O goroutine, onto the dispatch queue. epoch guards
// against a stale transport (one already superseded by a new connect
// attempt) still delivering callbacks after the fact.
type transportBridge struct {
	m     *Manager
	epoch uint64
}

func (b *transportBridge) OnOpen() {
	b.m.dispatch.Post(func() {
		if b.epoch != b.m.transportEpoch {
			return
		}
		b.m.handleOpen()
	})
}

func (b *transportBridge) OnMessage(data []byte) {
	b.m.dispatch.Post(func() {
		if b.epoch != b.m.transportEpoch {
			return
		}
		b.m.handleMessage(data)
	})
}

func (b *transportBridge) OnError(err error) {
	b.m.dispatch.Post(func() {
		if b.epoch != b.m.transportEpoch {
			return
		}
		b.m.logger.Error("transport error", "error", err)
		b.m.metrics.Counter("websocket_error", 1, nil)
	})
}

func (b *transportBridge) OnClose(code protocol.CloseCode) {
	b.m.dispatch.Post(func() {
		if b.epoch != b.m.transportEpoch {
			return
		}
		b.m.handleClose(code)
	})
}

func (m *Manager) handleOpen() {
	if m.state != Connecting {
		return
	}
	subs := m.registry.SubscribeRequestsForReconnect()
	if m.cfg.AccessToken == "" {
		m.failConnectWaiters(&EmptyTokenError{})
		m.setState(Disconnected)
		m.closeTransport()
		return
	}

	id := m.commands.NextID()
	handle := m.commands.Register(id, protocol.MethodConnect)
	cmd := protocol.Command{
		ID:     id,
		Method: protocol.MethodConnect,
		Connect: &protocol.ConnectRequest{
			Token: m.cfg.AccessToken,
			Subs:  subs,
		},
	}
	if err := m.send(cmd); err != nil {
		m.commands.Forget(id)
		m.failConnectWaiters(&ConnectionFailedError{Reason: err})
		m.setState(Disconnected)
		m.closeTransport()
		return
	}

	go func() {
		reply, err := m.commands.Await(context.Background(), protocol.MethodConnect, id, handle)
		m.dispatch.Post(func() { m.handleConnectReply(reply, err) })
	}()
}

func (m *Manager) handleConnectReply(reply protocol.Reply, err error) {
	if m.state != Connecting {
		return
	}
	if err != nil {
		m.failConnectWaiters(&ConnectionFailedError{Reason: err})
		m.setState(Disconnected)
		m.closeTransport()
		return
	}
	if reply.Error != nil {
		m.failConnectWaiters(&ConnectionFailedError{Reason: reply.Error})
		m.setState(Disconnected)
		m.closeTransport()
		return
	}

	m.backoff.Reset()
	if reply.Connect != nil {
		m.serverPingInterval = time.Duration(reply.Connect.Ping) * time.Second
		m.serverPongRequired = reply.Connect.Pong
		m.applyRecovery(*reply.Connect)
	}
	m.armPingDeadline()
	m.setState(Connected)
	m.succeedConnectWaiters()
	m.resubscribeUnsynced()
}

// applyRecovery moves entities mentioned in the connect reply's Subs block
// to Synced and delivers their catch-up publications. Entities not
// mentioned remain Unsynced and will issue fresh subscribe commands.
func (m *Manager) applyRecovery(result protocol.ConnectResult) {
	for channel, sub := range result.Subs {
		entity, ok := m.registry.Get(channel)
		if !ok {
			continue
		}
		entity.ConfirmSubscribed(sub)
	}
}

// resubscribeUnsynced issues a fresh Subscribe command for every tracked
// entity the connect reply's recovery block didn't cover.
func (m *Manager) resubscribeUnsynced() {
	for _, entity := range m.registry.All() {
		if entity.State() != subscription.Unsynced {
			continue
		}
		tp, ok := m.tokenProviders[entity.Channel()]
		if !ok {
			continue
		}
		go m.subscribeEntity(entity, tp)
	}
}

// CreateChannel registers a new Subscription entity for channel and starts
// the subscribe handshake asynchronously (fetching the token may block).
func (m *Manager) CreateChannel(channel string, tp TokenProvider) (*subscription.Entity, error) {
	entity := subscription.NewEntity(channel, m.logger)
	if err := m.registry.Add(channel, entity); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	m.dispatch.Post(func() {
		m.tokenProviders[channel] = tp
		close(done)
	})
	<-done
	go m.subscribeEntity(entity, tp)
	return entity, nil
}

// subscribeEntity fetches the token, verifies the channel hasn't drifted,
// and runs the Subscribe command exchange.
func (m *Manager) subscribeEntity(entity *subscription.Entity, tp TokenProvider) {
	gotChannel, token, err := tp.GetToken()
	if err != nil {
		entity.FailSubscribe(&TokenRetrieverFailedError{Channel: entity.Channel(), Reason: err})
		return
	}
	if gotChannel == "" {
		entity.FailSubscribe(&EmptyChannelError{})
		return
	}
	if gotChannel != entity.Channel() {
		entity.FailSubscribe(&ChannelChangedError{Was: entity.Channel(), Got: gotChannel})
		return
	}

	offset, epoch, recover, err := entity.BeginSubscribe(token)
	if err != nil {
		// The entity is already disposed and therefore already terminal;
		// FailSubscribe would incorrectly resurrect it into Error.
		m.logger.Debug("subscribe skipped, entity already disposed", "channel", entity.Channel())
		return
	}
	reply, err := m.SendCommand(context.Background(), protocol.MethodSubscribe, func(id uint32) protocol.Command {
		return protocol.Command{
			ID:     id,
			Method: protocol.MethodSubscribe,
			Subscribe: &protocol.SubscribeRequest{
				Channel: entity.Channel(),
				Token:   token,
				Recover: recover,
				Offset:  offset,
				Epoch:   epoch,
			},
		}
	})
	if err != nil {
		entity.FailSubscribe(err)
		return
	}
	if reply.Error != nil {
		entity.FailSubscribe(reply.Error)
		return
	}
	switch {
	case reply.Subscribe != nil:
		entity.ConfirmSubscribed(*reply.Subscribe)
	case len(reply.Result) > 0:
		var result protocol.SubscribeResult
		if jsonErr := json.Unmarshal(reply.Result, &result); jsonErr != nil {
			return
		}
		if len(result.Publications) == 0 {
			if payload, ok := protocol.SingleEmbeddedPublication(reply.Result); ok {
				result.Offset++
				result.Publications = []protocol.Publication{
					{Offset: result.Offset, Data: protocol.PublicationData{Payload: payload}},
				}
			}
		}
		entity.ConfirmSubscribed(result)
	}
}

// UnsubscribeChannel sends an Unsubscribe command and disposes the local
// entity on success (or immediately if the connection isn't up).
func (m *Manager) UnsubscribeChannel(ctx context.Context, channel string) error {
	entity, ok := m.registry.Get(channel)
	if !ok {
		return &subscription.ErrAlreadyUnsubscribed{Channel: channel}
	}
	if m.State() == Connected {
		reply, err := m.SendCommand(ctx, protocol.MethodUnsubscribe, func(id uint32) protocol.Command {
			return protocol.Command{
				ID:          id,
				Method:      protocol.MethodUnsubscribe,
				Unsubscribe: &protocol.UnsubscribeRequest{Channel: channel},
			}
		})
		if err != nil {
			return err
		}
		if reply.Error != nil {
			return reply.Error
		}
	}
	entity.Dispose(subscription.DisposeExplicit)
	done := make(chan struct{})
	m.dispatch.Post(func() {
		delete(m.tokenProviders, channel)
		close(done)
	})
	<-done
	return m.registry.Remove(channel)
}

func (m *Manager) send(cmd protocol.Command) error {
	data, err := protocol.Encode(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if m.transport == nil {
		return fmt.Errorf("no transport")
	}
	return m.transport.Send(data)
}

// SendCommand encodes and sends cmd, registering it with the Command
// Manager and awaiting the reply on a separate goroutine so the dispatch
// loop is never blocked waiting on its own continuation. It implements the
// "send anyway if not connected, the transport may buffer" race tolerance
// called out in the design notes: callers await the connect future
// themselves before calling this when that matters.
func (m *Manager) SendCommand(ctx context.Context, method string, build func(id uint32) protocol.Command) (protocol.Reply, error) {
	type result struct {
		reply protocol.Reply
		err   error
	}
	out := make(chan result, 1)
	m.dispatch.Post(func() {
		id := m.commands.NextID()
		handle := m.commands.Register(id, method)
		cmd := build(id)
		if err := m.send(cmd); err != nil {
			m.commands.Forget(id)
			out <- result{err: err}
			return
		}
		go func() {
			reply, err := m.commands.Await(ctx, method, id, handle)
			out <- result{reply: reply, err: err}
		}()
	})
	r := <-out
	return r.reply, r.err
}

func (m *Manager) handleMessage(data []byte) {
	m.metrics.Counter("message_received", 1, nil)
	replies, err := protocol.SplitFrames(data)
	if err != nil {
		m.logger.Error("malformed frame, closing connection", "error", err)
		m.closeTransport()
		return
	}
	m.resetPingDeadline()
	for _, reply := range replies {
		m.handleReply(reply)
	}
	if m.serverPongRequired {
		_ = m.transport.Send(protocol.HeartbeatFrame)
	}
}

func (m *Manager) handleReply(reply protocol.Reply) {
	if reply.IsHeartbeat() {
		return
	}
	if reply.Push != nil {
		m.handlePush(*reply.Push)
		return
	}
	if !m.commands.Resolve(reply) {
		m.logger.Debug("reply for unknown or expired command", "id", reply.ID)
	}
}

func (m *Manager) handlePush(push protocol.Push) {
	entity, ok := m.registry.Get(push.Channel)
	if !ok {
		m.logger.Debug("push for unknown channel, dropped", "channel", push.Channel)
		return
	}
	switch {
	case push.Pub != nil:
		m.metrics.Counter("push_received", 1, map[string]string{"push_type": "publication"})
		entity.HandlePublication(*push.Pub)
	case push.Unsub != nil:
		m.metrics.Counter("push_received", 1, map[string]string{"push_type": "unsub"})
		entity.HandleKick(*push.Unsub)
		_ = m.registry.Remove(push.Channel)
	default:
		m.logger.Debug("push with no recognized payload", "channel", push.Channel)
	}
}

// armPingDeadline schedules the watchdog timer for K + G seconds after the
// handshake reports ping interval K.
func (m *Manager) armPingDeadline() {
	m.cancelPingDeadline()
	if m.serverPingInterval <= 0 {
		return
	}
	deadline := m.serverPingInterval + m.cfg.MaxServerPingDelay
	epoch := m.transportEpoch
	id := m.scheduler.ScheduleAction(func() {
		m.dispatch.Post(func() {
			if epoch != m.transportEpoch {
				return
			}
			m.handlePingDeadlineExpired()
		})
	}, deadline)
	m.pingDeadlineID = id
	m.hasPingDeadline = true
}

// resetPingDeadline is called on every inbound message: cancel and rearm.
func (m *Manager) resetPingDeadline() {
	if m.serverPingInterval <= 0 {
		return
	}
	m.armPingDeadline()
}

func (m *Manager) cancelPingDeadline() {
	if m.hasPingDeadline {
		m.scheduler.CancelAction(m.pingDeadlineID)
		m.hasPingDeadline = false
	}
}

func (m *Manager) handlePingDeadlineExpired() {
	m.logger.Warn("ping deadline expired, closing stalled connection")
	m.closeTransport()
}

func (m *Manager) closeTransport() {
	m.cancelPingDeadline()
	if m.transport != nil {
		_ = m.transport.Close()
	}
}

// handleClose runs the reconnection policy. Close-handling — failing
// pending commands and resolving the disconnection future — completes
// before any reconnect attempt is scheduled.
func (m *Manager) handleClose(code protocol.CloseCode) {
	m.cancelPingDeadline()

	wasDisconnecting := m.state == Disconnecting
	wasConnecting := m.state == Connecting

	n := m.commands.FailAll(code)
	if n > 0 {
		m.logger.Debug("failed pending commands on close", "count", n, "close_code", code)
	}
	m.registry.Recover(false)

	m.setState(Disconnected)

	if wasConnecting {
		m.failConnectWaiters(&ConnectionFailedError{Reason: fmt.Errorf("closed with code %s", code)})
	}

	waiters := m.disconnectWaiters
	m.disconnectWaiters = nil
	for _, ch := range waiters {
		close(ch)
	}

	if wasDisconnecting || !m.wantConnected || m.disabled {
		return
	}

	switch code.Classify() {
	case protocol.Irrecoverable:
		m.logger.Warn("irrecoverable close code, not reconnecting", "close_code", code)
		return
	case protocol.TokenVerificationDelay:
		m.scheduleReconnect(10 * time.Second)
		return
	default:
		if !m.reachability.IsReachable() {
			m.waitForReachability()
			return
		}
		m.scheduleReconnect(m.backoff.Next())
	}
}

func (m *Manager) scheduleReconnect(delay time.Duration) {
	m.hasReconnect = true
	m.reconnectActionID = m.scheduler.ScheduleAction(func() {
		m.dispatch.Post(func() {
			m.hasReconnect = false
			m.handleConnect(make(chan error, 1))
		})
	}, delay)
}

func (m *Manager) waitForReachability() {
	if m.waitingReachable {
		return
	}
	m.waitingReachable = true
	m.pollReachability()
}

func (m *Manager) pollReachability() {
	if !m.waitingReachable {
		return
	}
	if m.reachability.IsReachable() {
		m.waitingReachable = false
		m.wantConnected = true
		m.handleConnect(make(chan error, 1))
		return
	}
	interval := m.cfg.ReachabilityPoll
	if interval < time.Second {
		interval = time.Second
	}
	m.scheduler.ScheduleAction(func() {
		m.dispatch.Post(m.pollReachability)
	}, interval)
}

func (m *Manager) cancelReconnect() {
	if m.hasReconnect {
		m.scheduler.CancelAction(m.reconnectActionID)
		m.hasReconnect = false
	}
}

// Disconnect brings the connection down deliberately: cancels any pending
// reconnect timer, clears intent, and awaits the transport's close
// callback. Multiple concurrent callers share one disconnection future.
func (m *Manager) Disconnect(ctx context.Context) error {
	result := make(chan struct{})
	m.dispatch.Post(func() { m.handleDisconnect(result) })
	select {
	case <-result:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) handleDisconnect(result chan struct{}) {
	m.cancelReconnect()
	m.wantConnected = false
	m.waitingReachable = false

	if m.state == Disconnected {
		close(result)
		return
	}
	m.disconnectWaiters = append(m.disconnectWaiters, result)
	if m.state != Disconnecting {
		m.setState(Disconnecting)
		m.closeTransport()
	}
}

// Disable transitions to Disconnected and suppresses all automatic
// reconnection. Until Enable is called, Connect fails with DisabledError.
func (m *Manager) Disable() {
	done := make(chan struct{})
	m.dispatch.Post(func() {
		m.disabled = true
		m.cancelReconnect()
		m.waitingReachable = false
		m.wantConnected = false
		if m.state != Disconnected {
			m.setState(Disconnecting)
			m.closeTransport()
		}
		close(done)
	})
	<-done
}

// Enable clears a prior Disable, allowing Connect to work again.
func (m *Manager) Enable() {
	done := make(chan struct{})
	m.dispatch.Post(func() {
		m.disabled = false
		close(done)
	})
	<-done
}

// OnIdentityChanged performs reset(reconnect = token present): disconnect,
// clear pending commands, clear the registry, and reconnect if a new
// non-empty token is supplied.
func (m *Manager) OnIdentityChanged(ctx context.Context, newToken string) error {
	if err := m.Disconnect(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	m.dispatch.Post(func() {
		m.cfg.AccessToken = newToken
		m.commands.FailAll(protocol.Disconnected)
		m.registry.Clear()
		close(done)
	})
	<-done
	if newToken == "" {
		return nil
	}
	return m.Connect(ctx)
}
