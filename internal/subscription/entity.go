// Package subscription implements per-channel subscription state and the
// registry that tracks every subscription a Client currently holds.
package subscription

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/wireclient/pkg/protocol"
)

// State is a channel subscription's lifecycle state.
type State int

const (
	Unsynced State = iota
	Subscribing
	Synced
	Unsubscribed
	Error
)

func (s State) String() string {
	switch s {
	case Unsynced:
		return "unsynced"
	case Subscribing:
		return "subscribing"
	case Synced:
		return "synced"
	case Unsubscribed:
		return "unsubscribed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Observer receives lifecycle events for a single subscription. A caller
// sets at most one Observer per Entity via OnEvent; this mirrors the wider
// module's preference for one typed capability per concern rather than a
// generic event bus.
type Observer interface {
	OnPublication(channel string, payload string, offset uint64)
	OnKick(channel string, code uint32, reason string)
	OnError(channel string, err error)
	OnStateChange(channel string, from, to State)
}

// DisposeMode controls how an Entity releases its resources.
type DisposeMode int

const (
	// DisposeExplicit is used when the caller calls Subscription.Unsubscribe
	// or the registry is cleared: disposal runs synchronously.
	DisposeExplicit DisposeMode = iota
	// DisposeFinalizer is used when a Subscription handle is garbage
	// collected without an explicit Unsubscribe call. Disposal still runs,
	// but logs a warning, since relying on the finalizer means the caller
	// leaked a handle instead of unsubscribing.
	DisposeFinalizer
)

// Entity is one channel's subscription state machine.
type Entity struct {
	mu      sync.Mutex
	channel string
	state   State
	epoch   string
	offset  uint64
	token   string

	observer Observer
	logger   *slog.Logger
	disposed bool
}

// NewEntity creates an Entity in the Unsynced state, not yet subscribed.
func NewEntity(channel string, logger *slog.Logger) *Entity {
	if logger == nil {
		logger = slog.Default()
	}
	return &Entity{channel: channel, state: Unsynced, logger: logger}
}

// Channel returns the channel name this entity tracks.
func (e *Entity) Channel() string { return e.channel }

// State returns the current subscription state.
func (e *Entity) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// OnEvent installs the Observer that receives this entity's lifecycle
// events. Only one Observer can be set; a later call replaces the earlier
// one.
func (e *Entity) OnEvent(o Observer) {
	e.mu.Lock()
	e.observer = o
	e.mu.Unlock()
}

// transition moves the entity to a new state and notifies the observer,
// must be called with e.mu held.
func (e *Entity) transition(to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	if e.observer != nil {
		e.observer.OnStateChange(e.channel, from, to)
	}
}

// BeginSubscribe marks the entity Subscribing, returning the recovery info
// (offset, epoch) to send on the wire if this is a reconnect resubscribe.
// Fails with ErrAlreadyDisposed if the entity has already been disposed.
func (e *Entity) BeginSubscribe(token string) (offset uint64, epoch string, recover bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return 0, "", false, &ErrAlreadyDisposed{Channel: e.channel}
	}
	e.token = token
	recover = e.epoch != ""
	e.transition(Subscribing)
	return e.offset, e.epoch, recover, nil
}

// ConfirmSubscribed applies a SubscribeResult and moves the entity to
// Synced, replaying any publications the server sent as part of recovery.
func (e *Entity) ConfirmSubscribed(result protocol.SubscribeResult) {
	e.mu.Lock()
	e.epoch = result.Epoch
	e.offset = result.Offset
	e.transition(Synced)
	obs := e.observer
	pubs := result.Publications
	e.mu.Unlock()

	if obs == nil {
		return
	}
	for _, pub := range pubs {
		obs.OnPublication(e.channel, pub.Data.Payload, pub.Offset)
	}
}

// FailSubscribe moves the entity to Error after a failed subscribe
// command, e.g. a protocol-level error reply or a local timeout.
func (e *Entity) FailSubscribe(err error) {
	e.mu.Lock()
	e.transition(Error)
	obs := e.observer
	e.mu.Unlock()
	if obs != nil {
		obs.OnError(e.channel, err)
	}
}

// HandlePublication applies an inbound publication push, advancing the
// tracked offset and notifying the observer. Publications out of order
// with the tracked offset are still delivered — the source material
// leaves gap-recovery to a future reconnect-and-resubscribe rather than
// rejecting the push outright.
func (e *Entity) HandlePublication(pub protocol.Publication) {
	e.mu.Lock()
	e.offset = pub.Offset
	obs := e.observer
	channel := e.channel
	e.mu.Unlock()
	if obs != nil {
		obs.OnPublication(channel, pub.Data.Payload, pub.Offset)
	}
}

// HandleKick applies a server-forced unsubscribe push.
func (e *Entity) HandleKick(unsub protocol.Unsub) {
	e.mu.Lock()
	e.transition(Unsubscribed)
	obs := e.observer
	channel := e.channel
	e.mu.Unlock()
	if obs != nil {
		obs.OnKick(channel, unsub.Code, unsub.Reason)
	}
}

// OnConnectivityChange reacts to the owning connection dropping or
// recovering. On disconnect the entity reverts to Unsynced so a future
// reconnect resubscribes it with recovery info attached; on recovery it
// moves to Synced. Unsubscribed and Error are left unchanged.
func (e *Entity) OnConnectivityChange(connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Unsubscribed || e.state == Error {
		return
	}
	if connected {
		e.transition(Synced)
	} else {
		e.transition(Unsynced)
	}
}

// RecoveryInfo returns the (offset, epoch) this entity would send to
// resume its stream on the next Connect or Subscribe command.
func (e *Entity) RecoveryInfo() (offset uint64, epoch string, recover bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offset, e.epoch, e.epoch != ""
}

// Dispose releases the entity. DisposeFinalizer logs a warning: it means
// the caller dropped a Subscription handle without calling Unsubscribe.
func (e *Entity) Dispose(mode DisposeMode) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	e.transition(Unsubscribed)
	channel := e.channel
	e.mu.Unlock()

	if mode == DisposeFinalizer {
		e.logger.Warn("subscription finalized without explicit unsubscribe", "channel", channel)
	}
}

// Disposed reports whether Dispose has already run.
func (e *Entity) Disposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

// ErrAlreadySubscribed is returned by Registry.Add when the channel is
// already tracked.
type ErrAlreadySubscribed struct{ Channel string }

func (e *ErrAlreadySubscribed) Error() string {
	return fmt.Sprintf("already subscribed to channel %q", e.Channel)
}

// ErrAlreadyUnsubscribed is returned when Unsubscribe is called on an
// entity that is no longer tracked.
type ErrAlreadyUnsubscribed struct{ Channel string }

func (e *ErrAlreadyUnsubscribed) Error() string {
	return fmt.Sprintf("already unsubscribed from channel %q", e.Channel)
}

// ErrAlreadyDisposed is returned by BeginSubscribe (and by the root
// package's Subscription.Unsubscribe) when called on an entity that has
// already been disposed.
type ErrAlreadyDisposed struct{ Channel string }

func (e *ErrAlreadyDisposed) Error() string {
	return fmt.Sprintf("subscription for channel %q is already disposed", e.Channel)
}
