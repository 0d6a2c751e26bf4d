package wireclient

import (
	"context"
	"runtime"

	"github.com/nextlevelbuilder/wireclient/internal/connection"
	"github.com/nextlevelbuilder/wireclient/internal/subscription"
)

// SubscriptionState is a channel subscription's lifecycle state: Unsynced,
// Subscribing, Synced, Unsubscribed, or Error.
type SubscriptionState = subscription.State

const (
	Unsynced     = subscription.Unsynced
	Subscribing  = subscription.Subscribing
	Synced       = subscription.Synced
	Unsubscribed = subscription.Unsubscribed
	SubscribeErr = subscription.Error
)

// SubscriptionObserver receives lifecycle events for one Subscription. Set
// at most one per Subscription via OnEvent.
type SubscriptionObserver = subscription.Observer

// Subscription is a handle to one channel's subscription. Call Unsubscribe
// when done with it; if a handle is garbage collected without an explicit
// Unsubscribe, its finalizer disposes it and logs a warning, since that
// means the caller leaked a handle instead of unsubscribing cleanly.
type Subscription struct {
	entity  *subscription.Entity
	manager *connection.Manager
}

func newSubscription(entity *subscription.Entity, manager *connection.Manager) *Subscription {
	s := &Subscription{entity: entity, manager: manager}
	runtime.SetFinalizer(s, func(s *Subscription) {
		if !s.entity.Disposed() {
			s.entity.Dispose(subscription.DisposeFinalizer)
		}
	})
	return s
}

// Channel returns the subscribed channel name.
func (s *Subscription) Channel() string { return s.entity.Channel() }

// State returns the subscription's current lifecycle state.
func (s *Subscription) State() SubscriptionState { return s.entity.State() }

// OnEvent installs the observer that receives this subscription's
// publications, kicks, errors, and state transitions.
func (s *Subscription) OnEvent(o SubscriptionObserver) { s.entity.OnEvent(o) }

// Unsubscribe leaves the channel: sends an Unsubscribe command if
// currently connected, then disposes the local entity explicitly,
// disarming the finalizer's own disposal. Fails with Disposed if the
// entity has already been disposed.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	if s.entity.Disposed() {
		return &subscription.ErrAlreadyDisposed{Channel: s.entity.Channel()}
	}
	runtime.SetFinalizer(s, nil)
	return s.manager.UnsubscribeChannel(ctx, s.entity.Channel())
}
