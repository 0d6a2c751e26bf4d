package subscription

import (
	"sync"

	"github.com/nextlevelbuilder/wireclient/pkg/protocol"
)

// Registry tracks every channel the Client currently holds an Entity for,
// keyed by channel name.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Entity

	// onCountChanged is called with the new subscription count whenever an
	// entity is added or removed, matching this module's preference for a
	// single typed observer callback over a generic event bus.
	onCountChanged func(count int)
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*Entity)}
}

// OnCountChanged installs the callback invoked after every Add/Remove.
func (r *Registry) OnCountChanged(fn func(count int)) {
	r.mu.Lock()
	r.onCountChanged = fn
	r.mu.Unlock()
}

// Add registers a new entity for channel, failing if one is already
// tracked.
func (r *Registry) Add(channel string, entity *Entity) error {
	r.mu.Lock()
	if _, exists := r.subs[channel]; exists {
		r.mu.Unlock()
		return &ErrAlreadySubscribed{Channel: channel}
	}
	r.subs[channel] = entity
	count := len(r.subs)
	cb := r.onCountChanged
	r.mu.Unlock()

	if cb != nil {
		cb(count)
	}
	return nil
}

// Remove drops the entity for channel, failing if none is tracked.
func (r *Registry) Remove(channel string) error {
	r.mu.Lock()
	if _, exists := r.subs[channel]; !exists {
		r.mu.Unlock()
		return &ErrAlreadyUnsubscribed{Channel: channel}
	}
	delete(r.subs, channel)
	count := len(r.subs)
	cb := r.onCountChanged
	r.mu.Unlock()

	if cb != nil {
		cb(count)
	}
	return nil
}

// Get returns the entity for channel, if tracked.
func (r *Registry) Get(channel string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.subs[channel]
	return e, ok
}

// Contains reports whether channel is currently tracked.
func (r *Registry) Contains(channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[channel]
	return ok
}

// Count returns the number of tracked entities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// All returns every tracked entity. The slice is a snapshot; mutating the
// registry afterward doesn't affect it.
func (r *Registry) All() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entity, 0, len(r.subs))
	for _, e := range r.subs {
		out = append(out, e)
	}
	return out
}

// Recover notifies every tracked entity of a connectivity transition. The
// Connection Manager calls it with false when the transport closes;
// recovery after a reconnect goes through Entity.ConfirmSubscribed instead.
func (r *Registry) Recover(connected bool) {
	for _, e := range r.All() {
		e.OnConnectivityChange(connected)
	}
}

// SubscribeRequestsForReconnect builds the per-channel recovery block sent
// as part of the Connect command when reconnecting with existing
// subscriptions, keyed by channel name.
func (r *Registry) SubscribeRequestsForReconnect() map[string]protocol.SubRequest {
	entities := r.All()
	out := make(map[string]protocol.SubRequest, len(entities))
	for _, e := range entities {
		offset, epoch, recover := e.RecoveryInfo()
		out[e.Channel()] = protocol.SubRequest{Offset: offset, Epoch: epoch, Recover: recover}
	}
	return out
}

// Clear disposes and removes every tracked entity, used when the access
// identity changes (Connection Manager's OnIdentityChanged).
func (r *Registry) Clear() {
	entities := r.All()
	for _, e := range entities {
		e.Dispose(DisposeExplicit)
	}
	r.mu.Lock()
	r.subs = make(map[string]*Entity)
	count := 0
	cb := r.onCountChanged
	r.mu.Unlock()
	if cb != nil {
		cb(count)
	}
}
