// Package clock provides the default Scheduler used by the Connection
// Manager when a caller doesn't supply their own: a thin wrapper over
// time.AfterFunc/time.Timer behind the ScheduleAction/CancelAction contract.
package clock

import (
	"sync"
	"time"
)

// Scheduler runs delayed actions via time.AfterFunc, tracking each one by
// an id so it can be canceled before it fires.
type Scheduler struct {
	mu     sync.Mutex
	nextID uint64
	timers map[uint64]*time.Timer
}

// New creates a Scheduler.
func New() *Scheduler {
	return &Scheduler{timers: make(map[uint64]*time.Timer)}
}

// ScheduleAction runs fn after delay, returning an id that CancelAction can
// use to stop it before it fires. The id remains valid to cancel even after
// fn has run; canceling a fired action is a no-op.
func (s *Scheduler) ScheduleAction(fn func(), delay time.Duration) uint64 {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fn()
	})

	s.mu.Lock()
	s.timers[id] = timer
	s.mu.Unlock()
	return id
}

// CancelAction stops the action identified by id if it hasn't fired yet.
func (s *Scheduler) CancelAction(id uint64) {
	s.mu.Lock()
	timer, ok := s.timers[id]
	if ok {
		delete(s.timers, id)
	}
	s.mu.Unlock()
	if ok {
		timer.Stop()
	}
}
