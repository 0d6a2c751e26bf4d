package clock

import (
	"testing"
	"time"
)

func TestScheduleActionFires(t *testing.T) {
	s := New()
	done := make(chan struct{})
	s.ScheduleAction(func() { close(done) }, 5*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("action did not fire")
	}
}

func TestCancelActionPreventsFire(t *testing.T) {
	s := New()
	fired := make(chan struct{})
	id := s.ScheduleAction(func() { close(fired) }, 50*time.Millisecond)
	s.CancelAction(id)

	select {
	case <-fired:
		t.Fatal("canceled action fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelUnknownActionIsNoop(t *testing.T) {
	s := New()
	s.CancelAction(999)
}
