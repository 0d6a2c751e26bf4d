package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/wireclient/pkg/protocol"
)

func TestAwaitResolvesOnReply(t *testing.T) {
	m := New(WithTimeout(time.Second))
	id := m.NextID()
	h := m.Register(id, protocol.MethodSubscribe)

	go func() {
		if !m.Resolve(protocol.Reply{ID: id, Subscribe: &protocol.SubscribeResult{Epoch: "e1"}}) {
			t.Error("Resolve() = false, want true")
		}
	}()

	reply, err := m.Await(context.Background(), protocol.MethodSubscribe, id, h)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if reply.Subscribe == nil || reply.Subscribe.Epoch != "e1" {
		t.Errorf("Await() reply = %+v, want Subscribe.Epoch=e1", reply)
	}
	if n := m.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	m := New(WithTimeout(10 * time.Millisecond))
	id := m.NextID()
	h := m.Register(id, protocol.MethodConnect)

	_, err := m.Await(context.Background(), protocol.MethodConnect, id, h)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Await() error = %v, want *TimeoutError", err)
	}
	if timeoutErr.ID != id {
		t.Errorf("TimeoutError.ID = %d, want %d", timeoutErr.ID, id)
	}
}

func TestAwaitCanceledByContext(t *testing.T) {
	m := New(WithTimeout(time.Second))
	id := m.NextID()
	h := m.Register(id, protocol.MethodPublish)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Await(ctx, protocol.MethodPublish, id, h)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Await() error = %v, want context.Canceled", err)
	}
}

func TestFailAllInterruptsPendingCommands(t *testing.T) {
	m := New(WithTimeout(time.Second))
	id1 := m.NextID()
	h1 := m.Register(id1, protocol.MethodSubscribe)
	id2 := m.NextID()
	h2 := m.Register(id2, protocol.MethodUnsubscribe)

	done := make(chan struct{})
	go func() {
		n := m.FailAll(protocol.WebsocketAbnormalClosure)
		if n != 2 {
			t.Errorf("FailAll() = %d, want 2", n)
		}
		close(done)
	}()
	<-done

	for _, tc := range []struct {
		id uint32
		h  PendingHandle
	}{{id1, h1}, {id2, h2}} {
		_, err := m.Await(context.Background(), "", tc.id, tc.h)
		var interrupted *InterruptedError
		if !errors.As(err, &interrupted) {
			t.Errorf("Await() error = %v, want *InterruptedError", err)
		}
	}
}

func TestResolveUnknownIDReturnsFalse(t *testing.T) {
	m := New()
	if m.Resolve(protocol.Reply{ID: 999}) {
		t.Error("Resolve() on unregistered id = true, want false")
	}
}
