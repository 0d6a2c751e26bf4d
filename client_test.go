package wireclient

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/wireclient/pkg/protocol"
)

type fakeTransport struct {
	mu       sync.Mutex
	observer TransportObserver
	sent     [][]byte
}

func (f *fakeTransport) Connect(address string, observer TransportObserver) error {
	f.observer = observer
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) State() TransportState { return TransportOpen }

func (f *fakeTransport) lastSent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type fakeScheduler struct{}

func (fakeScheduler) ScheduleAction(fn func(), delay time.Duration) uint64 { return 0 }
func (fakeScheduler) CancelAction(id uint64)                               {}

type alwaysReachable struct{}

func (alwaysReachable) IsReachable() bool { return true }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestClientConnectReachesConnected(t *testing.T) {
	ft := &fakeTransport{}
	c := New(Config{
		Address:             "ws://test",
		AccessToken:         "token",
		MaxServerPingDelay:  time.Second,
		Transport:           func() Transport { return ft },
		Scheduler:           fakeScheduler{},
		NetworkReachability: alwaysReachable{},
	})

	connectDone := make(chan error, 1)
	go func() { connectDone <- c.Connect(context.Background()) }()

	waitFor(t, func() bool { return ft.observer != nil })
	ft.observer.OnOpen()

	waitFor(t, func() bool { return ft.lastSent() != nil })
	ft.observer.OnMessage([]byte(`{"id":1,"connect":{"ping":25,"pong":true}}`))

	if err := <-connectDone; err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := c.State(); got != Connected {
		t.Fatalf("State() = %v, want Connected", got)
	}
}

func TestSubscriptionUnsubscribeDisposesEntity(t *testing.T) {
	ft := &fakeTransport{}
	c := New(Config{
		Address:             "ws://test",
		AccessToken:         "token",
		MaxServerPingDelay:  time.Second,
		Transport:           func() Transport { return ft },
		Scheduler:           fakeScheduler{},
		NetworkReachability: alwaysReachable{},
	})

	connectDone := make(chan error, 1)
	go func() { connectDone <- c.Connect(context.Background()) }()
	waitFor(t, func() bool { return ft.observer != nil })
	ft.observer.OnOpen()
	waitFor(t, func() bool { return ft.lastSent() != nil })
	ft.observer.OnMessage([]byte(`{"id":1,"connect":{"ping":25,"pong":true}}`))
	if err := <-connectDone; err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	sub, err := c.Subscribe("room.1", staticTokenProvider{channel: "room.1", token: "T"})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	waitFor(t, func() bool {
		data := ft.lastSent()
		if data == nil {
			return false
		}
		var cmd protocol.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			return false
		}
		return cmd.Method == protocol.MethodSubscribe
	})
	ft.observer.OnMessage([]byte(`{"id":2,"subscribe":{"epoch":"e1","offset":0}}`))
	waitFor(t, func() bool { return sub.State() == Synced })

	unsubDone := make(chan error, 1)
	go func() { unsubDone <- sub.Unsubscribe(context.Background()) }()
	var unsubCmd protocol.Command
	waitFor(t, func() bool {
		data := ft.lastSent()
		if data == nil {
			return false
		}
		var cmd protocol.Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Method != protocol.MethodUnsubscribe {
			return false
		}
		unsubCmd = cmd
		return true
	})
	ft.observer.OnMessage([]byte(`{"id":` + strconv.Itoa(int(unsubCmd.ID)) + `}`))

	if err := <-unsubDone; err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if got := sub.State(); got != Unsubscribed {
		t.Errorf("State() after Unsubscribe = %v, want Unsubscribed", got)
	}
}

type staticTokenProvider struct {
	channel string
	token   string
}

func (p staticTokenProvider) GetToken() (string, string, error) {
	return p.channel, p.token, nil
}
