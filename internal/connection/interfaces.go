package connection

import (
	"time"

	"github.com/nextlevelbuilder/wireclient/pkg/protocol"
)

// TransportState mirrors the lifecycle of the underlying WebSocket.
type TransportState int

const (
	TransportConnecting TransportState = iota
	TransportOpen
	TransportClosing
	TransportClosed
)

// TransportObserver receives events from a Transport. The Connection
// Manager is the only implementation; it's defined here so a Transport
// implementation only needs to import this package, not the root one.
type TransportObserver interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
	OnClose(code protocol.CloseCode)
}

// Transport is the external WebSocket collaborator. The core assumes
// text-mode frames but treats payloads as opaque bytes.
type Transport interface {
	Connect(address string, observer TransportObserver) error
	Send(data []byte) error
	Close() error
	State() TransportState
}

// Scheduler is the external action/timer collaborator. Actions run on
// whatever goroutine the Scheduler chooses to invoke fn from; the
// Connection Manager's dispatch loop is what actually serializes access
// to its own state, not the Scheduler.
type Scheduler interface {
	ScheduleAction(fn func(), delay time.Duration) (id uint64)
	CancelAction(id uint64)
}

// NetworkReachability is the external link-availability probe.
type NetworkReachability interface {
	IsReachable() bool
}

// TokenProvider supplies the bearer token for one channel subscription.
// The client re-calls it on every (re)subscribe. Implementations that fail
// to retrieve a token should return an error rather than an empty string.
type TokenProvider interface {
	GetToken() (channel string, token string, err error)
}

// MetricsSink receives the metrics named in the module's external
// interfaces: connection_state_change, subscription_count, command,
// message_received, push_received, websocket_error.
type MetricsSink interface {
	Counter(name string, value float64, tags map[string]string)
	Gauge(name string, value float64)
	Histogram(name string, valueMS float64, tags map[string]string)
}
