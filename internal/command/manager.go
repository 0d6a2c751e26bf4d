// Package command implements request/reply correlation over the wire
// protocol: every outbound Command gets a monotonically increasing id,
// and the manager resolves the matching Reply (or a local timeout, or a
// disconnect) to whichever goroutine is awaiting it.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/wireclient/pkg/protocol"
)

// MetricsSink receives command-level metrics. The root package's no-op and
// OpenTelemetry-backed sinks both satisfy this.
type MetricsSink interface {
	ObserveCommandLatency(method string, result string, d time.Duration)
}

type noopMetricsSink struct{}

func (noopMetricsSink) ObserveCommandLatency(string, string, time.Duration) {}

// Manager assigns command ids and correlates replies. The id counter is
// shared across the process's lifetime of one Manager instance — it never
// resets on reconnect, so a stale reply from a previous connection can
// never be mistaken for the answer to a fresh command.
type Manager struct {
	counter uint32 // atomic; next id to hand out

	mu      sync.Mutex
	pending map[uint32]pendingEntry

	timeout time.Duration
	metrics MetricsSink
	logger  *slog.Logger
}

// outcome is what a pending command's channel carries: exactly one of a
// reply or an error (a disconnect while the command was outstanding).
type outcome struct {
	reply protocol.Reply
	err   error
}

// pendingEntry pairs a reply channel with the method name, so a disconnect
// can report which method each interrupted command was.
type pendingEntry struct {
	ch     chan outcome
	method string
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithTimeout overrides the default per-command reply timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithMetrics overrides the default no-op MetricsSink.
func WithMetrics(sink MetricsSink) Option {
	return func(m *Manager) { m.metrics = sink }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

const defaultTimeout = 10 * time.Second

// New creates a Manager. The command id counter starts at 1; 0 is reserved
// for server pushes and is never handed out as a command id.
func New(opts ...Option) *Manager {
	m := &Manager{
		pending: make(map[uint32]pendingEntry),
		timeout: defaultTimeout,
		metrics: noopMetricsSink{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NextID returns the next command id, starting at 1.
func (m *Manager) NextID() uint32 {
	return atomic.AddUint32(&m.counter, 1)
}

// PendingHandle is the opaque token returned by Register and consumed by
// Await; it exists so callers can't accidentally read a bare channel twice.
type PendingHandle struct {
	ch <-chan outcome
}

// Register allocates a reply slot for a command id already chosen via
// NextID. The caller must call Send (to hand the encoded command to the
// transport) after Register, and must eventually call Forget if it stops
// waiting without having called Await.
func (m *Manager) Register(id uint32, method string) PendingHandle {
	ch := make(chan outcome, 1)
	m.mu.Lock()
	m.pending[id] = pendingEntry{ch: ch, method: method}
	m.mu.Unlock()
	return PendingHandle{ch: ch}
}

// Await blocks until a reply for id arrives, the connection drops, ctx is
// done, or the configured command timeout elapses, whichever comes first.
// It always removes the pending entry before returning.
func (m *Manager) Await(ctx context.Context, method string, id uint32, h PendingHandle) (protocol.Reply, error) {
	start := time.Now()
	defer m.Forget(id)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case o, ok := <-h.ch:
		if !ok || o.err != nil {
			m.metrics.ObserveCommandLatency(method, "interrupted", time.Since(start))
			if o.err != nil {
				return protocol.Reply{}, o.err
			}
			return protocol.Reply{}, &InterruptedError{ID: id, Method: method}
		}
		m.metrics.ObserveCommandLatency(method, "ok", time.Since(start))
		return o.reply, nil
	case <-timer.C:
		m.metrics.ObserveCommandLatency(method, "timeout", time.Since(start))
		return protocol.Reply{}, &TimeoutError{ID: id, Method: method, Timeout: m.timeout}
	case <-ctx.Done():
		m.metrics.ObserveCommandLatency(method, "canceled", time.Since(start))
		return protocol.Reply{}, ctx.Err()
	}
}

// Forget removes a pending entry without waiting on it, used when a caller
// gives up before Await is reached.
func (m *Manager) Forget(id uint32) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// Resolve delivers an inbound Reply to its matching pending command, if
// any. It returns false if no command with that id is outstanding — the
// caller should log this as an unexpected reply rather than treat it as
// an error, since a reply can legitimately arrive just after its waiter
// timed out and was forgotten.
func (m *Manager) Resolve(reply protocol.Reply) bool {
	m.mu.Lock()
	entry, ok := m.pending[reply.ID]
	if ok {
		delete(m.pending, reply.ID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	entry.ch <- outcome{reply: reply}
	return true
}

// FailAll resolves every outstanding command with an InterruptedError
// carrying the given close code, used when the connection drops out from
// under commands still awaiting a reply.
func (m *Manager) FailAll(code protocol.CloseCode) int {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[uint32]pendingEntry)
	m.mu.Unlock()

	for id, entry := range pending {
		entry.ch <- outcome{err: &InterruptedError{ID: id, Method: entry.method, CloseCode: code}}
		m.logger.Debug("command interrupted by disconnect", "id", id, "close_code", code)
	}
	return len(pending)
}

// Pending returns the number of commands currently awaiting a reply.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// TimeoutError is returned by Await when no reply arrives within the
// configured command timeout.
type TimeoutError struct {
	ID      uint32
	Method  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %d (%s): no reply within %s", e.ID, e.Method, e.Timeout)
}

// InterruptedError is returned by Await when the connection drops while
// the command is still outstanding.
type InterruptedError struct {
	ID        uint32
	Method    string
	CloseCode protocol.CloseCode
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("command %d (%s): connection closed (%s)", e.ID, e.Method, e.CloseCode)
}
