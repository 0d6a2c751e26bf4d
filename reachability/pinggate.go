// Package reachability provides the default NetworkReachability gate: a
// single ICMP echo per poll via github.com/prometheus-community/pro-bing,
// used by the Connection Manager to decide whether a reconnect attempt
// after a dropped connection is worth making yet.
package reachability

import (
	"log/slog"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

const (
	// DefaultTarget is pinged when no Option overrides it.
	DefaultTarget      = "1.1.1.1"
	defaultPingTimeout = 2 * time.Second
)

// PingGate is a NetworkReachability implementation backed by ICMP echo.
// If ICMP is unavailable (e.g. the process lacks raw-socket permission),
// it falls back to reporting reachable so a host that simply can't send
// ICMP is never wedged waiting on a reachability signal it can never get;
// that fallback is logged once.
type PingGate struct {
	target  string
	timeout time.Duration
	logger  *slog.Logger

	once            sync.Once
	icmpUnavailable bool
}

// Option configures a PingGate.
type Option func(*PingGate)

// WithTarget overrides the pinged host.
func WithTarget(host string) Option {
	return func(g *PingGate) { g.target = host }
}

// WithTimeout overrides the per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *PingGate) { g.timeout = d }
}

// WithLogger sets the logger used for the ICMP-unavailable fallback
// warning.
func WithLogger(logger *slog.Logger) Option {
	return func(g *PingGate) { g.logger = logger }
}

// New creates a PingGate targeting DefaultTarget unless overridden.
func New(opts ...Option) *PingGate {
	g := &PingGate{
		target:  DefaultTarget,
		timeout: defaultPingTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsReachable issues one ICMP echo and reports whether it was answered.
func (g *PingGate) IsReachable() bool {
	pinger, err := probing.NewPinger(g.target)
	if err != nil {
		g.warnUnavailableOnce(err)
		return true
	}
	pinger.Count = 1
	pinger.Timeout = g.timeout
	pinger.SetPrivileged(true)

	if err := pinger.Run(); err != nil {
		g.warnUnavailableOnce(err)
		return true
	}
	stats := pinger.Statistics()
	return stats.PacketsRecv > 0
}

func (g *PingGate) warnUnavailableOnce(err error) {
	g.once.Do(func() {
		g.icmpUnavailable = true
		g.logger.Warn("icmp reachability probe unavailable, treating host as always reachable",
			"target", g.target, "error", err)
	})
}
