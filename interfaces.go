package wireclient

import "github.com/nextlevelbuilder/wireclient/internal/connection"

// Transport is the external WebSocket collaborator a caller can supply in
// place of the transport/wsconn default.
type Transport = connection.Transport

// TransportObserver is implemented by the client internals; a custom
// Transport calls it to report connection lifecycle events.
type TransportObserver = connection.TransportObserver

// TransportState mirrors the lifecycle of the underlying WebSocket.
type TransportState = connection.TransportState

const (
	TransportConnecting = connection.TransportConnecting
	TransportOpen       = connection.TransportOpen
	TransportClosing    = connection.TransportClosing
	TransportClosed     = connection.TransportClosed
)

// Scheduler is the external action/timer collaborator a caller can supply
// in place of the clock default.
type Scheduler = connection.Scheduler

// NetworkReachability is the external link-availability probe a caller can
// supply in place of the reachability default.
type NetworkReachability = connection.NetworkReachability

// TokenProvider supplies the bearer token for one channel subscription.
// The client re-calls it on every (re)subscribe.
type TokenProvider = connection.TokenProvider

// MetricsSink receives the module's metrics. Supply telemetry.NewOTelSink
// or your own implementation in place of the no-op default.
type MetricsSink = connection.MetricsSink
