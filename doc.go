// Package wireclient is a real-time client for a Centrifuge-style JSON
// command/reply/push protocol carried over a single multiplexed WebSocket
// connection. It owns connection lifecycle (connect, reconnect with
// backoff, ping/pong liveness), command/reply correlation, and per-channel
// subscription bookkeeping including recovery after a reconnect.
//
// The default configuration is usable out of the box: a gorilla/websocket
// Transport, an ICMP-based reachability gate, a time.AfterFunc Scheduler,
// and a no-op MetricsSink. Every one of those is a plain interface a caller
// can substitute — see Config.
package wireclient
