// Package protocol defines the wire format for the Centrifuge-style
// command/reply/push protocol spoken over the WebSocket connection. This
// package is importable on its own by alternative transports or test
// tooling without pulling in the connection manager.
package protocol

import "encoding/json"

// Method names. A Command carries at most one method-specific payload,
// named the same as the method.
const (
	MethodConnect     = "connect"
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"
	MethodPublish     = "publish"
)

// Command is an outbound client request. Id is drawn from a monotonically
// increasing counter starting at 1; 0 is reserved for pushes, never used
// on an outbound Command.
type Command struct {
	ID          uint32              `json:"id,omitempty"`
	Method      string              `json:"method,omitempty"`
	Connect     *ConnectRequest     `json:"connect,omitempty"`
	Subscribe   *SubscribeRequest   `json:"subscribe,omitempty"`
	Unsubscribe *UnsubscribeRequest `json:"unsubscribe,omitempty"`
	Publish     *PublishRequest     `json:"publish,omitempty"`
}

// ConnectRequest authenticates the session and carries the reconnect
// subscription list for recovery.
type ConnectRequest struct {
	Token string            `json:"token"`
	Subs  map[string]SubRequest `json:"subs,omitempty"`
}

// SubRequest describes one channel's recovery state, sent as part of the
// Connect command so the server can resume streams in place.
type SubRequest struct {
	Recover bool   `json:"recover,omitempty"`
	Offset  uint64 `json:"offset,omitempty"`
	Epoch   string `json:"epoch,omitempty"`
}

// SubscribeRequest subscribes to a single channel.
type SubscribeRequest struct {
	Channel string `json:"channel"`
	Token   string `json:"token,omitempty"`
	Recover bool   `json:"recover,omitempty"`
	Offset  uint64 `json:"offset,omitempty"`
	Epoch   string `json:"epoch,omitempty"`
}

// UnsubscribeRequest leaves a channel.
type UnsubscribeRequest struct {
	Channel string `json:"channel"`
}

// PublishRequest publishes opaque data on a channel.
type PublishRequest struct {
	Channel string `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Reply is an inbound frame matched to a Command by ID, or an unsolicited
// push when ID is 0 and Push is set. An inbound frame with ID 0 and no
// Push field is the server heartbeat (the literal two-byte `{}`), decoded
// as a zero-value Reply.
type Reply struct {
	ID        uint32           `json:"id,omitempty"`
	Error     *ReplyError      `json:"error,omitempty"`
	Connect   *ConnectResult   `json:"connect,omitempty"`
	Subscribe *SubscribeResult `json:"subscribe,omitempty"`
	Push      *Push            `json:"push,omitempty"`
	// Result carries the raw method-specific result for shapes not
	// otherwise named above, e.g. the result.data.data.payload single
	// publication form some server versions use in place of
	// SubscribeResult.Publications. See SingleEmbeddedPublication.
	Result json.RawMessage `json:"result,omitempty"`
}

// IsHeartbeat reports whether this reply is the server ping frame: no id,
// no error, no result, no push.
func (r Reply) IsHeartbeat() bool {
	return r.ID == 0 && r.Error == nil && r.Connect == nil && r.Subscribe == nil && r.Push == nil && len(r.Result) == 0
}

// ReplyError carries a protocol-level failure for a specific command.
type ReplyError struct {
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

func (e *ReplyError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// ConnectResult is the server's handshake acknowledgement.
type ConnectResult struct {
	Ping uint32 `json:"ping"` // seconds
	Pong bool   `json:"pong"`
	// Subs carries reconnect recovery info for channels the reconnecting
	// client already mentioned in its Connect command, keyed by channel.
	// The exact shape of this block is not fully pinned down by the
	// source material; this is the dialect this client targets.
	Subs map[string]SubscribeResult `json:"subs,omitempty"`
}

// SubscribeResult is the server's subscribe acknowledgement.
type SubscribeResult struct {
	Epoch        string        `json:"epoch"`
	Offset       uint64        `json:"offset"`
	Recoverable  bool          `json:"recoverable,omitempty"`
	Publications []Publication `json:"publications,omitempty"`
}

// Push is an unsolicited server-to-client message, typed by which
// sub-object is present.
type Push struct {
	Channel string  `json:"channel"`
	Pub     *Publication `json:"pub,omitempty"`
	Unsub   *Unsub       `json:"unsub,omitempty"`
}

// Publication is one ordered message on a channel.
type Publication struct {
	Offset uint64          `json:"offset"`
	Data   PublicationData `json:"data"`
}

// PublicationData carries the opaque application payload. Payload is
// UTF-8 text that the subscriber may also interpret as raw bytes.
//
// Some server replies embed a single publication at
// result.data.data.payload instead of result.publications[]; see
// SingleEmbeddedPublication.
type PublicationData struct {
	Payload string `json:"payload"`
}

// Unsub is pushed when the server forcibly removes a subscription
// ("kick").
type Unsub struct {
	Code   uint32 `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// SingleEmbeddedPublication extracts the `result.data.data.payload` form
// some server replies use instead of a publications array. Returns ok=false
// if the shape isn't present. Callers that find a single embedded
// publication must increment offset by one themselves — the server does
// not echo an offset for this form.
func SingleEmbeddedPublication(raw json.RawMessage) (payload string, ok bool) {
	var wrapper struct {
		Data struct {
			Data struct {
				Payload string `json:"payload"`
			} `json:"data"`
		} `json:"data"`
	}
	if len(raw) == 0 {
		return "", false
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return "", false
	}
	if wrapper.Data.Data.Payload == "" {
		return "", false
	}
	return wrapper.Data.Data.Payload, true
}
