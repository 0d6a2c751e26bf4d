package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// HeartbeatFrame is the literal frame the server sends as a keepalive ping
// and the client echoes back as a pong.
var HeartbeatFrame = []byte("{}")

// Encode marshals a single outbound Command into the bytes written to the
// WebSocket connection. The client currently sends one command per frame;
// batching multiple commands into one frame is legal on the wire but not
// exercised by this client.
func Encode(cmd Command) ([]byte, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return b, nil
}

// Decode unmarshals a single JSON document into a Reply. Callers normally
// reach this through SplitFrames rather than calling it directly on a raw
// WebSocket message, since the server may batch several replies in one
// frame separated by newlines.
func Decode(doc []byte) (Reply, error) {
	var r Reply
	if err := json.Unmarshal(doc, &r); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return r, nil
}

// SplitFrames splits one inbound WebSocket message into its constituent
// newline-separated JSON documents and decodes each into a Reply. A frame
// containing zero documents (after trimming trailing newlines) is an
// error, not an empty result, since the server never sends a truly empty
// message. Any document that fails to parse fails the whole frame: the
// caller is expected to log and close the connection rather than skip the
// bad document and keep the rest, since a malformed document usually means
// the two sides have drifted out of sync on framing.
func SplitFrames(data []byte) ([]Reply, error) {
	docs := bytes.Split(bytes.Trim(data, "\n"), []byte("\n"))
	replies := make([]Reply, 0, len(docs))
	for i, doc := range docs {
		doc = bytes.TrimSpace(doc)
		if len(doc) == 0 {
			continue
		}
		r, err := Decode(doc)
		if err != nil {
			return nil, fmt.Errorf("frame document %d of %d: %w", i+1, len(docs), err)
		}
		replies = append(replies, r)
	}
	if len(replies) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	return replies, nil
}
