package protocol

import (
	"encoding/json"
	"testing"
)

func TestCommandEncodeOmitsUnsetMethods(t *testing.T) {
	cmd := Command{
		ID:     1,
		Method: MethodSubscribe,
		Subscribe: &SubscribeRequest{
			Channel: "news",
		},
	}
	b, err := Encode(cmd)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal encoded command: %v", err)
	}
	if _, ok := raw["connect"]; ok {
		t.Errorf("encoded command has unexpected \"connect\" field: %s", b)
	}
	if _, ok := raw["subscribe"]; !ok {
		t.Errorf("encoded command missing \"subscribe\" field: %s", b)
	}
}

func TestReplyIsHeartbeat(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want bool
	}{
		{"heartbeat", `{}`, true},
		{"reply with id", `{"id":1}`, false},
		{"error reply", `{"id":2,"error":{"code":100,"message":"bad"}}`, false},
		{"push", `{"push":{"channel":"news","pub":{"offset":1,"data":{"payload":"hi"}}}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decode([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got := r.IsHeartbeat(); got != tt.want {
				t.Errorf("IsHeartbeat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReplyErrorNilSafe(t *testing.T) {
	var e *ReplyError
	if got := e.Error(); got != "" {
		t.Errorf("nil ReplyError.Error() = %q, want empty string", got)
	}
}

func TestSingleEmbeddedPublication(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantPayload string
		wantOK      bool
	}{
		{
			name:        "present",
			raw:         `{"data":{"data":{"payload":"hello"}}}`,
			wantPayload: "hello",
			wantOK:      true,
		},
		{
			name:   "absent",
			raw:    `{"epoch":"abc","offset":3}`,
			wantOK: false,
		},
		{
			name:   "empty",
			raw:    ``,
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, ok := SingleEmbeddedPublication(json.RawMessage(tt.raw))
			if ok != tt.wantOK {
				t.Errorf("SingleEmbeddedPublication() ok = %v, want %v", ok, tt.wantOK)
			}
			if payload != tt.wantPayload {
				t.Errorf("SingleEmbeddedPublication() payload = %q, want %q", payload, tt.wantPayload)
			}
		})
	}
}
