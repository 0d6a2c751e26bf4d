package protocol

import "testing"

func TestSplitFramesSingleDocument(t *testing.T) {
	replies, err := SplitFrames([]byte(`{"id":1,"connect":{"ping":25,"pong":true}}`))
	if err != nil {
		t.Fatalf("SplitFrames() error = %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("len(replies) = %d, want 1", len(replies))
	}
	if replies[0].ID != 1 {
		t.Errorf("replies[0].ID = %d, want 1", replies[0].ID)
	}
}

func TestSplitFramesBatched(t *testing.T) {
	data := []byte("{\"id\":1}\n{\"id\":2}\n{}\n")
	replies, err := SplitFrames(data)
	if err != nil {
		t.Fatalf("SplitFrames() error = %v", err)
	}
	if len(replies) != 3 {
		t.Fatalf("len(replies) = %d, want 3", len(replies))
	}
	if !replies[2].IsHeartbeat() {
		t.Errorf("replies[2] = %+v, want heartbeat", replies[2])
	}
}

func TestSplitFramesEmptyIsError(t *testing.T) {
	if _, err := SplitFrames([]byte("\n\n")); err == nil {
		t.Error("SplitFrames() on empty frame: got nil error, want error")
	}
}

func TestSplitFramesFailsWholeFrameOnPartialParse(t *testing.T) {
	data := []byte("{\"id\":1}\n{not json}\n{\"id\":2}\n")
	if _, err := SplitFrames(data); err == nil {
		t.Error("SplitFrames() with malformed document: got nil error, want error")
	}
}

func TestCloseCodeClassify(t *testing.T) {
	tests := []struct {
		code CloseCode
		want CloseClass
	}{
		{WebsocketAbnormalClosure, Reconnectable},
		{Disconnected, Reconnectable},
		{InvalidToken, Irrecoverable},
		{ForceNoReconnect, Irrecoverable},
		{WebsocketUnsupportedData, Irrecoverable},
		{WebsocketMandatoryExtension, Irrecoverable},
		{TokenVerificationFailed, TokenVerificationDelay},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			if got := tt.code.Classify(); got != tt.want {
				t.Errorf("%v.Classify() = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}
