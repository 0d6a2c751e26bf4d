package wsconn

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/wireclient/internal/connection"
	"github.com/nextlevelbuilder/wireclient/pkg/protocol"
)

func TestConnConnectSendReceive(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- msg

		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1}`)); err != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	c := New()
	obs := &testObserver{msgs: make(chan []byte, 4)}
	if err := c.Connect(wsURL, obs); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if err := c.Send([]byte(`{"id":1,"method":"connect"}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case got := <-received:
		if string(got) != `{"id":1,"method":"connect"}` {
			t.Errorf("server received %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("server never received the message")
	}

	select {
	case msg := <-obs.msgs:
		if string(msg) != `{"id":1}` {
			t.Errorf("client received %s, want {\"id\":1}", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("client never received the reply")
	}

	if c.State() != connection.TransportOpen {
		t.Errorf("State() = %v, want TransportOpen", c.State())
	}
}

type testObserver struct {
	msgs chan []byte
}

func (o *testObserver) OnOpen()                         {}
func (o *testObserver) OnMessage(d []byte)              { o.msgs <- d }
func (o *testObserver) OnError(err error)               {}
func (o *testObserver) OnClose(code protocol.CloseCode) {}
