package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read websocket frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return frame
}

func TestWebSocketStream(t *testing.T) {
	env := setupRouter(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if frame := readFrame(t, conn); !isCount(1)(frame) {
		t.Fatalf("expected client-count 1, got %v", frame)
	}

	resp, err := http.Post(srv.URL+"/api/error", "application/json", strings.NewReader(`{"message":"over ws"}`))
	if err != nil {
		t.Fatalf("post report: %v", err)
	}
	resp.Body.Close()

	if frame := readFrame(t, conn); !isError("over ws")(frame) {
		t.Fatalf("expected error frame, got %v", frame)
	}

	conn.Close()
	waitFor(t, 2*time.Second, func() bool { return env.hub.ClientCount() == 0 })
}
