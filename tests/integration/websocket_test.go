//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"slguard/internal/models"
)

type feedMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialFeed(t *testing.T, ts *TestServer) *gorillaws.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws/alerts"
	conn, resp, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect to WebSocket: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("expected status 101, got %d", resp.StatusCode)
	}

	waitFor(t, "client registration", func() bool { return ts.Hub.ClientCount() == 1 })
	return conn
}

// readUntil читает сообщения ленты, пока не встретит нужный тип
func readUntil(t *testing.T, conn *gorillaws.Conn, msgType string) feedMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg feedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s message: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestWebSocket_PositionFeed_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	conn := dialFeed(t, ts)
	defer conn.Close()

	ts.Broker.PushFill("ord-1", models.SideBuy, 100, "250.00")

	msg := readUntil(t, conn, "position")
	var pos models.Position
	if err := json.Unmarshal(msg.Data, &pos); err != nil {
		t.Fatalf("failed to decode position: %v", err)
	}
	if pos.Figi != figiSBER {
		t.Errorf("expected figi %s, got %s", figiSBER, pos.Figi)
	}
}

func TestWebSocket_OrderFailureAlert_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	conn := dialFeed(t, ts)
	defer conn.Close()

	ts.Broker.SetFailPlace(true)
	ts.Broker.PushFill("ord-1", models.SideBuy, 100, "250.00")

	msg := readUntil(t, conn, "alert")
	var alert models.Alert
	if err := json.Unmarshal(msg.Data, &alert); err != nil {
		t.Fatalf("failed to decode alert: %v", err)
	}
	if alert.Type != models.AlertOrderFailed {
		t.Errorf("expected %s alert, got %s", models.AlertOrderFailed, alert.Type)
	}
	if alert.Figi != figiSBER {
		t.Errorf("expected figi %s, got %s", figiSBER, alert.Figi)
	}
}

func TestWebSocket_Disconnect_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	conn := dialFeed(t, ts)
	conn.Close()

	waitFor(t, "client unregistration", func() bool { return ts.Hub.ClientCount() == 0 })
}
