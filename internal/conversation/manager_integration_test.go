package conversation

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/deskwire/deskwire/internal/broker"
)

// wsFrame mirrors the broker wire envelope for the scripted server.
type wsFrame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// scriptedBroker accepts one connection, confirms every subscribe, and
// records unsubscribes.
type scriptedBroker struct {
	server *httptest.Server

	mu           sync.Mutex
	conn         *websocket.Conn
	unsubscribed []string
	subscribedCh chan string
}

func newScriptedBroker(t *testing.T) *scriptedBroker {
	t.Helper()
	b := &scriptedBroker{subscribedCh: make(chan string, 8)}
	upgrader := websocket.Upgrader{}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		established, _ := json.Marshal(map[string]string{"socket_id": "77.123"})
		b.write(wsFrame{Event: "pusher:connection_established", Data: established})
		for {
			var f wsFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			var payload struct {
				Channel string `json:"channel"`
			}
			_ = json.Unmarshal(f.Data, &payload)
			switch f.Event {
			case "pusher:subscribe":
				b.write(wsFrame{Event: "pusher_internal:subscription_succeeded", Channel: payload.Channel})
				b.subscribedCh <- payload.Channel
			case "pusher:unsubscribe":
				b.mu.Lock()
				b.unsubscribed = append(b.unsubscribed, payload.Channel)
				b.mu.Unlock()
			}
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *scriptedBroker) write(f wsFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.WriteJSON(f)
	}
}

func (b *scriptedBroker) push(t *testing.T, channel, event string, data any) {
	t.Helper()
	inner, err := json.Marshal(data)
	require.NoError(t, err)
	quoted, err := json.Marshal(string(inner))
	require.NoError(t, err)
	b.write(wsFrame{Event: event, Channel: channel, Data: quoted})
}

func (b *scriptedBroker) config(t *testing.T) broker.Config {
	t.Helper()
	u, err := url.Parse(b.server.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return broker.Config{Key: "key", Host: host, Port: port, Scheme: "ws"}
}

type allowAllAuthorizer struct{}

func (allowAllAuthorizer) Authorize(ctx context.Context, socketID, channel string) (broker.AuthResponse, error) {
	return broker.AuthResponse{Auth: "sig"}, nil
}

func TestManagerEndToEndOverWebsocket(t *testing.T) {
	t.Parallel()

	b := newScriptedBroker(t)
	provider := broker.NewProvider(nil, b.config(t), allowAllAuthorizer{})
	m := NewManager(nil, provider, "u1", "Me")
	m.SetShutdownGrace(10 * time.Millisecond)

	events := make(chan Event, 8)
	require.NoError(t, m.Subscribe(context.Background(), "42", func(ev Event) {
		events <- ev
	}))

	select {
	case name := <-b.subscribedCh:
		require.Equal(t, "private-chat.42", name)
	case <-time.After(2 * time.Second):
		t.Fatal("broker never saw the subscribe")
	}
	select {
	case ev := <-events:
		require.Equal(t, KindSubscribed, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation never reached the handler")
	}

	b.push(t, "private-chat.42", "message-sent", map[string]any{
		"id":              9,
		"conversation_id": 42,
		"user_id":         3,
		"user":            map[string]any{"id": 3, "name": "Casey"},
		"body":            "hello from the wire",
		"created_at":      "2026-08-30T12:00:00Z",
	})
	select {
	case ev := <-events:
		require.Equal(t, KindMessage, ev.Kind)
		require.Equal(t, "hello from the wire", ev.Message.Body)
		require.Equal(t, "Casey", ev.Message.Sender.Name)
		require.Nil(t, ev.Message.Sender.Email)
		require.Empty(t, ev.Message.Attachments)
	case <-time.After(2 * time.Second):
		t.Fatal("message never reached the handler")
	}

	m.Shutdown(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for {
		b.mu.Lock()
		done := len(b.unsubscribed) == 1
		b.mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("broker never saw the unsubscribe")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
