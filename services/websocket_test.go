package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, r.URL.Query().Get("user"))
	}))

	stop := func() {
		cancel()
		<-done
		srv.Close()
	}
	return hub, srv, stop
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, wait time.Duration) (WebSocketMessage, error) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(wait))
	var msg WebSocketMessage
	_, data, err := conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg, nil
}

func TestHub_NotifyUserStaysWithUser(t *testing.T) {
	hub, srv, stop := startHub(t)
	defer stop()

	ada := dial(t, srv, "ada")
	defer ada.Close()
	bob := dial(t, srv, "bob")
	defer bob.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount("ada") == 1 && hub.ClientCount("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.NotifyUser("ada", "agenda.changed", map[string]string{"table": "todolist"})

	msg, err := readMessage(t, ada, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "agenda.changed", msg.Type)

	_, err = readMessage(t, bob, 200*time.Millisecond)
	assert.Error(t, err, "other users get nothing")
}

func TestHub_PingPongAndRelay(t *testing.T) {
	hub, srv, stop := startHub(t)
	defer stop()

	tab1 := dial(t, srv, "ada")
	defer tab1.Close()
	tab2 := dial(t, srv, "ada")
	defer tab2.Close()
	require.Eventually(t, func() bool { return hub.ClientCount("ada") == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, tab1.WriteJSON(WebSocketMessage{Type: "ping"}))
	msg, err := readMessage(t, tab1, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pong", msg.Type)

	require.NoError(t, tab1.WriteJSON(WebSocketMessage{Type: "agenda.changed"}))
	msg, err = readMessage(t, tab2, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "agenda.changed", msg.Type)
	assert.Equal(t, "ada", msg.User)
}

func TestHub_Disconnect(t *testing.T) {
	hub, srv, stop := startHub(t)
	defer stop()

	conn := dial(t, srv, "ada")
	require.Eventually(t, func() bool { return hub.ClientCount("ada") == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount("ada") == 0 }, 2*time.Second, 10*time.Millisecond)

	// notifying a user without sessions is fine
	hub.NotifyUser("ada", "agenda.changed", nil)
}
