package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleConnections(w, r, userID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Connections(userID) == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestHub_PushesVoteUpdateToOwner(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	n := notice()
	conn := dialHub(t, hub, n.OwnerID)

	require.NoError(t, hub.VoteOccurred(context.Background(), n))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, MsgTypeVoteUpdate, msg.Type)
	data := msg.Data.(map[string]any)
	assert.Equal(t, n.EntityID.String(), data["entity_id"])
}

func TestHub_IgnoresOtherUsers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	n := notice()
	dialHub(t, hub, uuid.New())

	assert.Equal(t, 0, hub.SendToUser(n.OwnerID, []byte("{}")))
	assert.Equal(t, 0, hub.Connections(n.OwnerID))
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	user := uuid.New()
	conn := dialHub(t, hub, user)
	conn.Close()

	assert.Eventually(t, func() bool { return hub.Connections(user) == 0 }, time.Second, 5*time.Millisecond)
}
