package realtime

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"campusmart/models"
)

func newHub() *Hub {
	return NewHub(logs.GetLoggerFromLevel(slog.LevelDebug))
}

func attach(h *Hub, id, userID string, buffer int) *Client {
	c := NewClient(id, userID, nil, buffer, logs.GetLoggerFromLevel(slog.LevelDebug))
	h.Attach(c)
	return c
}

// drain returns the event names queued for c
func drain(t *testing.T, c *Client) []string {
	var names []string
	for {
		select {
		case data, ok := <-c.Outbound():
			if !ok {
				return names
			}
			var env models.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			names = append(names, env.Event)
		default:
			return names
		}
	}
}

func TestHub_BroadcastToRoom_Skips_Except_And_Outsiders(t *testing.T) {
	req := require.New(t)
	hub := newHub()
	a := attach(hub, "conn-a", "alice", 8)
	b := attach(hub, "conn-b", "bob", 8)
	c := attach(hub, "conn-c", "carol", 8)

	// Given alice and bob view the chat
	hub.JoinRoom("conn-a", ChatRoom("c1"))
	hub.JoinRoom("conn-b", ChatRoom("c1"))

	// When alice reads the chat
	hub.BroadcastToRoom(ChatRoom("c1"), models.MessagesRead{ChatID: "c1", UserID: "alice"}, "conn-a")

	// Then only bob hears about it
	req.Empty(drain(t, a))
	req.Equal([]string{models.EventMessagesRead}, drain(t, b))
	req.Empty(drain(t, c))
}

func TestHub_Broadcast_Reaches_Everyone_But_Except(t *testing.T) {
	req := require.New(t)
	hub := newHub()
	a := attach(hub, "conn-a", "alice", 8)
	b := attach(hub, "conn-b", "bob", 8)
	c := attach(hub, "conn-c", "carol", 8)

	hub.Broadcast(models.UserOnline{UserID: "alice"}, "conn-a")

	req.Empty(drain(t, a))
	req.Equal([]string{models.EventUserOnline}, drain(t, b))
	req.Equal([]string{models.EventUserOnline}, drain(t, c))
}

func TestHub_SendToConnection(t *testing.T) {
	req := require.New(t)
	hub := newHub()
	a := attach(hub, "conn-a", "alice", 8)
	b := attach(hub, "conn-b", "alice", 8)

	hub.SendToConnection("conn-b", models.MessageError{Error: "nope"})
	hub.SendToConnection("missing", models.MessageError{Error: "nope"})

	req.Empty(drain(t, a))
	req.Equal([]string{models.EventMessageError}, drain(t, b))
}

func TestHub_Detach_Leaves_All_Rooms(t *testing.T) {
	req := require.New(t)
	hub := newHub()
	a := attach(hub, "conn-a", "alice", 8)
	attach(hub, "conn-b", "bob", 8)

	hub.JoinRoom("conn-a", UserRoom("alice"))
	hub.JoinRoom("conn-a", ChatRoom("c1"))
	req.True(hub.InRoom("conn-a", ChatRoom("c1")))

	// When the connection goes away
	hub.Detach("conn-a")

	// Then it is in no room and its queue is closed
	req.False(hub.InRoom("conn-a", ChatRoom("c1")))
	req.False(hub.InRoom("conn-a", UserRoom("alice")))
	req.Equal(1, hub.ConnectionCount())
	_, ok := <-a.Outbound()
	req.False(ok)

	// And later sends are silently dropped
	hub.BroadcastToRoom(UserRoom("alice"), models.UserOffline{UserID: "x"}, "")
	hub.Detach("conn-a")
}

func TestHub_Full_Buffer_Drops_Event(t *testing.T) {
	req := require.New(t)
	hub := newHub()
	slow := attach(hub, "conn-slow", "alice", 1)

	hub.SendToConnection("conn-slow", models.UserOnline{UserID: "bob"})
	hub.SendToConnection("conn-slow", models.UserOffline{UserID: "bob"})

	// only the first event fits
	req.Equal([]string{models.EventUserOnline}, drain(t, slow))
}

func TestHub_LeaveRoom(t *testing.T) {
	req := require.New(t)
	hub := newHub()
	a := attach(hub, "conn-a", "alice", 8)

	hub.JoinRoom("conn-a", ChatRoom("c1"))
	hub.LeaveRoom("conn-a", ChatRoom("c1"))
	hub.BroadcastToRoom(ChatRoom("c1"), models.UserTyping{ChatID: "c1", UserID: "bob", IsTyping: true}, "")

	req.Empty(drain(t, a))

	// joining an unknown connection does nothing
	hub.JoinRoom("ghost", ChatRoom("c1"))
	req.False(hub.InRoom("ghost", ChatRoom("c1")))
}
