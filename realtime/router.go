// Package realtime fans server events out to websocket connections grouped in rooms.
package realtime

import "campusmart/models"

//go:generate go run go.uber.org/mock/mockgen -source=router.go -destination=../mocks/mock_router.go -package=mocks

// Router delivers events to connections and rooms. Delivery is best effort:
// an event for a connection that is gone or too slow is dropped.
type Router interface {
	JoinRoom(connID, room string)
	LeaveRoom(connID, room string)
	BroadcastToRoom(room string, event models.ServerEvent, exceptConnID string)
	SendToConnection(connID string, event models.ServerEvent)
	Broadcast(event models.ServerEvent, exceptConnID string)
}

// UserRoom is the personal room every connection of a user joins
func UserRoom(userID string) string {
	return "user:" + userID
}

// ChatRoom is the room of connections currently viewing a chat
func ChatRoom(chatID string) string {
	return "chat:" + chatID
}
