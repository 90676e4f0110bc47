// Package presence tracks which users are online and through which connections.
package presence

import (
	"log/slog"
	"sort"
	"sync"

	"campusmart/metrics"
	"campusmart/models"
	"campusmart/realtime"
)

// Table maps users to their live connections. A user stays online until
// the last of their connections unregisters.
type Table struct {
	mu     sync.Mutex
	router realtime.Router
	log    *slog.Logger
	users  map[string][]string // user id -> conn ids, oldest first
	conns  map[string]string   // conn id -> user id
}

func NewTable(router realtime.Router, log *slog.Logger) *Table {
	return &Table{
		router: router,
		log:    log,
		users:  make(map[string][]string),
		conns:  make(map[string]string),
	}
}

// Register binds connID to userID, joins the user's personal room and tells
// every other connection the user is online. Registering the same pair
// twice does nothing the second time.
func (t *Table) Register(userID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if owner, ok := t.conns[connID]; ok {
		if owner == userID {
			return
		}
		t.unregisterLocked(connID)
	}

	t.conns[connID] = userID
	t.users[userID] = append(t.users[userID], connID)
	metrics.OnlineUsers.Set(float64(len(t.users)))

	// events go out under the lock so observers see online/offline in order
	t.router.JoinRoom(connID, realtime.UserRoom(userID))
	t.router.Broadcast(models.UserOnline{UserID: userID}, connID)
	t.log.Info("User online", "user_id", userID, "conn_id", connID, "connections", len(t.users[userID]))
}

// Unregister drops connID. Unknown connections are ignored. It returns the
// user the connection belonged to and whether that user just went offline.
func (t *Table) Unregister(connID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unregisterLocked(connID)
}

func (t *Table) unregisterLocked(connID string) (string, bool) {
	userID, ok := t.conns[connID]
	if !ok {
		return "", false
	}
	delete(t.conns, connID)
	t.router.LeaveRoom(connID, realtime.UserRoom(userID))

	remaining := t.users[userID][:0]
	for _, id := range t.users[userID] {
		if id != connID {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) > 0 {
		t.users[userID] = remaining
		return userID, false
	}

	delete(t.users, userID)
	metrics.OnlineUsers.Set(float64(len(t.users)))
	t.router.Broadcast(models.UserOffline{UserID: userID}, connID)
	t.log.Info("User offline", "user_id", userID)
	return userID, true
}

// Resolve returns the most recently registered connection of userID
func (t *Table) Resolve(userID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conns := t.users[userID]
	if len(conns) == 0 {
		return "", false
	}
	return conns[len(conns)-1], true
}

// IsOnline reports whether userID has at least one registered connection
func (t *Table) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users[userID]) > 0
}

// OnlineUsers lists online user ids in ascending order
func (t *Table) OnlineUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.users))
	for id := range t.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Connections returns how many connections userID has registered
func (t *Table) Connections(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users[userID])
}
