package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"campusmart/apperr"
	"campusmart/middleware"
	"campusmart/models"
	"campusmart/presence"
	"campusmart/realtime"
	"campusmart/services"
)

var validate = validator.New()

// AccountStore is what the auth endpoints need from the database
type AccountStore interface {
	middleware.SessionStore
	CreateUser(ctx context.Context, username, email, password string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type Options struct {
	SessionTTL     time.Duration
	SendBufferSize int
	MaxUploadBytes int64
}

// Handler serves the REST API and the websocket endpoint
type Handler struct {
	accounts AccountStore
	chats    *services.ChatService
	presence *presence.Table
	hub      *realtime.Hub
	log      *slog.Logger
	opts     Options
	upgrader websocket.Upgrader

	// connection read loops still running
	conns sync.WaitGroup
}

func New(accounts AccountStore, chats *services.ChatService, table *presence.Table, hub *realtime.Hub, log *slog.Logger, opts Options) *Handler {
	return &Handler{
		accounts: accounts,
		chats:    chats,
		presence: table,
		hub:      hub,
		log:      log,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}
}

// Drain waits until every websocket read loop has finished, or ctx ends.
// Call it after the hub is closed and before the store goes away.
func (h *Handler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Routes registers every endpoint on r
func (h *Handler) Routes(r *mux.Router) {
	auth := middleware.Auth(h.accounts)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/signup", h.Signup).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	api.Handle("/auth/me", auth(http.HandlerFunc(h.Me))).Methods(http.MethodGet)

	chats := api.PathPrefix("/chats").Subrouter()
	chats.Use(auth)
	chats.HandleFunc("", h.GetChats).Methods(http.MethodGet)
	chats.HandleFunc("/", h.GetChats).Methods(http.MethodGet)
	chats.HandleFunc("/access", h.AccessChat).Methods(http.MethodPost)
	chats.HandleFunc("/online-users", h.GetOnlineUsers).Methods(http.MethodGet)
	chats.HandleFunc("/block", h.BlockUser).Methods(http.MethodPost)
	chats.HandleFunc("/unblock", h.UnblockUser).Methods(http.MethodPost)
	chats.HandleFunc("/message/{messageId}", h.DeleteMessage).Methods(http.MethodDelete)
	chats.HandleFunc("/{chatId}/message", h.SendMessage).Methods(http.MethodPost)
	chats.HandleFunc("/{chatId}/file", h.SendFileMessage).Methods(http.MethodPost)
	chats.HandleFunc("/{chatId}/messages", h.GetMessages).Methods(http.MethodGet)
	chats.HandleFunc("/{chatId}/search", h.SearchMessages).Methods(http.MethodGet)
	chats.HandleFunc("/{chatId}/read", h.MarkAsRead).Methods(http.MethodPut)
	chats.HandleFunc("/{chatId}/unread", h.GetUnreadCount).Methods(http.MethodGet)

	r.Handle("/ws", auth(http.HandlerFunc(h.HandleWebSocket)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps an apperr kind to its status code
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		h.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, apperr.HTTPStatus(kind), apperr.MessageOf(err))
}
