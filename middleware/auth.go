package middleware

import (
	"context"
	"net/http"
	"strings"

	"campusmart/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// SessionCookie is the name of the login cookie
const SessionCookie = "session"

// SessionStore resolves session ids to users
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// SessionID reads the session id from the cookie, or from a bearer token
// for clients that cannot send cookies
func SessionID(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Auth checks for a valid session and adds the user to the context
func Auth(store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := SessionID(r)
			if sessionID == "" {
				unauthorized(w, "Unauthorized")
				return
			}

			session, err := store.GetSession(r.Context(), sessionID)
			if err != nil {
				unauthorized(w, "Invalid session")
				return
			}

			user, err := store.GetUserByID(r.Context(), session.UserID)
			if err != nil {
				unauthorized(w, "User not found")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext retrieves the user from the request context
func GetUserFromContext(r *http.Request) *models.User {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
