package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"campusmart/database"
	"campusmart/middleware"
	"campusmart/models"
)

type signupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Signup handles user registration
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, signupError(err))
		return
	}

	// Check if username exists
	if _, err := h.accounts.GetUserByUsername(r.Context(), req.Username); err == nil {
		writeError(w, http.StatusConflict, "Username already taken")
		return
	}

	// Check if email exists
	if _, err := h.accounts.GetUserByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	user, err := h.accounts.CreateUser(r.Context(), req.Username, req.Email, string(hashedPassword))
	if errors.Is(err, database.ErrDuplicate) {
		writeError(w, http.StatusConflict, "Username or email already registered")
		return
	}
	if err != nil {
		h.log.Error("Failed to create user", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	h.log.Info("User signed up", "user_id", user.ID, "username", user.Username)

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    user.ToResponse(),
	})
}

// Login handles user authentication by username or email
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.accounts.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		// Try email
		user, err = h.accounts.GetUserByEmail(r.Context(), strings.ToLower(req.Username))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	if !h.startSession(w, r, user) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user.ToResponse(),
	})
}

// Logout handles user logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := middleware.SessionID(r); sessionID != "" {
		if err := h.accounts.DeleteSession(r.Context(), sessionID); err != nil {
			h.log.Warn("Failed to delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me returns the current authenticated user
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	resp := user.ToResponse()
	resp.Online = h.presence.IsOnline(user.ID)
	writeJSON(w, http.StatusOK, resp)
}

// startSession stores a new session and sets its cookie. It writes the
// error response itself and returns false on failure.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *models.User) bool {
	now := time.Now()
	session := &models.Session{
		ID:        generateSessionID(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(h.opts.SessionTTL),
	}
	if err := h.accounts.CreateSession(r.Context(), session); err != nil {
		h.log.Error("Failed to create session", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return true
}

func signupError(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "Invalid request"
	}
	switch errs[0].Field() {
	case "Username":
		return "Username must be 3-20 characters"
	case "Email":
		return "Invalid email address"
	case "Password":
		return "Password must be at least 6 characters"
	}
	return "Invalid request"
}

func generateSessionID() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
