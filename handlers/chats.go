package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"campusmart/middleware"
	"campusmart/models"
	"campusmart/services"
)

type accessChatRequest struct {
	UserID string `json:"userId"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type userRequest struct {
	UserID string `json:"userId"`
}

// multipart overhead allowed on top of the attachment itself
const formOverhead = 1 << 20

// AccessChat opens the chat with another user, creating it on first access
func (h *Handler) AccessChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	var req accessChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	chat, err := h.chats.AccessChat(r.Context(), user.ID, req.UserID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	// Add online status
	if chat.Peer != nil {
		chat.Peer.Online = h.presence.IsOnline(chat.Peer.ID)
	}
	writeJSON(w, http.StatusOK, chat)
}

// GetChats returns all chats of the current user
func (h *Handler) GetChats(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	chats, err := h.chats.ListChats(r.Context(), user.ID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	for i := range chats {
		if chats[i].Peer != nil {
			chats[i].Peer.Online = h.presence.IsOnline(chats[i].Peer.ID)
		}
	}
	if chats == nil {
		chats = []models.ChatSummary{}
	}
	writeJSON(w, http.StatusOK, chats)
}

// SendMessage posts a text message
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	chatID := mux.Vars(r)["chatId"]

	if err := h.chats.Authorize(r.Context(), chatID, user.ID); err != nil {
		h.writeAppError(w, r, err)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	msg, err := h.chats.SendMessage(r.Context(), services.SendMessageCommand{
		ChatID:   chatID,
		SenderID: user.ID,
		Text:     req.Text,
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// SendFileMessage posts an attachment sent as the multipart field "file",
// with an optional caption in "text"
func (h *Handler) SendFileMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	chatID := mux.Vars(r)["chatId"]

	// refuse non-members before spooling the upload
	if err := h.chats.Authorize(r.Context(), chatID, user.ID); err != nil {
		h.writeAppError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	msg, err := h.chats.SendFileMessage(r.Context(), services.SendFileCommand{
		ChatID:   chatID,
		SenderID: user.ID,
		Caption:  r.FormValue("text"),
		FileName: header.Filename,
		Size:     header.Size,
		File:     file,
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// GetMessages returns one page of history, ?page=1 being the newest
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	page, limit := pageParams(r)
	result, err := h.chats.History(r.Context(), mux.Vars(r)["chatId"], user.ID, page, limit)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SearchMessages searches a chat with ?query= (or the short ?q=)
func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	query := r.URL.Query().Get("query")
	if query == "" {
		query = r.URL.Query().Get("q")
	}
	page, limit := pageParams(r)
	result, err := h.chats.Search(r.Context(), mux.Vars(r)["chatId"], user.ID, query, page, limit)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// MarkAsRead marks the whole chat as read by the current user
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	marked, err := h.chats.MarkRead(r.Context(), mux.Vars(r)["chatId"], user.ID, "")
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "marked": marked})
}

// GetUnreadCount returns how many messages of the chat the current user has not read
func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	n, err := h.chats.UnreadCount(r.Context(), mux.Vars(r)["chatId"], user.ID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": n})
}

// DeleteMessage soft deletes one of the current user's messages
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	msg, err := h.chats.DeleteMessage(r.Context(), mux.Vars(r)["messageId"], user.ID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// GetOnlineUsers lists the ids of online users
func (h *Handler) GetOnlineUsers(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	online := lo.Without(h.presence.OnlineUsers(), user.ID)
	writeJSON(w, http.StatusOK, map[string][]string{"onlineUsers": online})
}

// BlockUser blocks the user given in the body
func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	block, err := h.chats.BlockUser(r.Context(), user.ID, req.UserID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

// UnblockUser removes a block
func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.chats.UnblockUser(r.Context(), user.ID, req.UserID); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// pageParams reads ?page and ?limit; bad values fall back to the defaults
func pageParams(r *http.Request) (int, int) {
	page, limit := 1, 0
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return page, limit
}
