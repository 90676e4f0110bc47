package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"campusmart/apperr"
	"campusmart/middleware"
	"campusmart/models"
	"campusmart/realtime"
	"campusmart/services"
)

// HandleWebSocket upgrades an authenticated request and serves its events
// until the connection drops
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade error", "error", err)
		return
	}

	client := realtime.NewClient(uuid.NewString(), user.ID, conn, h.opts.SendBufferSize, h.log)
	h.hub.Attach(client)
	h.log.Info("Client connected", "user_id", user.ID, "conn_id", client.ID)

	h.conns.Add(1)
	go client.WritePump()
	go func() {
		defer func() {
			h.presence.Unregister(client.ID)
			h.hub.Detach(client.ID)
			h.log.Info("Client disconnected", "user_id", user.ID, "conn_id", client.ID)
			h.conns.Done()
		}()
		// the request context ends once the handler returns
		ctx := context.Background()
		client.ReadPump(func(frame []byte) {
			h.dispatch(ctx, client, frame)
		})
	}()
}

// dispatch handles one client event. Failures are reported back to the
// connection as messageError.
func (h *Handler) dispatch(ctx context.Context, client *realtime.Client, frame []byte) {
	event, err := models.DecodeClientEvent(frame)
	if err != nil {
		h.log.Debug("Bad websocket frame", "conn_id", client.ID, "error", err)
		h.hub.SendToConnection(client.ID, models.MessageError{Error: "Invalid event", Code: string(apperr.KindValidation)})
		return
	}

	switch e := event.(type) {
	case models.JoinEvent:
		if e.UserID != client.UserID {
			err = apperr.Unauthorized("Cannot join as another user")
			break
		}
		h.presence.Register(client.UserID, client.ID)

	case models.JoinConversationEvent:
		err = h.chats.JoinConversation(ctx, client.ID, e.ChatID, client.UserID)

	case models.LeaveConversationEvent:
		h.chats.LeaveConversation(client.ID, e.ChatID)

	case models.SendMessageEvent:
		if e.SenderID != "" && e.SenderID != client.UserID {
			err = apperr.Unauthorized("Cannot send as another user")
			break
		}
		_, err = h.chats.SendMessage(ctx, services.SendMessageCommand{
			ChatID:       e.ChatID,
			SenderID:     client.UserID,
			ReceiverID:   e.ReceiverID,
			Text:         e.Text,
			OriginConnID: client.ID,
		})

	case models.MarkAsReadEvent:
		if e.UserID != "" && e.UserID != client.UserID {
			err = apperr.Unauthorized("Cannot mark as read for another user")
			break
		}
		_, err = h.chats.MarkRead(ctx, e.ChatID, client.UserID, client.ID)

	case models.TypingEvent:
		if e.UserID != "" && e.UserID != client.UserID {
			err = apperr.Unauthorized("Cannot type as another user")
			break
		}
		err = h.chats.Typing(ctx, client.ID, e.ChatID, client.UserID, e.IsTyping)
	}

	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.log.Error("WebSocket event failed", "conn_id", client.ID, "error", err)
		}
		h.hub.SendToConnection(client.ID, models.MessageError{
			Error: apperr.MessageOf(err),
			Code:  string(apperr.KindOf(err)),
		})
	}
}
