package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/samber/lo/mutable"

	"campusmart/apperr"
	"campusmart/database"
	"campusmart/metrics"
	"campusmart/models"
	"campusmart/realtime"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
	DefaultSearchLimit  = 20
	MaxTextLength       = 1000
)

// ChatStore is the persistence the chat service needs
type ChatStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
	FindOrCreateChat(ctx context.Context, a, b string) (*models.Chat, bool, error)
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, chatID string, limit, offset int) ([]models.Message, int, error)
	SearchMessages(ctx context.Context, chatID, query string, limit, offset int) ([]models.Message, error)
	SoftDeleteMessage(ctx context.Context, id string) (*models.Message, error)
	MarkChatRead(ctx context.Context, chatID, userID string) (int64, error)
	CountUnread(ctx context.Context, chatID, viewerID string) (int, error)
	CreateBlock(ctx context.Context, blockerID, blockedID string) (*models.BlockedUser, error)
	DeleteBlock(ctx context.Context, blockerID, blockedID string) (bool, error)
}

// Uploader stores attachments
type Uploader interface {
	Save(r io.Reader, originalName string, size int64) (*models.StoredFile, error)
	Remove(file *models.StoredFile) error
}

// RateLimiter decides whether a sender may send another message
type RateLimiter interface {
	Allow(key string) bool
}

// SendMessageCommand is a text message from SenderID into ChatID.
// OriginConnID is the connection that sent it, empty for REST sends.
type SendMessageCommand struct {
	ChatID       string `validate:"required"`
	SenderID     string `validate:"required"`
	ReceiverID   string
	Text         string `validate:"notblank,max=1000"`
	OriginConnID string
}

// SendFileCommand is an attachment with an optional caption
type SendFileCommand struct {
	ChatID       string `validate:"required"`
	SenderID     string `validate:"required"`
	Caption      string `validate:"max=1000"`
	FileName     string `validate:"required"`
	Size         int64
	File         io.Reader
	OriginConnID string
}

// ChatService owns chats, messages and read state, and pushes the resulting
// events through the router
type ChatService struct {
	store    ChatStore
	router   realtime.Router
	limiter  RateLimiter
	uploader Uploader
	validate *validator.Validate
	log      *slog.Logger
}

func NewChatService(store ChatStore, router realtime.Router, limiter RateLimiter, uploader Uploader, log *slog.Logger) *ChatService {
	validate := validator.New()
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return &ChatService{
		store:    store,
		router:   router,
		limiter:  limiter,
		uploader: uploader,
		validate: validate,
		log:      log,
	}
}

// AccessChat returns the chat between callerID and peerID, creating it on first access
func (s *ChatService) AccessChat(ctx context.Context, callerID, peerID string) (*models.ChatSummary, error) {
	if peerID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if peerID == callerID {
		return nil, apperr.Validation("You cannot start a chat with yourself")
	}

	chat, created, err := s.store.FindOrCreateChat(ctx, callerID, peerID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if created {
		s.log.Info("Chat created", "chat_id", chat.ID, "members", chat.Members)
	}

	summaries, err := s.summarize(ctx, callerID, []models.Chat{*chat})
	if err != nil {
		return nil, err
	}
	return &summaries[0], nil
}

// ListChats returns the chats of userID, most recently active first
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	chats, err := s.store.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.summarize(ctx, userID, chats)
}

func (s *ChatService) summarize(ctx context.Context, viewerID string, chats []models.Chat) ([]models.ChatSummary, error) {
	peerIDs := lo.Uniq(lo.Map(chats, func(c models.Chat, _ int) string {
		return c.Peer(viewerID)
	}))
	peers, err := s.store.GetUsersByIDs(ctx, peerIDs)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		unread, err := s.store.CountUnread(ctx, chat.ID, viewerID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		summary := models.ChatSummary{Chat: chat, UnreadCount: unread}
		if peer, ok := peers[chat.Peer(viewerID)]; ok {
			resp := peer.ToPublic()
			summary.Peer = &resp
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// memberChat loads a chat and checks userID belongs to it
func (s *ChatService) memberChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.NotFound("Chat not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !chat.HasMember(userID) {
		return nil, apperr.Unauthorized("You are not a member of this chat")
	}
	return chat, nil
}

// Authorize checks userID belongs to chatID. Handlers call it before reading
// a request body so non-members are refused whatever they send.
func (s *ChatService) Authorize(ctx context.Context, chatID, userID string) error {
	_, err := s.memberChat(ctx, chatID, userID)
	return err
}

// allow applies the send rate limit to senderID
func (s *ChatService) allow(senderID string) error {
	if s.limiter.Allow(senderID) {
		return nil
	}
	metrics.RateLimited.Inc()
	s.log.Warn("Send rate limited", "user_id", senderID)
	return apperr.RateLimited("Too many messages sent, please slow down")
}

// SendMessage stores a text message and notifies both sides. Membership is
// checked first, then the rate limit, then the content.
func (s *ChatService) SendMessage(ctx context.Context, cmd SendMessageCommand) (*models.Message, error) {
	chat, err := s.memberChat(ctx, cmd.ChatID, cmd.SenderID)
	if err != nil {
		return nil, err
	}
	if err := s.allow(cmd.SenderID); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(cmd); err != nil {
		return nil, validationError(err)
	}
	receiverID := chat.Peer(cmd.SenderID)
	if cmd.ReceiverID != "" && cmd.ReceiverID != receiverID {
		return nil, apperr.Validation("Receiver is not the other member of this chat")
	}

	msg := &models.Message{
		ChatID:   chat.ID,
		SenderID: cmd.SenderID,
		Text:     cmd.Text,
		Type:     models.MessageTypeText,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, apperr.Internal(err)
	}
	s.deliver(msg, receiverID, cmd.OriginConnID)
	return msg, nil
}

// SendFileMessage stores an attachment and a message pointing at it
func (s *ChatService) SendFileMessage(ctx context.Context, cmd SendFileCommand) (*models.Message, error) {
	chat, err := s.memberChat(ctx, cmd.ChatID, cmd.SenderID)
	if err != nil {
		return nil, err
	}
	if err := s.allow(cmd.SenderID); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(cmd); err != nil {
		return nil, validationError(err)
	}
	if cmd.File == nil {
		return nil, apperr.Validation("No file uploaded")
	}

	file, err := s.uploader.Save(cmd.File, cmd.FileName, cmd.Size)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ChatID:   chat.ID,
		SenderID: cmd.SenderID,
		Text:     strings.TrimSpace(cmd.Caption),
	}
	msg.Attach(file)
	if msg.Text == "" {
		msg.Text = models.DefaultFileText
		if msg.Type == models.MessageTypeImage {
			msg.Text = models.DefaultImageText
		}
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		if rmErr := s.uploader.Remove(file); rmErr != nil {
			s.log.Warn("Failed to remove orphan upload", "path", file.Path, "error", rmErr)
		}
		return nil, apperr.Internal(err)
	}
	s.deliver(msg, chat.Peer(cmd.SenderID), cmd.OriginConnID)
	return msg, nil
}

// deliver runs after the message is persisted. The receiver hears about it
// in their personal room, the sender gets an ack on the originating
// connection or, without one, on all of their connections.
func (s *ChatService) deliver(msg *models.Message, receiverID, originConnID string) {
	metrics.MessagesSent.WithLabelValues(string(msg.Type)).Inc()

	s.router.BroadcastToRoom(realtime.UserRoom(receiverID), models.NewReceiveMessage(msg), "")

	ack := models.NewMessageSent(msg)
	if originConnID != "" {
		s.router.SendToConnection(originConnID, ack)
	} else {
		s.router.BroadcastToRoom(realtime.UserRoom(msg.SenderID), ack, "")
	}
	s.log.Debug("Message delivered", "message_id", msg.ID, "chat_id", msg.ChatID, "sender_id", msg.SenderID)
}

// History returns one page of a chat, oldest first within the page.
// Page 1 holds the newest messages.
func (s *ChatService) History(ctx context.Context, chatID, requesterID string, page, limit int) (*models.MessagePage, error) {
	if _, err := s.memberChat(ctx, chatID, requesterID); err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit, DefaultHistoryLimit)

	messages, total, err := s.store.ListMessages(ctx, chatID, limit, (page-1)*limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	mutable.Reverse(messages)
	return &models.MessagePage{
		Messages: messages,
		Pagination: models.Pagination{
			CurrentPage:   page,
			TotalPages:    (total + limit - 1) / limit,
			TotalMessages: total,
		},
	}, nil
}

// Search finds live messages whose text contains query, ignoring case
func (s *ChatService) Search(ctx context.Context, chatID, requesterID, query string, page, limit int) (*models.SearchResult, error) {
	if _, err := s.memberChat(ctx, chatID, requesterID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("Search query is required")
	}
	page, limit = normalizePage(page, limit, DefaultSearchLimit)

	messages, err := s.store.SearchMessages(ctx, chatID, query, limit, (page-1)*limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &models.SearchResult{Messages: messages, Query: query}, nil
}

// DeleteMessage tombstones a message. Only its sender may delete it.
func (s *ChatService) DeleteMessage(ctx context.Context, messageID, requesterID string) (*models.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.NotFound("Message not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if msg.SenderID != requesterID {
		return nil, apperr.Unauthorized("You can only delete your own messages")
	}
	if msg.IsDeleted() {
		return msg, nil
	}

	deleted, err := s.store.SoftDeleteMessage(ctx, messageID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.log.Info("Message deleted", "message_id", messageID, "chat_id", msg.ChatID)
	return deleted, nil
}

// MarkRead marks every message of the chat as read by readerID and tells the
// other viewers of the chat
func (s *ChatService) MarkRead(ctx context.Context, chatID, readerID, originConnID string) (int64, error) {
	if _, err := s.memberChat(ctx, chatID, readerID); err != nil {
		return 0, err
	}
	marked, err := s.store.MarkChatRead(ctx, chatID, readerID)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	s.router.BroadcastToRoom(realtime.ChatRoom(chatID), models.MessagesRead{ChatID: chatID, UserID: readerID}, originConnID)
	return marked, nil
}

// UnreadCount counts messages in the chat that viewerID has not read
func (s *ChatService) UnreadCount(ctx context.Context, chatID, viewerID string) (int, error) {
	if _, err := s.memberChat(ctx, chatID, viewerID); err != nil {
		return 0, err
	}
	n, err := s.store.CountUnread(ctx, chatID, viewerID)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

// JoinConversation puts the connection in the chat room so it receives read
// receipts and typing indicators
func (s *ChatService) JoinConversation(ctx context.Context, connID, chatID, userID string) error {
	if _, err := s.memberChat(ctx, chatID, userID); err != nil {
		return err
	}
	s.router.JoinRoom(connID, realtime.ChatRoom(chatID))
	return nil
}

func (s *ChatService) LeaveConversation(connID, chatID string) {
	s.router.LeaveRoom(connID, realtime.ChatRoom(chatID))
}

// Typing relays a typing indicator to the other viewers of the chat
func (s *ChatService) Typing(ctx context.Context, connID, chatID, userID string, isTyping bool) error {
	if _, err := s.memberChat(ctx, chatID, userID); err != nil {
		return err
	}
	s.router.BroadcastToRoom(realtime.ChatRoom(chatID), models.UserTyping{ChatID: chatID, UserID: userID, IsTyping: isTyping}, connID)
	return nil
}

// BlockUser records a block. Blocks do not stop delivery.
func (s *ChatService) BlockUser(ctx context.Context, blockerID, blockedID string) (*models.BlockedUser, error) {
	if blockedID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if blockedID == blockerID {
		return nil, apperr.Validation("You cannot block yourself")
	}
	if _, err := s.store.GetUserByID(ctx, blockedID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal(err)
	}

	block, err := s.store.CreateBlock(ctx, blockerID, blockedID)
	if errors.Is(err, database.ErrDuplicate) {
		return nil, apperr.Conflict("User already blocked")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return block, nil
}

// UnblockUser removes a block. Removing a missing block succeeds.
func (s *ChatService) UnblockUser(ctx context.Context, blockerID, blockedID string) error {
	if blockedID == "" {
		return apperr.Validation("userId is required")
	}
	if _, err := s.store.DeleteBlock(ctx, blockerID, blockedID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func normalizePage(page, limit, defaultLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return page, limit
}

// validationError turns validator output into a client facing message
func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return apperr.Validation(err.Error())
	}
	fe := errs[0]
	switch {
	case fe.Field() == "Text" && fe.Tag() == "notblank":
		return apperr.Validation("Message text is required")
	case fe.Tag() == "max":
		return apperr.Validation(fmt.Sprintf("Message text cannot exceed %d characters", MaxTextLength))
	case fe.Tag() == "required":
		return apperr.Validation(fe.Field() + " is required")
	}
	return apperr.Validation("Invalid " + fe.Field())
}
