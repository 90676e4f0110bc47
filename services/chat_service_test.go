package services

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"campusmart/apperr"
	"campusmart/database"
	"campusmart/mocks"
	"campusmart/models"
	"campusmart/ratelimit"
	"campusmart/realtime"
	"campusmart/uploads"
)

type fixture struct {
	service *ChatService
	store   *database.Store
	router  *mocks.MockRouter
	alice   *models.User
	bob     *models.User
	carol   *models.User
	chat    *models.ChatSummary
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	dir := t.TempDir()

	store, err := database.Open(filepath.Join(dir, "test.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	uploadStore, err := uploads.NewStore(filepath.Join(dir, "uploads"), "/uploads/chat", 1024, log)
	require.NoError(t, err)

	router := mocks.NewMockRouter(gomock.NewController(t))
	service := NewChatService(store, router, ratelimit.New(30, time.Minute), uploadStore, log)

	f := &fixture{service: service, store: store, router: router}
	ctx := context.Background()
	f.alice, err = store.CreateUser(ctx, "alice", "alice@campus.edu", "hash")
	require.NoError(t, err)
	f.bob, err = store.CreateUser(ctx, "bob", "bob@campus.edu", "hash")
	require.NoError(t, err)
	f.carol, err = store.CreateUser(ctx, "carol", "carol@campus.edu", "hash")
	require.NoError(t, err)

	f.chat, err = service.AccessChat(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	return f
}

// allowDelivery accepts any event fan out
func (f *fixture) allowDelivery() {
	f.router.EXPECT().BroadcastToRoom(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	f.router.EXPECT().SendToConnection(gomock.Any(), gomock.Any()).AnyTimes()
}

func TestChatService_SendMessage_Notifies_Receiver_And_Acks_Sender(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	// Then bob's personal room hears about it and alice's connection gets the ack
	var received models.ReceiveMessage
	var ack models.MessageSent
	gomock.InOrder(
		f.router.EXPECT().BroadcastToRoom(realtime.UserRoom(f.bob.ID), gomock.Any(), "").
			Do(func(_ string, ev models.ServerEvent, _ string) { received = ev.(models.ReceiveMessage) }),
		f.router.EXPECT().SendToConnection("conn-a", gomock.Any()).
			Do(func(_ string, ev models.ServerEvent) { ack = ev.(models.MessageSent) }),
	)

	// When alice says hello from conn-a
	msg, err := f.service.SendMessage(ctx, SendMessageCommand{
		ChatID:       f.chat.ID,
		SenderID:     f.alice.ID,
		Text:         "hello",
		OriginConnID: "conn-a",
	})
	req.NoError(err)

	req.Equal(f.chat.ID, received.ChatID)
	req.Equal(f.alice.ID, received.SenderID)
	req.Equal("hello", received.Text)
	req.Equal(msg.ID, ack.MessageID)
	req.Equal(models.DeliveryStatusDelivered, ack.Status)

	// And the message is persisted and is the chat's last message
	chats, err := f.service.ListChats(ctx, f.bob.ID)
	req.NoError(err)
	req.Len(chats, 1)
	req.Equal(msg.ID, chats[0].LastMessageID)
	req.Equal(1, chats[0].UnreadCount)
	req.Equal("alice", chats[0].Peer.Username)
}

func TestChatService_SendMessage_Without_Origin_Acks_Personal_Room(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.router.EXPECT().BroadcastToRoom(realtime.UserRoom(f.bob.ID), gomock.Any(), "")
	f.router.EXPECT().BroadcastToRoom(realtime.UserRoom(f.alice.ID), gomock.AssignableToTypeOf(models.MessageSent{}), "")

	_, err := f.service.SendMessage(context.Background(), SendMessageCommand{
		ChatID: f.chat.ID, SenderID: f.alice.ID, Text: "over REST",
	})
	req.NoError(err)
}

func TestChatService_SendMessage_Validation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	for _, text := range []string{"", "   ", strings.Repeat("a", MaxTextLength+1)} {
		_, err := f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.alice.ID, Text: text})
		req.True(apperr.Is(err, apperr.KindValidation), "text of %d chars", len(text))
	}

	// exactly the limit is fine, counted in characters
	f.allowDelivery()
	_, err := f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.alice.ID, Text: strings.Repeat("é", MaxTextLength)})
	req.NoError(err)

	// a receiver that is not the peer is rejected
	_, err = f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.alice.ID, ReceiverID: f.carol.ID, Text: "hi"})
	req.True(apperr.Is(err, apperr.KindValidation))
}

func TestChatService_Rate_Limit_31st_Send(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.allowDelivery()

	for i := 0; i < 30; i++ {
		_, err := f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.alice.ID, Text: "spam"})
		req.NoError(err, "send %d", i+1)
	}

	_, err := f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.alice.ID, Text: "spam"})
	req.True(apperr.Is(err, apperr.KindRateLimited))

	// bob is not affected
	_, err = f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.bob.ID, Text: "calm down"})
	req.NoError(err)
}

func TestChatService_Non_Member_Is_Unauthorized(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.allowDelivery()

	msg, err := f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.alice.ID, Text: "private"})
	req.NoError(err)

	_, err = f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.carol.ID, Text: "let me in"})
	req.True(apperr.Is(err, apperr.KindUnauthorized))

	_, err = f.service.History(ctx, f.chat.ID, f.carol.ID, 1, 50)
	req.True(apperr.Is(err, apperr.KindUnauthorized))

	_, err = f.service.MarkRead(ctx, f.chat.ID, f.carol.ID, "")
	req.True(apperr.Is(err, apperr.KindUnauthorized))

	_, err = f.service.Search(ctx, f.chat.ID, f.carol.ID, "private", 1, 20)
	req.True(apperr.Is(err, apperr.KindUnauthorized))

	_, err = f.service.DeleteMessage(ctx, msg.ID, f.carol.ID)
	req.True(apperr.Is(err, apperr.KindUnauthorized))

	err = f.service.JoinConversation(ctx, "conn-c", f.chat.ID, f.carol.ID)
	req.True(apperr.Is(err, apperr.KindUnauthorized))

	_, err = f.service.History(ctx, "missing", f.alice.ID, 1, 50)
	req.True(apperr.Is(err, apperr.KindNotFound))
}

func TestChatService_Non_Member_Never_Consumes_Rate_Limit(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 40; i++ {
		_, err := f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.carol.ID, Text: "x"})
		req.True(apperr.Is(err, apperr.KindUnauthorized))
	}
}

func TestChatService_MarkRead_Clears_Unread_And_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.router.EXPECT().BroadcastToRoom(realtime.UserRoom(f.bob.ID), gomock.Any(), gomock.Any()).AnyTimes()
	f.router.EXPECT().SendToConnection(gomock.Any(), gomock.Any()).AnyTimes()

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.alice.ID, Text: text, OriginConnID: "conn-a"})
		req.NoError(err)
	}
	n, err := f.service.UnreadCount(ctx, f.chat.ID, f.bob.ID)
	req.NoError(err)
	req.Equal(3, n)

	// Then every read is announced to the chat room except the reader's connection
	f.router.EXPECT().
		BroadcastToRoom(realtime.ChatRoom(f.chat.ID), models.MessagesRead{ChatID: f.chat.ID, UserID: f.bob.ID}, "conn-b").
		Times(2)

	// When bob reads twice
	marked, err := f.service.MarkRead(ctx, f.chat.ID, f.bob.ID, "conn-b")
	req.NoError(err)
	req.EqualValues(3, marked)
	marked, err = f.service.MarkRead(ctx, f.chat.ID, f.bob.ID, "conn-b")
	req.NoError(err)
	req.EqualValues(0, marked)

	n, err = f.service.UnreadCount(ctx, f.chat.ID, f.bob.ID)
	req.NoError(err)
	req.Equal(0, n)

	page, err := f.service.History(ctx, f.chat.ID, f.bob.ID, 1, 50)
	req.NoError(err)
	for _, m := range page.Messages {
		req.ElementsMatch([]string{f.alice.ID, f.bob.ID}, m.ReadBy)
	}
}

func TestChatService_History_Pagination(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.allowDelivery()
	service := NewChatService(f.store, f.router, ratelimit.New(1000, time.Minute), nil, logs.GetLoggerFromLevel(slog.LevelDebug))

	var ids []string
	for i := 0; i < 120; i++ {
		msg, err := service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.alice.ID, Text: "msg"})
		req.NoError(err)
		ids = append(ids, msg.ID)
	}

	// page 1 holds the newest 50, oldest first
	page, err := service.History(ctx, f.chat.ID, f.bob.ID, 1, 50)
	req.NoError(err)
	req.Equal(models.Pagination{CurrentPage: 1, TotalPages: 3, TotalMessages: 120}, page.Pagination)
	req.Len(page.Messages, 50)
	req.Equal(ids[70], page.Messages[0].ID)
	req.Equal(ids[119], page.Messages[49].ID)

	// page 3 holds the oldest 20
	page, err = service.History(ctx, f.chat.ID, f.bob.ID, 3, 50)
	req.NoError(err)
	req.Len(page.Messages, 20)
	req.Equal(ids[0], page.Messages[0].ID)
	req.Equal(ids[19], page.Messages[19].ID)

	// limits are clamped
	page, err = service.History(ctx, f.chat.ID, f.bob.ID, 0, 500)
	req.NoError(err)
	req.Len(page.Messages, MaxHistoryLimit)
	req.Equal(1, page.Pagination.CurrentPage)
	req.Equal(2, page.Pagination.TotalPages)
}

func TestChatService_Empty_History(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	page, err := f.service.History(context.Background(), f.chat.ID, f.alice.ID, 1, 50)
	req.NoError(err)
	req.Empty(page.Messages)
	req.NotNil(page.Messages)
	req.Equal(models.Pagination{CurrentPage: 1, TotalPages: 0, TotalMessages: 0}, page.Pagination)
}

func TestChatService_DeleteMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.allowDelivery()

	msg, err := f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.alice.ID, Text: "find the textbook"})
	req.NoError(err)

	// bob cannot delete alice's message
	_, err = f.service.DeleteMessage(ctx, msg.ID, f.bob.ID)
	req.True(apperr.Is(err, apperr.KindUnauthorized))

	// alice can, and it stays deleted
	deleted, err := f.service.DeleteMessage(ctx, msg.ID, f.alice.ID)
	req.NoError(err)
	req.True(deleted.IsDeleted())
	req.Equal(models.DeletedMessageText, deleted.Text)

	again, err := f.service.DeleteMessage(ctx, msg.ID, f.alice.ID)
	req.NoError(err)
	req.Equal(deleted.DeletedAt, again.DeletedAt)

	// deleted messages stay in history but not in search
	page, err := f.service.History(ctx, f.chat.ID, f.bob.ID, 1, 50)
	req.NoError(err)
	req.Len(page.Messages, 1)
	req.True(page.Messages[0].IsDeleted())

	found, err := f.service.Search(ctx, f.chat.ID, f.bob.ID, "textbook", 1, 20)
	req.NoError(err)
	req.Empty(found.Messages)

	_, err = f.service.DeleteMessage(ctx, "missing", f.alice.ID)
	req.True(apperr.Is(err, apperr.KindNotFound))
}

func TestChatService_Search(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.allowDelivery()

	_, err := f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.alice.ID, Text: "Selling a LAMP"})
	req.NoError(err)
	newest, err := f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.bob.ID, Text: "how much for the lamp?"})
	req.NoError(err)

	result, err := f.service.Search(ctx, f.chat.ID, f.alice.ID, "  Lamp ", 1, 0)
	req.NoError(err)
	req.Equal("Lamp", result.Query)
	req.Len(result.Messages, 2)
	req.Equal(newest.ID, result.Messages[0].ID)

	_, err = f.service.Search(ctx, f.chat.ID, f.alice.ID, " ", 1, 0)
	req.True(apperr.Is(err, apperr.KindValidation))
}

func TestChatService_AccessChat(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	// Given alice already opened the chat with bob, bob gets the same one
	again, err := f.service.AccessChat(ctx, f.bob.ID, f.alice.ID)
	req.NoError(err)
	req.Equal(f.chat.ID, again.ID)
	req.Equal(f.alice.ID, again.Peer.ID)
	req.Empty(again.Peer.Email)

	_, err = f.service.AccessChat(ctx, f.alice.ID, f.alice.ID)
	req.True(apperr.Is(err, apperr.KindValidation))

	_, err = f.service.AccessChat(ctx, f.alice.ID, "")
	req.True(apperr.Is(err, apperr.KindValidation))

	_, err = f.service.AccessChat(ctx, f.alice.ID, "ghost")
	req.True(apperr.Is(err, apperr.KindNotFound))
}

func TestChatService_SendFileMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	var received models.ReceiveMessage
	f.router.EXPECT().BroadcastToRoom(realtime.UserRoom(f.bob.ID), gomock.Any(), "").
		Do(func(_ string, ev models.ServerEvent, _ string) { received = ev.(models.ReceiveMessage) })
	f.router.EXPECT().SendToConnection("conn-a", gomock.Any())

	// a minimal GIF header is enough for detection
	gif := append([]byte("GIF89a"), make([]byte, 32)...)
	msg, err := f.service.SendFileMessage(ctx, SendFileCommand{
		ChatID:       f.chat.ID,
		SenderID:     f.alice.ID,
		FileName:     "desk.gif",
		Size:         int64(len(gif)),
		File:         bytes.NewReader(gif),
		OriginConnID: "conn-a",
	})
	req.NoError(err)

	req.Equal(models.MessageTypeImage, msg.Type)
	req.Equal(models.DefaultImageText, msg.Text)
	req.Equal("image/gif", msg.FileType)
	req.True(strings.HasPrefix(msg.FileURL, "/uploads/chat/"))
	req.Equal(msg.FileURL, received.FileURL)

	// disallowed types are rejected
	_, err = f.service.SendFileMessage(ctx, SendFileCommand{
		ChatID: f.chat.ID, SenderID: f.alice.ID, FileName: "run.exe", Size: 4, File: bytes.NewReader([]byte("MZxx")),
	})
	req.True(apperr.Is(err, apperr.KindValidation))
}

func TestChatService_Typing_And_Conversation_Rooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	gomock.InOrder(
		f.router.EXPECT().JoinRoom("conn-b", realtime.ChatRoom(f.chat.ID)),
		f.router.EXPECT().BroadcastToRoom(realtime.ChatRoom(f.chat.ID),
			models.UserTyping{ChatID: f.chat.ID, UserID: f.bob.ID, IsTyping: true}, "conn-b"),
		f.router.EXPECT().LeaveRoom("conn-b", realtime.ChatRoom(f.chat.ID)),
	)

	req.NoError(f.service.JoinConversation(ctx, "conn-b", f.chat.ID, f.bob.ID))
	req.NoError(f.service.Typing(ctx, "conn-b", f.chat.ID, f.bob.ID, true))
	f.service.LeaveConversation("conn-b", f.chat.ID)

	err := f.service.Typing(ctx, "conn-c", f.chat.ID, f.carol.ID, true)
	req.True(apperr.Is(err, apperr.KindUnauthorized))
}

func TestChatService_Block_And_Unblock(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	block, err := f.service.BlockUser(ctx, f.alice.ID, f.bob.ID)
	req.NoError(err)
	req.Equal(f.bob.ID, block.BlockedID)

	_, err = f.service.BlockUser(ctx, f.alice.ID, f.bob.ID)
	req.True(apperr.Is(err, apperr.KindConflict))

	_, err = f.service.BlockUser(ctx, f.alice.ID, f.alice.ID)
	req.True(apperr.Is(err, apperr.KindValidation))

	_, err = f.service.BlockUser(ctx, f.alice.ID, "ghost")
	req.True(apperr.Is(err, apperr.KindNotFound))

	req.NoError(f.service.UnblockUser(ctx, f.alice.ID, f.bob.ID))
	req.NoError(f.service.UnblockUser(ctx, f.alice.ID, f.bob.ID))

	// blocking does not stop delivery
	_, err = f.service.BlockUser(ctx, f.bob.ID, f.alice.ID)
	req.NoError(err)
	f.allowDelivery()
	_, err = f.service.SendMessage(ctx, SendMessageCommand{ChatID: f.chat.ID, SenderID: f.alice.ID, Text: "still here"})
	req.NoError(err)
}
