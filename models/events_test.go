package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeClientEvent_All_Variants(t *testing.T) {
	req := require.New(t)

	cases := []struct {
		frame string
		want  ClientEvent
	}{
		{`{"event":"join","data":{"userId":"u1"}}`, JoinEvent{UserID: "u1"}},
		{`{"event":"joinConversation","data":{"chatId":"c1"}}`, JoinConversationEvent{ChatID: "c1"}},
		{`{"event":"joinChat","data":{"chatId":"c1"}}`, JoinConversationEvent{ChatID: "c1"}},
		{`{"event":"leaveConversation","data":{"chatId":"c1"}}`, LeaveConversationEvent{ChatID: "c1"}},
		{`{"event":"sendMessage","data":{"chatId":"c1","senderId":"u1","receiverId":"u2","text":"hi"}}`,
			SendMessageEvent{ChatID: "c1", SenderID: "u1", ReceiverID: "u2", Text: "hi"}},
		{`{"event":"markAsRead","data":{"chatId":"c1","userId":"u1"}}`, MarkAsReadEvent{ChatID: "c1", UserID: "u1"}},
		{`{"event":"typing","data":{"chatId":"c1","userId":"u1","isTyping":true}}`, TypingEvent{ChatID: "c1", UserID: "u1", IsTyping: true}},
	}

	for _, c := range cases {
		got, err := DecodeClientEvent([]byte(c.frame))
		req.NoError(err, c.frame)
		req.Equal(c.want, got)
	}
}

func TestDecodeClientEvent_Rejects_Unknown_And_Empty(t *testing.T) {
	req := require.New(t)

	_, err := DecodeClientEvent([]byte(`{"event":"explode","data":{}}`))
	req.True(errors.Is(err, ErrUnknownEvent))

	_, err = DecodeClientEvent([]byte(`{"event":"join"}`))
	req.True(errors.Is(err, ErrMissingData))

	_, err = DecodeClientEvent([]byte(`not json`))
	req.Error(err)
}

func TestEncodeServerEvent_Wraps_In_Envelope(t *testing.T) {
	req := require.New(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// Given a persisted message
	msg := &Message{ID: "m1", ChatID: "c1", SenderID: "a", Text: "hello", Type: MessageTypeText, CreatedAt: ts}

	// When the ack is encoded
	data, err := EncodeServerEvent(NewMessageSent(msg))
	req.NoError(err)

	// Then the frame carries the event name and the payload
	var env struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	req.NoError(json.Unmarshal(data, &env))
	req.Equal(EventMessageSent, env.Event)
	req.Equal("m1", env.Data["messageId"])
	req.Equal("delivered", env.Data["status"])
	req.Equal("hello", env.Data["text"])
}

func TestNewReceiveMessage_Copies_Attachment(t *testing.T) {
	req := require.New(t)
	msg := &Message{ID: "m1", ChatID: "c1", SenderID: "a", Text: DefaultImageText}
	msg.Attach(&StoredFile{URL: "/uploads/chat/x.png", MimeType: "image/png", Name: "x.png"})

	ev := NewReceiveMessage(msg)

	req.Equal(MessageTypeImage, ev.MessageType)
	req.Equal("/uploads/chat/x.png", ev.FileURL)
	req.Equal("image/png", ev.FileType)
	req.Equal("x.png", ev.FileName)
	req.Equal(EventReceiveMessage, ev.EventName())
}
