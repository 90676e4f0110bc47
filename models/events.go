package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event names used on the websocket
const (
	EventJoin              = "join"
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
	EventSendMessage       = "sendMessage"
	EventMarkAsRead        = "markAsRead"
	EventTyping            = "typing"

	EventReceiveMessage = "receiveMessage"
	EventMessageSent    = "messageSent"
	EventMessageError   = "messageError"
	EventMessagesRead   = "messagesRead"
	EventUserTyping     = "userTyping"
	EventUserOnline     = "userOnline"
	EventUserOffline    = "userOffline"
)

// DeliveryStatusDelivered is the only status a messageSent ack carries
const DeliveryStatusDelivered = "delivered"

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrMissingData  = errors.New("event data is required")
)

// Envelope is the wire frame for every websocket event
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientEvent is a closed set of events a client may send
type ClientEvent interface {
	clientEvent()
}

type JoinEvent struct {
	UserID string `json:"userId"`
}

type JoinConversationEvent struct {
	ChatID string `json:"chatId"`
}

type LeaveConversationEvent struct {
	ChatID string `json:"chatId"`
}

type SendMessageEvent struct {
	ChatID     string `json:"chatId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

type MarkAsReadEvent struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type TypingEvent struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

func (JoinEvent) clientEvent()              {}
func (JoinConversationEvent) clientEvent()  {}
func (LeaveConversationEvent) clientEvent() {}
func (SendMessageEvent) clientEvent()       {}
func (MarkAsReadEvent) clientEvent()        {}
func (TypingEvent) clientEvent()            {}

// DecodeClientEvent parses a frame into one of the client event variants.
// joinChat and leaveChat are accepted as aliases of the conversation events.
func DecodeClientEvent(frame []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	var ev ClientEvent
	switch env.Event {
	case EventJoin:
		ev = &JoinEvent{}
	case EventJoinConversation, "joinChat":
		ev = &JoinConversationEvent{}
	case EventLeaveConversation, "leaveChat":
		ev = &LeaveConversationEvent{}
	case EventSendMessage:
		ev = &SendMessageEvent{}
	case EventMarkAsRead:
		ev = &MarkAsReadEvent{}
	case EventTyping:
		ev = &TypingEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%s: %w", env.Event, ErrMissingData)
	}
	if err := json.Unmarshal(env.Data, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Event, err)
	}
	// hand back values so callers can type switch without pointers
	switch e := ev.(type) {
	case *JoinEvent:
		return *e, nil
	case *JoinConversationEvent:
		return *e, nil
	case *LeaveConversationEvent:
		return *e, nil
	case *SendMessageEvent:
		return *e, nil
	case *MarkAsReadEvent:
		return *e, nil
	case *TypingEvent:
		return *e, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

// ServerEvent is a closed set of events the server pushes to clients
type ServerEvent interface {
	EventName() string
}

type ReceiveMessage struct {
	MessageID   string      `json:"messageId"`
	ChatID      string      `json:"chatId"`
	SenderID    string      `json:"senderId"`
	Text        string      `json:"text"`
	MessageType MessageType `json:"messageType"`
	FileURL     string      `json:"fileUrl,omitempty"`
	FileType    string      `json:"fileType,omitempty"`
	FileName    string      `json:"fileName,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

type MessageSent struct {
	MessageID string    `json:"messageId"`
	ChatID    string    `json:"chatId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

type MessageError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type MessagesRead struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type UserTyping struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type UserOnline struct {
	UserID string `json:"userId"`
}

type UserOffline struct {
	UserID string `json:"userId"`
}

func (ReceiveMessage) EventName() string { return EventReceiveMessage }
func (MessageSent) EventName() string    { return EventMessageSent }
func (MessageError) EventName() string   { return EventMessageError }
func (MessagesRead) EventName() string   { return EventMessagesRead }
func (UserTyping) EventName() string     { return EventUserTyping }
func (UserOnline) EventName() string     { return EventUserOnline }
func (UserOffline) EventName() string    { return EventUserOffline }

// NewReceiveMessage builds the notification for the receiving side of msg
func NewReceiveMessage(msg *Message) ReceiveMessage {
	return ReceiveMessage{
		MessageID:   msg.ID,
		ChatID:      msg.ChatID,
		SenderID:    msg.SenderID,
		Text:        msg.Text,
		MessageType: msg.Type,
		FileURL:     msg.FileURL,
		FileType:    msg.FileType,
		FileName:    msg.FileName,
		Timestamp:   msg.CreatedAt,
	}
}

// NewMessageSent builds the sender acknowledgement for msg
func NewMessageSent(msg *Message) MessageSent {
	return MessageSent{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
		Text:      msg.Text,
		Timestamp: msg.CreatedAt,
		Status:    DeliveryStatusDelivered,
	}
}

// EncodeServerEvent wraps ev in an Envelope
func EncodeServerEvent(ev ServerEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	return json.Marshal(Envelope{Event: ev.EventName(), Data: data})
}
