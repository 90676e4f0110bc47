package models

import (
	"encoding/json"
	"strings"
	"time"
)

// MessageType is the kind of content a message carries
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// DeletedMessageText replaces the body of a soft deleted message
const DeletedMessageText = "This message was deleted"

// Default captions for attachments sent without text
const (
	DefaultImageText = "Shared a photo"
	DefaultFileText  = "Shared a file"
)

// MessageTypeForMIME picks image for image/* and file for everything else
func MessageTypeForMIME(mime string) MessageType {
	if strings.HasPrefix(mime, "image/") {
		return MessageTypeImage
	}
	return MessageTypeFile
}

// StoredFile describes an uploaded attachment
type StoredFile struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name"`
	Path     string `json:"-"`
	Size     int64  `json:"size"`
}

// Message is a single chat message. Once DeletedAt is set the message is
// tombstoned: the text is the placeholder and it never becomes active again.
type Message struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chatId"`
	SenderID  string      `json:"senderId"`
	Text      string      `json:"text"`
	Type      MessageType `json:"messageType"`
	FileURL   string      `json:"fileUrl,omitempty"`
	FileType  string      `json:"fileType,omitempty"`
	FileName  string      `json:"fileName,omitempty"`
	ReadBy    []string    `json:"readBy"`
	CreatedAt time.Time   `json:"createdAt"`
	DeletedAt *time.Time  `json:"deletedAt,omitempty"`
}

// IsDeleted reports whether the message has been tombstoned
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Delete tombstones the message. It returns false if it was already deleted.
func (m *Message) Delete(at time.Time) bool {
	if m.IsDeleted() {
		return false
	}
	at = at.UTC()
	m.DeletedAt = &at
	m.Text = DeletedMessageText
	return true
}

// Attach sets the attachment fields and derives the message type
func (m *Message) Attach(file *StoredFile) {
	m.FileURL = file.URL
	m.FileType = file.MimeType
	m.FileName = file.Name
	m.Type = MessageTypeForMIME(file.MimeType)
}

// MarshalJSON adds the derived isDeleted flag
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	out := struct {
		plain
		ReadBy    []string `json:"readBy"`
		IsDeleted bool     `json:"isDeleted"`
	}{plain: plain(m), ReadBy: readBy, IsDeleted: m.IsDeleted()}
	return json.Marshal(out)
}
