package models

import "time"

// Chat is a one-to-one conversation. Members are stored sorted so a pair
// of users maps to exactly one chat.
type Chat struct {
	ID            string    `json:"id"`
	Members       []string  `json:"members"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	LastMessage   *Message  `json:"lastMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasMember reports whether userID takes part in the chat
func (c *Chat) HasMember(userID string) bool {
	if userID == "" {
		return false
	}
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Peer returns the other member of the chat, or "" when userID is not a member
func (c *Chat) Peer(userID string) string {
	if !c.HasMember(userID) {
		return ""
	}
	for _, m := range c.Members {
		if m != userID {
			return m
		}
	}
	return ""
}

// MemberPair orders two user ids the way chats store them
func MemberPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// ChatSummary is a chat as seen by one of its members
type ChatSummary struct {
	Chat
	Peer        *UserResponse `json:"peer,omitempty"`
	UnreadCount int           `json:"unreadCount"`
}

// Pagination describes one page of a chat history
type Pagination struct {
	CurrentPage   int `json:"currentPage"`
	TotalPages    int `json:"totalPages"`
	TotalMessages int `json:"totalMessages"`
}

// MessagePage is a page of history, oldest first
type MessagePage struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// SearchResult holds matching messages, newest first
type SearchResult struct {
	Messages []Message `json:"messages"`
	Query    string    `json:"query"`
}
