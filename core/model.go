package core

import (
	"time"
)

// StatusAccount is the author of a status as delivered by the feed
type StatusAccount struct {
	ID          string `json:"id"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
}

// Emoji is a custom emoji attached to a status
type Emoji struct {
	Shortcode string `json:"shortcode"`
	URL       string `json:"url"`
}

// Status is one post. Reblog is set when this entry is a boost wrapper
// around another post; Quote is a distinct wrapper and is never collapsed
// into the original for update/delete matching.
type Status struct {
	ID          string        `json:"id"`
	URI         string        `json:"uri"`
	CreatedAt   time.Time     `json:"created_at"`
	Content     string        `json:"content"`
	SpoilerText string        `json:"spoiler_text"`
	Sensitive   bool          `json:"sensitive"`
	Account     StatusAccount `json:"account"`
	Reblog      *Status       `json:"reblog,omitempty"`
	Quote       *Status       `json:"quote,omitempty"`
	Emojis      []Emoji       `json:"emojis,omitempty"`
}

// Notification is one notification entry
type Notification struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	CreatedAt time.Time     `json:"created_at"`
	Account   StatusAccount `json:"account"`
	Status    *Status       `json:"status,omitempty"`
}

// Conversation is one direct-message thread entry
type Conversation struct {
	ID         string          `json:"id"`
	Unread     bool            `json:"unread"`
	Accounts   []StatusAccount `json:"accounts"`
	LastStatus *Status         `json:"last_status,omitempty"`
}

// Marker is a server-side stored last-read position
type Marker struct {
	LastReadID string    `json:"last_read_id"`
	Version    int       `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Markers holds the per-feed read positions the server knows about
type Markers struct {
	Home          *Marker `json:"home,omitempty"`
	Notifications *Marker `json:"notifications,omitempty"`
}

// StreamEvent is one normalized event delivered by a streaming socket.
// Channel is the logical channel tag of the multiplexed connection the
// event arrived on; exactly one of the payload fields is set depending
// on Event.
type StreamEvent struct {
	Channel      string
	Event        string
	Status       *Status
	Notification *Notification
	Conversation *Conversation
	DeletedID    string
}
