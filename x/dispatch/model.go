package dispatch

import (
	"github.com/petrelapp/petrel/core"
)

// Channel kinds a consumer can listen for. User-socket kinds are
// addressed by account id, column kinds by timeline id.
const (
	ListenReceiveHomeStatus           = "receive-home-status"
	ListenReceiveHomeStatusUpdate     = "receive-home-status-update"
	ListenDeleteHomeStatus            = "delete-home-status"
	ListenReceiveNotification         = "receive-notification"
	ListenReceiveTimelineStatus       = "receive-timeline-status"
	ListenReceiveTimelineStatusUpdate = "receive-timeline-status-update"
	ListenDeleteTimelineStatus        = "delete-timeline-status"
	ListenReceiveTimelineConversation = "receive-timeline-conversation"
)

// StatusEvent is a new or edited status wrapped with its owner id
type StatusEvent struct {
	OwnerID uint
	Status  core.Status
}

// DeleteEvent carries the id of a removed status
type DeleteEvent struct {
	OwnerID uint
	ID      string
}

// NotificationEvent is a new notification wrapped with its account id
type NotificationEvent struct {
	OwnerID      uint
	Notification core.Notification
}

// ConversationEvent is a conversation update wrapped with its timeline id
type ConversationEvent struct {
	OwnerID      uint
	Conversation core.Conversation
}
