package core

// SNS is the protocol dialect a server speaks
type SNS string

const (
	SNSMastodon   SNS = "mastodon"
	SNSPleroma    SNS = "pleroma"
	SNSFriendica  SNS = "friendica"
	SNSGotosocial SNS = "gotosocial"
)

// TimelineKind is the kind of a configured column
type TimelineKind string

const (
	KindHome          TimelineKind = "home"
	KindNotifications TimelineKind = "notifications"
	KindLocal         TimelineKind = "local"
	KindPublic        TimelineKind = "public"
	KindFavourites    TimelineKind = "favourites"
	KindList          TimelineKind = "list"
	KindBookmarks     TimelineKind = "bookmarks"
	KindDirect        TimelineKind = "direct"
	KindTag           TimelineKind = "tag"
)

// Channel tags used by the streaming protocol to mark which logical feed
// an event on a multiplexed connection belongs to.
const (
	ChannelUser   = "user"
	ChannelPublic = "public"
	ChannelLocal  = "public:local"
	ChannelDirect = "direct"
	ChannelList   = "list"
	ChannelTag    = "hashtag"
)

// Raw socket event names
const (
	EventUpdate       = "update"
	EventStatusUpdate = "status.update"
	EventDelete       = "delete"
	EventNotification = "notification"
	EventConversation = "conversation"
)

// Subscribable reports whether a timeline kind gets its own logical channel
// on a streaming connection. Home and notifications ride the user socket;
// favourites and bookmarks are pull-only.
func (k TimelineKind) Subscribable() bool {
	switch k {
	case KindLocal, KindPublic, KindDirect, KindList, KindTag:
		return true
	}
	return false
}

// ChannelTag resolves the logical channel tag for a timeline kind.
// List and tag kinds carry their qualifier so that events on a shared
// connection can be routed to the right column.
func (k TimelineKind) ChannelTag(qualifier string) string {
	switch k {
	case KindHome, KindNotifications:
		return ChannelUser
	case KindLocal:
		return ChannelLocal
	case KindPublic:
		return ChannelPublic
	case KindDirect:
		return ChannelDirect
	case KindList:
		return ChannelList + ":" + qualifier
	case KindTag:
		return ChannelTag + ":" + qualifier
	}
	return ""
}
