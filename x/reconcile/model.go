// Package reconcile keeps one view's ordered collection consistent under
// live, update, and delete events arriving concurrently with pull-based
// pagination. Each on-screen timeline, notification list, or conversation
// list owns one Collection; nothing here is shared between views.
package reconcile

import (
	"github.com/petrelapp/petrel/core"
)

// Identity names an item for matching. A plain item is Direct (Inner
// empty); a boost wrapper is Wrapped, carrying the boosted status id in
// Inner. Quote wrappers stay Direct on purpose: a quote is not collapsed
// into the original for update or delete matching.
type Identity struct {
	ID    string
	URI   string
	Inner string
}

// Matches reports whether an update addressed to b should rewrite an
// entry identified by a. The upstream protocol represents boost
// relationships non-uniformly, so the wrapper/inner ids have to be
// checked in both directions.
func (a Identity) Matches(b Identity) bool {
	if a.ID == b.ID {
		return true
	}
	if b.Inner != "" && a.ID == b.Inner {
		return true
	}
	if a.Inner != "" && a.Inner == b.ID {
		return true
	}
	if a.Inner != "" && a.Inner == b.Inner {
		return true
	}
	return false
}

// SameKey reports identity-key equality, the dedup criterion. URI is
// part of the key because reblog relations can produce same-id entries
// with different context.
func (a Identity) SameKey(b Identity) bool {
	return a.ID == b.ID && a.URI == b.URI
}

// DeletedBy reports whether a delete of the given id removes this entry.
// Deleting the original also removes its boost wrapper.
func (a Identity) DeletedBy(id string) bool {
	return a.ID == id || a.Inner == id
}

// Rules binds a collection to its item type
type Rules[T any] struct {
	Identity func(T) Identity
	Merge    func(existing T, incoming T) T
}

// Policy is the suspension condition for unread buffering. The scroll
// offset and composer state are UI proxies for "the user is not looking
// at the top of the list"; both are configurable rather than constants.
type Policy struct {
	ScrollThreshold int
	ComposerOpen    func() bool
}

// StatusIdentity derives the matching identity of a status
func StatusIdentity(s core.Status) Identity {
	id := Identity{ID: s.ID, URI: s.URI}
	if s.Reblog != nil {
		id.Inner = s.Reblog.ID
	}
	return id
}

// StatusMerge rewrites an existing entry with an incoming update. When a
// bare update addresses the inside of a boost wrapper, the wrapper is
// kept and only the embedded status is replaced; in every other case the
// incoming form wins, which also rewraps a bare entry when the update
// itself is a boost of it.
func StatusMerge(existing core.Status, incoming core.Status) core.Status {
	if existing.Reblog != nil && incoming.Reblog == nil && existing.Reblog.ID == incoming.ID {
		inner := incoming
		updated := existing
		updated.Reblog = &inner
		return updated
	}
	return incoming
}

// StatusRules are the reconciliation rules for status collections
func StatusRules() Rules[core.Status] {
	return Rules[core.Status]{
		Identity: StatusIdentity,
		Merge:    StatusMerge,
	}
}

// NotificationRules match on id only and replace wholesale
func NotificationRules() Rules[core.Notification] {
	return Rules[core.Notification]{
		Identity: func(n core.Notification) Identity {
			return Identity{ID: n.ID, URI: n.ID}
		},
		Merge: func(existing core.Notification, incoming core.Notification) core.Notification {
			return incoming
		},
	}
}

// ConversationRules match on id only and replace wholesale
func ConversationRules() Rules[core.Conversation] {
	return Rules[core.Conversation]{
		Identity: func(c core.Conversation) Identity {
			return Identity{ID: c.ID, URI: c.ID}
		},
		Merge: func(existing core.Conversation, incoming core.Conversation) core.Conversation {
			return incoming
		},
	}
}
