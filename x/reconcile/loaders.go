package reconcile

import (
	"context"

	"github.com/petrelapp/petrel/client"
	"github.com/petrelapp/petrel/core"
)

// TimelineLoader pages a timeline fetch whose next cursor is the last
// item's id (home, local, public, tag, list, direct).
func TimelineLoader(fetch func(ctx context.Context, opts client.Options) ([]core.Status, error), pageSize int) Loader[core.Status] {
	return func(ctx context.Context, cursor string) ([]core.Status, string, error) {
		statuses, err := fetch(ctx, client.Options{MaxID: cursor, Limit: pageSize})
		if err != nil {
			return nil, "", err
		}
		next := cursor
		if len(statuses) > 0 {
			next = statuses[len(statuses)-1].ID
		}
		return statuses, next, nil
	}
}

// HeaderCursorLoader pages a fetch whose next cursor comes back out of
// band (favourites and bookmarks, via the Link response header). The last
// page carries no rel="next" Link, so the empty cursor it yields marks
// the feed exhausted.
func HeaderCursorLoader(fetch func(ctx context.Context, opts client.Options) ([]core.Status, string, error), pageSize int) Loader[core.Status] {
	return func(ctx context.Context, cursor string) ([]core.Status, string, error) {
		return fetch(ctx, client.Options{MaxID: cursor, Limit: pageSize})
	}
}

// NotificationLoader pages the notification feed by last item id
func NotificationLoader(c client.Client, pageSize int) Loader[core.Notification] {
	return func(ctx context.Context, cursor string) ([]core.Notification, string, error) {
		notifications, err := c.GetNotifications(ctx, client.Options{MaxID: cursor, Limit: pageSize})
		if err != nil {
			return nil, "", err
		}
		next := cursor
		if len(notifications) > 0 {
			next = notifications[len(notifications)-1].ID
		}
		return notifications, next, nil
	}
}

// ConversationLoader pages the conversation feed by last item id
func ConversationLoader(c client.Client, pageSize int) Loader[core.Conversation] {
	return func(ctx context.Context, cursor string) ([]core.Conversation, string, error) {
		conversations, err := c.GetConversationTimeline(ctx, client.Options{MaxID: cursor, Limit: pageSize})
		if err != nil {
			return nil, "", err
		}
		next := cursor
		if len(conversations) > 0 {
			next = conversations[len(conversations)-1].ID
		}
		return conversations, next, nil
	}
}
