package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/petrelapp/petrel/core"
)

func testConfig() core.Config {
	return core.Config{
		PageSize:        20,
		MaxVisible:      500,
		ScrollThreshold: 10,
	}
}

func mkStatus(id string) core.Status {
	return core.Status{
		ID:      id,
		URI:     "https://example.com/statuses/" + id,
		Content: "status " + id,
	}
}

func mkReblog(id string, inner string) core.Status {
	wrapped := mkStatus(inner)
	s := mkStatus(id)
	s.Reblog = &wrapped
	return s
}

func emptyLoader(ctx context.Context, cursor string) ([]core.Status, string, error) {
	return nil, "", nil
}

func TestLiveEventDedup(t *testing.T) {
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, emptyLoader, testConfig())

	c.OnLiveEvent(mkStatus("1"))
	c.OnLiveEvent(mkStatus("2"))
	c.OnLiveEvent(mkStatus("1"))
	c.OnLiveEvent(mkStatus("2"))
	c.OnLiveEvent(mkStatus("3"))

	items := c.Items()
	assert.Len(t, items, 3)

	seen := make(map[string]bool)
	for _, item := range items {
		key := item.ID + "|" + item.URI
		assert.False(t, seen[key], "duplicate identity key %s", key)
		seen[key] = true
	}
	assert.Equal(t, "3", items[0].ID)
}

func TestLiveEventBoundedWindow(t *testing.T) {
	config := testConfig()
	config.MaxVisible = 5
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, emptyLoader, config)

	for i := 0; i < 10; i++ {
		c.OnLiveEvent(mkStatus(fmt.Sprintf("%d", i)))
	}

	items := c.Items()
	assert.Len(t, items, 5)
	assert.Equal(t, "9", items[0].ID)
	assert.Equal(t, "5", items[4].ID)
}

func TestUpdateRewrapsReblog(t *testing.T) {
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, emptyLoader, testConfig())

	// a boost of an existing bare entry replaces it with the wrapper
	c.OnLiveEvent(mkStatus("A"))
	c.OnUpdateEvent(mkReblog("B", "A"))

	items := c.Items()
	assert.Len(t, items, 1)
	assert.Equal(t, "B", items[0].ID)
	if assert.NotNil(t, items[0].Reblog) {
		assert.Equal(t, "A", items[0].Reblog.ID)
	}
}

func TestUpdateThroughReblogWrapper(t *testing.T) {
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, emptyLoader, testConfig())

	// a bare update addressed at the boosted status rewrites the inside
	// of the wrapper, not the wrapper id
	c.OnLiveEvent(mkReblog("B", "A"))
	edited := mkStatus("A")
	edited.Content = "edited"
	c.OnUpdateEvent(edited)

	items := c.Items()
	assert.Len(t, items, 1)
	assert.Equal(t, "B", items[0].ID)
	if assert.NotNil(t, items[0].Reblog) {
		assert.Equal(t, "A", items[0].Reblog.ID)
		assert.Equal(t, "edited", items[0].Reblog.Content)
	}
}

func TestUpdateBothWrapped(t *testing.T) {
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, emptyLoader, testConfig())

	c.OnLiveEvent(mkReblog("B", "A"))
	update := mkReblog("C", "A")
	c.OnUpdateEvent(update)

	items := c.Items()
	assert.Len(t, items, 1)
	assert.Equal(t, "C", items[0].ID)
}

func TestDeleteCascadesThroughReblog(t *testing.T) {
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, emptyLoader, testConfig())

	c.OnLiveEvent(mkReblog("B", "A"))
	c.OnLiveEvent(mkStatus("X"))
	c.OnDeleteEvent("A")

	items := c.Items()
	assert.Len(t, items, 1)
	assert.Equal(t, "X", items[0].ID)
}

func TestDeleteDoesNotCollapseQuote(t *testing.T) {
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, emptyLoader, testConfig())

	quoted := mkStatus("A")
	quoting := mkStatus("Q")
	quoting.Quote = &quoted
	c.OnLiveEvent(quoting)
	c.OnDeleteEvent("A")

	// the quote wrapper has its own identity and survives
	assert.Len(t, c.Items(), 1)
}

func TestPrependUnreadsBoundedBatch(t *testing.T) {
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, emptyLoader, testConfig())

	c.SetScrollTop(50)
	for i := 1; i <= 50; i++ {
		c.OnLiveEvent(mkStatus(fmt.Sprintf("%d", i)))
	}
	assert.Equal(t, 50, c.UnreadCount())
	assert.Empty(t, c.Items())

	before := c.FirstItemIndex()
	moved := c.PrependUnreads()

	assert.Equal(t, 20, moved)
	assert.Equal(t, 30, c.UnreadCount())
	assert.Equal(t, before-20, c.FirstItemIndex())

	// the oldest buffered 20 come out, arrival order preserved:
	// newest of the flushed batch on top
	items := c.Items()
	assert.Len(t, items, 20)
	assert.Equal(t, "20", items[0].ID)
	assert.Equal(t, "1", items[19].ID)

	// the rest follows on the next flushes
	moved = c.PrependUnreads()
	assert.Equal(t, 20, moved)
	moved = c.PrependUnreads()
	assert.Equal(t, 10, moved)
	assert.Equal(t, 0, c.UnreadCount())

	items = c.Items()
	assert.Equal(t, "50", items[0].ID)
	assert.Equal(t, "1", items[49].ID)
}

func TestScrollPositionRouting(t *testing.T) {
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, emptyLoader, testConfig())

	// at the top, events land in the visible items directly
	c.SetScrollTop(0)
	c.OnLiveEvent(mkStatus("1"))
	assert.Len(t, c.Items(), 1)
	assert.Equal(t, 0, c.UnreadCount())

	// scrolled away, events are buffered and items stay unchanged
	c.SetScrollTop(50)
	c.OnLiveEvent(mkStatus("2"))
	assert.Len(t, c.Items(), 1)
	assert.Equal(t, 1, c.UnreadCount())

	c.SetScrollTop(0)
	moved := c.PrependUnreads()
	assert.Equal(t, 1, moved)
	items := c.Items()
	assert.Equal(t, "2", items[0].ID)
	assert.Equal(t, "1", items[1].ID)
}

func TestComposerOpenSuspends(t *testing.T) {
	composerOpen := true
	policy := Policy{
		ScrollThreshold: 10,
		ComposerOpen:    func() bool { return composerOpen },
	}
	c := NewStatusCollection(policy, emptyLoader, testConfig())

	c.OnLiveEvent(mkStatus("1"))
	assert.Empty(t, c.Items())
	assert.Equal(t, 1, c.UnreadCount())

	composerOpen = false
	c.OnLiveEvent(mkStatus("2"))
	assert.Len(t, c.Items(), 1)
}

func TestBufferedDuplicateBecomesUpdate(t *testing.T) {
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, emptyLoader, testConfig())

	c.SetScrollTop(50)
	c.OnLiveEvent(mkStatus("1"))
	edited := mkStatus("1")
	edited.Content = "edited"
	c.OnLiveEvent(edited)

	assert.Equal(t, 1, c.UnreadCount())
	assert.Equal(t, "edited", c.Unread()[0].Content)
}

func TestUpdateReachesUnreadBuffer(t *testing.T) {
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, emptyLoader, testConfig())

	c.SetScrollTop(50)
	c.OnLiveEvent(mkStatus("A"))
	c.OnUpdateEvent(mkReblog("B", "A"))

	unread := c.Unread()
	assert.Len(t, unread, 1)
	assert.Equal(t, "B", unread[0].ID)
}

func TestLoadMoreAppendsAndExhausts(t *testing.T) {
	pages := map[string][]core.Status{
		"":   {mkStatus("30"), mkStatus("29"), mkStatus("28")},
		"28": {mkStatus("27")},
		"27": {},
	}
	var cursors []string
	loader := func(ctx context.Context, cursor string) ([]core.Status, string, error) {
		cursors = append(cursors, cursor)
		page := pages[cursor]
		next := cursor
		if len(page) > 0 {
			next = page[len(page)-1].ID
		}
		return page, next, nil
	}
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, loader, testConfig())

	ctx := context.Background()
	assert.NoError(t, c.LoadMore(ctx))
	assert.NoError(t, c.LoadMore(ctx))
	assert.NoError(t, c.LoadMore(ctx))
	// exhausted, further calls are no-ops
	assert.NoError(t, c.LoadMore(ctx))

	assert.Equal(t, []string{"", "28", "27"}, cursors)
	assert.True(t, c.Exhausted())

	items := c.Items()
	assert.Len(t, items, 4)
	assert.Equal(t, "30", items[0].ID)
	assert.Equal(t, "27", items[3].ID)
}

func TestLoadMoreHeaderCursorStopsAtLastPage(t *testing.T) {
	var calls []string
	loader := func(ctx context.Context, cursor string) ([]core.Status, string, error) {
		calls = append(calls, cursor)
		switch cursor {
		case "":
			return []core.Status{mkStatus("30"), mkStatus("29"), mkStatus("28")}, "28", nil
		case "28":
			// last page: the server sends no rel="next" Link header
			return []core.Status{mkStatus("27"), mkStatus("26")}, "", nil
		}
		return []core.Status{mkStatus("30"), mkStatus("29"), mkStatus("28")}, "28", nil
	}
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, loader, testConfig())

	ctx := context.Background()
	assert.NoError(t, c.LoadMore(ctx))
	assert.NoError(t, c.LoadMore(ctx))
	assert.True(t, c.Exhausted())

	// further calls must not wrap around to the newest page again
	assert.NoError(t, c.LoadMore(ctx))
	assert.Equal(t, []string{"", "28"}, calls)

	items := c.Items()
	assert.Len(t, items, 5)
	seen := make(map[string]int)
	for _, item := range items {
		seen[item.ID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "status %s fetched more than once", id)
	}
}

func TestLoadMoreFailureLeavesStateUntouched(t *testing.T) {
	fail := true
	loader := func(ctx context.Context, cursor string) ([]core.Status, string, error) {
		if fail {
			return nil, "", errors.New("connection reset")
		}
		return []core.Status{mkStatus("1")}, "1", nil
	}
	c := NewStatusCollection(Policy{ScrollThreshold: 10}, loader, testConfig())

	ctx := context.Background()
	err := c.LoadMore(ctx)
	assert.Error(t, err)
	assert.Empty(t, c.Items())
	assert.False(t, c.Exhausted())

	// safe to retry
	fail = false
	assert.NoError(t, c.LoadMore(ctx))
	assert.Len(t, c.Items(), 1)
}

func TestIdentityMatching(t *testing.T) {
	direct := Identity{ID: "A", URI: "uri:A"}
	wrapped := Identity{ID: "B", URI: "uri:B", Inner: "A"}
	other := Identity{ID: "C", URI: "uri:C"}

	assert.True(t, direct.Matches(direct))
	assert.True(t, wrapped.Matches(direct), "wrapper matched by inner update")
	assert.True(t, direct.Matches(wrapped), "bare entry matched by wrapping update")
	assert.True(t, wrapped.Matches(Identity{ID: "D", Inner: "A"}), "both wrapped around the same inner")
	assert.False(t, direct.Matches(other))
	assert.False(t, wrapped.Matches(other))

	assert.True(t, wrapped.DeletedBy("A"))
	assert.True(t, wrapped.DeletedBy("B"))
	assert.False(t, wrapped.DeletedBy("C"))
}

func TestNotificationCollectionReplaces(t *testing.T) {
	loader := func(ctx context.Context, cursor string) ([]core.Notification, string, error) {
		return nil, "", nil
	}
	c := NewNotificationCollection(Policy{ScrollThreshold: 10}, loader, testConfig())

	c.OnLiveEvent(core.Notification{ID: "1", Type: "favourite"})
	c.OnUpdateEvent(core.Notification{ID: "1", Type: "reblog"})

	items := c.Items()
	assert.Len(t, items, 1)
	assert.Equal(t, "reblog", items[0].Type)
}
