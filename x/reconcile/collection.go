package reconcile

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/petrelapp/petrel/core"
)

var tracer = otel.Tracer("reconcile")

// firstItemIndex starts high so prepends can grow the index space
// backwards without reflowing already-rendered virtualized rows.
const initialFirstItemIndex = 1_000_000

// Loader fetches one older page. It returns the page and the cursor for
// the page after it; an empty page or an empty next cursor signals
// exhaustion. Favourites and bookmarks derive the cursor from the Link
// response header, every other kind from the last item's id — the Loader
// owns that difference.
type Loader[T any] func(ctx context.Context, cursor string) ([]T, string, error)

// Collection is one view's ordered item list plus its unread buffer.
// Entries are kept in the order the upstream feed delivered them: new
// items go on the front, paged-in older items on the tail, updates
// replace in place, deletes remove. The collection never re-sorts; an
// out-of-order upstream is passed through as-is.
type Collection[T any] struct {
	rules  Rules[T]
	policy Policy
	loader Loader[T]

	pageSize   int
	maxVisible int

	mu             sync.Mutex
	items          []T
	unread         []T
	firstItemIndex int
	scrollTop      int
	cursor         string
	exhausted      bool
	appending      bool
}

// NewCollection creates an empty collection with the given rules
func NewCollection[T any](rules Rules[T], policy Policy, loader Loader[T], config core.Config) *Collection[T] {
	return &Collection[T]{
		rules:          rules,
		policy:         policy,
		loader:         loader,
		pageSize:       config.PageSize,
		maxVisible:     config.MaxVisible,
		firstItemIndex: initialFirstItemIndex,
	}
}

// NewStatusCollection creates a collection with status reblog semantics
func NewStatusCollection(policy Policy, loader Loader[core.Status], config core.Config) *Collection[core.Status] {
	return NewCollection(StatusRules(), policy, loader, config)
}

// NewNotificationCollection creates a collection for notifications
func NewNotificationCollection(policy Policy, loader Loader[core.Notification], config core.Config) *Collection[core.Notification] {
	return NewCollection(NotificationRules(), policy, loader, config)
}

// NewConversationCollection creates a collection for conversations
func NewConversationCollection(policy Policy, loader Loader[core.Conversation], config core.Config) *Collection[core.Conversation] {
	return NewCollection(ConversationRules(), policy, loader, config)
}

// SetScrollTop records the view's scroll offset, the input to the
// buffering suspension condition.
func (c *Collection[T]) SetScrollTop(offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrollTop = offset
}

func (c *Collection[T]) suspended() bool {
	if c.scrollTop > c.policy.ScrollThreshold {
		return true
	}
	if c.policy.ComposerOpen != nil && c.policy.ComposerOpen() {
		return true
	}
	return false
}

// OnLiveEvent takes one freshly arrived item. While the view is scrolled
// away from the top (or a composer is open) the item lands on the front
// of the unread buffer; otherwise it is prepended to the visible items,
// trimmed to the bounded window. A duplicate identity key in either list
// becomes an update in place.
func (c *Collection[T]) OnLiveEvent(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.rules.Identity(item)

	if c.suspended() {
		for i := range c.unread {
			if c.rules.Identity(c.unread[i]).SameKey(key) {
				c.unread[i] = c.rules.Merge(c.unread[i], item)
				return
			}
		}
		c.unread = append([]T{item}, c.unread...)
		return
	}

	for i := range c.items {
		if c.rules.Identity(c.items[i]).SameKey(key) {
			c.items[i] = c.rules.Merge(c.items[i], item)
			return
		}
	}
	c.items = append([]T{item}, c.items...)
	if len(c.items) > c.maxVisible {
		c.items = c.items[:c.maxVisible]
	}
}

// OnUpdateEvent rewrites any entry the incoming item matches, in both
// the visible items and the unread buffer. Matching goes through the
// identity tags, so boost wrappers are rewritten whichever side of the
// wrap the update addresses.
func (c *Collection[T]) OnUpdateEvent(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	incoming := c.rules.Identity(item)
	for i := range c.items {
		if c.rules.Identity(c.items[i]).Matches(incoming) {
			c.items[i] = c.rules.Merge(c.items[i], item)
		}
	}
	for i := range c.unread {
		if c.rules.Identity(c.unread[i]).Matches(incoming) {
			c.unread[i] = c.rules.Merge(c.unread[i], item)
		}
	}
}

// OnDeleteEvent removes every entry the deleted id addresses, directly
// or through a boost wrapper, from both lists.
func (c *Collection[T]) OnDeleteEvent(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = deleteMatching(c.items, c.rules.Identity, id)
	c.unread = deleteMatching(c.unread, c.rules.Identity, id)
}

func deleteMatching[T any](list []T, identity func(T) Identity, id string) []T {
	kept := list[:0]
	for _, item := range list {
		if identity(item).DeletedBy(id) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// PrependUnreads flushes at most one page of buffered items — the oldest
// buffered first, preserving arrival order — onto the front of the
// visible items, and moves firstItemIndex back by the count flushed so
// virtualized row keys stay stable. Remaining buffered items wait for
// the next flush; the increment is bounded on purpose so a long absence
// with high event volume cannot stall a frame.
func (c *Collection[T]) PrependUnreads() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.pageSize
	if n > len(c.unread) {
		n = len(c.unread)
	}
	if n == 0 {
		return 0
	}

	batch := c.unread[len(c.unread)-n:]
	c.unread = c.unread[:len(c.unread)-n]
	c.items = append(append(make([]T, 0, n+len(c.items)), batch...), c.items...)
	c.firstItemIndex -= n
	return n
}

// LoadMore fetches the next older page and appends it to the tail. A
// fetch already in flight or an exhausted feed makes it a no-op; a
// failed fetch leaves items and cursor untouched so the caller can
// simply retry.
func (c *Collection[T]) LoadMore(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Reconcile.Collection.LoadMore")
	defer span.End()

	c.mu.Lock()
	if c.appending || c.exhausted {
		c.mu.Unlock()
		return nil
	}
	c.appending = true
	cursor := c.cursor
	c.mu.Unlock()

	page, next, err := c.loader(ctx, cursor)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.appending = false

	if err != nil {
		span.RecordError(err)
		return err
	}
	if len(page) == 0 {
		c.exhausted = true
		return nil
	}

	c.items = append(c.items, page...)
	c.cursor = next
	if next == "" {
		// the last page of a header-cursored feed is non-empty but has no
		// follow-up cursor; refetching with an empty cursor would wrap
		// around to the newest page
		c.exhausted = true
	}
	return nil
}

// Items returns a snapshot of the visible entries
func (c *Collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]T, len(c.items))
	copy(snapshot, c.items)
	return snapshot
}

// Unread returns a snapshot of the buffered entries, newest first
func (c *Collection[T]) Unread() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]T, len(c.unread))
	copy(snapshot, c.unread)
	return snapshot
}

// UnreadCount returns the number of buffered entries
func (c *Collection[T]) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unread)
}

// FirstItemIndex returns the virtualization anchor index
func (c *Collection[T]) FirstItemIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstItemIndex
}

// Exhausted reports whether pagination has reached the end of the feed
func (c *Collection[T]) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}
