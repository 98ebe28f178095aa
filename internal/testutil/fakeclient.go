package testutil

import (
	"context"
	"sync"

	"github.com/petrelapp/petrel/client"
	"github.com/petrelapp/petrel/core"
)

// FakeClient implements client.Client against canned data. Streaming
// hands out FakeSockets, and subscribe calls are recorded so tests can
// assert on fan-out behavior.
type FakeClient struct {
	mu sync.Mutex

	Statuses      []core.Status
	Notifications []core.Notification
	Conversations []core.Conversation
	NextCursor    string
	Markers       core.Markers

	StreamingErr error
	SubscribeErr error

	sockets    []*FakeSocket
	subscribed []string
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Sockets returns every socket handed out so far
func (c *FakeClient) Sockets() []*FakeSocket {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*FakeSocket, len(c.sockets))
	copy(out, c.sockets)
	return out
}

// Subscribed returns the channel tags requested so far
func (c *FakeClient) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.subscribed))
	copy(out, c.subscribed)
	return out
}

func (c *FakeClient) statuses() ([]core.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Status, len(c.Statuses))
	copy(out, c.Statuses)
	return out, nil
}

func (c *FakeClient) GetHomeTimeline(ctx context.Context, opts client.Options) ([]core.Status, error) {
	return c.statuses()
}

func (c *FakeClient) GetLocalTimeline(ctx context.Context, opts client.Options) ([]core.Status, error) {
	return c.statuses()
}

func (c *FakeClient) GetPublicTimeline(ctx context.Context, opts client.Options) ([]core.Status, error) {
	return c.statuses()
}

func (c *FakeClient) GetTagTimeline(ctx context.Context, tag string, opts client.Options) ([]core.Status, error) {
	return c.statuses()
}

func (c *FakeClient) GetListTimeline(ctx context.Context, listID string, opts client.Options) ([]core.Status, error) {
	return c.statuses()
}

func (c *FakeClient) GetDirectTimeline(ctx context.Context, opts client.Options) ([]core.Status, error) {
	return c.statuses()
}

func (c *FakeClient) GetFavourites(ctx context.Context, opts client.Options) ([]core.Status, string, error) {
	statuses, _ := c.statuses()
	return statuses, c.NextCursor, nil
}

func (c *FakeClient) GetBookmarks(ctx context.Context, opts client.Options) ([]core.Status, string, error) {
	statuses, _ := c.statuses()
	return statuses, c.NextCursor, nil
}

func (c *FakeClient) GetNotifications(ctx context.Context, opts client.Options) ([]core.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Notification, len(c.Notifications))
	copy(out, c.Notifications)
	return out, nil
}

func (c *FakeClient) GetConversationTimeline(ctx context.Context, opts client.Options) ([]core.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Conversation, len(c.Conversations))
	copy(out, c.Conversations)
	return out, nil
}

func (c *FakeClient) GetMarkers(ctx context.Context, timelines []string) (core.Markers, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Markers, nil
}

func (c *FakeClient) SaveMarkers(ctx context.Context, markers core.Markers) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Markers = markers
	return nil
}

func (c *FakeClient) UserStreaming(ctx context.Context) (core.StreamingSocket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StreamingErr != nil {
		return nil, c.StreamingErr
	}
	socket := NewFakeSocket()
	c.sockets = append(c.sockets, socket)
	return socket, nil
}

func (c *FakeClient) Subscribe(socket core.StreamingSocket, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		return c.SubscribeErr
	}
	c.subscribed = append(c.subscribed, channel)
	return nil
}
