// Package client talks to one Mastodon-family server on behalf of one
// account: paginated timeline fetches, read markers, and the streaming
// socket all live here. Request signing and OAuth are out of scope; the
// access token is used as-is.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/petrelapp/petrel/core"
)

const (
	defaultTimeout = 10 * time.Second
)

var tracer = otel.Tracer("client")

// Options narrows a paginated fetch
type Options struct {
	MaxID   string
	SinceID string
	Limit   int
}

// Client is the protocol client interface consumed by the views and the
// orchestrator. Favourites and bookmarks return an explicit next cursor
// extracted from the Link response header; every other kind derives its
// next cursor from the last item's id.
type Client interface {
	GetHomeTimeline(ctx context.Context, opts Options) ([]core.Status, error)
	GetLocalTimeline(ctx context.Context, opts Options) ([]core.Status, error)
	GetPublicTimeline(ctx context.Context, opts Options) ([]core.Status, error)
	GetTagTimeline(ctx context.Context, tag string, opts Options) ([]core.Status, error)
	GetListTimeline(ctx context.Context, listID string, opts Options) ([]core.Status, error)
	GetDirectTimeline(ctx context.Context, opts Options) ([]core.Status, error)
	GetFavourites(ctx context.Context, opts Options) ([]core.Status, string, error)
	GetBookmarks(ctx context.Context, opts Options) ([]core.Status, string, error)
	GetNotifications(ctx context.Context, opts Options) ([]core.Notification, error)
	GetConversationTimeline(ctx context.Context, opts Options) ([]core.Conversation, error)
	GetMarkers(ctx context.Context, timelines []string) (core.Markers, error)
	SaveMarkers(ctx context.Context, markers core.Markers) error
	UserStreaming(ctx context.Context) (core.StreamingSocket, error)
	Subscribe(socket core.StreamingSocket, channel string) error
}

// Factory builds a client for one server/account pair. The orchestrator
// depends on this instead of a concrete constructor so tests can inject
// fakes per server.
type Factory func(server core.Server, account core.Account) Client

// DefaultFactory returns the production factory
func DefaultFactory(config core.Config) Factory {
	return func(server core.Server, account core.Account) Client {
		return NewClient(server, account, config)
	}
}

type client struct {
	baseURL     string
	accessToken string
	sns         core.SNS
	userAgent   string
}

// NewClient creates a protocol client bound to one server and account
func NewClient(server core.Server, account core.Account, config core.Config) Client {
	return &client{
		baseURL:     server.BaseURL,
		accessToken: account.AccessToken,
		sns:         server.SNS,
		userAgent:   config.UserAgent,
	}
}

func (o Options) query() url.Values {
	q := url.Values{}
	if o.MaxID != "" {
		q.Set("max_id", o.MaxID)
	}
	if o.SinceID != "" {
		q.Set("since_id", o.SinceID)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	return q
}

func (c *client) doGet(ctx context.Context, path string, query url.Values, out any) (http.Header, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u = u + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", c.userAgent)

	httpClient := new(http.Client)
	httpClient.Timeout = defaultTimeout
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode response from "+path)
	}

	return resp.Header, nil
}

func (c *client) getStatuses(ctx context.Context, span string, path string, query url.Values) ([]core.Status, http.Header, error) {
	ctx, sp := tracer.Start(ctx, span)
	defer sp.End()

	var statuses []core.Status
	header, err := c.doGet(ctx, path, query, &statuses)
	if err != nil {
		sp.RecordError(err)
		return nil, nil, err
	}
	return statuses, header, nil
}

func (c *client) GetHomeTimeline(ctx context.Context, opts Options) ([]core.Status, error) {
	statuses, _, err := c.getStatuses(ctx, "Client.GetHomeTimeline", "/api/v1/timelines/home", opts.query())
	return statuses, err
}

func (c *client) GetLocalTimeline(ctx context.Context, opts Options) ([]core.Status, error) {
	q := opts.query()
	q.Set("local", "true")
	statuses, _, err := c.getStatuses(ctx, "Client.GetLocalTimeline", "/api/v1/timelines/public", q)
	return statuses, err
}

func (c *client) GetPublicTimeline(ctx context.Context, opts Options) ([]core.Status, error) {
	statuses, _, err := c.getStatuses(ctx, "Client.GetPublicTimeline", "/api/v1/timelines/public", opts.query())
	return statuses, err
}

func (c *client) GetTagTimeline(ctx context.Context, tag string, opts Options) ([]core.Status, error) {
	path := "/api/v1/timelines/tag/" + url.PathEscape(tag)
	statuses, _, err := c.getStatuses(ctx, "Client.GetTagTimeline", path, opts.query())
	return statuses, err
}

func (c *client) GetListTimeline(ctx context.Context, listID string, opts Options) ([]core.Status, error) {
	path := "/api/v1/timelines/list/" + url.PathEscape(listID)
	statuses, _, err := c.getStatuses(ctx, "Client.GetListTimeline", path, opts.query())
	return statuses, err
}

func (c *client) GetDirectTimeline(ctx context.Context, opts Options) ([]core.Status, error) {
	statuses, _, err := c.getStatuses(ctx, "Client.GetDirectTimeline", "/api/v1/timelines/direct", opts.query())
	return statuses, err
}

func (c *client) GetFavourites(ctx context.Context, opts Options) ([]core.Status, string, error) {
	statuses, header, err := c.getStatuses(ctx, "Client.GetFavourites", "/api/v1/favourites", opts.query())
	if err != nil {
		return nil, "", err
	}
	return statuses, LinkNextMaxID(header), nil
}

func (c *client) GetBookmarks(ctx context.Context, opts Options) ([]core.Status, string, error) {
	statuses, header, err := c.getStatuses(ctx, "Client.GetBookmarks", "/api/v1/bookmarks", opts.query())
	if err != nil {
		return nil, "", err
	}
	return statuses, LinkNextMaxID(header), nil
}

func (c *client) GetNotifications(ctx context.Context, opts Options) ([]core.Notification, error) {
	ctx, span := tracer.Start(ctx, "Client.GetNotifications")
	defer span.End()

	var notifications []core.Notification
	_, err := c.doGet(ctx, "/api/v1/notifications", opts.query(), &notifications)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return notifications, nil
}

func (c *client) GetConversationTimeline(ctx context.Context, opts Options) ([]core.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Client.GetConversationTimeline")
	defer span.End()

	var conversations []core.Conversation
	_, err := c.doGet(ctx, "/api/v1/conversations", opts.query(), &conversations)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return conversations, nil
}

func (c *client) GetMarkers(ctx context.Context, timelines []string) (core.Markers, error) {
	ctx, span := tracer.Start(ctx, "Client.GetMarkers")
	defer span.End()

	q := url.Values{}
	for _, timeline := range timelines {
		q.Add("timeline[]", timeline)
	}

	var markers core.Markers
	_, err := c.doGet(ctx, "/api/v1/markers", q, &markers)
	if err != nil {
		span.RecordError(err)
		return core.Markers{}, err
	}
	return markers, nil
}

func (c *client) SaveMarkers(ctx context.Context, markers core.Markers) error {
	ctx, span := tracer.Start(ctx, "Client.SaveMarkers")
	defer span.End()

	payload := map[string]map[string]string{}
	if markers.Home != nil {
		payload["home"] = map[string]string{"last_read_id": markers.Home.LastReadID}
	}
	if markers.Notifications != nil {
		payload["notifications"] = map[string]string{"last_read_id": markers.Notifications.LastReadID}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/markers", bytes.NewBuffer(body))
	if err != nil {
		span.RecordError(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", c.userAgent)

	httpClient := new(http.Client)
	httpClient.Timeout = defaultTimeout
	resp, err := httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("unexpected status %d saving markers", resp.StatusCode)
		span.RecordError(err)
		return err
	}
	return nil
}
