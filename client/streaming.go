package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/petrelapp/petrel/core"
)

var (
	pingInterval      = 10 * time.Second
	disconnectTimeout = 30 * time.Second
	redialMaxElapsed  = 5 * time.Minute
)

// Socket is one live streaming connection. All events are delivered from
// a single read pump goroutine, so listeners observe wire order. A
// dropped connection is redialed with exponential backoff and previously
// subscribed channels are re-requested; deliberate Stop is final.
//
// Stop must not be called from inside a listener.
type Socket struct {
	dialURL string

	// cancels the socket's lifetime context, aborting a redial that is
	// still backing off
	cancel context.CancelFunc

	mu        sync.Mutex
	conn      *websocket.Conn
	listeners map[string]func(core.StreamEvent)
	subs      []subscribeRequest
	closed    bool

	done chan struct{}
}

type subscribeRequest struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
	List   string `json:"list,omitempty"`
	Tag    string `json:"tag,omitempty"`
}

// wireFrame is the raw packet the streaming endpoint sends
type wireFrame struct {
	Stream  []string `json:"stream"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
}

// UserStreaming opens the account's user-level streaming connection. The
// returned socket carries home statuses and notifications tagged "user"
// and accepts further multiplexed channel subscriptions.
func (c *client) UserStreaming(ctx context.Context) (core.StreamingSocket, error) {
	ctx, span := tracer.Start(ctx, "Client.UserStreaming")
	defer span.End()

	u, err := url.Parse(c.baseURL)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	scheme := "wss"
	if u.Scheme == "http" {
		scheme = "ws"
	}
	dialURL := url.URL{
		Scheme: scheme,
		Host:   u.Host,
		Path:   "/api/v1/streaming",
		RawQuery: url.Values{
			"access_token": []string{c.accessToken},
			"stream":       []string{core.ChannelUser},
		}.Encode(),
	}

	socket, err := dialSocket(ctx, dialURL.String())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return socket, nil
}

// Subscribe requests an additional logical channel on an already-open
// socket. The channel argument is a tag such as "public:local",
// "list:<id>" or "hashtag:<name>".
func (c *client) Subscribe(socket core.StreamingSocket, channel string) error {
	s, ok := socket.(*Socket)
	if !ok {
		return fmt.Errorf("socket does not support channel subscription")
	}
	return s.Subscribe(channel)
}

func dialSocket(ctx context.Context, dialURL string) (*Socket, error) {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Socket{
		dialURL:   dialURL,
		cancel:    cancel,
		conn:      conn,
		listeners: make(map[string]func(core.StreamEvent)),
		done:      make(chan struct{}),
	}
	s.resetReadDeadline(conn)

	go s.readPump(ctx)
	go s.pingRoutine(ctx)

	return s, nil
}

// On registers a listener under a caller-chosen name. Re-registering the
// same name replaces the previous handler.
func (s *Socket) On(name string, handler func(core.StreamEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[name] = handler
}

// RemoveListener unregisters one listener
func (s *Socket) RemoveListener(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, name)
}

// RemoveAllListeners unregisters everything. Registry rebuilds rely on
// this running before Stop so no listener survives a teardown.
func (s *Socket) RemoveAllListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = make(map[string]func(core.StreamEvent))
}

// Stop closes the connection and blocks until the read pump has exited,
// so callers can treat the socket as fully quiesced on return. A redial
// in flight is aborted rather than waited out.
func (s *Socket) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	<-s.done
}

// Subscribe sends a subscribe frame for the given channel tag and records
// it so a redial can restore the subscription.
func (s *Socket) Subscribe(channel string) error {
	req := subscribeRequest{Type: "subscribe"}
	switch {
	case strings.HasPrefix(channel, core.ChannelList+":"):
		req.Stream = core.ChannelList
		req.List = strings.TrimPrefix(channel, core.ChannelList+":")
	case strings.HasPrefix(channel, core.ChannelTag+":"):
		req.Stream = core.ChannelTag
		req.Tag = strings.TrimPrefix(channel, core.ChannelTag+":")
	default:
		req.Stream = channel
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn == nil {
		return core.NewErrorSocketClosed()
	}
	err := s.conn.WriteJSON(req)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, req)
	return nil
}

func (s *Socket) resetReadDeadline(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(disconnectTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(disconnectTimeout))
		return nil
	})
}

func (s *Socket) pingRoutine(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			closed := s.closed
			s.mu.Unlock()
			if closed || conn == nil {
				continue
			}
			conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
		}
	}
}

func (s *Socket) readPump(ctx context.Context) {
	defer close(s.done)

	for {
		s.mu.Lock()
		conn := s.conn
		closed := s.closed
		s.mu.Unlock()

		if closed || conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed = s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			if !s.redial(ctx) {
				return
			}
			continue
		}

		event, ok := decodeFrame(message)
		if !ok {
			continue
		}
		s.emit(event)
	}
}

// redial reconnects after a dropped connection and restores the
// multiplexed subscriptions. Returns false when the socket should give
// up, leaving the owning view to pull-based reload.
func (s *Socket) redial(ctx context.Context) bool {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = redialMaxElapsed

	conn, err := backoff.RetryWithData(func() (*websocket.Conn, error) {
		dialer := websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, s.dialURL, nil)
		return c, err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		slog.Error(
			fmt.Sprintf("giving up redialing streaming socket: %v", err),
			slog.String("module", "client"),
		)
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return false
	}
	s.conn = conn
	s.resetReadDeadline(conn)
	subs := make([]subscribeRequest, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		err := conn.WriteJSON(sub)
		if err != nil {
			slog.Warn(
				fmt.Sprintf("failed to restore subscription %s: %v", sub.Stream, err),
				slog.String("module", "client"),
			)
		}
	}

	slog.Info(
		"streaming socket reconnected",
		slog.String("module", "client"),
	)
	return true
}

func (s *Socket) emit(event core.StreamEvent) {
	s.mu.Lock()
	handlers := make([]func(core.StreamEvent), 0, len(s.listeners))
	for _, h := range s.listeners {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

func decodeFrame(message []byte) (core.StreamEvent, bool) {
	var frame wireFrame
	err := json.Unmarshal(message, &frame)
	if err != nil {
		slog.Warn(
			fmt.Sprintf("failed to decode streaming frame: %v", err),
			slog.String("module", "client"),
		)
		return core.StreamEvent{}, false
	}

	event := core.StreamEvent{
		Channel: channelOf(frame.Stream),
		Event:   frame.Event,
	}

	switch frame.Event {
	case core.EventUpdate, core.EventStatusUpdate:
		var status core.Status
		err = json.Unmarshal([]byte(frame.Payload), &status)
		event.Status = &status
	case core.EventNotification:
		var notification core.Notification
		err = json.Unmarshal([]byte(frame.Payload), &notification)
		event.Notification = &notification
	case core.EventConversation:
		var conversation core.Conversation
		err = json.Unmarshal([]byte(frame.Payload), &conversation)
		event.Conversation = &conversation
	case core.EventDelete:
		event.DeletedID = strings.TrimSpace(frame.Payload)
	default:
		return core.StreamEvent{}, false
	}
	if err != nil {
		slog.Warn(
			fmt.Sprintf("failed to decode %s payload: %v", frame.Event, err),
			slog.String("module", "client"),
		)
		return core.StreamEvent{}, false
	}

	return event, true
}

// channelOf rebuilds the logical channel tag from the stream field of a
// frame. List and hashtag streams carry their qualifier as a second
// element.
func channelOf(stream []string) string {
	if len(stream) == 0 {
		return ""
	}
	if len(stream) > 1 && (stream[0] == core.ChannelList || stream[0] == core.ChannelTag) {
		return stream[0] + ":" + stream[1]
	}
	return stream[0]
}
