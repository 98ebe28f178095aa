package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/petrelapp/petrel/core"
)

type streamingServer struct {
	*httptest.Server

	queries    chan map[string][]string
	subscribes chan subscribeRequest
	send       chan wireFrame
}

// newStreamingServer upgrades incoming connections, records the dial
// query and every subscribe frame, and relays frames pushed into send.
// With dropFirst set, the first connection is closed after one subscribe
// frame to force a redial.
func newStreamingServer(t *testing.T, dropFirst bool) *streamingServer {
	t.Helper()
	s := &streamingServer{
		queries:    make(chan map[string][]string, 4),
		subscribes: make(chan subscribeRequest, 4),
		send:       make(chan wireFrame, 4),
	}

	upgrader := websocket.Upgrader{}
	var connCount atomic.Int32
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.queries <- r.URL.Query()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if dropFirst && connCount.Add(1) == 1 {
			var req subscribeRequest
			if conn.ReadJSON(&req) == nil {
				s.subscribes <- req
			}
			conn.Close()
			return
		}

		go func() {
			for {
				var req subscribeRequest
				err := conn.ReadJSON(&req)
				if err != nil {
					return
				}
				s.subscribes <- req
			}
		}()
		for frame := range s.send {
			err := conn.WriteJSON(frame)
			if err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func statusFrame(channel []string, event string, status core.Status) wireFrame {
	payload, _ := json.Marshal(status)
	return wireFrame{Stream: channel, Event: event, Payload: string(payload)}
}

func awaitEvent(t *testing.T, events chan core.StreamEvent) core.StreamEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a streamed event")
		return core.StreamEvent{}
	}
}

func TestUserStreamingDialAndDelivery(t *testing.T) {
	server := newStreamingServer(t, false)

	c := testClient(server.URL)
	socket, err := c.UserStreaming(context.Background())
	assert.NoError(t, err)
	defer socket.Stop()

	query := <-server.queries
	assert.Equal(t, []string{"test-token"}, query["access_token"])
	assert.Equal(t, []string{core.ChannelUser}, query["stream"])

	events := make(chan core.StreamEvent, 4)
	socket.On("test", func(ev core.StreamEvent) {
		events <- ev
	})

	server.send <- statusFrame([]string{"user"}, "update", core.Status{ID: "1", Content: "hello"})
	ev := awaitEvent(t, events)
	assert.Equal(t, core.ChannelUser, ev.Channel)
	assert.Equal(t, core.EventUpdate, ev.Event)
	if assert.NotNil(t, ev.Status) {
		assert.Equal(t, "1", ev.Status.ID)
	}
}

func TestSubscribeFrames(t *testing.T) {
	server := newStreamingServer(t, false)

	c := testClient(server.URL)
	socket, err := c.UserStreaming(context.Background())
	assert.NoError(t, err)
	defer socket.Stop()
	<-server.queries

	assert.NoError(t, c.Subscribe(socket, "public:local"))
	req := <-server.subscribes
	assert.Equal(t, subscribeRequest{Type: "subscribe", Stream: "public:local"}, req)

	assert.NoError(t, c.Subscribe(socket, "list:5"))
	req = <-server.subscribes
	assert.Equal(t, subscribeRequest{Type: "subscribe", Stream: "list", List: "5"}, req)

	assert.NoError(t, c.Subscribe(socket, "hashtag:golang"))
	req = <-server.subscribes
	assert.Equal(t, subscribeRequest{Type: "subscribe", Stream: "hashtag", Tag: "golang"}, req)
}

func TestChannelTagOfMultiplexedFrames(t *testing.T) {
	server := newStreamingServer(t, false)

	c := testClient(server.URL)
	socket, err := c.UserStreaming(context.Background())
	assert.NoError(t, err)
	defer socket.Stop()
	<-server.queries

	events := make(chan core.StreamEvent, 4)
	socket.On("test", func(ev core.StreamEvent) {
		events <- ev
	})

	server.send <- statusFrame([]string{"list", "5"}, "update", core.Status{ID: "1"})
	ev := awaitEvent(t, events)
	assert.Equal(t, "list:5", ev.Channel)

	server.send <- statusFrame([]string{"hashtag", "golang"}, "update", core.Status{ID: "2"})
	ev = awaitEvent(t, events)
	assert.Equal(t, "hashtag:golang", ev.Channel)
}

func TestDeleteFrame(t *testing.T) {
	server := newStreamingServer(t, false)

	c := testClient(server.URL)
	socket, err := c.UserStreaming(context.Background())
	assert.NoError(t, err)
	defer socket.Stop()
	<-server.queries

	events := make(chan core.StreamEvent, 4)
	socket.On("test", func(ev core.StreamEvent) {
		events <- ev
	})

	server.send <- wireFrame{Stream: []string{"user"}, Event: "delete", Payload: "12345"}
	ev := awaitEvent(t, events)
	assert.Equal(t, core.EventDelete, ev.Event)
	assert.Equal(t, "12345", ev.DeletedID)
}

func TestStopQuiescesSocket(t *testing.T) {
	server := newStreamingServer(t, false)

	c := testClient(server.URL)
	socket, err := c.UserStreaming(context.Background())
	assert.NoError(t, err)
	<-server.queries

	socket.Stop()

	// the socket is fully quiesced: further subscribe attempts fail and
	// a second Stop is harmless
	err = c.Subscribe(socket, "public:local")
	assert.Error(t, err)
	assert.IsType(t, core.ErrorSocketClosed{}, err)
	socket.Stop()
}

func TestStopAbortsRedial(t *testing.T) {
	server := newStreamingServer(t, false)

	c := testClient(server.URL)
	socket, err := c.UserStreaming(context.Background())
	assert.NoError(t, err)
	<-server.queries

	// take the server down entirely; the dropped connection sends the
	// socket into backoff redial against a dead address
	server.Close()
	time.Sleep(100 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		socket.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not abort the in-flight redial")
	}
}

func TestRedialRestoresSubscriptions(t *testing.T) {
	server := newStreamingServer(t, true)

	c := testClient(server.URL)
	socket, err := c.UserStreaming(context.Background())
	assert.NoError(t, err)
	defer socket.Stop()
	<-server.queries

	assert.NoError(t, c.Subscribe(socket, "public:local"))
	<-server.subscribes

	// the server drops the connection after that frame; the socket
	// redials on its own and the replacement connection gets the recorded
	// subscription replayed
	<-server.queries
	select {
	case req := <-server.subscribes:
		assert.Equal(t, "public:local", req.Stream)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription was not restored after redial")
	}

	events := make(chan core.StreamEvent, 4)
	socket.On("test", func(ev core.StreamEvent) {
		events <- ev
	})
	server.send <- statusFrame([]string{"public:local"}, "update", core.Status{ID: "1"})
	ev := awaitEvent(t, events)
	assert.Equal(t, "public:local", ev.Channel)
}

func TestDecodeFrameSkipsUnknownEvents(t *testing.T) {
	_, ok := decodeFrame([]byte(`{"stream":["user"],"event":"filters_changed","payload":""}`))
	assert.False(t, ok)

	_, ok = decodeFrame([]byte(`not json`))
	assert.False(t, ok)

	ev, ok := decodeFrame([]byte(`{"stream":["user"],"event":"notification","payload":"{\"id\":\"n1\",\"type\":\"mention\"}"}`))
	assert.True(t, ok)
	if assert.NotNil(t, ev.Notification) {
		assert.Equal(t, "mention", ev.Notification.Type)
	}
}
