// Package dispatch routes raw socket events to typed per-channel-kind
// listeners. It is a pure registration/fan-out layer: it holds no
// buffering state, and a misbehaving listener never breaks the other
// listeners sharing the socket.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petrelapp/petrel/core"
	"github.com/petrelapp/petrel/x/registry"
	"github.com/petrelapp/petrel/x/speech"
)

var dispatchedEventMetrics *prometheus.CounterVec

// Service attaches normalized listeners across every socket currently in
// the registry. Attachments are recorded twice over: per-socket
// registrations so RemoveAll can support the orchestrator's
// teardown-before-rebuild contract, and as rebindable closures so Rebind
// can replay them onto the next socket generation after a rebuild.
type Service interface {
	ReceiveHomeStatus(cb func(StatusEvent), tts bool)
	ReceiveHomeStatusUpdate(cb func(StatusEvent))
	DeleteHomeStatus(cb func(DeleteEvent))
	ReceiveNotification(cb func(NotificationEvent), tts bool)

	ReceiveTimelineStatus(kind core.TimelineKind, cb func(StatusEvent), tts bool)
	ReceiveTimelineStatusUpdate(kind core.TimelineKind, cb func(StatusEvent))
	DeleteTimelineStatus(kind core.TimelineKind, cb func(DeleteEvent))
	ReceiveTimelineConversation(cb func(ConversationEvent))

	Rebind()
	RemoveAll()
}

type registration struct {
	socket core.StreamingSocket
	name   string
}

type service struct {
	registry *registry.Registry
	speaker  speech.Speaker

	mu            sync.Mutex
	registrations []registration
	bindings      []func()
}

// NewService creates a new dispatcher over the given registry
func NewService(reg *registry.Registry, speaker speech.Speaker) Service {
	if dispatchedEventMetrics == nil {
		dispatchedEventMetrics = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "petrel_dispatched_events_total",
				Help: "Events routed to listeners, by channel kind",
			},
			[]string{"kind"},
		)
		prometheus.MustRegister(dispatchedEventMetrics)
	}

	return &service{
		registry: reg,
		speaker:  speaker,
	}
}

func (s *service) attach(socket core.StreamingSocket, name string, handler func(core.StreamEvent)) {
	socket.On(name, handler)
	s.mu.Lock()
	s.registrations = append(s.registrations, registration{socket: socket, name: name})
	s.mu.Unlock()
}

// bind records the attachment so Rebind can replay it, then performs it
func (s *service) bind(attach func()) {
	s.mu.Lock()
	s.bindings = append(s.bindings, attach)
	s.mu.Unlock()
	attach()
}

// Rebind re-attaches every recorded listener to the sockets currently in
// the registry. The orchestrator invokes this after each rebuild;
// registrations against the torn-down generation are dropped, those
// sockets are already stopped.
func (s *service) Rebind() {
	s.mu.Lock()
	s.registrations = nil
	bindings := make([]func(), len(s.bindings))
	copy(bindings, s.bindings)
	s.mu.Unlock()

	for _, attach := range bindings {
		attach()
	}
}

// RemoveAll unregisters every listener this dispatcher has attached and
// forgets the rebind recordings, so nothing comes back on the next
// rebuild either.
func (s *service) RemoveAll() {
	s.mu.Lock()
	registrations := s.registrations
	s.registrations = nil
	s.bindings = nil
	s.mu.Unlock()

	for _, r := range registrations {
		r.socket.RemoveListener(r.name)
	}
}

// invoke runs one listener callback, containing panics so a malformed
// event for one view cannot break other views on the same socket.
func invoke(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(
				fmt.Sprintf("listener for %s panicked: %v", kind, r),
				slog.String("module", "dispatch"),
			)
		}
	}()
	dispatchedEventMetrics.WithLabelValues(kind).Inc()
	fn()
}

func (s *service) speak(status core.Status) {
	body := status.Content
	if body == "" && status.Reblog != nil {
		body = status.Reblog.Content
	}
	text := speech.Flatten(body)
	go s.speaker.Speak(context.Background(), text)
}

func (s *service) ReceiveHomeStatus(cb func(StatusEvent), tts bool) {
	s.bind(func() { s.receiveHomeStatus(cb, tts) })
}

func (s *service) receiveHomeStatus(cb func(StatusEvent), tts bool) {
	for accountID, entry := range s.registry.UserStreamings() {
		if entry.Socket == nil {
			continue
		}
		ownerID := accountID
		name := fmt.Sprintf("%s:%d", ListenReceiveHomeStatus, ownerID)
		s.attach(entry.Socket, name, func(ev core.StreamEvent) {
			if ev.Channel != core.ChannelUser || ev.Event != core.EventUpdate || ev.Status == nil {
				return
			}
			if tts {
				s.speak(*ev.Status)
			}
			invoke(ListenReceiveHomeStatus, func() {
				cb(StatusEvent{OwnerID: ownerID, Status: *ev.Status})
			})
		})
	}
}

func (s *service) ReceiveHomeStatusUpdate(cb func(StatusEvent)) {
	s.bind(func() { s.receiveHomeStatusUpdate(cb) })
}

func (s *service) receiveHomeStatusUpdate(cb func(StatusEvent)) {
	for accountID, entry := range s.registry.UserStreamings() {
		if entry.Socket == nil {
			continue
		}
		ownerID := accountID
		name := fmt.Sprintf("%s:%d", ListenReceiveHomeStatusUpdate, ownerID)
		s.attach(entry.Socket, name, func(ev core.StreamEvent) {
			if ev.Channel != core.ChannelUser || ev.Event != core.EventStatusUpdate || ev.Status == nil {
				return
			}
			invoke(ListenReceiveHomeStatusUpdate, func() {
				cb(StatusEvent{OwnerID: ownerID, Status: *ev.Status})
			})
		})
	}
}

func (s *service) DeleteHomeStatus(cb func(DeleteEvent)) {
	s.bind(func() { s.deleteHomeStatus(cb) })
}

func (s *service) deleteHomeStatus(cb func(DeleteEvent)) {
	for accountID, entry := range s.registry.UserStreamings() {
		if entry.Socket == nil {
			continue
		}
		ownerID := accountID
		name := fmt.Sprintf("%s:%d", ListenDeleteHomeStatus, ownerID)
		s.attach(entry.Socket, name, func(ev core.StreamEvent) {
			if ev.Channel != core.ChannelUser || ev.Event != core.EventDelete || ev.DeletedID == "" {
				return
			}
			invoke(ListenDeleteHomeStatus, func() {
				cb(DeleteEvent{OwnerID: ownerID, ID: ev.DeletedID})
			})
		})
	}
}

func (s *service) ReceiveNotification(cb func(NotificationEvent), tts bool) {
	s.bind(func() { s.receiveNotification(cb, tts) })
}

func (s *service) receiveNotification(cb func(NotificationEvent), tts bool) {
	for accountID, entry := range s.registry.UserStreamings() {
		if entry.Socket == nil {
			continue
		}
		ownerID := accountID
		name := fmt.Sprintf("%s:%d", ListenReceiveNotification, ownerID)
		s.attach(entry.Socket, name, func(ev core.StreamEvent) {
			if ev.Channel != core.ChannelUser || ev.Event != core.EventNotification || ev.Notification == nil {
				return
			}
			if tts && ev.Notification.Status != nil {
				s.speak(*ev.Notification.Status)
			}
			invoke(ListenReceiveNotification, func() {
				cb(NotificationEvent{OwnerID: ownerID, Notification: *ev.Notification})
			})
		})
	}
}

// matchesKind reports whether a column entry's channel tag belongs to the
// given timeline kind. List and tag channels carry a qualifier suffix.
func matchesKind(channel string, kind core.TimelineKind) bool {
	switch kind {
	case core.KindList:
		return strings.HasPrefix(channel, core.ChannelList+":")
	case core.KindTag:
		return strings.HasPrefix(channel, core.ChannelTag+":")
	default:
		return channel == kind.ChannelTag("")
	}
}

func (s *service) ReceiveTimelineStatus(kind core.TimelineKind, cb func(StatusEvent), tts bool) {
	s.bind(func() { s.receiveTimelineStatus(kind, cb, tts) })
}

func (s *service) receiveTimelineStatus(kind core.TimelineKind, cb func(StatusEvent), tts bool) {
	for timelineID, entry := range s.registry.Streamings() {
		if entry.Socket == nil || !matchesKind(entry.Channel, kind) {
			continue
		}
		ownerID := timelineID
		channel := entry.Channel
		name := fmt.Sprintf("%s:%d", ListenReceiveTimelineStatus, ownerID)
		s.attach(entry.Socket, name, func(ev core.StreamEvent) {
			if ev.Channel != channel || ev.Event != core.EventUpdate || ev.Status == nil {
				return
			}
			if tts {
				s.speak(*ev.Status)
			}
			invoke(ListenReceiveTimelineStatus, func() {
				cb(StatusEvent{OwnerID: ownerID, Status: *ev.Status})
			})
		})
	}
}

func (s *service) ReceiveTimelineStatusUpdate(kind core.TimelineKind, cb func(StatusEvent)) {
	s.bind(func() { s.receiveTimelineStatusUpdate(kind, cb) })
}

func (s *service) receiveTimelineStatusUpdate(kind core.TimelineKind, cb func(StatusEvent)) {
	for timelineID, entry := range s.registry.Streamings() {
		if entry.Socket == nil || !matchesKind(entry.Channel, kind) {
			continue
		}
		ownerID := timelineID
		channel := entry.Channel
		name := fmt.Sprintf("%s:%d", ListenReceiveTimelineStatusUpdate, ownerID)
		s.attach(entry.Socket, name, func(ev core.StreamEvent) {
			if ev.Channel != channel || ev.Event != core.EventStatusUpdate || ev.Status == nil {
				return
			}
			invoke(ListenReceiveTimelineStatusUpdate, func() {
				cb(StatusEvent{OwnerID: ownerID, Status: *ev.Status})
			})
		})
	}
}

func (s *service) DeleteTimelineStatus(kind core.TimelineKind, cb func(DeleteEvent)) {
	s.bind(func() { s.deleteTimelineStatus(kind, cb) })
}

func (s *service) deleteTimelineStatus(kind core.TimelineKind, cb func(DeleteEvent)) {
	for timelineID, entry := range s.registry.Streamings() {
		if entry.Socket == nil || !matchesKind(entry.Channel, kind) {
			continue
		}
		ownerID := timelineID
		channel := entry.Channel
		name := fmt.Sprintf("%s:%d", ListenDeleteTimelineStatus, ownerID)
		s.attach(entry.Socket, name, func(ev core.StreamEvent) {
			if ev.Channel != channel || ev.Event != core.EventDelete || ev.DeletedID == "" {
				return
			}
			invoke(ListenDeleteTimelineStatus, func() {
				cb(DeleteEvent{OwnerID: ownerID, ID: ev.DeletedID})
			})
		})
	}
}

func (s *service) ReceiveTimelineConversation(cb func(ConversationEvent)) {
	s.bind(func() { s.receiveTimelineConversation(cb) })
}

func (s *service) receiveTimelineConversation(cb func(ConversationEvent)) {
	for timelineID, entry := range s.registry.Streamings() {
		if entry.Socket == nil || !matchesKind(entry.Channel, core.KindDirect) {
			continue
		}
		ownerID := timelineID
		channel := entry.Channel
		name := fmt.Sprintf("%s:%d", ListenReceiveTimelineConversation, ownerID)
		s.attach(entry.Socket, name, func(ev core.StreamEvent) {
			if ev.Channel != channel || ev.Event != core.EventConversation || ev.Conversation == nil {
				return
			}
			invoke(ListenReceiveTimelineConversation, func() {
				cb(ConversationEvent{OwnerID: ownerID, Conversation: *ev.Conversation})
			})
		})
	}
}
