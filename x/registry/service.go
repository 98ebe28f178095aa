package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/petrelapp/petrel/client"
	"github.com/petrelapp/petrel/core"
)

var tracer = otel.Tracer("registry")

var (
	watchInterval = 1 * time.Second

	liveSocketMetrics prometheus.Gauge
)

// Service is the subscription orchestrator. It builds the socket
// registry from the persisted configuration, tears it down wholesale
// before every rebuild so listeners never accumulate, and watches the
// store's refresh stamp for structural edits.
type Service interface {
	Registry() *Registry
	Build(ctx context.Context) error
	Rebuild(ctx context.Context) error
	AllClose(ctx context.Context) error
	Ready() <-chan struct{}
	OnRebuild(fn func())
	Start(ctx context.Context)
}

type service struct {
	store    core.StoreService
	factory  client.Factory
	registry *Registry

	rebuildLock sync.Mutex
	readyOnce   sync.Once
	ready       chan struct{}
	lastStamp   int64

	callbackLock     sync.Mutex
	rebuildCallbacks []func()
}

// NewService creates a new orchestrator service
func NewService(store core.StoreService, factory client.Factory) Service {
	if liveSocketMetrics == nil {
		liveSocketMetrics = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "petrel_live_sockets",
				Help: "Number of open user streaming connections",
			},
		)
		prometheus.MustRegister(liveSocketMetrics)
	}

	return &service{
		store:    store,
		factory:  factory,
		registry: NewRegistry(),
		ready:    make(chan struct{}),
	}
}

func (s *service) Registry() *Registry {
	return s.registry
}

// Ready is closed once the first registry construction has completed.
// Callers await it instead of polling for sockets to appear.
func (s *service) Ready() <-chan struct{} {
	return s.ready
}

// OnRebuild registers a hook invoked after every registry construction.
// The dispatcher uses it to replay its listeners onto the new socket
// generation, since teardown removed them from the old one.
func (s *service) OnRebuild(fn func()) {
	s.callbackLock.Lock()
	defer s.callbackLock.Unlock()
	s.rebuildCallbacks = append(s.rebuildCallbacks, fn)
}

// Start launches the refresh watcher. Every structural store mutation
// bumps the refresh stamp; a change triggers a full rebuild.
func (s *service) Start(ctx context.Context) {
	go s.watchRefreshRoutine(ctx)
}

func (s *service) watchRefreshRoutine(ctx context.Context) {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stamp := s.store.RefreshStamp()
			s.rebuildLock.Lock()
			changed := stamp != s.lastStamp
			s.rebuildLock.Unlock()
			if !changed {
				continue
			}
			err := s.Rebuild(ctx)
			if err != nil {
				slog.Error(
					fmt.Sprintf("failed to rebuild socket registry: %v", err),
					slog.String("module", "registry"),
				)
			}
		}
	}
}

// Build constructs the registry from the current configuration. Failures
// are isolated per server and per timeline: a dead instance yields a
// nil-socket entry and the rest of the fan-out proceeds.
func (s *service) Build(ctx context.Context) error {
	s.rebuildLock.Lock()
	defer s.rebuildLock.Unlock()
	return s.build(ctx)
}

// Rebuild tears the registry down completely, then builds it again.
// Teardown removes every listener before stopping any socket, so no
// duplicate listener can survive into the next generation.
func (s *service) Rebuild(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Registry.Service.Rebuild")
	defer span.End()

	s.rebuildLock.Lock()
	defer s.rebuildLock.Unlock()

	s.teardown()
	return s.build(ctx)
}

// AllClose tears everything down and leaves the registry empty. It
// returns only after every socket acknowledged close.
func (s *service) AllClose(ctx context.Context) error {
	_, span := tracer.Start(ctx, "Registry.Service.AllClose")
	defer span.End()

	s.rebuildLock.Lock()
	defer s.rebuildLock.Unlock()

	s.teardown()
	return nil
}

func (s *service) teardown() {
	sockets := s.registry.drain()
	for _, socket := range sockets {
		socket.RemoveAllListeners()
	}
	for _, socket := range sockets {
		socket.Stop()
	}
	liveSocketMetrics.Set(0)
}

type serverConn struct {
	server  core.Server
	account core.Account
	client  client.Client
	socket  core.StreamingSocket
}

func (s *service) build(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Registry.Service.Build")
	defer span.End()

	servers, err := s.store.ListServers(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	conns := make(map[uint]*serverConn)
	for _, entry := range servers {
		if entry.Account == nil || entry.Account.AccessToken == "" {
			continue
		}

		conn := &serverConn{
			server:  entry.Server,
			account: *entry.Account,
			client:  s.factory(entry.Server, *entry.Account),
		}
		conns[entry.Server.ID] = conn

		if entry.Server.NoStreaming {
			s.registry.setUser(entry.Account.ID, Entry{
				OwnerID: entry.Account.ID,
				Channel: core.ChannelUser,
			})
			continue
		}

		socket, err := conn.client.UserStreaming(ctx)
		if err != nil {
			slog.Error(
				fmt.Sprintf("failed to open user streaming for %s: %v", entry.Server.Domain, err),
				slog.String("module", "registry"),
			)
			socket = nil
		}
		conn.socket = socket
		s.registry.setUser(entry.Account.ID, Entry{
			OwnerID: entry.Account.ID,
			Socket:  socket,
			Channel: core.ChannelUser,
		})
	}

	wrappers, err := s.store.ListTimelines(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	for _, stack := range wrappers {
		for _, timeline := range stack {
			s.subscribeTimeline(timeline, conns[timeline.ServerID])
		}
	}

	s.lastStamp = s.store.RefreshStamp()
	s.readyOnce.Do(func() {
		close(s.ready)
	})
	liveSocketMetrics.Set(float64(s.registry.LiveCount()))

	s.callbackLock.Lock()
	callbacks := make([]func(), len(s.rebuildCallbacks))
	copy(callbacks, s.rebuildCallbacks)
	s.callbackLock.Unlock()
	for _, fn := range callbacks {
		fn()
	}

	return nil
}

// subscribeTimeline records the per-timeline entry. Kinds that support
// server-side push are multiplexed onto the owning server's user socket;
// home and notifications ride that socket's "user" tag, and favourites
// and bookmarks stay pull-only.
func (s *service) subscribeTimeline(timeline core.Timeline, conn *serverConn) {
	tag := timeline.Kind.ChannelTag(timeline.Qualifier())
	entry := Entry{OwnerID: timeline.ID, Channel: tag}

	if conn == nil || conn.socket == nil {
		s.registry.setTimeline(timeline.ID, entry)
		return
	}

	if !timeline.Kind.Subscribable() || conn.server.CannotSubscribe {
		s.registry.setTimeline(timeline.ID, entry)
		return
	}

	err := conn.client.Subscribe(conn.socket, tag)
	if err != nil {
		slog.Error(
			fmt.Sprintf("failed to subscribe timeline %d (%s): %v", timeline.ID, tag, err),
			slog.String("module", "registry"),
		)
		s.registry.setTimeline(timeline.ID, entry)
		return
	}

	entry.Socket = conn.socket
	s.registry.setTimeline(timeline.ID, entry)
}
