// Package testutil carries the shared test fixtures: an in-memory
// database, an in-memory span exporter, and fakes for the protocol
// client and its streaming socket.
package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"

	"github.com/petrelapp/petrel/core"
)

var dbSerial atomic.Int64

// CreateDB opens a fresh in-memory database with the schema migrated.
// Each call gets its own database so tests stay independent.
func CreateDB() (*gorm.DB, func()) {
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSerial.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		panic(err)
	}

	err = db.AutoMigrate(
		&core.Server{},
		&core.Account{},
		&core.Timeline{},
		&core.Setting{},
	)
	if err != nil {
		panic(err)
	}

	cleanup := func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	return db, cleanup
}

// SetupMockTraceProvider installs an in-memory span exporter
func SetupMockTraceProvider() *tracetest.InMemoryExporter {
	spanChecker := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spanChecker))
	otel.SetTracerProvider(provider)

	return spanChecker
}

// FakeSocket implements core.StreamingSocket in memory. Emit delivers an
// event to every registered listener synchronously, like the real read
// pump does.
type FakeSocket struct {
	mu        sync.Mutex
	listeners map[string]func(core.StreamEvent)
	stopped   bool
}

func NewFakeSocket() *FakeSocket {
	return &FakeSocket{
		listeners: make(map[string]func(core.StreamEvent)),
	}
}

func (s *FakeSocket) On(name string, handler func(core.StreamEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[name] = handler
}

func (s *FakeSocket) RemoveListener(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, name)
}

func (s *FakeSocket) RemoveAllListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = make(map[string]func(core.StreamEvent))
}

func (s *FakeSocket) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *FakeSocket) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *FakeSocket) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *FakeSocket) Emit(event core.StreamEvent) {
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
