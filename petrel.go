// Package petrel is the synchronization core of a desktop client for
// Mastodon-family federated networks: configuration storage, the socket
// registry and its orchestrator, typed event dispatch, and the per-view
// reconciliation engine. The UI shell consumes it as a library; there is
// no process surface here.
package petrel

import (
	"context"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/petrelapp/petrel/client"
	"github.com/petrelapp/petrel/core"
	"github.com/petrelapp/petrel/util"
	"github.com/petrelapp/petrel/x/dispatch"
	"github.com/petrelapp/petrel/x/registry"
	"github.com/petrelapp/petrel/x/speech"
	"github.com/petrelapp/petrel/x/store"
)

// App wires the component graph: store feeds the orchestrator, the
// orchestrator owns the registry, and the dispatcher fans registry
// events out to whatever views the shell attaches.
type App struct {
	Config       core.Config
	DB           *gorm.DB
	Store        core.StoreService
	Orchestrator registry.Service
	Dispatcher   dispatch.Service
}

// NewApp loads configuration, opens the embedded database, and
// constructs the services.
func NewApp(configPath string) (*App, error) {
	var conf util.Config
	err := conf.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(conf.Storage.Path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = db.AutoMigrate(
		&core.Server{},
		&core.Account{},
		&core.Timeline{},
		&core.Setting{},
	)
	if err != nil {
		return nil, err
	}

	config := conf.Core()
	storeService := store.NewService(store.NewRepository(db))
	orchestrator := registry.NewService(storeService, client.DefaultFactory(config))
	dispatcher := dispatch.NewService(orchestrator.Registry(), speech.NewSpeaker(config))

	// listeners survive registry rebuilds: each new socket generation gets
	// the recorded attachments replayed
	orchestrator.OnRebuild(dispatcher.Rebind)

	return &App{
		Config:       config,
		DB:           db,
		Store:        storeService,
		Orchestrator: orchestrator,
		Dispatcher:   dispatcher,
	}, nil
}

// Boot builds the socket registry and starts watching for configuration
// changes. It returns once the first registry construction completed;
// listeners attached afterwards see a fully built fan-out.
func (a *App) Boot(ctx context.Context) error {
	err := a.Orchestrator.Build(ctx)
	if err != nil {
		return err
	}
	a.Orchestrator.Start(ctx)
	<-a.Orchestrator.Ready()
	return nil
}

// Shutdown removes all listeners, closes every socket, and waits for
// them to acknowledge before returning.
func (a *App) Shutdown(ctx context.Context) error {
	a.Dispatcher.RemoveAll()
	return a.Orchestrator.AllClose(ctx)
}
