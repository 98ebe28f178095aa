package core

import (
	"context"
)

// StreamingSocket is one live streaming connection. Implementations must
// deliver events serially from a single reader so that listener order
// matches wire order, and Stop must not return until delivery has ceased.
type StreamingSocket interface {
	On(name string, handler func(StreamEvent))
	RemoveListener(name string)
	RemoveAllListeners()
	Stop()
}

// ServerWithAccount pairs a server with its linked account, if any
type ServerWithAccount struct {
	Server  Server
	Account *Account
}

// StoreService persists servers, accounts, timelines and settings.
// Structural timeline mutations are full read-modify-write passes over the
// nested wrapper/stack structure followed by dense renumbering, and each
// one bumps the refresh stamp the orchestrator watches.
type StoreService interface {
	ListServers(ctx context.Context) ([]ServerWithAccount, error)
	GetServer(ctx context.Context, id uint) (Server, error)
	AddServer(ctx context.Context, server Server) (Server, error)
	RemoveServer(ctx context.Context, id uint) error

	GetAccount(ctx context.Context, id uint) (Account, error)
	AttachAccount(ctx context.Context, serverID uint, account Account) (Account, error)
	DetachAccount(ctx context.Context, serverID uint) error

	ListTimelines(ctx context.Context) ([][]Timeline, error)
	AddTimeline(ctx context.Context, timeline Timeline) (Timeline, error)
	RemoveTimeline(ctx context.Context, id uint) error
	UpdateColumnOrder(ctx context.Context, id uint, wrapper int, position int) error
	UpdateColumnStack(ctx context.Context, id uint, stacked bool) error
	UpdateColumnWidth(ctx context.Context, id uint, width int) error
	UpdateColumnHeight(ctx context.Context, id uint, height int) error
	UpdateColumnColor(ctx context.Context, id uint, color string) error

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key string, value string) error

	RefreshStamp() int64
}
