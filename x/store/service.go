package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"

	"github.com/petrelapp/petrel/core"
)

var tracer = otel.Tracer("store")

type service struct {
	repository Repository

	refreshStamp atomic.Int64
}

// NewService creates a new store service
func NewService(repository Repository) core.StoreService {
	return &service{
		repository: repository,
	}
}

// RefreshStamp returns a counter that increases on every configuration
// mutation. The orchestrator compares it to decide when the socket
// registry has to be rebuilt.
func (s *service) RefreshStamp() int64 {
	return s.refreshStamp.Load()
}

func (s *service) bump() {
	s.refreshStamp.Add(1)
}

func (s *service) ListServers(ctx context.Context) ([]core.ServerWithAccount, error) {
	ctx, span := tracer.Start(ctx, "Store.Service.ListServers")
	defer span.End()

	servers, err := s.repository.ListServers(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := make([]core.ServerWithAccount, 0, len(servers))
	for _, server := range servers {
		entry := core.ServerWithAccount{Server: server}
		if server.AccountID != nil {
			account, err := s.repository.GetAccount(ctx, *server.AccountID)
			if err != nil {
				// dangling reference, treat as unlinked
				slog.Warn(
					fmt.Sprintf("server %d references missing account %d", server.ID, *server.AccountID),
					slog.String("module", "store"),
				)
			} else {
				entry.Account = &account
			}
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *service) GetServer(ctx context.Context, id uint) (core.Server, error) {
	ctx, span := tracer.Start(ctx, "Store.Service.GetServer")
	defer span.End()

	return s.repository.GetServer(ctx, id)
}

func (s *service) AddServer(ctx context.Context, server core.Server) (core.Server, error) {
	ctx, span := tracer.Start(ctx, "Store.Service.AddServer")
	defer span.End()

	created, err := s.repository.CreateServer(ctx, server)
	if err != nil {
		span.RecordError(err)
		return core.Server{}, err
	}
	s.bump()
	return created, nil
}

// RemoveServer deletes a server, its linked account, and every timeline
// referencing it, then renumbers what remains.
func (s *service) RemoveServer(ctx context.Context, id uint) error {
	ctx, span := tracer.Start(ctx, "Store.Service.RemoveServer")
	defer span.End()

	server, err := s.repository.GetServer(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}

	wrappers, err := s.nested(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	kept := make([][]core.Timeline, 0, len(wrappers))
	for _, stack := range wrappers {
		var remaining []core.Timeline
		for _, timeline := range stack {
			if timeline.ServerID != id {
				remaining = append(remaining, timeline)
			}
		}
		if len(remaining) > 0 {
			kept = append(kept, remaining)
		}
	}

	err = s.repository.ReplaceTimelines(ctx, renumber(kept))
	if err != nil {
		span.RecordError(err)
		return err
	}

	if server.AccountID != nil {
		err = s.repository.DeleteAccount(ctx, *server.AccountID)
		if err != nil {
			span.RecordError(err)
			return err
		}
	}

	err = s.repository.DeleteServer(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.bump()
	return nil
}

func (s *service) GetAccount(ctx context.Context, id uint) (core.Account, error) {
	ctx, span := tracer.Start(ctx, "Store.Service.GetAccount")
	defer span.End()

	return s.repository.GetAccount(ctx, id)
}

// AttachAccount links an authenticated identity to a server. The server
// row owns the relationship; an existing link is replaced.
func (s *service) AttachAccount(ctx context.Context, serverID uint, account core.Account) (core.Account, error) {
	ctx, span := tracer.Start(ctx, "Store.Service.AttachAccount")
	defer span.End()

	server, err := s.repository.GetServer(ctx, serverID)
	if err != nil {
		span.RecordError(err)
		return core.Account{}, err
	}

	created, err := s.repository.CreateAccount(ctx, account)
	if err != nil {
		span.RecordError(err)
		return core.Account{}, err
	}

	if server.AccountID != nil {
		err = s.repository.DeleteAccount(ctx, *server.AccountID)
		if err != nil {
			span.RecordError(err)
			return core.Account{}, err
		}
	}

	server.AccountID = &created.ID
	err = s.repository.UpdateServer(ctx, server)
	if err != nil {
		span.RecordError(err)
		return core.Account{}, err
	}

	s.bump()
	return created, nil
}

func (s *service) DetachAccount(ctx context.Context, serverID uint) error {
	ctx, span := tracer.Start(ctx, "Store.Service.DetachAccount")
	defer span.End()

	server, err := s.repository.GetServer(ctx, serverID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if server.AccountID == nil {
		return nil
	}

	accountID := *server.AccountID
	server.AccountID = nil
	err = s.repository.UpdateServer(ctx, server)
	if err != nil {
		span.RecordError(err)
		return err
	}

	err = s.repository.DeleteAccount(ctx, accountID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.bump()
	return nil
}

// ListTimelines returns the nested wrapper/stack structure. Rows whose
// server has been removed are filtered out silently rather than surfaced
// as an error.
func (s *service) ListTimelines(ctx context.Context) ([][]core.Timeline, error) {
	ctx, span := tracer.Start(ctx, "Store.Service.ListTimelines")
	defer span.End()

	servers, err := s.repository.ListServers(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	known := make(map[uint]bool, len(servers))
	for _, server := range servers {
		known[server.ID] = true
	}

	wrappers, err := s.nested(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := make([][]core.Timeline, 0, len(wrappers))
	for _, stack := range wrappers {
		var remaining []core.Timeline
		for _, timeline := range stack {
			if known[timeline.ServerID] {
				remaining = append(remaining, timeline)
			}
		}
		if len(remaining) > 0 {
			result = append(result, remaining)
		}
	}
	return result, nil
}

// AddTimeline appends a new column as its own wrapper at the right edge
func (s *service) AddTimeline(ctx context.Context, timeline core.Timeline) (core.Timeline, error) {
	ctx, span := tracer.Start(ctx, "Store.Service.AddTimeline")
	defer span.End()

	wrappers, err := s.nested(ctx)
	if err != nil {
		span.RecordError(err)
		return core.Timeline{}, err
	}

	wrappers = append(wrappers, []core.Timeline{timeline})
	rows := renumber(wrappers)

	err = s.repository.ReplaceTimelines(ctx, rows)
	if err != nil {
		span.RecordError(err)
		return core.Timeline{}, err
	}

	s.bump()
	return rows[len(rows)-1], nil
}

func (s *service) RemoveTimeline(ctx context.Context, id uint) error {
	ctx, span := tracer.Start(ctx, "Store.Service.RemoveTimeline")
	defer span.End()

	wrappers, err := s.nested(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	kept := make([][]core.Timeline, 0, len(wrappers))
	for _, stack := range wrappers {
		var remaining []core.Timeline
		for _, timeline := range stack {
			if timeline.ID != id {
				remaining = append(remaining, timeline)
			}
		}
		if len(remaining) > 0 {
			kept = append(kept, remaining)
		}
	}

	err = s.repository.ReplaceTimelines(ctx, renumber(kept))
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.bump()
	return nil
}

// UpdateColumnOrder moves a timeline to the given wrapper and stack
// position. Out-of-range destinations are clamped.
func (s *service) UpdateColumnOrder(ctx context.Context, id uint, wrapper int, position int) error {
	ctx, span := tracer.Start(ctx, "Store.Service.UpdateColumnOrder")
	defer span.End()

	return s.rewrite(ctx, func(wrappers [][]core.Timeline) [][]core.Timeline {
		moved, remaining, found := extract(wrappers, id)
		if !found {
			return wrappers
		}

		if wrapper < 0 {
			wrapper = 0
		}
		if wrapper >= len(remaining) {
			remaining = append(remaining, []core.Timeline{moved})
			return remaining
		}

		stack := remaining[wrapper]
		if position < 0 {
			position = 0
		}
		if position > len(stack) {
			position = len(stack)
		}
		stack = append(stack[:position], append([]core.Timeline{moved}, stack[position:]...)...)
		remaining[wrapper] = stack
		return remaining
	})
}

// UpdateColumnStack merges a timeline into the preceding wrapper's stack,
// or splits it back out into a wrapper of its own.
func (s *service) UpdateColumnStack(ctx context.Context, id uint, stacked bool) error {
	ctx, span := tracer.Start(ctx, "Store.Service.UpdateColumnStack")
	defer span.End()

	return s.rewrite(ctx, func(wrappers [][]core.Timeline) [][]core.Timeline {
		wi, pi, found := locate(wrappers, id)
		if !found {
			return wrappers
		}

		if stacked {
			if wi == 0 {
				return wrappers
			}
			moved, remaining, _ := extract(wrappers, id)
			// extraction may have dropped an emptied wrapper before wi
			target := wi - 1
			if target >= len(remaining) {
				target = len(remaining) - 1
			}
			remaining[target] = append(remaining[target], moved)
			return remaining
		}

		if pi == 0 && len(wrappers[wi]) == 1 {
			return wrappers
		}
		moved, remaining, _ := extract(wrappers, id)
		target := wi + 1
		if target > len(remaining) {
			target = len(remaining)
		}
		remaining = append(remaining[:target], append([][]core.Timeline{{moved}}, remaining[target:]...)...)
		return remaining
	})
}

func (s *service) UpdateColumnWidth(ctx context.Context, id uint, width int) error {
	ctx, span := tracer.Start(ctx, "Store.Service.UpdateColumnWidth")
	defer span.End()

	return s.rewrite(ctx, mutate(id, func(t *core.Timeline) {
		t.Width = width
	}))
}

func (s *service) UpdateColumnHeight(ctx context.Context, id uint, height int) error {
	ctx, span := tracer.Start(ctx, "Store.Service.UpdateColumnHeight")
	defer span.End()

	return s.rewrite(ctx, mutate(id, func(t *core.Timeline) {
		t.Height = height
	}))
}

func (s *service) UpdateColumnColor(ctx context.Context, id uint, color string) error {
	ctx, span := tracer.Start(ctx, "Store.Service.UpdateColumnColor")
	defer span.End()

	return s.rewrite(ctx, mutate(id, func(t *core.Timeline) {
		t.Color = color
	}))
}

func (s *service) GetSetting(ctx context.Context, key string) (string, error) {
	ctx, span := tracer.Start(ctx, "Store.Service.GetSetting")
	defer span.End()

	return s.repository.GetSetting(ctx, key)
}

func (s *service) SetSetting(ctx context.Context, key string, value string) error {
	ctx, span := tracer.Start(ctx, "Store.Service.SetSetting")
	defer span.End()

	err := s.repository.UpsertSetting(ctx, core.Setting{Key: key, Value: value})
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.bump()
	return nil
}

// nested reads all timeline rows and groups them into the wrapper/stack
// structure in persisted order.
func (s *service) nested(ctx context.Context) ([][]core.Timeline, error) {
	rows, err := s.repository.ListTimelines(ctx)
	if err != nil {
		return nil, err
	}

	var wrappers [][]core.Timeline
	last := -1
	for _, row := range rows {
		if row.Wrapper != last {
			wrappers = append(wrappers, nil)
			last = row.Wrapper
		}
		wrappers[len(wrappers)-1] = append(wrappers[len(wrappers)-1], row)
	}
	return wrappers, nil
}

// rewrite is the full read-modify-write pass every structural mutation
// goes through: read the nested structure, transform it, renumber, and
// replace the whole table.
func (s *service) rewrite(ctx context.Context, transform func([][]core.Timeline) [][]core.Timeline) error {
	wrappers, err := s.nested(ctx)
	if err != nil {
		return err
	}

	err = s.repository.ReplaceTimelines(ctx, renumber(transform(wrappers)))
	if err != nil {
		return err
	}

	s.bump()
	return nil
}

func mutate(id uint, apply func(*core.Timeline)) func([][]core.Timeline) [][]core.Timeline {
	return func(wrappers [][]core.Timeline) [][]core.Timeline {
		for wi := range wrappers {
			for pi := range wrappers[wi] {
				if wrappers[wi][pi].ID == id {
					apply(&wrappers[wi][pi])
					return wrappers
				}
			}
		}
		return wrappers
	}
}

func locate(wrappers [][]core.Timeline, id uint) (int, int, bool) {
	for wi, stack := range wrappers {
		for pi, timeline := range stack {
			if timeline.ID == id {
				return wi, pi, true
			}
		}
	}
	return 0, 0, false
}

// extract removes a timeline from the structure, dropping its wrapper if
// it was the only member.
func extract(wrappers [][]core.Timeline, id uint) (core.Timeline, [][]core.Timeline, bool) {
	var moved core.Timeline
	found := false

	result := make([][]core.Timeline, 0, len(wrappers))
	for _, stack := range wrappers {
		var remaining []core.Timeline
		for _, timeline := range stack {
			if timeline.ID == id {
				moved = timeline
				found = true
				continue
			}
			remaining = append(remaining, timeline)
		}
		if len(remaining) > 0 {
			result = append(result, remaining)
		}
	}
	return moved, result, found
}

// renumber flattens the nested structure into rows with dense 1..N ids in
// left-to-right, top-to-bottom traversal order. The stacked flag is
// derived from the position so the persisted structure stays consistent.
func renumber(wrappers [][]core.Timeline) []core.Timeline {
	var rows []core.Timeline
	next := uint(1)
	for wi, stack := range wrappers {
		for pi, timeline := range stack {
			timeline.ID = next
			timeline.Wrapper = wi
			timeline.Position = pi
			timeline.Stacked = pi > 0
			rows = append(rows, timeline)
			next++
		}
	}
	return rows
}
