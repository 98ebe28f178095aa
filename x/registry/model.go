// Package registry owns the process-wide table of live streaming
// connections and rebuilds it whenever the column configuration changes.
package registry

import (
	"sync"

	"github.com/petrelapp/petrel/core"
)

// Entry is one registry slot. Socket is nil when streaming is disabled
// or unavailable for the owning server; the column then degrades to
// pull-only and the rest of the registry stays usable.
type Entry struct {
	OwnerID uint
	Socket  core.StreamingSocket
	Channel string
}

// Registry maps each account to at most one user socket and each
// timeline to at most one subscription. It has a single writer (the
// orchestrator, during rebuild) and many readers (dispatchers).
type Registry struct {
	mu sync.RWMutex

	userStreamings map[uint]Entry // keyed by account id
	streamings     map[uint]Entry // keyed by timeline id
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		userStreamings: make(map[uint]Entry),
		streamings:     make(map[uint]Entry),
	}
}

// UserStreamings returns a snapshot of the user-socket table
func (r *Registry) UserStreamings() map[uint]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[uint]Entry, len(r.userStreamings))
	for k, v := range r.userStreamings {
		snapshot[k] = v
	}
	return snapshot
}

// Streamings returns a snapshot of the per-timeline table
func (r *Registry) Streamings() map[uint]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[uint]Entry, len(r.streamings))
	for k, v := range r.streamings {
		snapshot[k] = v
	}
	return snapshot
}

// LiveCount returns the number of entries holding an open socket
func (r *Registry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, entry := range r.userStreamings {
		if entry.Socket != nil {
			count++
		}
	}
	return count
}

func (r *Registry) setUser(accountID uint, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userStreamings[accountID] = entry
}

func (r *Registry) setTimeline(timelineID uint, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamings[timelineID] = entry
}

// drain empties both tables and returns every distinct live socket so
// the caller can tear them down. Sockets shared between a user entry and
// multiplexed column entries are returned once.
func (r *Registry) drain() []core.StreamingSocket {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[core.StreamingSocket]bool)
	var sockets []core.StreamingSocket
	for _, entry := range r.userStreamings {
		if entry.Socket != nil && !seen[entry.Socket] {
			seen[entry.Socket] = true
			sockets = append(sockets, entry.Socket)
		}
	}
	for _, entry := range r.streamings {
		if entry.Socket != nil && !seen[entry.Socket] {
			seen[entry.Socket] = true
			sockets = append(sockets, entry.Socket)
		}
	}

	r.userStreamings = make(map[uint]Entry)
	r.streamings = make(map[uint]Entry)
	return sockets
}
