package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Entry is one online party.
type Entry struct {
	Party  domain.Party
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry maps online parties to their signaling connection. A party has at
// most one connection; binding again replaces the old one.
type Registry struct {
	mu      sync.RWMutex
	parties map[domain.PartyID]*Entry
}

func NewRegistry() *Registry {
	return &Registry{parties: make(map[domain.PartyID]*Entry)}
}

// Bind registers conn for p and returns the entry it replaced, if any. The
// caller is expected to cancel the replaced connection.
func (r *Registry) Bind(p domain.Party, conn core.SignalConnection, cancel context.CancelFunc) (replaced *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced = r.parties[p.ID]
	r.parties[p.ID] = &Entry{Party: p, Conn: conn, Cancel: cancel}
	log.Info().Str("module", "relay.registry").Str("party", string(p.ID)).Bool("replaced", replaced != nil).Msg("bound party")
	return replaced
}

// Unbind removes p only while conn is still its current connection, so a
// replaced connection shutting down does not evict its successor.
func (r *Registry) Unbind(id domain.PartyID, conn core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.parties[id]
	if !ok || e.Conn != conn {
		return false
	}
	delete(r.parties, id)
	log.Info().Str("module", "relay.registry").Str("party", string(id)).Msg("unbound party")
	return true
}

func (r *Registry) Lookup(id domain.PartyID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.parties[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

// Parties lists online parties ordered by id.
func (r *Registry) Parties() []domain.Party {
	r.mu.RLock()
	out := make([]domain.Party, 0, len(r.parties))
	for _, e := range r.parties {
		out = append(out, e.Party)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cancel stops the connection of id without unbinding it; its read loop
// unbinds on exit.
func (r *Registry) Cancel(id domain.PartyID) bool {
	r.mu.RLock()
	e, ok := r.parties[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "relay.registry").Str("party", string(id)).Msg("canceled party")
	return true
}
