package session

import (
	"strings"
	"sync"

	"github.com/louisbranch/pairline/internal/transport"
)

// Status is the connection state of a managed session.
type Status string

const (
	// StatusNotFound is reported for ids with no registry entry.
	StatusNotFound   Status = "not_found"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	// StatusLoggedOut is terminal: the entry is removed and no reconnect
	// is attempted.
	StatusLoggedOut Status = "logged_out"
)

// Session is the externally visible view of a registry entry.
type Session struct {
	ID          string
	PhoneNumber string
	Status      Status
}

type entry struct {
	phone      string
	status     Status
	client     transport.Client
	generation uint64
}

// Registry owns the mapping from session id to live transport handle. At
// most one handle exists per id: registering over an existing entry
// supersedes it and hands the old handle back for teardown.
//
// Every register and remove bumps the id's generation. Event pumps and
// reconnect timers capture the generation they were created under and stop
// when it no longer matches, so a superseded or removed session cannot be
// resurrected by stale work.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	gens    map[string]uint64
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		gens:    make(map[string]uint64),
	}
}

// Register stores client under id with status connecting, superseding any
// previous handle. It returns the superseded handle (nil if none) and the
// generation of the new entry.
func (r *Registry) Register(id, phone string, client transport.Client) (transport.Client, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prev transport.Client
	if existing, ok := r.entries[id]; ok {
		prev = existing.client
	}

	r.gens[id]++
	gen := r.gens[id]
	r.entries[id] = &entry{
		phone:      phone,
		status:     StatusConnecting,
		client:     client,
		generation: gen,
	}
	return prev, gen
}

// Lookup returns the session view for id. Absence is a normal outcome, not
// an error.
func (r *Registry) Lookup(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Session{}, false
	}
	return Session{ID: id, PhoneNumber: e.phone, Status: e.status}, true
}

// Status reports the current status for id, StatusNotFound when absent.
func (r *Registry) Status(id string) Status {
	sess, ok := r.Lookup(id)
	if !ok {
		return StatusNotFound
	}
	return sess.Status
}

// Client returns the live transport handle for id.
func (r *Registry) Client(id string) (transport.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// SetStatus updates the status for id. It is a no-op when the entry is gone
// or has been superseded since gen was captured, so a racing removal never
// resurrects an entry. It reports whether the update was applied.
func (r *Registry) SetStatus(id string, gen uint64, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.generation != gen {
		return false
	}
	e.status = status
	return true
}

// Remove deregisters id and returns its transport handle for teardown.
// Idempotent: removing an absent id reports ok=false.
func (r *Registry) Remove(id string) (transport.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	r.gens[id]++
	return e.client, true
}

// RemoveIf deregisters id only while its entry still carries gen. A stale
// pump or timer holding an older generation cannot tear down an entry that
// has since been re-created under the same id.
func (r *Registry) RemoveIf(id string, gen uint64) (transport.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.generation != gen {
		return nil, false
	}
	delete(r.entries, id)
	r.gens[id]++
	return e.client, true
}

// Generation returns the current generation for id. Stale pumps and timers
// compare against this before touching the registry.
func (r *Registry) Generation(id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[id]
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func validSessionID(id string) bool {
	return strings.TrimSpace(id) != ""
}
