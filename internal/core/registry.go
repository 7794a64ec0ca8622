package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// connEntry tracks one live connection. Ephemeral: created on create/join,
// destroyed on leave/disconnect/eviction, never persisted.
type connEntry struct {
	Conn         Conn
	IsHost       bool
	LastActivity time.Time
}

// Registry is the in-memory map of live connections for one warm coordinator
// instance. It always starts empty, even when the persisted record still
// lists members; that asymmetry is what restart detection keys on.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*connEntry)}
}

func (r *Registry) Add(userID string, conn Conn, isHost bool, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = &connEntry{Conn: conn, IsHost: isHost, LastActivity: now}
	log.Debug().Str("module", "core.registry").Str("user", userID).Bool("host", isHost).Msg("connection added")
}

// Remove reports whether the user had a live connection.
func (r *Registry) Remove(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[userID]
	delete(r.conns, userID)
	return ok
}

func (r *Registry) Get(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[userID]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

func (r *Registry) Has(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Touch refreshes the user's activity timestamp.
func (r *Registry) Touch(userID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[userID]
	if !ok {
		return false
	}
	e.LastActivity = now
	return true
}

// SetHost updates the host mirror on the user's entry, if connected.
func (r *Registry) SetHost(userID string, isHost bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[userID]; ok {
		e.IsHost = isHost
	}
}

// IdleBefore returns the ids whose last activity is older than the cutoff.
func (r *Registry) IdleBefore(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var idle []string
	for id, e := range r.conns {
		if e.LastActivity.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}
