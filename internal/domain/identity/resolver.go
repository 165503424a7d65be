// Package identity resolves the visitor and session identifiers stamped on
// telemetry records.
package identity

import (
	"log/slog"
	"sync"
)

const (
	// VisitorKey is the durable store key holding the visitor id.
	VisitorKey = "visitor_id"
	// SessionKey is the session store key holding the session id.
	SessionKey = "session_id"
)

// Store is a string key/value store. Get reports found=false with a nil
// error when the key is simply absent.
type Store interface {
	Get(key string) (value string, found bool, err error)
	Set(key, value string) error
}

// Resolver derives the visitor id from a durable store and the session id
// from a session-scoped store. Each id is resolved once and then cached for
// the lifetime of the Resolver.
type Resolver struct {
	durable  Store
	session  Store
	generate func() string
	logger   *slog.Logger

	mu        sync.Mutex
	visitorID string
	sessionID string
}

// NewResolver builds a Resolver. Either store may be nil, in which case the
// corresponding id is ephemeral.
func NewResolver(durable, session Store, generate func() string, logger *slog.Logger) *Resolver {
	return &Resolver{
		durable:  durable,
		session:  session,
		generate: generate,
		logger:   logger,
	}
}

// VisitorID returns the persisted visitor id, creating and storing one if
// absent.
func (r *Resolver) VisitorID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.visitorID == "" {
		r.visitorID = r.getOrCreate(r.durable, VisitorKey)
	}
	return r.visitorID
}

// SessionID returns the session id, creating and storing one if the
// session store is empty.
func (r *Resolver) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessionID == "" {
		r.sessionID = r.getOrCreate(r.session, SessionKey)
	}
	return r.sessionID
}

// getOrCreate never fails: an unavailable store yields an ephemeral id for
// this page load.
func (r *Resolver) getOrCreate(store Store, key string) string {
	if store == nil {
		r.logger.Warn("Identity store unavailable, using ephemeral id", "key", key)
		return r.generate()
	}

	value, found, err := store.Get(key)
	if err != nil {
		r.logger.Warn("Identity store read failed, using ephemeral id", "key", key, "error", err.Error())
		return r.generate()
	}
	if found && value != "" {
		return value
	}

	value = r.generate()
	if err := store.Set(key, value); err != nil {
		r.logger.Warn("Identity store write failed, id will not persist", "key", key, "error", err.Error())
	}
	return value
}
