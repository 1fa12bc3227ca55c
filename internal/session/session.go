// Package session implements the session half of C6: a map of
// user sessions under a read-write lock, with a periodic sweeper and a
// cooperative idle-shutdown signal (spec §4.6.1).
package session

import (
	"context"
	"sync"
	"time"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/ident"
	"github.com/embucket/embucket/internal/registry"
)

const recentQueryRingSize = 64

// UserSession is one client session's state: current database/schema,
// a property bag for ALTER SESSION SET / SET var = ..., a per-session
// identifier normalizer, and a ring of recently-run query ids.
type UserSession struct {
	ID         string
	Normalizer *ident.Normalizer

	mu             sync.Mutex
	database       string
	schema         string
	properties     map[string]string
	recentQueryIDs []string
	expiry         time.Time
}

func newUserSession(id string, normPolicy ident.Policy, now time.Time, ttl time.Duration) *UserSession {
	return &UserSession{
		ID:         id,
		Normalizer: ident.NewNormalizer(normPolicy),
		properties: make(map[string]string),
		expiry:     now.Add(ttl),
	}
}

func (s *UserSession) CurrentDatabase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.database
}

func (s *UserSession) CurrentSchema() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schema
}

// SetCurrentNamespace implements `USE DATABASE`/`USE SCHEMA`.
func (s *UserSession) SetCurrentNamespace(database, schema string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if database != "" {
		s.database = database
	}
	if schema != "" {
		s.schema = schema
	}
}

// SetProperty implements `SET var = value` / `ALTER SESSION SET ...`
// for every key, DataFusion-namespaced or not; the property bag is the
// only session config store (spec §4.6.4).
func (s *UserSession) SetProperty(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[key] = value
}

func (s *UserSession) Property(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.properties[key]
	return v, ok
}

// RecordQueryID pushes a query id onto the session's recent-queries
// ring buffer (spec §4.6.2 step 7).
func (s *UserSession) RecordQueryID(queryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentQueryIDs = append(s.recentQueryIDs, queryID)
	if len(s.recentQueryIDs) > recentQueryRingSize {
		s.recentQueryIDs = s.recentQueryIDs[len(s.recentQueryIDs)-recentQueryRingSize:]
	}
}

func (s *UserSession) RecentQueryIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.recentQueryIDs))
	copy(out, s.recentQueryIDs)
	return out
}

func (s *UserSession) touch(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry = now.Add(ttl)
}

func (s *UserSession) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.expiry.After(now)
}

// Manager is the session map plus its sweeper, mirroring spec §4.6.1.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*UserSession

	normPolicy ident.Policy
	ttl        time.Duration
	registry   *registry.Registry
	now        func() time.Time
}

// New builds a session Manager. ttl is the inactivity expiration
// window (5 minutes by default, spec §4.6.1's
// SESSION_INACTIVITY_EXPIRATION_SECONDS).
func New(reg *registry.Registry, normPolicy ident.Policy, ttl time.Duration) *Manager {
	return &Manager{
		sessions:   make(map[string]*UserSession),
		normPolicy: normPolicy,
		ttl:        ttl,
		registry:   reg,
		now:        time.Now,
	}
}

// CreateSession returns the session for id, creating it if absent
// (idempotent, spec §4.6.1).
func (m *Manager) CreateSession(id string) *UserSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := newUserSession(id, m.normPolicy, m.now(), m.ttl)
	m.sessions[id] = s
	return s
}

// Get returns an existing session, failing with KindMissingSession if
// absent.
func (m *Manager) Get(id string) (*UserSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperror.Newf("Manager.Get", apperror.KindMissingSession, "session %q not found", id)
	}
	return s, nil
}

// UpdateExpiry resets a session's inactivity deadline to now + ttl.
func (m *Manager) UpdateExpiry(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.touch(m.now(), m.ttl)
	return nil
}

func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// sweepOnce deletes every session whose expiry has passed and which
// has no in-flight queries (spec §4.6.1: "expiry <= now AND running
// query count is zero").
func (m *Manager) sweepOnce() {
	now := m.now()
	m.mu.RLock()
	var toDelete []string
	for id, s := range m.sessions {
		if s.expired(now) && m.registry.CountForSession(id) == 0 {
			toDelete = append(toDelete, id)
		}
	}
	m.mu.RUnlock()

	if len(toDelete) == 0 {
		return
	}
	m.mu.Lock()
	for _, id := range toDelete {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
}

// RunSweeper runs the expiry sweep on a fixed interval (1s default per
// spec §4.6.1) until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

// WaitIdleShutdown resolves once the session map and the running-query
// registry have both been empty continuously for idle. Used for
// cooperative process shutdown (spec §4.6.1's timeout_signal).
func (m *Manager) WaitIdleShutdown(ctx context.Context, pollInterval, idle time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if pollInterval <= 0 {
			pollInterval = time.Second
		}
		var idleSince time.Time
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.Count() == 0 && m.registry.Count() == 0 {
					if idleSince.IsZero() {
						idleSince = m.now()
					} else if m.now().Sub(idleSince) >= idle {
						return
					}
				} else {
					idleSince = time.Time{}
				}
			}
		}
	}()
	return done
}
