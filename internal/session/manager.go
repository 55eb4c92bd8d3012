// Package session owns the live sessions of the tracker. A session is the
// explicit context every API call resolves first: it carries the uploaded
// dataset in memory and scopes the stored entities (goals, journal, skills).
// Sessions are ephemeral; an idle session is swept away and its entities
// wiped from the store.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okulov/selftrack/internal/dataset"
	"github.com/okulov/selftrack/internal/storage"
)

// ErrNotFound is returned for an unknown or expired session id.
var ErrNotFound = errors.New("session not found")

// Session is one user's working context.
type Session struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
	dataset   *dataset.Dataset
}

// Manager tracks live sessions and their datasets. Entity records live in
// the Store keyed by session id; the dataset stays in memory because it is
// mutated wholesale by cleaning and discarded on session end.
type Manager struct {
	mu       sync.Mutex
	store    *storage.Store
	ttl      time.Duration
	sessions map[string]*Session
}

// NewManager creates a manager over the given store. Sessions idle longer
// than ttl are eligible for sweeping; ttl <= 0 disables expiry.
func NewManager(store *storage.Store, ttl time.Duration) *Manager {
	return &Manager{
		store:    store,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Store exposes the entity store scoped by this manager's sessions.
func (m *Manager) Store() *storage.Store { return m.store }

// Create registers a new session.
func (m *Manager) Create(now time.Time) (*Session, error) {
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		LastSeen:  now,
	}
	if err := m.store.CreateSession(s.ID, now); err != nil {
		return nil, fmt.Errorf("registering session: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Touch resolves a session id and refreshes its idle timer.
func (m *Manager) Touch(id string, now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.LastSeen = now
	return s, nil
}

// Dataset returns the session's current dataset, or nil before any upload.
func (m *Manager) Dataset(id string) (*dataset.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.dataset, nil
}

// SetDataset replaces the session's dataset (upload or cleaning result).
func (m *Manager) SetDataset(id string, d *dataset.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.dataset = d
	return nil
}

// Delete ends a session: its entities are wiped from the store and the
// in-memory dataset dropped.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := m.store.DeleteSession(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("wiping session entities: %w", err)
	}
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// List returns a snapshot of live sessions ordered by creation time.
func (m *Manager) List() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Expire deletes every session idle since before now-ttl and returns the
// expired ids. A non-positive ttl expires nothing.
func (m *Manager) Expire(now time.Time) ([]string, error) {
	if m.ttl <= 0 {
		return nil, nil
	}
	cutoff := now.Add(-m.ttl)

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.LastSeen.Before(cutoff) {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		if err := m.store.DeleteSession(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return expired, fmt.Errorf("wiping expired session %s: %w", id, err)
		}
	}
	return expired, nil
}
