package session

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

const DefaultSessionID = "default"

// Store caches one Context per session key for its whole lifetime.
type Store struct {
	mu             sync.Mutex
	defaultSources []string
	contexts       map[string]*Context
	now            func() time.Time
}

func NewStore(defaultSources []string) *Store {
	return &Store{
		defaultSources: slices.Clone(defaultSources),
		contexts:       make(map[string]*Context),
		now:            time.Now,
	}
}

// Get returns the context for id, creating it on first reference.
func (s *Store) Get(id string) *Context {
	id = normalizeID(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx, ok := s.contexts[id]; ok {
		return ctx
	}
	slog.Info("session_created", "session_id", id)
	ctx := newContext(id, s.defaultSources, s.now)
	s.contexts[id] = ctx
	return ctx
}

func (s *Store) Reset(id string) {
	id = normalizeID(id)

	s.mu.Lock()
	ctx, ok := s.contexts[id]
	s.mu.Unlock()
	if ok {
		ctx.Reset()
	}
}

func (s *Store) Delete(id string) {
	id = normalizeID(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[id]; ok {
		slog.Info("session_deleted", "session_id", id)
		delete(s.contexts, id)
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}

func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultSessionID
	}
	return id
}
