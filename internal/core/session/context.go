package session

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

type State string

const (
	StateEmpty    State = "empty"
	StateFocused  State = "focused"
	StateGrounded State = "grounded"
)

// Context is the conversational state of one session.
type Context struct {
	mu sync.RWMutex

	id             string
	defaultSources []string
	now            func() time.Time

	subject   string
	hasSubj   bool
	sources   []string
	topics    []string
	documents map[string]struct{}
	grounded  map[string]struct{}
	history   []domain.QueryLogEntry

	createdAt time.Time
	updatedAt time.Time
}

func newContext(id string, defaultSources []string, now func() time.Time) *Context {
	ts := now()
	return &Context{
		id:             id,
		defaultSources: slices.Clone(defaultSources),
		now:            now,
		sources:        slices.Clone(defaultSources),
		documents:      make(map[string]struct{}),
		grounded:       make(map[string]struct{}),
		createdAt:      ts,
		updatedAt:      ts,
	}
}

func (c *Context) ID() string { return c.id }

func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *Context) stateLocked() State {
	if !c.hasSubj {
		return StateEmpty
	}
	if _, ok := c.grounded[strings.ToLower(c.subject)]; ok {
		return StateGrounded
	}
	return StateFocused
}

// Subject returns the active subject and whether one is set.
func (c *Context) Subject() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subject, c.hasSubj
}

// NeedsNewDocuments is the single gate for triggering retrieval.
func (c *Context) NeedsNewDocuments(candidate string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.stateLocked() {
	case StateEmpty, StateFocused:
		return true
	}
	return !strings.EqualFold(c.subject, candidate)
}

// UpdateSubject switches the active subject. A switch clears the topic set.
func (c *Context) UpdateSubject(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.updatedAt = c.now()
	if c.hasSubj && c.subject == name {
		return
	}
	slog.Info("session_subject_switch", "session_id", c.id, "from", c.subject, "to", name)
	c.subject = name
	c.hasSubj = true
	c.topics = nil
}

func (c *Context) AddTopics(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" || slices.Contains(c.topics, topic) {
			continue
		}
		c.topics = append(c.topics, topic)
	}
	c.updatedAt = c.now()
}

// SetSources replaces the active sources. An empty list keeps the current set.
func (c *Context) SetSources(sources []string) {
	if len(sources) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = slices.Clone(sources)
	c.updatedAt = c.now()
}

func (c *Context) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.sources)
}

// RecordDocument marks a document as ingested for the current subject.
func (c *Context) RecordDocument(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.documents[id]; !ok {
		c.documents[id] = struct{}{}
		slog.Debug("session_document_recorded", "session_id", c.id, "document", id)
	}
	if c.hasSubj {
		c.grounded[strings.ToLower(c.subject)] = struct{}{}
	}
	c.updatedAt = c.now()
}

func (c *Context) Documents() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.documents))
	for id := range c.documents {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// RecordQuery appends to the history. History is never truncated here.
func (c *Context) RecordQuery(query, answer string, intent domain.IntentResult) domain.QueryLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now()
	entry := domain.QueryLogEntry{
		ID:        uuid.NewString(),
		SessionID: c.id,
		Timestamp: ts,
		Query:     query,
		Answer:    answer,
		Intent:    intent,
	}
	c.history = append(c.history, entry)
	c.updatedAt = ts
	return entry
}

func (c *Context) History() []domain.QueryLogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.history)
}

// Reset returns the session to the empty state with default sources.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	slog.Info("session_reset", "session_id", c.id)
	c.subject = ""
	c.hasSubj = false
	c.sources = slices.Clone(c.defaultSources)
	c.topics = nil
	c.documents = make(map[string]struct{})
	c.grounded = make(map[string]struct{})
	c.history = nil
	c.updatedAt = c.now()
}

func (c *Context) Summary() domain.ContextSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ContextSummary{
		CurrentSubject:   c.subject,
		Sources:          slices.Clone(c.sources),
		Topics:           append([]string{}, c.topics...),
		DocumentsIndexed: len(c.documents),
		QueriesAsked:     len(c.history),
		SessionSeconds:   c.now().Sub(c.createdAt).Seconds(),
	}
}

// IntentContext is the view handed to intent extraction.
func (c *Context) IntentContext() domain.IntentContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.IntentContext{
		CurrentSubject: c.subject,
		Sources:        slices.Clone(c.sources),
		Topics:         append([]string{}, c.topics...),
		HasDocuments:   len(c.documents) > 0,
	}
}

func (c *Context) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}
