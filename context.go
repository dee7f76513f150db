package counsel

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultContextTTL is how long a stored conversation context survives
// without being touched.
const DefaultContextTTL = 24 * time.Hour

// DefaultKnowledgeTTL is the default lifetime of cached knowledge tool results.
const DefaultKnowledgeTTL = time.Hour

// RoleOutput is one role's recorded result for the current question.
type RoleOutput struct {
	RoleID  string `json:"role_id"`
	Content string `json:"content"`
}

// RoleResults is an insertion-ordered collection of role outputs. Order is
// load-bearing: cross-role prompts and synthesis render results in
// completion order, and the canonical answer falls back to the most recent
// entry, so a plain map would not do.
type RoleResults []RoleOutput

// Get returns the content recorded for roleID.
func (r RoleResults) Get(roleID string) (string, bool) {
	for _, out := range r {
		if out.RoleID == roleID {
			return out.Content, true
		}
	}
	return "", false
}

// Has reports whether roleID has a recorded result.
func (r RoleResults) Has(roleID string) bool {
	_, ok := r.Get(roleID)
	return ok
}

// Set records content for roleID. An existing entry is updated in place,
// keeping its position.
func (r *RoleResults) Set(roleID, content string) {
	for i, out := range *r {
		if out.RoleID == roleID {
			(*r)[i].Content = content
			return
		}
	}
	*r = append(*r, RoleOutput{RoleID: roleID, Content: content})
}

// Last returns the most recently added entry.
func (r RoleResults) Last() (RoleOutput, bool) {
	if len(r) == 0 {
		return RoleOutput{}, false
	}
	return r[len(r)-1], true
}

// Len returns the number of recorded results.
func (r RoleResults) Len() int { return len(r) }

// Clear removes all entries.
func (r *RoleResults) Clear() { *r = nil }

// ConversationContext carries per-session state across turns: the running
// transcript, free-form user profile fields, and the most recent output of
// each role. It is a plain value; persistence goes through a ContextStore.
type ConversationContext struct {
	SessionID   string            `json:"session_id"`
	History     []ChatMessage     `json:"history"`
	UserInfo    map[string]string `json:"user_info,omitempty"`
	RoleResults RoleResults       `json:"role_results,omitempty"`
}

// NewConversationContext returns an empty context for the session.
func NewConversationContext(sessionID string) *ConversationContext {
	return &ConversationContext{
		SessionID: sessionID,
		UserInfo:  make(map[string]string),
	}
}

// AddMessage appends a turn to the transcript.
func (c *ConversationContext) AddMessage(role, content string) {
	c.History = append(c.History, ChatMessage{Role: role, Content: content})
}

// RecentHistory returns the last maxTurns exchanges, counting two messages
// (user + assistant) per turn. The returned slice aliases the history.
func (c *ConversationContext) RecentHistory(maxTurns int) []ChatMessage {
	if maxTurns <= 0 {
		return nil
	}
	n := maxTurns * 2
	if len(c.History) <= n {
		return c.History
	}
	return c.History[len(c.History)-n:]
}

// ContextStore persists conversation contexts between turns.
type ContextStore interface {
	// Load returns the stored context for a session, or (nil, nil) when the
	// session has no stored context.
	Load(ctx context.Context, sessionID string) (*ConversationContext, error)
	// Save persists the context, replacing any previous value and resetting
	// its expiry.
	Save(ctx context.Context, cc *ConversationContext) error
	// Clear removes the stored context, reporting whether one existed.
	Clear(ctx context.Context, sessionID string) (bool, error)
}

// Cache is a byte-oriented cache with per-entry TTL. Knowledge tools use it
// to memoize retrieval results; cache failures are advisory and callers are
// expected to proceed without the cache on error.
type Cache interface {
	// Get returns the cached value and whether it was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl. A non-positive ttl means
	// DefaultKnowledgeTTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheKey builds a deterministic key for a knowledge tool call. Queries are
// truncated to 50 runes with the full length appended so distinct long
// queries do not collide, and extra arguments are emitted in sorted order so
// map iteration order never leaks into the key.
func CacheKey(tool, city, query string, extras map[string]string) string {
	runes := []rune(query)
	head := query
	if len(runes) > 50 {
		head = string(runes[:50])
	}
	var sb strings.Builder
	sb.WriteString("kb:")
	sb.WriteString(tool)
	sb.WriteByte(':')
	sb.WriteString(city)
	sb.WriteByte(':')
	sb.WriteString(head)
	fmt.Fprintf(&sb, "_%d", len(runes))
	if len(extras) > 0 {
		keys := make([]string, 0, len(extras))
		for k := range extras {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, ":%s=%s", k, extras[k])
		}
	}
	return sb.String()
}

// MemoryContextStore keeps contexts in process memory with TTL expiry.
// Suitable for tests and single-process deployments. Contexts are stored
// serialized, so later mutations of a saved context do not leak into the
// store.
type MemoryContextStore struct {
	mu   sync.RWMutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]memoryContextEntry
}

type memoryContextEntry struct {
	payload   []byte
	expiresAt time.Time
}

var _ ContextStore = (*MemoryContextStore)(nil)

// NewMemoryContextStore returns an in-memory store. A non-positive ttl means
// DefaultContextTTL.
func NewMemoryContextStore(ttl time.Duration) *MemoryContextStore {
	if ttl <= 0 {
		ttl = DefaultContextTTL
	}
	return &MemoryContextStore{
		ttl:  ttl,
		now:  time.Now,
		data: make(map[string]memoryContextEntry),
	}
}

// Load implements ContextStore.
func (s *MemoryContextStore) Load(_ context.Context, sessionID string) (*ConversationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[sessionID]
	if !ok {
		return nil, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.data, sessionID)
		return nil, nil
	}
	var cc ConversationContext
	if err := json.Unmarshal(entry.payload, &cc); err != nil {
		return nil, fmt.Errorf("decode context %s: %w", sessionID, err)
	}
	return &cc, nil
}

// Save implements ContextStore.
func (s *MemoryContextStore) Save(_ context.Context, cc *ConversationContext) error {
	payload, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("encode context %s: %w", cc.SessionID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[cc.SessionID] = memoryContextEntry{
		payload:   payload,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

// Clear implements ContextStore.
func (s *MemoryContextStore) Clear(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[sessionID]
	if !ok {
		return false, nil
	}
	delete(s.data, sessionID)
	if s.now().After(entry.expiresAt) {
		return false, nil
	}
	return true, nil
}

// MemoryCache is an in-process Cache with per-entry TTL.
type MemoryCache struct {
	mu   sync.RWMutex
	now  func() time.Time
	data map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	value     []byte
	expiresAt time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now, data: make(map[string]memoryCacheEntry)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultKnowledgeTTL
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = memoryCacheEntry{value: stored, expiresAt: c.now().Add(ttl)}
	return nil
}
