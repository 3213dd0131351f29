package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound means no state exists yet for a session ID.
var ErrSessionNotFound = errors.New("conversation: session not found")

// SessionStore persists conversation state between turns. One writer per
// session; turns for the same session are serialized by the orchestrator.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*State, error)
	Save(ctx context.Context, state *State) error
}

// RedisSessionStore keeps session state as JSON blobs with a TTL.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a store over an existing client.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("conversation: redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return "conversation:session:" + sessionID
}

// Load fetches and decodes one session.
func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (*State, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("conversation: decode session: %w", err)
	}
	return &state, nil
}

// Save encodes and writes one session, refreshing its TTL.
func (s *RedisSessionStore) Save(ctx context.Context, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("conversation: encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(state.SessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("conversation: save session: %w", err)
	}
	return nil
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*State)}
}

// Load returns a deep copy so in-flight edits never leak between turns.
func (s *MemorySessionStore) Load(ctx context.Context, sessionID string) (*State, error) {
	s.mu.RLock()
	state, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("conversation: copy session: %w", err)
	}
	var clone State
	if err := json.Unmarshal(raw, &clone); err != nil {
		return nil, fmt.Errorf("conversation: copy session: %w", err)
	}
	return &clone, nil
}

// Save stores a deep copy of the state.
func (s *MemorySessionStore) Save(ctx context.Context, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("conversation: copy session: %w", err)
	}
	var clone State
	if err := json.Unmarshal(raw, &clone); err != nil {
		return fmt.Errorf("conversation: copy session: %w", err)
	}
	s.mu.Lock()
	s.sessions[state.SessionID] = &clone
	s.mu.Unlock()
	return nil
}

var _ SessionStore = (*RedisSessionStore)(nil)
var _ SessionStore = (*MemorySessionStore)(nil)
