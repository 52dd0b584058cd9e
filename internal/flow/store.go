package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrStateNotFound is returned when a conversation has no stored state.
var ErrStateNotFound = errors.New("flow: conversation state not found")

// StateStore persists conversation state. Updates for the same conversation
// are serialized; distinct conversations proceed in parallel.
type StateStore interface {
	Get(ctx context.Context, conversationID string) (*ConversationState, error)
	Save(ctx context.Context, state *ConversationState) error
	Delete(ctx context.Context, conversationID string) error
	Lock(conversationID string) func()
}

// keyLocks hands out one mutex per conversation ID.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyLocks) acquire(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// RedisStateStore persists state as JSON documents with a sliding TTL.
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
	locks  *keyLocks
	tracer trace.Tracer
}

func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStateStore{
		client: client,
		ttl:    ttl,
		locks:  newKeyLocks(),
		tracer: otel.Tracer("askeve/conversation-state"),
	}
}

var _ StateStore = (*RedisStateStore)(nil)

func stateKey(conversationID string) string {
	return "conversation:state:" + conversationID
}

func (s *RedisStateStore) Get(ctx context.Context, conversationID string) (*ConversationState, error) {
	ctx, span := s.tracer.Start(ctx, "flow.state.get")
	defer span.End()

	data, err := s.client.Get(ctx, stateKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("flow: load state: %w", err)
	}
	var state ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("flow: decode state: %w", err)
	}
	return &state, nil
}

func (s *RedisStateStore) Save(ctx context.Context, state *ConversationState) error {
	ctx, span := s.tracer.Start(ctx, "flow.state.save")
	defer span.End()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("flow: encode state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(state.ConversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("flow: save state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, stateKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("flow: delete state: %w", err)
	}
	return nil
}

// Lock serializes processing for one conversation. The returned func
// releases the lock.
func (s *RedisStateStore) Lock(conversationID string) func() {
	return s.locks.acquire(conversationID)
}

// MemoryStateStore keeps state in memory for tests and local runs.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*ConversationState
	locks  *keyLocks
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]*ConversationState),
		locks:  newKeyLocks(),
	}
}

var _ StateStore = (*MemoryStateStore)(nil)

func (s *MemoryStateStore) Get(ctx context.Context, conversationID string) (*ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[conversationID]
	if !ok {
		return nil, ErrStateNotFound
	}
	clone := *state
	return &clone, nil
}

func (s *MemoryStateStore) Save(ctx context.Context, state *ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *state
	s.states[state.ConversationID] = &clone
	return nil
}

func (s *MemoryStateStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, conversationID)
	return nil
}

func (s *MemoryStateStore) Lock(conversationID string) func() {
	return s.locks.acquire(conversationID)
}
