package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/domain/subscription"
)

const (
	sessionKeyPrefix = "plan:session:"

	// maxUpdateAttempts bounds the optimistic retry loop of RedisSessionStore.Update
	maxUpdateAttempts = 5
)

// RedisSessionStore implements subscription.SessionStore using Redis.
// Sessions expire ttl after their last read or write.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSessionStore creates a session store on a shared Redis client
func NewRedisSessionStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisSessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSessionStore{client: client, ttl: ttl, logger: logger}
}

func (s *RedisSessionStore) key(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

// Create stores a new session. An existing session with the same ID is an error.
func (s *RedisSessionStore) Create(ctx context.Context, session *subscription.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(session.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return shared.ErrAlreadyExists
	}
	return nil
}

// Get loads a session and extends its lifetime
func (s *RedisSessionStore) Get(ctx context.Context, id uuid.UUID) (*subscription.Session, error) {
	var cmd *redis.StringCmd
	if s.ttl > 0 {
		cmd = s.client.GetEx(ctx, s.key(id), s.ttl)
	} else {
		cmd = s.client.Get(ctx, s.key(id))
	}
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return decodeSession(data)
}

// Update applies fn to the latest stored session inside a WATCH/MULTI transaction.
// fn may run more than once when another request changes the session concurrently.
func (s *RedisSessionStore) Update(ctx context.Context, id uuid.UUID, fn func(*subscription.Session) error) (*subscription.Session, error) {
	key := s.key(id)

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		var updated *subscription.Session
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return shared.ErrSessionExpired
			}
			if err != nil {
				return fmt.Errorf("failed to load session: %w", err)
			}
			session, err := decodeSession(data)
			if err != nil {
				return err
			}
			if err := fn(session); err != nil {
				return err
			}
			out, err := json.Marshal(session)
			if err != nil {
				return fmt.Errorf("failed to marshal session: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, out, s.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			updated = session
			return nil
		}, key)

		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		s.logger.Debug("Session changed concurrently, retrying",
			zap.String("session_id", id.String()),
			zap.Int("attempt", attempt))
	}
	return nil, shared.ErrConcurrentUpdate
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *RedisSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

var _ subscription.SessionStore = (*RedisSessionStore)(nil)

func decodeSession(data []byte) (*subscription.Session, error) {
	var session subscription.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

type sessionEntry struct {
	data      []byte
	expiresAt time.Time
}

// InMemorySessionStore implements subscription.SessionStore in process memory.
// Sessions are stored encoded so callers never share plan data with the store.
// Suitable for single-instance deployments and tests.
type InMemorySessionStore struct {
	mu        sync.Mutex
	entries   map[uuid.UUID]sessionEntry
	ttl       time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemorySessionStore creates an in-memory session store.
// It starts a background goroutine to clean up expired sessions.
func NewInMemorySessionStore(ttl time.Duration) *InMemorySessionStore {
	store := &InMemorySessionStore{
		entries:  make(map[uuid.UUID]sessionEntry),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

// Create stores a new session
func (s *InMemorySessionStore) Create(_ context.Context, session *subscription.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(session.ID); ok {
		return shared.ErrAlreadyExists
	}
	s.put(session.ID, data)
	return nil
}

// Get loads a session and extends its lifetime
func (s *InMemorySessionStore) Get(_ context.Context, id uuid.UUID) (*subscription.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(id)
	if !ok {
		return nil, shared.ErrSessionExpired
	}
	s.put(id, e.data)
	return decodeSession(e.data)
}

// Update applies fn to the stored session while holding the store lock
func (s *InMemorySessionStore) Update(_ context.Context, id uuid.UUID, fn func(*subscription.Session) error) (*subscription.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(id)
	if !ok {
		return nil, shared.ErrSessionExpired
	}
	session, err := decodeSession(e.data)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	s.put(id, data)
	return session, nil
}

// Delete removes a session
func (s *InMemorySessionStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemorySessionStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// Size returns the number of stored sessions, expired ones included
func (s *InMemorySessionStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// live returns the entry for id if it exists and has not expired. Callers hold mu.
func (s *InMemorySessionStore) live(id uuid.UUID) (sessionEntry, bool) {
	e, ok := s.entries[id]
	if !ok {
		return sessionEntry{}, false
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.entries, id)
		return sessionEntry{}, false
	}
	return e, true
}

func (s *InMemorySessionStore) put(id uuid.UUID, data []byte) {
	e := sessionEntry{data: data}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[id] = e
}

func (s *InMemorySessionStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemorySessionStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
}

var _ subscription.SessionStore = (*InMemorySessionStore)(nil)
