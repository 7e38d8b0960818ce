package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"

	"trade_engine/pkg/contextx"
	"trade_engine/pkg/logx"
	"trade_engine/pkg/metrics"
)

//nolint:gochecknoglobals
var (
	logger = contextx.LoggerFromContextOrDefault
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
)

const DefaultDebounce = 100 * time.Millisecond

var ErrClosed = errors.New("store is closed")

// Backend persists raw JSON documents by key.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, key string) error
}

// Store is a write-behind key-value store. Writes land in memory at once and
// reach the backend in one batch after the debounce window or on Flush.
// Readers always see their own writes.
type Store struct {
	backend  Backend
	debounce time.Duration
	read     *cache.Cache

	// base context of background flushes
	ctx context.Context

	mu     sync.Mutex
	dirty  map[string][]byte
	timer  *time.Timer
	closed bool

	flushMu sync.Mutex
}

func New(ctx context.Context, backend Backend) *Store {
	return &Store{
		backend:  backend,
		debounce: DefaultDebounce,
		read:     cache.New(cache.NoExpiration, 0),
		ctx:      context.WithoutCancel(ctx),
		dirty:    make(map[string][]byte),
	}
}

func (s *Store) WithDebounce(d time.Duration) *Store {
	if d > 0 {
		s.debounce = d
	}
	return s
}

// Get decodes the value of key into dest. It returns false when key is absent.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, found, err := s.raw(ctx, key)
	if err != nil || !found {
		return false, err
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}

	return true, nil
}

func (s *Store) raw(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	if raw, ok := s.dirty[key]; ok {
		s.mu.Unlock()
		return raw, true, nil
	}
	s.mu.Unlock()

	if v, ok := s.read.Get(key); ok {
		raw, _ := v.([]byte)
		return raw, true, nil
	}

	raw, found, err := s.backend.Load(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}
	if found {
		s.read.Set(key, raw, cache.NoExpiration)
	}

	return raw, found, nil
}

// Set encodes value and schedules it for the next flush.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	return s.SetBatch(ctx, map[string]any{key: value})
}

// SetBatch stages several keys so they reach the backend in the same flush.
func (s *Store) SetBatch(_ context.Context, values map[string]any) error {
	encoded := make(map[string][]byte, len(values))
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		encoded[key] = raw
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	for key, raw := range encoded {
		s.dirty[key] = raw
		s.read.Set(key, raw, cache.NoExpiration)
	}

	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.flushInBackground)
	} else {
		s.timer.Reset(s.debounce)
	}

	return nil
}

// Remove deletes key from the store and the backend right away.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	delete(s.dirty, key)
	s.read.Delete(key)
	s.mu.Unlock()

	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	return nil
}

// Flush writes every staged key to the backend. On failure the batch is
// staged again unless a newer value replaced it meanwhile.
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := s.dirty
	s.dirty = make(map[string][]byte)
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := s.backend.Save(ctx, batch); err != nil {
		s.mu.Lock()
		for key, raw := range batch {
			if _, newer := s.dirty[key]; !newer {
				s.dirty[key] = raw
			}
		}
		s.mu.Unlock()

		metrics.StoreFlushes.WithLabelValues("error").Inc()
		return fmt.Errorf("save batch: %w", err)
	}

	metrics.StoreFlushes.WithLabelValues("ok").Inc()
	logger(ctx).Debug("Store flushed", "keys", len(batch))

	return nil
}

func (s *Store) flushInBackground() {
	if err := s.Flush(s.ctx); err != nil {
		logger(s.ctx).Error("Background flush failed", logx.Error(err))

		s.mu.Lock()
		if !s.closed && s.timer == nil {
			s.timer = time.AfterFunc(s.debounce, s.flushInBackground)
		}
		s.mu.Unlock()
	}
}

// Close rejects further writes and flushes what is staged.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return s.Flush(ctx)
}
