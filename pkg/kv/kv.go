// Package kv is the node's byte store: a mutex-guarded fifo.Cache with a
// background sweeper, deduplicated loading and Prometheus accounting.
package kv

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ryandielhenn/fifocache/internal/logging"
	"github.com/ryandielhenn/fifocache/internal/telemetry"
	"github.com/ryandielhenn/fifocache/pkg/fifo"
)

var (
	ErrClosed   = errors.New("kv: store is closed")
	ErrEmptyKey = errors.New("kv: empty key")
)

// Config controls capacity and expiration.
//
//   - MaxEntries is the FIFO capacity; 0 stores nothing.
//   - TTL <= 0 disables expiration.
//   - CleanupInterval <= 0 disables the background sweeper; expired entries
//     are then hidden from Get but only reclaimed by Sweep.
type Config struct {
	MaxEntries      int
	TTL             time.Duration
	CleanupInterval time.Duration
	Clock           fifo.Clock
}

// Store is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	cache  *fifo.Cache[string, []byte]
	loads  singleflight.Group
	log    *zap.Logger
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cleanupEvery time.Duration
}

// NewStore builds a store and starts the sweeper if enabled.
func NewStore(cfg Config, logger *zap.Logger) *Store {
	opts := []fifo.Option{fifo.WithTTL(cfg.TTL)}
	if cfg.Clock != nil {
		opts = append(opts, fifo.WithClock(cfg.Clock))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		cache:        fifo.New[string, []byte](cfg.MaxEntries, opts...),
		log:          logging.OrNop(logger),
		ctx:          ctx,
		cancel:       cancel,
		cleanupEvery: cfg.CleanupInterval,
	}
	s.cache.SetEvictCallback(func(key string, _ []byte, reason fifo.EvictReason) {
		telemetry.CacheEvictions.WithLabelValues(reason.String()).Inc()
		s.log.Debug("evicted", zap.String("key", key), zap.Stringer("reason", reason))
	})

	if s.cleanupEvery > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}
	return s
}

// Close stops the sweeper. Later writes fail with ErrClosed; reads keep
// working. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Store) Put(key string, val []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.cache.Insert(key, bytes.Clone(val))
	s.updateItemsLocked()
	return nil
}

// Get returns a copy of the live value stored under key.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	v, ok := s.cache.Get(key)
	s.mu.Unlock()

	if !ok {
		telemetry.CacheMisses.Inc()
		return nil, false
	}
	telemetry.CacheHits.Inc()
	return bytes.Clone(v), true
}

// Delete removes key and reports whether it was stored.
func (s *Store) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.cache.Remove(key)
	s.updateItemsLocked()
	return ok, nil
}

// GetOrLoad returns the cached value for key. On a miss it calls loader once
// per key across concurrent callers and stores the result.
func (s *Store) GetOrLoad(ctx context.Context, key string, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if v, ok := s.Get(key); ok {
		return v, nil
	}

	v, err, shared := s.loads.Do(key, func() (any, error) {
		val, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.Put(key, val); err != nil {
			return nil, err
		}
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debug("load shared", zap.String("key", key))
	}
	return bytes.Clone(v.([]byte)), nil
}

// Sweep purges expired entries now and returns how many were removed.
func (s *Store) Sweep() int {
	start := time.Now()
	s.mu.Lock()
	n := s.cache.CleanupExpired()
	s.updateItemsLocked()
	s.mu.Unlock()

	telemetry.SweepDuration.Observe(time.Since(start).Seconds())
	if n > 0 {
		s.log.Debug("swept expired entries", zap.Int("removed", n))
	}
	return n
}

// Resize changes the capacity; see fifo.Cache.SetMaxSize.
func (s *Store) Resize(maxEntries int, prune bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.cache.SetMaxSize(maxEntries, prune)
	s.updateItemsLocked()
	return nil
}

// SetTTL changes the TTL for later writes.
func (s *Store) SetTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.SetDefaultTTL(ttl)
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.cache.Clear()
	s.updateItemsLocked()
	return nil
}

// Len includes expired entries that have not been swept yet.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

func (s *Store) MaxEntries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.MaxSize()
}

func (s *Store) TTL() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.DefaultTTL()
}

// Keys returns stored keys, oldest first.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Keys()
}

func (s *Store) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) updateItemsLocked() {
	telemetry.CacheItems.Set(float64(s.cache.Len()))
}
