package store

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store is a bounded key-value store shared by the cache and session memory.
type Store[V any] interface {
	Get(key string) (V, bool)
	Peek(key string) (V, bool)
	Put(key string, value V)
	Delete(key string) bool
	// Scan visits entries from least to most recently used until fn returns false.
	// Scanning does not change recency.
	Scan(fn func(key string, value V) bool)
	Len() int
	Purge()
}

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// LRU evicts the least recently used entry beyond maxEntries and any entry older than ttl.
// A zero ttl disables expiry. Expired entries are dropped when they are next touched, so no
// background sweeper runs.
type LRU[V any] struct {
	lru *lru.Cache[string, item[V]]
	ttl time.Duration
	now func() time.Time
}

func NewLRU[V any](maxEntries int, ttl time.Duration, onEvict func(key string, value V)) *LRU[V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	var callback func(string, item[V])
	if onEvict != nil {
		callback = func(key string, it item[V]) { onEvict(key, it.value) }
	}
	cache, err := lru.NewWithEvict[string, item[V]](maxEntries, callback)
	if err != nil {
		// Only returned for a non-positive size, which is clamped above.
		panic(err)
	}
	return &LRU[V]{lru: cache, ttl: ttl, now: time.Now}
}

func (s *LRU[V]) Get(key string) (V, bool) {
	it, ok := s.lru.Get(key)
	return s.live(key, it, ok)
}

func (s *LRU[V]) Peek(key string) (V, bool) {
	it, ok := s.lru.Peek(key)
	return s.live(key, it, ok)
}

func (s *LRU[V]) Put(key string, value V) {
	it := item[V]{value: value}
	if s.ttl > 0 {
		it.expiresAt = s.now().Add(s.ttl)
	}
	s.lru.Add(key, it)
}

func (s *LRU[V]) Delete(key string) bool {
	return s.lru.Remove(key)
}

func (s *LRU[V]) Scan(fn func(key string, value V) bool) {
	for _, key := range s.lru.Keys() {
		it, ok := s.lru.Peek(key)
		value, ok := s.live(key, it, ok)
		if !ok {
			continue
		}
		if !fn(key, value) {
			return
		}
	}
}

func (s *LRU[V]) Len() int {
	s.removeExpired()
	return s.lru.Len()
}

func (s *LRU[V]) Purge() {
	s.lru.Purge()
}

func (s *LRU[V]) live(key string, it item[V], ok bool) (V, bool) {
	if !ok {
		var zero V
		return zero, false
	}
	if s.expired(it) {
		s.lru.Remove(key)
		var zero V
		return zero, false
	}
	return it.value, true
}

func (s *LRU[V]) expired(it item[V]) bool {
	return !it.expiresAt.IsZero() && !s.now().Before(it.expiresAt)
}

func (s *LRU[V]) removeExpired() {
	if s.ttl <= 0 {
		return
	}
	for _, key := range s.lru.Keys() {
		if it, ok := s.lru.Peek(key); ok && s.expired(it) {
			s.lru.Remove(key)
		}
	}
}
