package store

import (
	"runtime"
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	s := NewLRU[int](2, 0, func(key string, _ int) {
		evicted = append(evicted, key)
	})
	s.Put("a", 1)
	s.Put("b", 2)
	if _, ok := s.Get("a"); !ok {
		t.Fatal("expected a to be present")
	}
	s.Put("c", 3)

	if _, ok := s.Peek("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d", s.Len())
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("evicted = %v", evicted)
	}
}

func TestLRUScanOrderAndStop(t *testing.T) {
	s := NewLRU[int](10, 0, nil)
	s.Put("a", 1)
	s.Put("b", 2)
	s.Put("c", 3)

	var keys []string
	s.Scan(func(key string, _ int) bool {
		keys = append(keys, key)
		return true
	})
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("Scan() keys = %v", keys)
	}

	visited := 0
	s.Scan(func(string, int) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Fatalf("visited = %d, want 1", visited)
	}
}

func TestLRUExpiresEntries(t *testing.T) {
	s := NewLRU[string](10, 20*time.Millisecond, nil)
	s.Put("k", "v")
	if _, ok := s.Get("k"); !ok {
		t.Fatal("expected fresh entry")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestLRUDeleteAndPurge(t *testing.T) {
	s := NewLRU[int](0, 0, nil)
	s.Put("a", 1)
	if !s.Delete("a") {
		t.Fatal("Delete() = false")
	}
	if s.Delete("a") {
		t.Fatal("Delete() of missing key = true")
	}
	s.Put("b", 2)
	s.Purge()
	if s.Len() != 0 {
		t.Fatalf("Len() after Purge = %d", s.Len())
	}
}

func TestLRUExpiryUsesInsertionTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewLRU[int](10, time.Minute, nil)
	s.now = func() time.Time { return now }

	s.Put("a", 1)
	now = now.Add(30 * time.Second)
	s.Put("b", 2)
	if _, ok := s.Get("a"); !ok {
		t.Fatal("expected a before its ttl")
	}

	now = now.Add(45 * time.Second)
	if _, ok := s.Peek("a"); ok {
		t.Fatal("expected a to expire")
	}
	var keys []string
	s.Scan(func(key string, _ int) bool {
		keys = append(keys, key)
		return true
	})
	if len(keys) != 1 || keys[0] != "b" {
		t.Fatalf("Scan() keys = %v", keys)
	}
	now = now.Add(time.Minute)
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
}

func TestLRUWithTTLStartsNoGoroutines(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 100; i++ {
		s := NewLRU[int](10, time.Hour, nil)
		s.Put("k", i)
	}
	if after := runtime.NumGoroutine(); after > before+5 {
		t.Fatalf("goroutines = %d, before = %d", after, before)
	}
}
