// Package history keeps the most recent published translations.
package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/transcendia/platform/internal/events"
)

// DefaultMaxEntries bounds a Store created with a non-positive size.
const DefaultMaxEntries = 50

// Entry is one published translation.
type Entry struct {
	Time       time.Time `json:"time"`
	Source     string    `json:"source"`
	Translated string    `json:"translated"`
	Language   string    `json:"language"`
}

// Store is a bounded in-memory log of translations, oldest first.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
	now     func() time.Time
}

// NewStore creates a store holding at most maxEntries.
func NewStore(maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{entries: make([]Entry, 0, maxEntries), maxSize: maxEntries, now: time.Now}
}

// Add records a translation.
func (s *Store) Add(t events.TranslatedText) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, Entry{
		Time:       s.now(),
		Source:     t.Source,
		Translated: t.Text,
		Language:   t.Language,
	})
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
}

// Recent returns the entries of the last window; zero means all.
func (s *Store) Recent(window time.Duration) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if window <= 0 {
		out := make([]Entry, len(s.entries))
		copy(out, s.entries)
		return out
	}
	cutoff := s.now().Add(-window)
	var out []Entry
	for _, e := range s.entries {
		if !e.Time.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Text renders the last window's translations one per line.
func (s *Store) Text(window time.Duration) string {
	entries := s.Recent(window)
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, strings.ToUpper(e.Language)+": "+e.Translated)
	}
	return strings.Join(parts, "\n")
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Follow records every NewTranslatedText published on bus until ctx ends.
func (s *Store) Follow(ctx context.Context, bus *events.Bus) {
	ch, unsubscribe := bus.Subscribe(16)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if t, isText := e.Payload.(events.TranslatedText); e.Type == events.NewTranslatedText && isText {
				s.Add(t)
			}
		}
	}
}
