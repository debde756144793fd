package history

import (
	"context"
	"testing"
	"time"

	"github.com/transcendia/platform/internal/events"
)

func TestStoreAddAndBound(t *testing.T) {
	s := NewStore(3)
	for _, w := range []string{"a", "b", "c", "d"} {
		s.Add(events.TranslatedText{Text: w, Source: w, Language: "fr"})
	}
	got := s.Recent(0)
	if len(got) != 3 || got[0].Translated != "b" || got[2].Translated != "d" {
		t.Errorf("Recent(0) = %+v, want b..d", got)
	}
}

func TestStoreRecentWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(10)
	s.now = func() time.Time { return now.Add(-time.Minute) }
	s.Add(events.TranslatedText{Text: "old", Language: "fr"})
	s.now = func() time.Time { return now }
	s.Add(events.TranslatedText{Text: "new", Language: "fr"})

	got := s.Recent(30 * time.Second)
	if len(got) != 1 || got[0].Translated != "new" {
		t.Errorf("Recent(30s) = %+v", got)
	}
	if txt := s.Text(0); txt != "FR: old\nFR: new" {
		t.Errorf("Text(0) = %q", txt)
	}
}

func TestNewStoreDefaultSize(t *testing.T) {
	s := NewStore(0)
	if s.maxSize != DefaultMaxEntries {
		t.Errorf("maxSize = %d, want %d", s.maxSize, DefaultMaxEntries)
	}
}

func TestFollow(t *testing.T) {
	bus := events.NewBus()
	s := NewStore(10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Follow(ctx, bus)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Follow never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
	bus.Publish(events.Event{Type: events.RefreshOverlay})
	bus.Publish(events.Event{Type: events.NewTranslatedText, Payload: events.TranslatedText{Text: "Bonjour", Language: "fr"}})

	for s.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("translation never recorded")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if s.Len() != 1 || s.Recent(0)[0].Translated != "Bonjour" {
		t.Errorf("entries = %+v", s.Recent(0))
	}
	if bus.Subscribers() != 0 {
		t.Error("Follow should unsubscribe on exit")
	}
}
