// Package events carries notifications between the runtime, the model
// provisioner and the overlay UI.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Type names an event on the wire.
type Type string

const (
	// NewTranslatedText carries the latest translation for the overlay.
	NewTranslatedText Type = "NewTranslatedText"
	// RefreshOverlay asks the overlay to re-read its appearance settings.
	RefreshOverlay Type = "RefreshOverlay"
	// DownloadRequired tells the UI to show the blocking download view.
	DownloadRequired Type = "DownloadRequired"
	// DownloadProgress reports bytes received for one model file.
	DownloadProgress Type = "DownloadProgress"
	// DownloadFinished reports that every model file is present.
	DownloadFinished Type = "DownloadFinished"
	// DownloadFailed reports that provisioning cannot complete.
	DownloadFailed Type = "DownloadFailed"
	// StopDownload is sent by the UI when the user aborts provisioning.
	StopDownload Type = "StopDownload"
	// OnOffConfigTrayItem toggles the tray's running indicator.
	OnOffConfigTrayItem Type = "OnOffConfigTrayItem"
	// RuntimeStopped reports that the runtime loop exited on its own.
	RuntimeStopped Type = "RuntimeStopped"
)

// Event is one notification. Payload is one of the payload types below.
type Event struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload,omitempty"`
}

// TranslatedText is the NewTranslatedText payload.
type TranslatedText struct {
	Text     string `json:"text"`
	Source   string `json:"source"`
	Language string `json:"language"`
}

// Progress is the DownloadProgress payload.
type Progress struct {
	File      string `json:"file"`
	Progress  int64  `json:"progress"`
	TotalSize int64  `json:"total_size"`
}

// Files is the DownloadRequired payload.
type Files struct {
	Files []string `json:"files"`
}

// Failure is the payload of DownloadFailed and RuntimeStopped.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
}

// Running is the OnOffConfigTrayItem payload.
type Running struct {
	Running bool `json:"running"`
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	dropped atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of future events and a function that
// unsubscribes and closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
			slog.Debug("event dropped for slow subscriber", "type", e.Type)
		}
	}
}

// Dropped returns how many deliveries were skipped.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
