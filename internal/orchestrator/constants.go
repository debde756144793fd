// Package orchestrator owns the translation runtime: its lifecycle, the
// live interval and language cells, and the scheduling loop.
package orchestrator

import "time"

const (
	// DefaultInterval is used until Update or Apply sets one.
	DefaultInterval = time.Second

	// MinInterval bounds Update so a zero value cannot spin the loop.
	MinInterval = time.Millisecond

	// DefaultLanguage is the translation target until one is set.
	DefaultLanguage = "en"
)
