package resilience

import "time"

const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// The public translation endpoint throttles by IP; back off for a full minute
	// once it starts refusing so ticks stop hammering it.
	TranslateThreshold         = 3
	TranslateResetTimeout      = 60 * time.Second
	TranslateHalfOpenSuccesses = 1

	// Local OCR engines recover quickly after a restart.
	OCRThreshold         = 5
	OCRResetTimeout      = 10 * time.Second
	OCRHalfOpenSuccesses = 2
)

// Config holds circuit breaker settings.
type Config struct {
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// DefaultConfig returns general purpose defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// TranslateConfig returns settings for the rate-limited translation endpoint.
func TranslateConfig() Config {
	return Config{
		Threshold:         TranslateThreshold,
		ResetTimeout:      TranslateResetTimeout,
		HalfOpenSuccesses: TranslateHalfOpenSuccesses,
	}
}

// OCRConfig returns settings for a remote recognition engine.
func OCRConfig() Config {
	return Config{
		Threshold:         OCRThreshold,
		ResetTimeout:      OCRResetTimeout,
		HalfOpenSuccesses: OCRHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
