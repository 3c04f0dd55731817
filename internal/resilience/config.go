package resilience

import "time"

// Circuit breaker configuration constants
const (
	// Default configuration
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3
	DefaultFailureWindow     = 120 * time.Second
	DefaultMaxBackoff        = 30 * time.Minute

	// Fast configuration (aggressive, for critical paths)
	FastThreshold         = 3
	FastResetTimeout      = 10 * time.Second
	FastHalfOpenSuccesses = 2

	// Slow configuration (lenient, for less critical paths)
	SlowThreshold         = 10
	SlowResetTimeout      = 60 * time.Second
	SlowHalfOpenSuccesses = 5

	// SenderThreshold/SenderWindow/SenderResetTimeout/SenderMaxBackoff mirror
	// the relay circuit breaker's sliding-window trip policy: 5 failures in
	// 120s opens the breaker for 300s, doubling on each re-trip up to 1800s.
	SenderThreshold         = 5
	SenderWindow            = 120 * time.Second
	SenderResetTimeout      = 300 * time.Second
	SenderMaxBackoff        = 1800 * time.Second
	SenderHalfOpenSuccesses = 1
)

// Config holds circuit breaker settings.
type Config struct {
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
	FailureWindow     time.Duration // sliding window for counting failures
	MaxBackoff        time.Duration // cap on exponential backoff between trips
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
		FailureWindow:     DefaultFailureWindow,
		MaxBackoff:        DefaultMaxBackoff,
	}
}

// FastConfig returns aggressive settings for critical paths.
func FastConfig() Config {
	return Config{
		Threshold:         FastThreshold,
		ResetTimeout:      FastResetTimeout,
		HalfOpenSuccesses: FastHalfOpenSuccesses,
		FailureWindow:     DefaultFailureWindow,
		MaxBackoff:        DefaultMaxBackoff,
	}
}

// SlowConfig returns lenient settings for less critical paths.
func SlowConfig() Config {
	return Config{
		Threshold:         SlowThreshold,
		ResetTimeout:      SlowResetTimeout,
		HalfOpenSuccesses: SlowHalfOpenSuccesses,
		FailureWindow:     DefaultFailureWindow,
		MaxBackoff:        DefaultMaxBackoff,
	}
}

// SenderConfig mirrors the relay sender's circuit breaker policy: a sliding
// window of failures opens the breaker for a reset period that doubles on
// each re-trip, capped at 30 minutes.
func SenderConfig() Config {
	return Config{
		Threshold:         SenderThreshold,
		ResetTimeout:      SenderResetTimeout,
		HalfOpenSuccesses: SenderHalfOpenSuccesses,
		FailureWindow:     SenderWindow,
		MaxBackoff:        SenderMaxBackoff,
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
	if c.FailureWindow <= 0 {
		c.FailureWindow = DefaultFailureWindow
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	return c
}
