package stream

import "time"

// Config holds the retry and timeout knobs of a Coordinator.
type Config struct {
	MaxRetries int            // Retries after the first attempt; total attempts = MaxRetries+1
	Strategy   Strategy       // Backoff growth curve
	BaseDelay  time.Duration  // First backoff step
	MaxDelay   time.Duration  // Clamp for every computed delay
	Timeouts   TimeoutWindows // Per-attempt stall windows
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		Strategy:   StrategyExponential,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
		Timeouts: TimeoutWindows{
			Overall:    120 * time.Second,
			FirstChunk: 30 * time.Second,
			InterChunk: 15 * time.Second,
		},
	}
}

// normalize fills zero values with defaults so a partially-populated
// config behaves sensibly.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if !c.Strategy.Valid() {
		c.Strategy = def.Strategy
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	return c
}
