package stream

import (
	"math"
	"math/rand"
	"time"
)

// Strategy selects how retry delays grow with the attempt number.
type Strategy string

const (
	StrategyFixed              Strategy = "fixed"
	StrategyLinear             Strategy = "linear"
	StrategyExponential        Strategy = "exponential"
	StrategyExponentialJitter  Strategy = "exponential_jitter"
	StrategyDecorrelatedJitter Strategy = "decorrelated_jitter"
	StrategyAdaptive           Strategy = "adaptive"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyFixed, StrategyLinear, StrategyExponential,
		StrategyExponentialJitter, StrategyDecorrelatedJitter, StrategyAdaptive:
		return true
	}
	return false
}

// Delay computes the backoff before retry attempt n (1-indexed). The
// result is clamped to [0, max]. rng is only consulted by the jittered
// strategies; pass a seeded source for deterministic tests, or nil to
// use the shared package source.
func Delay(attempt int, strategy Strategy, base, max time.Duration, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base < 0 {
		base = 0
	}

	random := rand.Float64
	if rng != nil {
		random = rng.Float64
	}

	var d float64
	switch strategy {
	case StrategyFixed:
		d = float64(base)
	case StrategyLinear:
		d = float64(base) * float64(attempt)
	case StrategyExponential:
		d = float64(base) * math.Pow(2, float64(attempt-1))
	case StrategyExponentialJitter:
		d = float64(base) * math.Pow(2, float64(attempt-1)) * random()
	case StrategyDecorrelatedJitter:
		// Uniform in [base, base*3^(attempt-1)].
		hi := float64(base) * math.Pow(3, float64(attempt-1))
		d = float64(base) + (hi-float64(base))*random()
	case StrategyAdaptive:
		d = float64(base) * math.Pow(1.5, float64(attempt-1)) * (0.8 + 0.4*random())
	default:
		d = float64(base)
	}

	if d > float64(max) {
		d = float64(max)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
