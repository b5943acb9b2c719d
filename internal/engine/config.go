package engine

import "time"

// Config holds orchestration configuration for the safety engine.
// The inference client carries its own transport configuration.
type Config struct {
	// Enabled gates the AI inference path entirely. When false every call
	// short-circuits to a trivial system result.
	Enabled bool
	// FallbackEnabled runs the local rule-based analyzer when the inference
	// path is exhausted. When false an explicit error result is returned.
	FallbackEnabled bool
	// MaxRetries is the total number of inference attempts per analysis.
	MaxRetries int
	// RetryDelay is the fixed wait between failed attempts.
	RetryDelay time.Duration
	// MinRequestInterval is the minimum spacing between outbound inference
	// calls, shared across all concurrent analyses on one engine instance.
	MinRequestInterval time.Duration
}

// DefaultConfig returns defaults tuned for interactive review workflows.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		FallbackEnabled:    true,
		MaxRetries:         3,
		RetryDelay:         2 * time.Second,
		MinRequestInterval: 1 * time.Second,
	}
}
