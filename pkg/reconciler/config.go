package reconciler

import "time"

// Default configuration values, overridable via flags.
const (
	DefaultHealthyThreshold   = 3
	DefaultUnhealthyThreshold = 3
	DefaultRequestTimeout     = 10 * time.Second
)

// Config is the explicit reconciliation configuration. It is injected into
// the service; there is no process-wide settings store.
type Config struct {
	// HealthyThreshold is the number of consecutive successful polls a
	// non-online server needs to return to online.
	HealthyThreshold int
	// UnhealthyThreshold is the number of consecutive failed polls an
	// unhealthy server needs to be declared offline.
	UnhealthyThreshold int
	// ServerStatsEnabled appends a server usage snapshot per cycle.
	ServerStatsEnabled bool
	// MeetingStatsEnabled appends a meeting usage snapshot per cycle.
	MeetingStatsEnabled bool
}

// DefaultConfig returns the stock configuration with stats disabled.
func DefaultConfig() Config {
	return Config{
		HealthyThreshold:   DefaultHealthyThreshold,
		UnhealthyThreshold: DefaultUnhealthyThreshold,
	}
}
