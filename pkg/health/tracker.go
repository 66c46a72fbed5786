// Package health implements the hysteresis state machine that classifies a
// server as online, unhealthy or offline based on consecutive poll outcomes.
// It is a pure function of its inputs so every threshold edge can be tested
// without a database or a network.
package health

import "meetfleet/pkg/models"

// Outcome is the result of one poll attempt against a server.
type Outcome int

const (
	// Success means the server answered the poll.
	Success Outcome = iota
	// Failure means the poll failed at the connection or protocol level.
	Failure
)

// Counters holds the mutually exclusive hysteresis counters. After any
// transition at most one of them is nonzero.
type Counters struct {
	ErrorCount   int
	RecoverCount int
}

// Thresholds configures how many consecutive identical outcomes are needed
// to flip health state. Both values must be >= 1.
type Thresholds struct {
	// Healthy is the number of consecutive successes required to return
	// to online from unhealthy or offline.
	Healthy int
	// Unhealthy is the number of consecutive failures required to go
	// from unhealthy to offline.
	Unhealthy int
}

// Apply feeds one poll outcome into the state machine and returns the next
// health state and counters. A single failure degrades an online server to
// unhealthy immediately; reaching the unhealthy threshold degrades it to
// offline. Recovery always requires the full healthy threshold of
// consecutive successes, even from offline.
func Apply(state models.ServerHealth, c Counters, outcome Outcome, t Thresholds) (models.ServerHealth, Counters) {
	switch outcome {
	case Failure:
		c.ErrorCount++
		c.RecoverCount = 0

		switch state {
		case models.HealthOnline:
			state = models.HealthUnhealthy
			if c.ErrorCount >= t.Unhealthy {
				state = models.HealthOffline
			}
		case models.HealthUnhealthy:
			if c.ErrorCount >= t.Unhealthy {
				state = models.HealthOffline
			}
		case models.HealthOffline:
			// Stays offline; the counter keeps climbing.
		}

	case Success:
		c.RecoverCount++
		c.ErrorCount = 0

		if state != models.HealthOnline && c.RecoverCount >= t.Healthy {
			state = models.HealthOnline
		}
	}

	return state, c
}
