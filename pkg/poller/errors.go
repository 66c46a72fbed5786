package poller

import "errors"

// ErrCycleInProgress is returned when an on-demand operation collides with
// a reconciliation cycle already running for the same server.
var ErrCycleInProgress = errors.New("reconciliation cycle already in progress for server")
