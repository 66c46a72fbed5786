package balancer

import "errors"

// ErrNoServerAvailable is returned when no eligible server exists in the
// pool. Callers surface this as "no capacity"; it is a hard failure.
var ErrNoServerAvailable = errors.New("no server available")
