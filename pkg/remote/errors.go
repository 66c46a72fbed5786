package remote

import "errors"

var (
	// ErrServerDisabled is returned when the server's administrative
	// status forbids contacting it. No network call is made.
	ErrServerDisabled = errors.New("server is disabled")

	// ErrServerDraining is returned when a create is attempted on a
	// draining server. Draining servers accept no new meetings.
	ErrServerDraining = errors.New("server is draining")

	// ErrUnreachable is returned on connection-level failures: timeouts,
	// DNS errors, refused connections. It drives a health failure.
	ErrUnreachable = errors.New("server unreachable")

	// ErrMeetingNotFound is returned when an end call names a meeting the
	// server does not know.
	ErrMeetingNotFound = errors.New("meeting not found on server")
)

// APIError means the server was reached but rejected the request at the
// protocol level (bad checksum, malformed call). For health purposes it
// counts as a failure like ErrUnreachable, but it is logged distinctly.
type APIError struct {
	MessageKey string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return "control API error " + e.MessageKey + ": " + e.Message
	}
	return "control API error " + e.MessageKey
}

// IsPollFailure reports whether err should count as a poll failure for the
// health tracker. Administrative short-circuits are not failures.
func IsPollFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrServerDisabled) && !errors.Is(err, ErrServerDraining)
}
