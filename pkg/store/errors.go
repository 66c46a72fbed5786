package store

import "errors"

var (
	// ErrServerNotFound is returned when the requested server does not exist.
	ErrServerNotFound = errors.New("server not found")

	// ErrPoolNotFound is returned when the requested server pool does not exist.
	ErrPoolNotFound = errors.New("server pool not found")

	// ErrRoomNotFound is returned when the requested room does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrMeetingNotFound is returned when the requested meeting does not exist.
	ErrMeetingNotFound = errors.New("meeting not found")

	// ErrRoomBusy is returned when a room already has a running meeting.
	ErrRoomBusy = errors.New("room already has a running meeting")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("database error")
)
