package models

// AttendeeRefKind tags the decoded form of a remote attendee identifier.
type AttendeeRefKind int

const (
	// RefUser is a registered local user reference ("u-<id>").
	RefUser AttendeeRefKind = iota
	// RefGuest is a guest session reference ("g-<session>").
	RefGuest
	// RefUnknown is an identifier whose prefix was not recognized.
	RefUnknown
)

// AttendeeRef is the decoded remote attendee identifier. Raw always holds
// the identifier exactly as reported, for anomaly logging.
type AttendeeRef struct {
	Kind      AttendeeRefKind
	UserID    int64
	SessionID string
	Raw       string
}

// RemoteAttendee is one live attendee as reported by a server.
type RemoteAttendee struct {
	Ref  AttendeeRef
	Name string
}

// RemoteMeeting is one live meeting as reported by a server.
type RemoteMeeting struct {
	MeetingID             string
	ParticipantCount      int
	ListenerCount         int
	VoiceParticipantCount int
	VideoCount            int
	Attendees             []RemoteAttendee
}

// CreateAck is the acknowledgement returned by a create call.
type CreateAck struct {
	MeetingID  string
	InternalID string
}

// PanicResult reports the outcome of an emergency server drain.
type PanicResult struct {
	Total   int `json:"total"`
	Success int `json:"success"`
}
