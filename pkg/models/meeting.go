package models

import "time"

// Room is the user-facing container a meeting is started from. Room CRUD
// lives outside this service; only the reference and the running-meeting
// invariant matter here.
type Room struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	RecordAttendance bool   `json:"record_attendance"`
}

// Meeting is one live or historical conferencing session.
//
// End == nil means the meeting is believed running. Detached is stamped when
// the owning server was declared offline while the meeting was still
// running; it is a provisional marker and is never cleared once the meeting
// has ended.
type Meeting struct {
	ID               string     `json:"id"`
	RoomID           int64      `json:"room_id"`
	ServerID         *int64     `json:"server_id"`
	Start            time.Time  `json:"start"`
	End              *time.Time `json:"end"`
	Detached         *time.Time `json:"detached"`
	RecordAttendance bool       `json:"record_attendance"`

	ParticipantCount      *int `json:"participant_count"`
	ListenerCount         *int `json:"listener_count"`
	VoiceParticipantCount *int `json:"voice_participant_count"`
	VideoCount            *int `json:"video_count"`
}

// MeetingStat is an append-only point-in-time usage snapshot of a meeting.
type MeetingStat struct {
	ID                    int64     `json:"id"`
	MeetingID             string    `json:"meeting_id"`
	ParticipantCount      int       `json:"participant_count"`
	ListenerCount         int       `json:"listener_count"`
	VoiceParticipantCount int       `json:"voice_participant_count"`
	VideoCount            int       `json:"video_count"`
	CreatedAt             time.Time `json:"created_at"`
}

// MeetingAttendee is one continuous join-to-leave presence interval within a
// meeting. Either UserID is set (registered user) or Name carries a guest
// display name; SessionID distinguishes concurrent guests sharing a name.
// Leave == nil marks the currently open session.
type MeetingAttendee struct {
	ID        int64      `json:"id"`
	MeetingID string     `json:"meeting_id"`
	UserID    *int64     `json:"user_id"`
	Name      string     `json:"name"`
	SessionID string     `json:"session_id"`
	Join      time.Time  `json:"join"`
	Leave     *time.Time `json:"leave"`
}
