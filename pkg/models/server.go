package models

import "time"

// ServerStatus is the administrator-controlled scheduling state of a server.
type ServerStatus string

const (
	// ServerEnabled means the server accepts new meetings and is polled.
	ServerEnabled ServerStatus = "enabled"
	// ServerDisabled means the server is neither polled nor scheduled.
	ServerDisabled ServerStatus = "disabled"
	// ServerDraining means the server is polled but receives no new
	// meetings; it flips to disabled once its last meeting ends.
	ServerDraining ServerStatus = "draining"
)

// ServerHealth is the system-computed reachability classification of a
// server. It is mutated only by the reconciliation cycle.
type ServerHealth string

const (
	HealthOnline    ServerHealth = "online"
	HealthUnhealthy ServerHealth = "unhealthy"
	HealthOffline   ServerHealth = "offline"
)

// Server represents one externally-hosted conferencing backend.
//
// Usage fields are pointers: nil means "unknown", which happens while the
// server is disabled or offline. The hysteresis counters are mutually
// exclusive; at most one of them is nonzero at any time.
type Server struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	URL          string       `json:"url"`
	Secret       string       `json:"-"`
	Status       ServerStatus `json:"status"`
	Health       ServerHealth `json:"health"`
	ErrorCount   int          `json:"error_count"`
	RecoverCount int          `json:"recover_count"`
	Strength     int          `json:"strength"`

	ParticipantCount      *int `json:"participant_count"`
	ListenerCount         *int `json:"listener_count"`
	VoiceParticipantCount *int `json:"voice_participant_count"`
	VideoCount            *int `json:"video_count"`
	MeetingCount          *int `json:"meeting_count"`

	Version *string `json:"version"`
}

// Pollable reports whether the reconciler should contact this server at all.
func (s *Server) Pollable() bool {
	return s.Status != ServerDisabled
}

// ServerPool is a named set of servers used as the load balancer input.
type ServerPool struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	ServerIDs []int64 `json:"server_ids,omitempty"`
}

// ServerStat is an append-only point-in-time usage snapshot of a server.
type ServerStat struct {
	ID                    int64     `json:"id"`
	ServerID              int64     `json:"server_id"`
	ParticipantCount      int       `json:"participant_count"`
	ListenerCount         int       `json:"listener_count"`
	VoiceParticipantCount int       `json:"voice_participant_count"`
	VideoCount            int       `json:"video_count"`
	MeetingCount          int       `json:"meeting_count"`
	CreatedAt             time.Time `json:"created_at"`
}
