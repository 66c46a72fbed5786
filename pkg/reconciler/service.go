// Package reconciler merges the externally reported state of each
// conferencing server into the local database: health transitions, meeting
// lifecycle, usage counters, attendance and usage snapshots.
package reconciler

import (
	"context"
	"errors"
	"time"

	"meetfleet/pkg/attendance"
	"meetfleet/pkg/balancer"
	"meetfleet/pkg/health"
	"meetfleet/pkg/log"
	"meetfleet/pkg/models"
	"meetfleet/pkg/remote"
	"meetfleet/pkg/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ControlClient is the slice of the remote control protocol the reconciler
// consumes. *remote.Client implements it.
type ControlClient interface {
	ListMeetings(ctx context.Context, server *models.Server) ([]models.RemoteMeeting, error)
	GetVersion(ctx context.Context, server *models.Server) (string, error)
	EndMeeting(ctx context.Context, server *models.Server, meetingID string) error
	CreateMeeting(ctx context.Context, server *models.Server, p remote.CreateParams) (*models.CreateAck, error)
}

var _ ControlClient = (*remote.Client)(nil)

// OutcomeKind classifies the result of one reconciliation cycle.
type OutcomeKind int

const (
	// OutcomeSkipped means the server is disabled and was not polled.
	OutcomeSkipped OutcomeKind = iota
	// OutcomePollFailed means the poll failed; health was updated.
	OutcomePollFailed
	// OutcomeReconciled means the cycle completed against live data.
	OutcomeReconciled
	// OutcomeError means the cycle aborted on a persistence failure and
	// will be retried on the next tick.
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSkipped:
		return "skipped"
	case OutcomePollFailed:
		return "poll_failed"
	case OutcomeReconciled:
		return "reconciled"
	default:
		return "error"
	}
}

// Outcome reports what one cycle did to one server.
type Outcome struct {
	ServerID      int64
	Kind          OutcomeKind
	Health        models.ServerHealth
	MeetingsEnded int
	Err           error
}

// Service runs reconciliation cycles and the meeting start path.
type Service struct {
	store    *store.Store
	client   ControlClient
	balancer *balancer.Balancer
	cfg      Config
	logger   zerolog.Logger
}

// New creates a reconciliation service.
func New(st *store.Store, client ControlClient, b *balancer.Balancer, cfg Config) *Service {
	return &Service{
		store:    st,
		client:   client,
		balancer: b,
		cfg:      cfg,
		logger:   log.With("reconciler"),
	}
}

func (s *Service) thresholds() health.Thresholds {
	return health.Thresholds{Healthy: s.cfg.HealthyThreshold, Unhealthy: s.cfg.UnhealthyThreshold}
}

// usageOf carries over a server's persisted usage, nil when unknown.
func usageOf(server *models.Server) *store.Usage {
	if server.ParticipantCount == nil || server.ListenerCount == nil ||
		server.VoiceParticipantCount == nil || server.VideoCount == nil || server.MeetingCount == nil {
		return nil
	}
	return &store.Usage{
		ParticipantCount:      *server.ParticipantCount,
		ListenerCount:         *server.ListenerCount,
		VoiceParticipantCount: *server.VoiceParticipantCount,
		VideoCount:            *server.VideoCount,
		MeetingCount:          *server.MeetingCount,
	}
}

// ReconcileOne runs one full reconciliation cycle for one server. All
// errors are folded into the outcome; per-server failures never propagate
// to the rest of the fleet.
func (s *Service) ReconcileOne(ctx context.Context, serverID int64) Outcome {
	now := time.Now().UTC()

	server, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		return Outcome{ServerID: serverID, Kind: OutcomeError, Err: err}
	}

	// Disabled servers are not polled: usage becomes unknown, health and
	// counters stay as they are.
	if !server.Pollable() {
		err := s.store.ApplyServerCycle(ctx, store.CycleUpdate{
			ServerID:     server.ID,
			Health:       server.Health,
			ErrorCount:   server.ErrorCount,
			RecoverCount: server.RecoverCount,
			Version:      server.Version,
		})
		if err != nil {
			return Outcome{ServerID: server.ID, Kind: OutcomeError, Health: server.Health, Err: err}
		}
		return Outcome{ServerID: server.ID, Kind: OutcomeSkipped, Health: server.Health}
	}

	meetings, pollErr := s.client.ListMeetings(ctx, server)
	if pollErr != nil {
		// An administrative refusal means the status flipped between the
		// load and the poll. Not the server's fault; skip without touching
		// the counters.
		if !remote.IsPollFailure(pollErr) {
			return Outcome{ServerID: server.ID, Kind: OutcomeSkipped, Health: server.Health}
		}
		return s.handlePollFailure(ctx, server, pollErr, now)
	}

	return s.handlePollSuccess(ctx, server, meetings, now)
}

// handlePollFailure applies the health transition for a failed poll and,
// when the server drops to offline, atomically clears its usage and
// detaches its running meetings. Meetings are never ended here.
func (s *Service) handlePollFailure(ctx context.Context, server *models.Server, pollErr error, now time.Time) Outcome {
	newHealth, counters := health.Apply(server.Health,
		health.Counters{ErrorCount: server.ErrorCount, RecoverCount: server.RecoverCount},
		health.Failure, s.thresholds())

	var apiErr *remote.APIError
	if errors.As(pollErr, &apiErr) {
		s.logger.Warn().Int64("server_id", server.ID).Str("message_key", apiErr.MessageKey).
			Err(pollErr).Msg("Control API rejected the poll")
	} else {
		s.logger.Warn().Int64("server_id", server.ID).Err(pollErr).Msg("Server poll failed")
	}

	update := store.CycleUpdate{
		ServerID:     server.ID,
		Health:       newHealth,
		ErrorCount:   counters.ErrorCount,
		RecoverCount: counters.RecoverCount,
		Version:      server.Version,
	}

	switch newHealth {
	case models.HealthOffline:
		// Usage unknown; running meetings become detached, not deleted.
		update.DetachRunning = true
		update.DetachedAt = now
		if server.Health != models.HealthOffline {
			s.logger.Error().Int64("server_id", server.ID).
				Int("error_count", counters.ErrorCount).Msg("Server marked offline")
		}
	default:
		// Grace period: keep the last known usage until offline.
		update.Usage = usageOf(server)
	}

	if err := s.store.ApplyServerCycle(ctx, update); err != nil {
		return Outcome{ServerID: server.ID, Kind: OutcomeError, Health: newHealth, Err: err}
	}
	return Outcome{ServerID: server.ID, Kind: OutcomePollFailed, Health: newHealth, Err: pollErr}
}

// handlePollSuccess reconciles the server's local meetings against the
// reported live list, refreshes counters and snapshots, and finishes with
// the atomic per-server cycle write.
func (s *Service) handlePollSuccess(ctx context.Context, server *models.Server, meetings []models.RemoteMeeting, now time.Time) Outcome {
	newHealth, counters := health.Apply(server.Health,
		health.Counters{ErrorCount: server.ErrorCount, RecoverCount: server.RecoverCount},
		health.Success, s.thresholds())
	if server.Health != models.HealthOnline && newHealth == models.HealthOnline {
		s.logger.Info().Int64("server_id", server.ID).Msg("Server back online")
	}

	live := make(map[string]*models.RemoteMeeting, len(meetings))
	for i := range meetings {
		live[meetings[i].MeetingID] = &meetings[i]
	}

	local, err := s.store.ListRunningMeetingsByServer(ctx, server.ID)
	if err != nil {
		return Outcome{ServerID: server.ID, Kind: OutcomeError, Health: newHealth, Err: err}
	}

	ended := 0
	remaining := 0
	for i := range local {
		meeting := &local[i]
		reported, stillLive := live[meeting.ID]

		if !stillLive {
			// Gone on the remote side: a normal end, even for meetings
			// that were detached while the server was offline.
			if err := s.store.FinishMeeting(ctx, meeting.ID, now); err != nil {
				return Outcome{ServerID: server.ID, Kind: OutcomeError, Health: newHealth, Err: err}
			}
			s.logger.Info().Int64("server_id", server.ID).Str("meeting_id", meeting.ID).
				Msg("Meeting ended on remote server")
			ended++
			continue
		}
		remaining++

		if meeting.Detached != nil {
			// A detached meeting reappearing in a live list is ambiguous:
			// the id may have been reused. Flag it for operator review
			// instead of silently clearing the detach marker.
			s.logger.Warn().Int64("server_id", server.ID).Str("meeting_id", meeting.ID).
				Time("detached_at", *meeting.Detached).
				Msg("Detached meeting reported live again, leaving flagged")
		}

		if err := s.refreshMeeting(ctx, meeting, reported, now); err != nil {
			return Outcome{ServerID: server.ID, Kind: OutcomeError, Health: newHealth, Err: err}
		}
	}

	// Server totals are a passthrough of everything the server reports,
	// including meetings this installation does not track.
	var usage store.Usage
	for i := range meetings {
		usage.ParticipantCount += meetings[i].ParticipantCount
		usage.ListenerCount += meetings[i].ListenerCount
		usage.VoiceParticipantCount += meetings[i].VoiceParticipantCount
		usage.VideoCount += meetings[i].VideoCount
	}
	usage.MeetingCount = len(meetings)

	// Best effort: a failed version probe nulls the column and nothing else.
	var version *string
	if v, err := s.client.GetVersion(ctx, server); err == nil {
		version = &v
	} else {
		s.logger.Debug().Int64("server_id", server.ID).Err(err).Msg("Version probe failed")
	}

	update := store.CycleUpdate{
		ServerID:     server.ID,
		Health:       newHealth,
		ErrorCount:   counters.ErrorCount,
		RecoverCount: counters.RecoverCount,
		Usage:        &usage,
		Version:      version,
	}

	// Drain completion: a draining server with nothing left running is
	// disabled in the same transaction.
	if server.Status == models.ServerDraining && remaining == 0 {
		disabled := models.ServerDisabled
		update.Status = &disabled
		s.logger.Info().Int64("server_id", server.ID).Msg("Drain complete, disabling server")
	}

	if err := s.store.ApplyServerCycle(ctx, update); err != nil {
		return Outcome{ServerID: server.ID, Kind: OutcomeError, Health: newHealth, Err: err}
	}

	if s.cfg.ServerStatsEnabled {
		if err := s.store.AppendServerStat(ctx, server.ID, usage, now); err != nil {
			return Outcome{ServerID: server.ID, Kind: OutcomeError, Health: newHealth, Err: err}
		}
	}

	return Outcome{ServerID: server.ID, Kind: OutcomeReconciled, Health: newHealth, MeetingsEnded: ended}
}

// refreshMeeting updates one confirmed-live meeting: usage counters, the
// optional stat snapshot, and attendance when the meeting opted in.
func (s *Service) refreshMeeting(ctx context.Context, meeting *models.Meeting, reported *models.RemoteMeeting, now time.Time) error {
	usage := store.Usage{
		ParticipantCount:      reported.ParticipantCount,
		ListenerCount:         reported.ListenerCount,
		VoiceParticipantCount: reported.VoiceParticipantCount,
		VideoCount:            reported.VideoCount,
	}
	if err := s.store.UpdateMeetingUsage(ctx, meeting.ID, usage); err != nil {
		return err
	}

	if s.cfg.MeetingStatsEnabled {
		if err := s.store.AppendMeetingStat(ctx, meeting.ID, usage, now); err != nil {
			return err
		}
	}

	if !meeting.RecordAttendance {
		return nil
	}

	open, err := s.store.ListOpenAttendees(ctx, meeting.ID)
	if err != nil {
		return err
	}

	knownUser := func(id int64) bool {
		exists, lookupErr := s.store.UserExists(ctx, id)
		return lookupErr == nil && exists
	}

	delta, anomalies := attendance.Reconcile(meeting.ID, open, reported.Attendees, knownUser, now)
	for _, anomaly := range anomalies {
		event := s.logger.Warn().Str("meeting_id", anomaly.MeetingID).Str("ref", anomaly.Raw)
		switch anomaly.Kind {
		case attendance.UnknownUserReference:
			event.Msg("Attendee references unknown user, skipped")
		case attendance.UnknownPrefix:
			event.Msg("Attendee identifier has unknown prefix, skipped")
		}
	}

	return s.store.ApplyAttendanceDelta(ctx, delta, now)
}

// StartMeeting places a new meeting for a room onto the least-loaded
// eligible server of a pool. Returns balancer.ErrNoServerAvailable when the
// pool has no capacity.
func (s *Service) StartMeeting(ctx context.Context, roomID, poolID int64) (*models.Meeting, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	// Refuse before touching the network; the insert below enforces the
	// invariant again under the transaction.
	busy, err := s.store.RoomHasRunningMeeting(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, store.ErrRoomBusy
	}

	server, err := s.balancer.PickFromPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	meeting := &models.Meeting{
		ID:               uuid.NewString(),
		RoomID:           room.ID,
		ServerID:         &server.ID,
		Start:            time.Now().UTC(),
		RecordAttendance: room.RecordAttendance,
	}

	if _, err := s.client.CreateMeeting(ctx, server, remote.CreateParams{
		MeetingID: meeting.ID,
		Name:      room.Name,
		Record:    room.RecordAttendance,
	}); err != nil {
		return nil, err
	}

	if err := s.store.CreateMeeting(ctx, meeting); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("server_id", server.ID).Int64("room_id", room.ID).
		Str("meeting_id", meeting.ID).Msg("Meeting started")
	return meeting, nil
}
