package reconciler

import (
	"context"
	"errors"
	"time"

	"meetfleet/pkg/models"
	"meetfleet/pkg/remote"
)

// Panic performs an emergency drain of one server: the server is disabled
// first so the balancer stops placing meetings on it, then every running
// meeting is ended remotely, best effort. Meetings whose remote end fails
// stay running locally and are picked up by later cycles.
func (s *Service) Panic(ctx context.Context, serverID int64) (*models.PanicResult, error) {
	server, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetServerStatus(ctx, server.ID, models.ServerDisabled); err != nil {
		return nil, err
	}
	server.Status = models.ServerDisabled
	s.logger.Warn().Int64("server_id", server.ID).Msg("Server panic, disabled")

	meetings, err := s.store.ListRunningMeetingsByServer(ctx, server.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &models.PanicResult{Total: len(meetings)}
	for i := range meetings {
		meeting := &meetings[i]
		err := s.client.EndMeeting(ctx, server, meeting.ID)
		// Already gone on the remote side still counts as ended.
		if err != nil && !errors.Is(err, remote.ErrMeetingNotFound) {
			s.logger.Error().Int64("server_id", server.ID).Str("meeting_id", meeting.ID).
				Err(err).Msg("Failed to end meeting during panic")
			continue
		}
		if err := s.store.FinishMeeting(ctx, meeting.ID, now); err != nil {
			s.logger.Error().Int64("server_id", server.ID).Str("meeting_id", meeting.ID).
				Err(err).Msg("Failed to finish meeting during panic")
			continue
		}
		result.Success++
	}

	s.logger.Warn().Int64("server_id", server.ID).
		Int("total", result.Total).Int("success", result.Success).
		Msg("Server panic complete")
	return result, nil
}
