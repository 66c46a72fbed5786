package store

import (
	"context"
	"fmt"
	"time"

	"meetfleet/pkg/models"
)

// AppendMeetingStat records one point-in-time usage snapshot of a meeting.
// Snapshots are append-only; this core never mutates or deletes them.
func (s *Store) AppendMeetingStat(ctx context.Context, meetingID string, u Usage, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meeting_stats (meeting_id, participant_count, listener_count,
			voice_participant_count, video_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		meetingID, u.ParticipantCount, u.ListenerCount, u.VoiceParticipantCount, u.VideoCount, at)
	if err != nil {
		return fmt.Errorf("%w: append meeting stat: %w", ErrDatabaseError, err)
	}
	return nil
}

// AppendServerStat records one point-in-time usage snapshot of a server.
func (s *Store) AppendServerStat(ctx context.Context, serverID int64, u Usage, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO server_stats (server_id, participant_count, listener_count,
			voice_participant_count, video_count, meeting_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		serverID, u.ParticipantCount, u.ListenerCount, u.VoiceParticipantCount,
		u.VideoCount, u.MeetingCount, at)
	if err != nil {
		return fmt.Errorf("%w: append server stat: %w", ErrDatabaseError, err)
	}
	return nil
}

// ListMeetingStats returns the snapshots of one meeting, oldest first.
func (s *Store) ListMeetingStats(ctx context.Context, meetingID string) ([]models.MeetingStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_id, participant_count, listener_count, voice_participant_count,
			video_count, created_at
		FROM meeting_stats WHERE meeting_id = ? ORDER BY id`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("%w: list meeting stats: %w", ErrDatabaseError, err)
	}
	defer rows.Close()

	var stats []models.MeetingStat
	for rows.Next() {
		var st models.MeetingStat
		if err := rows.Scan(&st.ID, &st.MeetingID, &st.ParticipantCount, &st.ListenerCount,
			&st.VoiceParticipantCount, &st.VideoCount, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan meeting stat: %w", ErrDatabaseError, err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ListServerStats returns the snapshots of one server, oldest first.
func (s *Store) ListServerStats(ctx context.Context, serverID int64) ([]models.ServerStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, server_id, participant_count, listener_count, voice_participant_count,
			video_count, meeting_count, created_at
		FROM server_stats WHERE server_id = ? ORDER BY id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("%w: list server stats: %w", ErrDatabaseError, err)
	}
	defer rows.Close()

	var stats []models.ServerStat
	for rows.Next() {
		var st models.ServerStat
		if err := rows.Scan(&st.ID, &st.ServerID, &st.ParticipantCount, &st.ListenerCount,
			&st.VoiceParticipantCount, &st.VideoCount, &st.MeetingCount, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan server stat: %w", ErrDatabaseError, err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
