package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meetfleet/pkg/models"
)

const meetingColumns = `id, room_id, server_id, started_at, ended_at, detached_at, record_attendance,
	participant_count, listener_count, voice_participant_count, video_count`

func scanMeeting(row rowScanner) (*models.Meeting, error) {
	var m models.Meeting
	var serverID sql.NullInt64
	var ended, detached sql.NullTime
	var participants, listeners, voice, video sql.NullInt64

	err := row.Scan(&m.ID, &m.RoomID, &serverID, &m.Start, &ended, &detached, &m.RecordAttendance,
		&participants, &listeners, &voice, &video)
	if err != nil {
		return nil, err
	}

	if serverID.Valid {
		m.ServerID = &serverID.Int64
	}
	if ended.Valid {
		m.End = &ended.Time
	}
	if detached.Valid {
		m.Detached = &detached.Time
	}
	m.ParticipantCount = nullableInt(participants)
	m.ListenerCount = nullableInt(listeners)
	m.VoiceParticipantCount = nullableInt(voice)
	m.VideoCount = nullableInt(video)
	return &m, nil
}

// CreateUser inserts a local user and sets its generated ID.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	result, err := s.db.ExecContext(ctx, `INSERT INTO users (name) VALUES (?)`, u.Name)
	if err != nil {
		return fmt.Errorf("%w: insert user: %w", ErrDatabaseError, err)
	}
	u.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: user id: %w", ErrDatabaseError, err)
	}
	return nil
}

// UserExists reports whether a local user id resolves. The attendance
// reconciler uses it to separate real references from stale ones.
func (s *Store) UserExists(ctx context.Context, id int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: user exists: %w", ErrDatabaseError, err)
	}
	return count > 0, nil
}

// CreateRoom inserts a room and sets its generated ID.
func (s *Store) CreateRoom(ctx context.Context, r *models.Room) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (name, record_attendance) VALUES (?, ?)`, r.Name, r.RecordAttendance)
	if err != nil {
		return fmt.Errorf("%w: insert room: %w", ErrDatabaseError, err)
	}
	r.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: room id: %w", ErrDatabaseError, err)
	}
	return nil
}

// GetRoom loads one room by ID.
func (s *Store) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	var r models.Room
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, record_attendance FROM rooms WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &r.RecordAttendance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get room: %w", ErrDatabaseError, err)
	}
	return &r, nil
}

// RoomHasRunningMeeting reports whether a room currently has a running
// meeting.
func (s *Store) RoomHasRunningMeeting(ctx context.Context, roomID int64) (bool, error) {
	var running int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM meetings WHERE room_id = ? AND ended_at IS NULL`, roomID).
		Scan(&running)
	if err != nil {
		return false, fmt.Errorf("%w: check running meeting: %w", ErrDatabaseError, err)
	}
	return running > 0, nil
}

// CreateMeeting inserts a meeting row. A room can have at most one running
// meeting; a second insert while one is running fails with ErrRoomBusy.
func (s *Store) CreateMeeting(ctx context.Context, m *models.Meeting) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var running int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM meetings WHERE room_id = ? AND ended_at IS NULL`, m.RoomID).
			Scan(&running)
		if err != nil {
			return fmt.Errorf("%w: check running meeting: %w", ErrDatabaseError, err)
		}
		if running > 0 {
			return ErrRoomBusy
		}

		var serverID any
		if m.ServerID != nil {
			serverID = *m.ServerID
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO meetings (id, room_id, server_id, started_at, record_attendance) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.RoomID, serverID, m.Start, m.RecordAttendance)
		if err != nil {
			return fmt.Errorf("%w: insert meeting: %w", ErrDatabaseError, err)
		}
		return nil
	})
}

// GetMeeting loads one meeting by its external ID.
func (s *Store) GetMeeting(ctx context.Context, id string) (*models.Meeting, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMeetingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get meeting: %w", ErrDatabaseError, err)
	}
	return m, nil
}

// ListRunningMeetings returns every meeting still believed running.
func (s *Store) ListRunningMeetings(ctx context.Context) ([]models.Meeting, error) {
	return s.listMeetings(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE ended_at IS NULL ORDER BY started_at`)
}

// ListRunningMeetingsByServer returns the running meetings of one server.
func (s *Store) ListRunningMeetingsByServer(ctx context.Context, serverID int64) ([]models.Meeting, error) {
	return s.listMeetings(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE server_id = ? AND ended_at IS NULL ORDER BY started_at`,
		serverID)
}

func (s *Store) listMeetings(ctx context.Context, query string, args ...any) ([]models.Meeting, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list meetings: %w", ErrDatabaseError, err)
	}
	defer rows.Close()

	var meetings []models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan meeting: %w", ErrDatabaseError, err)
		}
		meetings = append(meetings, *m)
	}
	return meetings, rows.Err()
}

// FinishMeeting marks a meeting ended and force-closes its open attendee
// sessions with the same timestamp, in one transaction. Already-ended
// meetings are left untouched, so retries are safe.
func (s *Store) FinishMeeting(ctx context.Context, meetingID string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE meetings SET ended_at = ?,
				participant_count = NULL, listener_count = NULL,
				voice_participant_count = NULL, video_count = NULL
			WHERE id = ? AND ended_at IS NULL`, at, meetingID)
		if err != nil {
			return fmt.Errorf("%w: end meeting: %w", ErrDatabaseError, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: end meeting: %w", ErrDatabaseError, err)
		}
		if affected == 0 {
			// Already ended or unknown; nothing left to close.
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE meeting_attendees SET left_at = ? WHERE meeting_id = ? AND left_at IS NULL`,
			at, meetingID); err != nil {
			return fmt.Errorf("%w: close attendee sessions: %w", ErrDatabaseError, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE rooms SET participant_count = NULL, listener_count = NULL,
				voice_participant_count = NULL, video_count = NULL
			WHERE id = (SELECT room_id FROM meetings WHERE id = ?)`, meetingID); err != nil {
			return fmt.Errorf("%w: clear room usage: %w", ErrDatabaseError, err)
		}
		return nil
	})
}

// UpdateMeetingUsage refreshes the live counters of a meeting and its room.
func (s *Store) UpdateMeetingUsage(ctx context.Context, meetingID string, u Usage) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE meetings SET participant_count = ?, listener_count = ?,
				voice_participant_count = ?, video_count = ?
			WHERE id = ?`,
			u.ParticipantCount, u.ListenerCount, u.VoiceParticipantCount, u.VideoCount, meetingID)
		if err != nil {
			return fmt.Errorf("%w: update meeting usage: %w", ErrDatabaseError, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: update meeting usage: %w", ErrDatabaseError, err)
		}
		if affected == 0 {
			return ErrMeetingNotFound
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE rooms SET participant_count = ?, listener_count = ?,
				voice_participant_count = ?, video_count = ?
			WHERE id = (SELECT room_id FROM meetings WHERE id = ?)`,
			u.ParticipantCount, u.ListenerCount, u.VoiceParticipantCount, u.VideoCount, meetingID); err != nil {
			return fmt.Errorf("%w: update room usage: %w", ErrDatabaseError, err)
		}
		return nil
	})
}
