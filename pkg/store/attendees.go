package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"meetfleet/pkg/attendance"
	"meetfleet/pkg/models"
)

// ListOpenAttendees returns the attendee sessions of a meeting that have no
// leave timestamp yet.
func (s *Store) ListOpenAttendees(ctx context.Context, meetingID string) ([]models.MeetingAttendee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_id, user_id, name, session_id, joined_at, left_at
		FROM meeting_attendees WHERE meeting_id = ? AND left_at IS NULL ORDER BY id`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("%w: list open attendees: %w", ErrDatabaseError, err)
	}
	defer rows.Close()

	return collectAttendees(rows)
}

// ListAttendees returns the full attendance history of a meeting.
func (s *Store) ListAttendees(ctx context.Context, meetingID string) ([]models.MeetingAttendee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meeting_id, user_id, name, session_id, joined_at, left_at
		FROM meeting_attendees WHERE meeting_id = ? ORDER BY id`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("%w: list attendees: %w", ErrDatabaseError, err)
	}
	defer rows.Close()

	return collectAttendees(rows)
}

func collectAttendees(rows *sql.Rows) ([]models.MeetingAttendee, error) {
	var attendees []models.MeetingAttendee
	for rows.Next() {
		var a models.MeetingAttendee
		var userID sql.NullInt64
		var left sql.NullTime

		if err := rows.Scan(&a.ID, &a.MeetingID, &userID, &a.Name, &a.SessionID, &a.Join, &left); err != nil {
			return nil, fmt.Errorf("%w: scan attendee: %w", ErrDatabaseError, err)
		}
		if userID.Valid {
			a.UserID = &userID.Int64
		}
		if left.Valid {
			a.Leave = &left.Time
		}
		attendees = append(attendees, a)
	}
	return attendees, rows.Err()
}

// ApplyAttendanceDelta persists one reconciliation delta: new sessions are
// inserted with their join time, departed sessions get their leave stamped.
// Only still-open rows are stamped, so replaying a delta cannot move an
// existing leave timestamp.
func (s *Store) ApplyAttendanceDelta(ctx context.Context, delta attendance.Delta, closedAt time.Time) error {
	if delta.Empty() {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, open := range delta.Opens {
			var userID any
			if open.UserID != nil {
				userID = *open.UserID
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO meeting_attendees (meeting_id, user_id, name, session_id, joined_at) VALUES (?, ?, ?, ?, ?)`,
				open.MeetingID, userID, open.Name, open.SessionID, open.Join); err != nil {
				return fmt.Errorf("%w: open attendee session: %w", ErrDatabaseError, err)
			}
		}

		for _, id := range delta.Closes {
			if _, err := tx.ExecContext(ctx,
				`UPDATE meeting_attendees SET left_at = ? WHERE id = ? AND left_at IS NULL`,
				closedAt, id); err != nil {
				return fmt.Errorf("%w: close attendee session: %w", ErrDatabaseError, err)
			}
		}
		return nil
	})
}
