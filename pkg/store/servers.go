package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meetfleet/pkg/models"
)

const serverColumns = `id, name, url, secret, status, health, error_count, recover_count, strength,
	participant_count, listener_count, voice_participant_count, video_count, meeting_count, version`

// Usage is one complete set of live usage counters.
type Usage struct {
	ParticipantCount      int
	ListenerCount         int
	VoiceParticipantCount int
	VideoCount            int
	MeetingCount          int
}

// CycleUpdate is the single transactional write a reconciliation cycle
// applies to a server. Health, counters, usage and the meeting detach all
// commit together so a reader never observes an offline server with stale
// usage counts.
type CycleUpdate struct {
	ServerID     int64
	Health       models.ServerHealth
	ErrorCount   int
	RecoverCount int

	// Usage nil means unknown: all usage columns become NULL.
	Usage *Usage

	// Version nil means the probe failed; the column becomes NULL.
	Version *string

	// DetachRunning stamps detached_at on every still-running meeting of
	// the server that is not already detached.
	DetachRunning bool
	DetachedAt    time.Time

	// Status, when set, changes the administrative status in the same
	// transaction (drain completion).
	Status *models.ServerStatus
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (*models.Server, error) {
	var srv models.Server
	var participants, listeners, voice, video, meetings sql.NullInt64
	var version sql.NullString

	err := row.Scan(&srv.ID, &srv.Name, &srv.URL, &srv.Secret, &srv.Status, &srv.Health,
		&srv.ErrorCount, &srv.RecoverCount, &srv.Strength,
		&participants, &listeners, &voice, &video, &meetings, &version)
	if err != nil {
		return nil, err
	}

	srv.ParticipantCount = nullableInt(participants)
	srv.ListenerCount = nullableInt(listeners)
	srv.VoiceParticipantCount = nullableInt(voice)
	srv.VideoCount = nullableInt(video)
	srv.MeetingCount = nullableInt(meetings)
	if version.Valid {
		srv.Version = &version.String
	}
	return &srv, nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// CreateServer inserts a server row and sets its generated ID.
func (s *Store) CreateServer(ctx context.Context, srv *models.Server) error {
	if srv.Status == "" {
		srv.Status = models.ServerEnabled
	}
	if srv.Health == "" {
		srv.Health = models.HealthOnline
	}
	if srv.Strength < 1 {
		srv.Strength = 1
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO servers (name, url, secret, status, health, strength) VALUES (?, ?, ?, ?, ?, ?)`,
		srv.Name, srv.URL, srv.Secret, srv.Status, srv.Health, srv.Strength)
	if err != nil {
		return fmt.Errorf("%w: insert server: %w", ErrDatabaseError, err)
	}

	srv.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: server id: %w", ErrDatabaseError, err)
	}
	return nil
}

// GetServer loads one server by ID.
func (s *Store) GetServer(ctx context.Context, id int64) (*models.Server, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)
	srv, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get server: %w", ErrDatabaseError, err)
	}
	return srv, nil
}

// ListServers returns all servers ordered by ID.
func (s *Store) ListServers(ctx context.Context) ([]models.Server, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list servers: %w", ErrDatabaseError, err)
	}
	defer rows.Close()

	var servers []models.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan server: %w", ErrDatabaseError, err)
		}
		servers = append(servers, *srv)
	}
	return servers, rows.Err()
}

// SetServerStatus changes the administrative status of a server.
func (s *Store) SetServerStatus(ctx context.Context, id int64, status models.ServerStatus) error {
	result, err := s.db.ExecContext(ctx, `UPDATE servers SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("%w: set server status: %w", ErrDatabaseError, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: set server status: %w", ErrDatabaseError, err)
	}
	if affected == 0 {
		return ErrServerNotFound
	}
	return nil
}

// ApplyServerCycle commits the outcome of one reconciliation cycle
// atomically: health state, hysteresis counters, usage counters, version,
// the optional meeting detach and the optional drain-completion status flip.
func (s *Store) ApplyServerCycle(ctx context.Context, u CycleUpdate) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var participants, listeners, voice, video, meetings any
		if u.Usage != nil {
			participants = u.Usage.ParticipantCount
			listeners = u.Usage.ListenerCount
			voice = u.Usage.VoiceParticipantCount
			video = u.Usage.VideoCount
			meetings = u.Usage.MeetingCount
		}
		var version any
		if u.Version != nil {
			version = *u.Version
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE servers SET health = ?, error_count = ?, recover_count = ?,
				participant_count = ?, listener_count = ?, voice_participant_count = ?,
				video_count = ?, meeting_count = ?, version = ?
			WHERE id = ?`,
			u.Health, u.ErrorCount, u.RecoverCount,
			participants, listeners, voice, video, meetings, version, u.ServerID)
		if err != nil {
			return fmt.Errorf("%w: update server cycle: %w", ErrDatabaseError, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: update server cycle: %w", ErrDatabaseError, err)
		}
		if affected == 0 {
			return ErrServerNotFound
		}

		if u.DetachRunning {
			// Idempotent: an existing detached_at stamp is never overwritten.
			_, err := tx.ExecContext(ctx,
				`UPDATE meetings SET detached_at = ? WHERE server_id = ? AND ended_at IS NULL AND detached_at IS NULL`,
				u.DetachedAt, u.ServerID)
			if err != nil {
				return fmt.Errorf("%w: detach running meetings: %w", ErrDatabaseError, err)
			}
		}

		if u.Status != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE servers SET status = ? WHERE id = ?`, *u.Status, u.ServerID); err != nil {
				return fmt.Errorf("%w: update server status: %w", ErrDatabaseError, err)
			}
		}
		return nil
	})
}

// CreatePool creates a named server pool.
func (s *Store) CreatePool(ctx context.Context, name string) (*models.ServerPool, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO server_pools (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("%w: insert pool: %w", ErrDatabaseError, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: pool id: %w", ErrDatabaseError, err)
	}
	return &models.ServerPool{ID: id, Name: name}, nil
}

// AddServerToPool adds a server to a pool; adding twice is a no-op.
func (s *Store) AddServerToPool(ctx context.Context, poolID, serverID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO server_pool_members (pool_id, server_id) VALUES (?, ?)`,
		poolID, serverID)
	if err != nil {
		return fmt.Errorf("%w: add server to pool: %w", ErrDatabaseError, err)
	}
	return nil
}

// ListPoolServers returns the members of a pool ordered by server ID.
func (s *Store) ListPoolServers(ctx context.Context, poolID int64) ([]models.Server, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM server_pools WHERE id = ?`, poolID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%w: check pool: %w", ErrDatabaseError, err)
	}
	if exists == 0 {
		return nil, ErrPoolNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+serverColumns+` FROM servers
		WHERE id IN (SELECT server_id FROM server_pool_members WHERE pool_id = ?)
		ORDER BY id`, poolID)
	if err != nil {
		return nil, fmt.Errorf("%w: list pool servers: %w", ErrDatabaseError, err)
	}
	defer rows.Close()

	var servers []models.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan server: %w", ErrDatabaseError, err)
		}
		servers = append(servers, *srv)
	}
	return servers, rows.Err()
}
