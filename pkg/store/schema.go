package store

// Schema contains the SQL statements to create the fleet database schema.
const Schema = `
-- Servers table: one row per conferencing backend
CREATE TABLE IF NOT EXISTS servers (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    name                    TEXT NOT NULL,
    url                     TEXT UNIQUE NOT NULL,
    secret                  TEXT NOT NULL,
    status                  TEXT NOT NULL DEFAULT 'enabled',
    health                  TEXT NOT NULL DEFAULT 'online',
    error_count             INTEGER NOT NULL DEFAULT 0,
    recover_count           INTEGER NOT NULL DEFAULT 0,
    strength                INTEGER NOT NULL DEFAULT 1,
    participant_count       INTEGER,
    listener_count          INTEGER,
    voice_participant_count INTEGER,
    video_count             INTEGER,
    meeting_count           INTEGER,
    version                 TEXT
);

-- Server pools: named server sets consumed by the load balancer
CREATE TABLE IF NOT EXISTS server_pools (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS server_pool_members (
    pool_id   INTEGER NOT NULL,
    server_id INTEGER NOT NULL,
    PRIMARY KEY (pool_id, server_id),
    FOREIGN KEY (pool_id) REFERENCES server_pools(id) ON DELETE CASCADE,
    FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
);

-- Local users, referenced by recorded attendance
CREATE TABLE IF NOT EXISTS users (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL
);

-- Rooms own meetings; live usage mirrors the room's running meeting
CREATE TABLE IF NOT EXISTS rooms (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    name                    TEXT NOT NULL,
    record_attendance       BOOLEAN NOT NULL DEFAULT FALSE,
    participant_count       INTEGER,
    listener_count          INTEGER,
    voice_participant_count INTEGER,
    video_count             INTEGER
);

-- Meetings: ended_at IS NULL means believed running
CREATE TABLE IF NOT EXISTS meetings (
    id                      TEXT PRIMARY KEY,
    room_id                 INTEGER NOT NULL,
    server_id               INTEGER,
    started_at              DATETIME NOT NULL,
    ended_at                DATETIME,
    detached_at             DATETIME,
    record_attendance       BOOLEAN NOT NULL DEFAULT FALSE,
    participant_count       INTEGER,
    listener_count          INTEGER,
    voice_participant_count INTEGER,
    video_count             INTEGER,
    FOREIGN KEY (room_id) REFERENCES rooms(id),
    FOREIGN KEY (server_id) REFERENCES servers(id)
);

-- At most one running meeting per room
CREATE UNIQUE INDEX IF NOT EXISTS idx_meetings_room_running
    ON meetings(room_id) WHERE ended_at IS NULL;

-- Attendee sessions: left_at IS NULL marks the open session
CREATE TABLE IF NOT EXISTS meeting_attendees (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    meeting_id TEXT NOT NULL,
    user_id    INTEGER,
    name       TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    joined_at  DATETIME NOT NULL,
    left_at    DATETIME,
    FOREIGN KEY (meeting_id) REFERENCES meetings(id) ON DELETE CASCADE,
    FOREIGN KEY (user_id) REFERENCES users(id)
);

-- Append-only usage snapshots
CREATE TABLE IF NOT EXISTS meeting_stats (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    meeting_id              TEXT NOT NULL,
    participant_count       INTEGER NOT NULL,
    listener_count          INTEGER NOT NULL,
    voice_participant_count INTEGER NOT NULL,
    video_count             INTEGER NOT NULL,
    created_at              DATETIME NOT NULL,
    FOREIGN KEY (meeting_id) REFERENCES meetings(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS server_stats (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id               INTEGER NOT NULL,
    participant_count       INTEGER NOT NULL,
    listener_count          INTEGER NOT NULL,
    voice_participant_count INTEGER NOT NULL,
    video_count             INTEGER NOT NULL,
    meeting_count           INTEGER NOT NULL,
    created_at              DATETIME NOT NULL,
    FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
);

-- Indexes for the hot reconciliation paths
CREATE INDEX IF NOT EXISTS idx_meetings_server_running ON meetings(server_id) WHERE ended_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_attendees_meeting_open ON meeting_attendees(meeting_id) WHERE left_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_meeting_stats_meeting ON meeting_stats(meeting_id);
CREATE INDEX IF NOT EXISTS idx_server_stats_server ON server_stats(server_id);
`
