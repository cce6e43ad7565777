package recording

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/teamlinkhq/teamlink/internal/db"
	"github.com/teamlinkhq/teamlink/internal/message"
)

const sessionColumns = `id, area_id, started_by, started_at, stopped_at,
	start_created_at, start_message_id, end_created_at, end_message_id`

// SessionStore persists recording sessions.
type SessionStore interface {
	// InsertActive opens a session unless one is already active for the
	// area; then it returns the running session with inserted=false.
	InsertActive(ctx context.Context, areaID, startedBy string, start message.Cursor) (Session, bool, error)
	// Active returns the running session for the area, or ErrNotRecording.
	Active(ctx context.Context, areaID string) (Session, error)
	// Close stamps the session stopped with its end cursor.
	Close(ctx context.Context, sessionID string, stoppedAt time.Time, end message.Cursor) (Session, error)
}

// DBSessionStore keeps recording sessions in Postgres. The partial unique
// index on active sessions makes concurrent starts race-free.
type DBSessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *DBSessionStore {
	return &DBSessionStore{pool: pool}
}

func (s *DBSessionStore) InsertActive(ctx context.Context, areaID, startedBy string, start message.Cursor) (Session, bool, error) {
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return Session{}, false, fmt.Errorf("invalid area id: %w", err)
	}
	pgStartedBy, err := dbpkg.ParseUUID(startedBy)
	if err != nil {
		return Session{}, false, fmt.Errorf("invalid user id: %w", err)
	}
	startID, err := dbpkg.ParseOptionalUUID(start.MessageID)
	if err != nil {
		return Session{}, false, fmt.Errorf("invalid start cursor: %w", err)
	}
	var startAt pgtype.Timestamptz
	if !start.IsZero() {
		startAt = pgtype.Timestamptz{Time: start.CreatedAt, Valid: true}
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO recording_sessions (area_id, started_by, start_created_at, start_message_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (area_id) WHERE stopped_at IS NULL DO NOTHING
		 RETURNING `+sessionColumns,
		pgAreaID, pgStartedBy, startAt, startID,
	)
	sess, err := scanSession(row)
	if err == nil {
		return sess, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Session{}, false, fmt.Errorf("insert recording: %w", err)
	}

	// Conflict with the running session; hand that one back.
	existing, err := s.Active(ctx, areaID)
	if err != nil {
		return Session{}, false, err
	}
	return existing, false, nil
}

func (s *DBSessionStore) Active(ctx context.Context, areaID string) (Session, error) {
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return Session{}, fmt.Errorf("invalid area id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM recording_sessions
		 WHERE area_id = $1 AND stopped_at IS NULL`,
		pgAreaID,
	)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotRecording
		}
		return Session{}, fmt.Errorf("lookup active recording: %w", err)
	}
	return sess, nil
}

func (s *DBSessionStore) Close(ctx context.Context, sessionID string, stoppedAt time.Time, end message.Cursor) (Session, error) {
	pgID, err := dbpkg.ParseUUID(sessionID)
	if err != nil {
		return Session{}, fmt.Errorf("invalid session id: %w", err)
	}
	endID, err := dbpkg.ParseOptionalUUID(end.MessageID)
	if err != nil {
		return Session{}, fmt.Errorf("invalid end cursor: %w", err)
	}
	var endAt pgtype.Timestamptz
	if !end.IsZero() {
		endAt = pgtype.Timestamptz{Time: end.CreatedAt, Valid: true}
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE recording_sessions
		 SET stopped_at = $2, end_created_at = $3, end_message_id = $4
		 WHERE id = $1 AND stopped_at IS NULL
		 RETURNING `+sessionColumns,
		pgID, pgtype.Timestamptz{Time: stoppedAt, Valid: true}, endAt, endID,
	)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotRecording
		}
		return Session{}, fmt.Errorf("close recording: %w", err)
	}
	return sess, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		id, areaID, startedBy pgtype.UUID
		startedAt, stoppedAt  pgtype.Timestamptz
		startAt, endAt        pgtype.Timestamptz
		startMsgID, endMsgID  pgtype.UUID
	)
	err := row.Scan(&id, &areaID, &startedBy, &startedAt, &stoppedAt,
		&startAt, &startMsgID, &endAt, &endMsgID)
	if err != nil {
		return Session{}, err
	}
	sess := Session{
		ID:        dbpkg.UUIDToString(id),
		AreaID:    dbpkg.UUIDToString(areaID),
		StartedBy: dbpkg.UUIDToString(startedBy),
		StartedAt: startedAt.Time,
	}
	if stoppedAt.Valid {
		t := stoppedAt.Time
		sess.StoppedAt = &t
	}
	if startAt.Valid {
		sess.Start = message.Cursor{CreatedAt: startAt.Time, MessageID: dbpkg.UUIDToString(startMsgID)}
	}
	if endAt.Valid {
		sess.End = message.Cursor{CreatedAt: endAt.Time, MessageID: dbpkg.UUIDToString(endMsgID)}
	}
	return sess, nil
}
