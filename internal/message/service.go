package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/teamlinkhq/teamlink/internal/db"
)

const messageColumns = `id, area_id, author_id, external_author_id, external_author_name,
	origin, body, attachment_id, reply_to_id, created_at, edited_at, deleted_at`

// DBService persists and reads area timeline messages.
type DBService struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a message store service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *DBService {
	if log == nil {
		log = slog.Default()
	}
	return &DBService{
		pool:   pool,
		logger: log.With(slog.String("service", "message")),
	}
}

// Append writes a single message to the area timeline.
func (s *DBService) Append(ctx context.Context, input AppendInput) (Message, error) {
	pgAreaID, err := dbpkg.ParseUUID(input.AreaID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid area id: %w", err)
	}
	pgAuthorID, err := dbpkg.ParseOptionalUUID(input.AuthorID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid author id: %w", err)
	}
	pgAttachmentID, err := dbpkg.ParseOptionalUUID(input.AttachmentID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid attachment id: %w", err)
	}
	pgReplyToID, err := dbpkg.ParseOptionalUUID(input.ReplyToID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid reply-to id: %w", err)
	}

	var extID, extName pgtype.Text
	if input.ExternalAuthor != nil {
		extID = dbpkg.ToPgText(input.ExternalAuthor.ID)
		extName = dbpkg.ToPgText(input.ExternalAuthor.DisplayName)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (area_id, author_id, external_author_id, external_author_name,
			origin, body, attachment_id, reply_to_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+messageColumns,
		pgAreaID, pgAuthorID, extID, extName,
		string(input.Origin), input.Body, pgAttachmentID, pgReplyToID,
		pgtype.Timestamptz{Time: input.CreatedAt, Valid: true},
	)
	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// Get returns a single message scoped to an area.
func (s *DBService) Get(ctx context.Context, areaID, messageID string) (Message, error) {
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid area id: %w", err)
	}
	pgMsgID, err := dbpkg.ParseUUID(messageID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid message id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE area_id = $1 AND id = $2`,
		pgAreaID, pgMsgID,
	)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// ListLatest returns the newest limit messages, oldest-first.
func (s *DBService) ListLatest(ctx context.Context, areaID string, limit int32) ([]Message, error) {
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return nil, fmt.Errorf("invalid area id: %w", err)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE area_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		pgAreaID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list latest: %w", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

// ListBefore returns up to limit messages older than the before cursor,
// oldest-first.
func (s *DBService) ListBefore(ctx context.Context, areaID string, before time.Time, limit int32) ([]Message, error) {
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return nil, fmt.Errorf("invalid area id: %w", err)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE area_id = $1 AND created_at < $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3`,
		pgAreaID, pgtype.Timestamptz{Time: before, Valid: true}, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list before: %w", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

// ListWindow returns the messages ingested between the two cursors,
// oldest-first: strictly after start, up to and including end. Soft-deleted
// rows are excluded since the window feeds summarization.
func (s *DBService) ListWindow(ctx context.Context, areaID string, start, end Cursor) ([]Message, error) {
	if end.IsZero() {
		return nil, nil
	}
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return nil, fmt.Errorf("invalid area id: %w", err)
	}
	// A zero start cursor means the area was empty when the window opened;
	// the all-zero tuple sorts before every real row.
	startID := pgtype.UUID{Valid: true}
	if start.MessageID != "" {
		if startID, err = dbpkg.ParseUUID(start.MessageID); err != nil {
			return nil, fmt.Errorf("invalid start cursor: %w", err)
		}
	}
	endID, err := dbpkg.ParseUUID(end.MessageID)
	if err != nil {
		return nil, fmt.Errorf("invalid end cursor: %w", err)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE area_id = $1
		   AND deleted_at IS NULL
		   AND (created_at, id) > ($2, $3)
		   AND (created_at, id) <= ($4, $5)
		 ORDER BY created_at, id`,
		pgAreaID,
		pgtype.Timestamptz{Time: start.CreatedAt, Valid: true}, startID,
		pgtype.Timestamptz{Time: end.CreatedAt, Valid: true}, endID,
	)
	if err != nil {
		return nil, fmt.Errorf("list window: %w", err)
	}
	return collectMessages(rows)
}

// LatestCursor returns the timeline position of the newest message in the
// area, or the zero Cursor when the area has no messages.
func (s *DBService) LatestCursor(ctx context.Context, areaID string) (Cursor, error) {
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid area id: %w", err)
	}
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx,
		`SELECT id, created_at FROM messages
		 WHERE area_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		pgAreaID,
	).Scan(&id, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cursor{}, nil
		}
		return Cursor{}, fmt.Errorf("latest cursor: %w", err)
	}
	return Cursor{CreatedAt: createdAt.Time, MessageID: dbpkg.UUIDToString(id)}, nil
}

// MarkEdited replaces the body of the author's own message.
func (s *DBService) MarkEdited(ctx context.Context, areaID, messageID, authorID, body string, editedAt time.Time) (Message, error) {
	existing, err := s.Get(ctx, areaID, messageID)
	if err != nil {
		return Message{}, err
	}
	if existing.Deleted() {
		return Message{}, ErrDeleted
	}
	if existing.AuthorID == "" || existing.AuthorID != authorID {
		return Message{}, ErrNotAuthor
	}
	pgMsgID, err := dbpkg.ParseUUID(messageID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid message id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE messages SET body = $2, edited_at = $3
		 WHERE id = $1
		 RETURNING `+messageColumns,
		pgMsgID, body, pgtype.Timestamptz{Time: editedAt, Valid: true},
	)
	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("mark edited: %w", err)
	}
	return msg, nil
}

// MarkDeleted soft-deletes a message. The row stays in place so ordering
// cursors and reply references survive. Moderators may delete any message;
// everyone else only their own.
func (s *DBService) MarkDeleted(ctx context.Context, areaID, messageID, actorID string, moderator bool, deletedAt time.Time) (Message, error) {
	existing, err := s.Get(ctx, areaID, messageID)
	if err != nil {
		return Message{}, err
	}
	if existing.Deleted() {
		return existing, nil
	}
	if !moderator && (existing.AuthorID == "" || existing.AuthorID != actorID) {
		return Message{}, ErrNotAuthor
	}
	pgMsgID, err := dbpkg.ParseUUID(messageID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid message id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE messages SET body = '', deleted_at = $2
		 WHERE id = $1
		 RETURNING `+messageColumns,
		pgMsgID, pgtype.Timestamptz{Time: deletedAt, Valid: true},
	)
	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("mark deleted: %w", err)
	}
	return msg, nil
}

// --- row mapping ---

func scanMessage(row pgx.Row) (Message, error) {
	var (
		id, areaID, authorID    pgtype.UUID
		extID, extName          pgtype.Text
		origin, body            string
		attachmentID, replyToID pgtype.UUID
		createdAt               pgtype.Timestamptz
		editedAt, deletedAt     pgtype.Timestamptz
	)
	err := row.Scan(&id, &areaID, &authorID, &extID, &extName,
		&origin, &body, &attachmentID, &replyToID, &createdAt, &editedAt, &deletedAt)
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		ID:           dbpkg.UUIDToString(id),
		AreaID:       dbpkg.UUIDToString(areaID),
		AuthorID:     dbpkg.UUIDToString(authorID),
		Origin:       Origin(origin),
		Body:         body,
		AttachmentID: dbpkg.UUIDToString(attachmentID),
		ReplyToID:    dbpkg.UUIDToString(replyToID),
		CreatedAt:    createdAt.Time,
	}
	if extID.Valid || extName.Valid {
		msg.ExternalAuthor = &ExternalAuthor{
			ID:          dbpkg.TextToString(extID),
			DisplayName: dbpkg.TextToString(extName),
		}
	}
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		msg.DeletedAt = &t
	}
	return msg, nil
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()
	messages := make([]Message, 0, 32)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func reverseMessages(m []Message) {
	for i, j := 0, len(m)-1; i < j; i, j = i+1, j-1 {
		m[i], m[j] = m[j], m[i]
	}
}
