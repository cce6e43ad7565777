package attachment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/teamlinkhq/teamlink/internal/db"
)

// Recorder persists committed attachment metadata.
type Recorder interface {
	Insert(ctx context.Context, att Attachment) (Attachment, error)
	Get(ctx context.Context, areaID, attachmentID string) (Attachment, error)
}

// DBRecorder stores attachment rows in Postgres.
type DBRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewDBRecorder(log *slog.Logger, pool *pgxpool.Pool) *DBRecorder {
	if log == nil {
		log = slog.Default()
	}
	return &DBRecorder{
		pool:   pool,
		logger: log.With(slog.String("service", "attachment")),
	}
}

func (r *DBRecorder) Insert(ctx context.Context, att Attachment) (Attachment, error) {
	pgAreaID, err := dbpkg.ParseUUID(att.AreaID)
	if err != nil {
		return Attachment{}, fmt.Errorf("invalid area id: %w", err)
	}
	pgUploaderID, err := dbpkg.ParseUUID(att.UploaderID)
	if err != nil {
		return Attachment{}, fmt.Errorf("invalid uploader id: %w", err)
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO attachments (area_id, uploader_id, size_bytes, content_type, content_hash, storage_key, filename)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		pgAreaID, pgUploaderID, att.SizeBytes, att.ContentType,
		att.ContentHash, att.StorageKey, dbpkg.ToPgText(att.Filename),
	)
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &createdAt); err != nil {
		return Attachment{}, fmt.Errorf("insert attachment: %w", err)
	}
	att.ID = dbpkg.UUIDToString(id)
	att.CreatedAt = createdAt.Time
	return att, nil
}

func (r *DBRecorder) Get(ctx context.Context, areaID, attachmentID string) (Attachment, error) {
	pgAreaID, err := dbpkg.ParseUUID(areaID)
	if err != nil {
		return Attachment{}, fmt.Errorf("invalid area id: %w", err)
	}
	pgID, err := dbpkg.ParseUUID(attachmentID)
	if err != nil {
		return Attachment{}, fmt.Errorf("invalid attachment id: %w", err)
	}
	row := r.pool.QueryRow(ctx,
		`SELECT id, area_id, uploader_id, size_bytes, content_type, content_hash, storage_key, filename, created_at
		 FROM attachments WHERE area_id = $1 AND id = $2`,
		pgAreaID, pgID,
	)
	var (
		id, dbAreaID, uploaderID pgtype.UUID
		sizeBytes                int64
		contentType, hash, key   string
		filename                 pgtype.Text
		createdAt                pgtype.Timestamptz
	)
	err = row.Scan(&id, &dbAreaID, &uploaderID, &sizeBytes,
		&contentType, &hash, &key, &filename, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Attachment{}, ErrNotFound
		}
		return Attachment{}, fmt.Errorf("get attachment: %w", err)
	}
	return Attachment{
		ID:          dbpkg.UUIDToString(id),
		AreaID:      dbpkg.UUIDToString(dbAreaID),
		UploaderID:  dbpkg.UUIDToString(uploaderID),
		SizeBytes:   sizeBytes,
		ContentType: contentType,
		ContentHash: hash,
		StorageKey:  key,
		Filename:    dbpkg.TextToString(filename),
		CreatedAt:   createdAt.Time,
	}, nil
}
