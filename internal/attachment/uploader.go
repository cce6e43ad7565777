package attachment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

type uploadSession struct {
	id          string
	areaID      string
	uploaderID  string
	filename    string
	contentType string
	declared    int64
	received    int64
	spool       *os.File
	hasher      hash.Hash
	updatedAt   time.Time
}

// Uploader tracks in-flight attachment uploads. Payload bytes are spooled
// to a temp file and hashed as they stream in; nothing touches storage or
// the database until commit.
type Uploader struct {
	maxBytes int64
	storage  Storage
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*uploadSession
}

func NewUploader(log *slog.Logger, storage Storage, recorder Recorder, maxBytes int64) *Uploader {
	if log == nil {
		log = slog.Default()
	}
	return &Uploader{
		maxBytes: maxBytes,
		storage:  storage,
		recorder: recorder,
		logger:   log.With(slog.String("service", "attachment")),
		now:      time.Now,
		sessions: make(map[string]*uploadSession),
	}
}

// Begin opens an upload session. Declared sizes over the limit are refused
// up front so clients do not stream bytes that can never commit.
func (u *Uploader) Begin(areaID, uploaderID, filename, contentType string, declaredSize int64) (string, error) {
	if declaredSize <= 0 {
		return "", fmt.Errorf("%w: declared size must be positive", ErrTooLarge)
	}
	if declaredSize > u.maxBytes {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, declaredSize, u.maxBytes)
	}
	spool, err := os.CreateTemp("", "teamlink-upload-*")
	if err != nil {
		return "", fmt.Errorf("create spool: %w", err)
	}
	sess := &uploadSession{
		id:          uuid.NewString(),
		areaID:      areaID,
		uploaderID:  uploaderID,
		filename:    filename,
		contentType: contentType,
		declared:    declaredSize,
		spool:       spool,
		hasher:      sha256.New(),
		updatedAt:   u.now(),
	}
	u.mu.Lock()
	u.sessions[sess.id] = sess
	u.mu.Unlock()

	u.logger.Debug("upload started",
		"upload_id", sess.id, "area_id", areaID, "declared_bytes", declaredSize)
	return sess.id, nil
}

// Write appends a chunk to the session's spool. Overrunning the declared
// size aborts the session; the client must begin again.
func (u *Uploader) Write(uploadID, uploaderID string, chunk io.Reader) (Progress, error) {
	sess, err := u.take(uploadID, uploaderID)
	if err != nil {
		return Progress{}, err
	}
	defer u.release(sess)

	// Reading one byte past the declared size detects overruns without
	// buffering an unbounded chunk.
	limited := io.LimitReader(chunk, sess.declared-sess.received+1)
	n, err := io.Copy(io.MultiWriter(sess.spool, sess.hasher), limited)
	sess.received += n
	sess.updatedAt = u.now()
	if err != nil {
		u.discard(sess)
		return Progress{}, fmt.Errorf("spool chunk: %w", err)
	}
	if sess.received > sess.declared {
		u.discard(sess)
		return Progress{}, ErrSizeExceeded
	}
	return u.progressOf(sess), nil
}

// Progress reports received versus declared bytes for an open session.
func (u *Uploader) Progress(uploadID, uploaderID string) (Progress, error) {
	sess, err := u.take(uploadID, uploaderID)
	if err != nil {
		return Progress{}, err
	}
	defer u.release(sess)
	return u.progressOf(sess), nil
}

// Commit finalizes the upload: the byte count must match the declaration,
// then the payload moves to storage and the metadata row is written. The
// attachment id it returns is what messages reference.
func (u *Uploader) Commit(ctx context.Context, uploadID, uploaderID string) (Attachment, error) {
	sess, err := u.take(uploadID, uploaderID)
	if err != nil {
		return Attachment{}, err
	}

	if sess.received != sess.declared {
		u.release(sess)
		return Attachment{}, fmt.Errorf("%w: %d of %d bytes",
			ErrSizeMismatch, sess.received, sess.declared)
	}

	contentHash := hex.EncodeToString(sess.hasher.Sum(nil))
	key := fmt.Sprintf("%s/%s/%s", sess.areaID, contentHash[:4], contentHash)

	if _, err := sess.spool.Seek(0, io.SeekStart); err != nil {
		u.release(sess)
		return Attachment{}, fmt.Errorf("rewind spool: %w", err)
	}
	if err := u.storage.Save(key, sess.spool); err != nil {
		u.release(sess)
		return Attachment{}, fmt.Errorf("store payload: %w", err)
	}

	att, err := u.recorder.Insert(ctx, Attachment{
		AreaID:      sess.areaID,
		UploaderID:  sess.uploaderID,
		SizeBytes:   sess.received,
		ContentType: sess.contentType,
		ContentHash: contentHash,
		StorageKey:  key,
		Filename:    sess.filename,
	})
	if err != nil {
		u.storage.Remove(key)
		u.release(sess)
		return Attachment{}, err
	}

	u.discard(sess)
	u.logger.Info("upload committed",
		"upload_id", sess.id, "attachment_id", att.ID, "bytes", att.SizeBytes)
	return att, nil
}

// Abort drops an in-flight upload and its spooled bytes.
func (u *Uploader) Abort(uploadID, uploaderID string) error {
	sess, err := u.take(uploadID, uploaderID)
	if err != nil {
		return err
	}
	u.discard(sess)
	u.logger.Debug("upload aborted", "upload_id", uploadID)
	return nil
}

// SweepStale discards sessions with no activity since the cutoff and
// returns how many were dropped.
func (u *Uploader) SweepStale(olderThan time.Duration) int {
	cutoff := u.now().Add(-olderThan)
	u.mu.Lock()
	var stale []*uploadSession
	for _, sess := range u.sessions {
		if sess.updatedAt.Before(cutoff) {
			stale = append(stale, sess)
			delete(u.sessions, sess.id)
		}
	}
	u.mu.Unlock()

	for _, sess := range stale {
		sess.spool.Close()
		os.Remove(sess.spool.Name())
		u.logger.Info("swept stale upload", "upload_id", sess.id)
	}
	return len(stale)
}

// take removes the session from the table so concurrent calls cannot
// interleave on the same spool. release puts it back; discard destroys it.
func (u *Uploader) take(uploadID, uploaderID string) (*uploadSession, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	sess, ok := u.sessions[uploadID]
	if !ok {
		return nil, ErrUploadNotFound
	}
	if sess.uploaderID != uploaderID {
		return nil, ErrNotUploader
	}
	delete(u.sessions, uploadID)
	return sess, nil
}

func (u *Uploader) release(sess *uploadSession) {
	u.mu.Lock()
	u.sessions[sess.id] = sess
	u.mu.Unlock()
}

func (u *Uploader) discard(sess *uploadSession) {
	sess.spool.Close()
	os.Remove(sess.spool.Name())
}

func (u *Uploader) progressOf(sess *uploadSession) Progress {
	return Progress{
		UploadID:      sess.id,
		ReceivedBytes: sess.received,
		DeclaredBytes: sess.declared,
		Percent:       int(sess.received * 100 / sess.declared),
	}
}
