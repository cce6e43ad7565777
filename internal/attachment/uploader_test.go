package attachment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

type memRecorder struct {
	nextID int
	rows   map[string]Attachment
}

func newMemRecorder() *memRecorder {
	return &memRecorder{rows: make(map[string]Attachment)}
}

func (r *memRecorder) Insert(ctx context.Context, att Attachment) (Attachment, error) {
	r.nextID++
	att.ID = fmt.Sprintf("att-%03d", r.nextID)
	att.CreatedAt = time.Now()
	r.rows[att.ID] = att
	return att, nil
}

func (r *memRecorder) Get(ctx context.Context, areaID, attachmentID string) (Attachment, error) {
	att, ok := r.rows[attachmentID]
	if !ok || att.AreaID != areaID {
		return Attachment{}, ErrNotFound
	}
	return att, nil
}

func newTestUploader(t *testing.T, maxBytes int64) (*Uploader, *FSStorage, *memRecorder) {
	t.Helper()
	storage, err := NewFSStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStorage: %v", err)
	}
	rec := newMemRecorder()
	return NewUploader(nil, storage, rec, maxBytes), storage, rec
}

func TestUploadLifecycle(t *testing.T) {
	t.Parallel()
	u, storage, _ := newTestUploader(t, 1024)
	payload := "attachment payload bytes"

	id, err := u.Begin("area-1", "alice", "notes.txt", "text/plain", int64(len(payload)))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	half := len(payload) / 2
	p, err := u.Write(id, "alice", strings.NewReader(payload[:half]))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if p.ReceivedBytes != int64(half) || p.Percent != 50 {
		t.Fatalf("progress %+v", p)
	}

	if _, err := u.Write(id, "alice", strings.NewReader(payload[half:])); err != nil {
		t.Fatalf("Write: %v", err)
	}

	att, err := u.Commit(context.Background(), id, "alice")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if att.SizeBytes != int64(len(payload)) || att.Filename != "notes.txt" {
		t.Fatalf("attachment %+v", att)
	}
	sum := sha256.Sum256([]byte(payload))
	if att.ContentHash != hex.EncodeToString(sum[:]) {
		t.Fatalf("hash = %s", att.ContentHash)
	}

	rc, err := storage.Open(att.StorageKey)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(stored) != payload {
		t.Fatalf("stored %q", stored)
	}

	// The handle is gone once committed.
	if _, err := u.Progress(id, "alice"); !errors.Is(err, ErrUploadNotFound) {
		t.Fatalf("err = %v, want ErrUploadNotFound", err)
	}
}

func TestBeginRejectsOversizedDeclaration(t *testing.T) {
	t.Parallel()
	u, _, _ := newTestUploader(t, 100)

	if _, err := u.Begin("area-1", "alice", "big.bin", "application/octet-stream", 101); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	if _, err := u.Begin("area-1", "alice", "none.bin", "application/octet-stream", 0); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestWriteAbortsOnDeclaredSizeOverrun(t *testing.T) {
	t.Parallel()
	u, _, _ := newTestUploader(t, 1024)

	id, err := u.Begin("area-1", "alice", "f.txt", "text/plain", 4)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := u.Write(id, "alice", strings.NewReader("too many bytes")); !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("err = %v, want ErrSizeExceeded", err)
	}
	// Overrun destroys the session.
	if _, err := u.Progress(id, "alice"); !errors.Is(err, ErrUploadNotFound) {
		t.Fatalf("err = %v, want ErrUploadNotFound", err)
	}
}

func TestCommitRejectsIncompleteUpload(t *testing.T) {
	t.Parallel()
	u, _, _ := newTestUploader(t, 1024)

	id, err := u.Begin("area-1", "alice", "f.txt", "text/plain", 10)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := u.Write(id, "alice", strings.NewReader("half")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := u.Commit(context.Background(), id, "alice"); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("err = %v, want ErrSizeMismatch", err)
	}
	// An incomplete commit keeps the session alive for more chunks.
	if _, err := u.Write(id, "alice", strings.NewReader("-done")); err != nil {
		t.Fatalf("Write after failed commit: %v", err)
	}
	if _, err := u.Commit(context.Background(), id, "alice"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestUploadOwnership(t *testing.T) {
	t.Parallel()
	u, _, _ := newTestUploader(t, 1024)

	id, err := u.Begin("area-1", "alice", "f.txt", "text/plain", 4)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := u.Write(id, "mallory", strings.NewReader("data")); !errors.Is(err, ErrNotUploader) {
		t.Fatalf("err = %v, want ErrNotUploader", err)
	}
	if err := u.Abort(id, "mallory"); !errors.Is(err, ErrNotUploader) {
		t.Fatalf("err = %v, want ErrNotUploader", err)
	}
	if err := u.Abort(id, "alice"); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if err := u.Abort(id, "alice"); !errors.Is(err, ErrUploadNotFound) {
		t.Fatalf("err = %v, want ErrUploadNotFound", err)
	}
}

func TestSweepStale(t *testing.T) {
	t.Parallel()
	u, _, _ := newTestUploader(t, 1024)

	base := time.Now()
	u.now = func() time.Time { return base }
	if _, err := u.Begin("area-1", "alice", "old.txt", "text/plain", 4); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	u.now = func() time.Time { return base.Add(2 * time.Hour) }
	fresh, err := u.Begin("area-1", "alice", "new.txt", "text/plain", 4)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if swept := u.SweepStale(time.Hour); swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}
	if _, err := u.Progress(fresh, "alice"); err != nil {
		t.Fatalf("fresh session swept: %v", err)
	}
}
