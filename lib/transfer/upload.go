package transfer

import (
	"crypto/md5" //nolint:gosec // checksum is a content-integrity check, not a security boundary
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/gravitational/trace"
)

// UploadRequest mirrors the query-parameter surface of put_large_file.
type UploadRequest struct {
	Filename         string
	Directory        string
	PartNumber       int
	IsLast           bool
	Checksum         string // hex md5, optional
	Overwrite        bool
	Unzip            bool
	DeleteAfterUnzip bool
}

// UploadOutcome is what the HTTP layer needs to build its response.
type UploadOutcome struct {
	ChunkCount  int
	Accepted    bool // true => 202, chunk count only
	Partial     bool // true => 206, checksum/unzip failure
	Message     string
}

// Uploader tracks sealed ".part" files (part_number==0 entry sequence
// already ran, is_last already seen) so chunks submitted after is_last are
// rejected rather than silently appended to a fresh upload, per the Open
// Question resolved in SPEC_FULL.md. A new part_number=0 chunk for the
// same file starts a fresh upload.
type Uploader struct {
	mu     sync.Mutex
	sealed map[string]struct{}
	chunks map[string]int
}

// NewUploader returns an empty Uploader.
func NewUploader() *Uploader {
	return &Uploader{
		sealed: make(map[string]struct{}),
		chunks: make(map[string]int),
	}
}

func partPath(dir, filename string) string {
	return filepath.Join(dir, filename+".part")
}

// PutChunk implements one call of put_large_file: entry sequence on part 0,
// append, and exit sequence on is_last.
func (u *Uploader) PutChunk(req UploadRequest, body io.Reader) (*UploadOutcome, error) {
	key := filepath.Join(req.Directory, req.Filename)

	u.mu.Lock()
	_, sealed := u.sealed[key]
	u.mu.Unlock()
	if sealed && req.PartNumber != 0 {
		return nil, trace.BadParameter("upload for %q was already finalized; start a new upload", req.Filename)
	}

	if req.PartNumber == 0 {
		if err := u.entrySequence(req); err != nil {
			return nil, trace.Wrap(err)
		}
		// A part 0 starts a new upload: drop any earlier state for this file.
		u.mu.Lock()
		delete(u.sealed, key)
		u.chunks[key] = 0
		u.mu.Unlock()
	}

	finalPath := filepath.Join(req.Directory, req.Filename)
	partFile := partPath(req.Directory, req.Filename)

	lock := flock.New(partFile + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, trace.Wrap(err)
	}
	defer lock.Unlock() //nolint:errcheck

	f, err := os.OpenFile(partFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return nil, trace.Wrap(err)
	}
	f.Close()

	u.mu.Lock()
	u.chunks[key]++
	count := u.chunks[key]
	u.mu.Unlock()

	if !req.IsLast {
		return &UploadOutcome{ChunkCount: count, Accepted: true, Message: "chunk accepted"}, nil
	}

	u.mu.Lock()
	u.sealed[key] = struct{}{}
	u.mu.Unlock()

	return u.exitSequence(req, partFile, finalPath, count)
}

func (u *Uploader) entrySequence(req UploadRequest) error {
	finalPath := filepath.Join(req.Directory, req.Filename)
	partFile := partPath(req.Directory, req.Filename)

	if req.Unzip && !IsArchivable(req.Filename) {
		return trace.BadParameter("unzip requested but %q has an unsupported archive extension", req.Filename)
	}

	if req.Overwrite {
		os.Remove(finalPath) //nolint:errcheck
		os.Remove(partFile)  //nolint:errcheck
	} else if _, err := os.Stat(finalPath); err == nil {
		return trace.BadParameter("%q already exists; set overwrite=true", req.Filename)
	}

	return trace.Wrap(os.MkdirAll(req.Directory, 0o755))
}

func (u *Uploader) exitSequence(req UploadRequest, partFile, finalPath string, count int) (*UploadOutcome, error) {
	if _, err := os.Stat(partFile); err != nil {
		return nil, trace.Errorf("expected staged upload %q is missing: %w", partFile, err)
	}
	if err := os.Rename(partFile, finalPath); err != nil {
		return nil, trace.Wrap(err)
	}

	if req.Checksum == "" {
		return &UploadOutcome{ChunkCount: count, Message: "upload complete"}, nil
	}

	sum, err := md5File(finalPath)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if sum != req.Checksum {
		return &UploadOutcome{ChunkCount: count, Partial: true, Message: "checksum mismatch"}, nil
	}

	if !req.Unzip {
		return &UploadOutcome{ChunkCount: count, Message: "upload complete, checksum verified"}, nil
	}

	if err := Unarchive(finalPath, req.Directory); err != nil {
		return &UploadOutcome{ChunkCount: count, Partial: true, Message: "unzip failed: " + err.Error()}, nil
	}
	if req.DeleteAfterUnzip {
		os.Remove(finalPath) //nolint:errcheck
	}
	return &UploadOutcome{ChunkCount: count, Message: "upload complete, checksum verified, archive extracted"}, nil
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", trace.Wrap(err)
	}
	defer f.Close()

	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return "", trace.Wrap(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
