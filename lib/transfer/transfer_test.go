package transfer

import (
	"bytes"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkedUploadChecksumMatch(t *testing.T) {
	dir := t.TempDir()
	u := NewUploader()

	part0 := bytes.Repeat([]byte("a"), 1024)
	part1 := bytes.Repeat([]byte("b"), 1024)
	full := append(append([]byte{}, part0...), part1...)
	sum := md5.Sum(full) //nolint:gosec
	checksum := hex.EncodeToString(sum[:])

	_, err := u.PutChunk(UploadRequest{Filename: "f.bin", Directory: dir, PartNumber: 0}, bytes.NewReader(part0))
	require.NoError(t, err)

	out, err := u.PutChunk(UploadRequest{
		Filename: "f.bin", Directory: dir, PartNumber: 1, IsLast: true, Checksum: checksum,
	}, bytes.NewReader(part1))
	require.NoError(t, err)
	require.False(t, out.Partial)
	require.Equal(t, 2, out.ChunkCount)

	_, err = os.Stat(filepath.Join(dir, "f.bin.part"))
	require.True(t, os.IsNotExist(err), "the .part file must be gone after finalize")

	data, err := os.ReadFile(filepath.Join(dir, "f.bin"))
	require.NoError(t, err)
	require.Equal(t, full, data)
}

func TestChunkedUploadChecksumMismatchIsPartial(t *testing.T) {
	dir := t.TempDir()
	u := NewUploader()

	out, err := u.PutChunk(UploadRequest{
		Filename: "g.bin", Directory: dir, PartNumber: 0, IsLast: true, Checksum: "deadbeef",
	}, bytes.NewReader([]byte("content")))
	require.NoError(t, err)
	require.True(t, out.Partial)
}

func TestUploadRejectsExistingFileWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "h.bin"), []byte("old"), 0o644))

	u := NewUploader()
	_, err := u.PutChunk(UploadRequest{Filename: "h.bin", Directory: dir, PartNumber: 0}, bytes.NewReader(nil))
	require.Error(t, err)
}

func TestUploadOverwriteRemovesExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "h.bin"), []byte("old"), 0o644))

	u := NewUploader()
	out, err := u.PutChunk(UploadRequest{
		Filename: "h.bin", Directory: dir, PartNumber: 0, IsLast: true, Overwrite: true,
	}, bytes.NewReader([]byte("new")))
	require.NoError(t, err)
	require.False(t, out.Partial)

	data, err := os.ReadFile(filepath.Join(dir, "h.bin"))
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
}

func TestChunksAfterIsLastAreRejected(t *testing.T) {
	dir := t.TempDir()
	u := NewUploader()

	_, err := u.PutChunk(UploadRequest{Filename: "i.bin", Directory: dir, PartNumber: 0, IsLast: true}, bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	_, err = u.PutChunk(UploadRequest{Filename: "i.bin", Directory: dir, PartNumber: 1}, bytes.NewReader([]byte("y")))
	require.Error(t, err)
}

func TestUnzipRejectsBadExtension(t *testing.T) {
	dir := t.TempDir()
	u := NewUploader()

	_, err := u.PutChunk(UploadRequest{Filename: "plain.bin", Directory: dir, PartNumber: 0, Unzip: true}, bytes.NewReader(nil))
	require.Error(t, err)
}

func TestArchiveRoundTripDirectory(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "tree", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "tree", "a.txt"), []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "tree", "sub", "b.txt"), []byte("B"), 0o644))

	zipPath := filepath.Join(t.TempDir(), "out.zip")
	require.NoError(t, Archive(filepath.Join(src, "tree"), zipPath))

	destDir := t.TempDir()
	require.NoError(t, Unarchive(zipPath, destDir))

	data, err := os.ReadFile(filepath.Join(destDir, "tree", "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "A", string(data))

	data, err = os.ReadFile(filepath.Join(destDir, "tree", "sub", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "B", string(data))
}

func TestServeFileSetsHeaders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ok":true}`), 0o644))

	w := httptest.NewRecorder()
	require.NoError(t, Serve(DownloadRequest{FilePath: path}, w))

	require.Contains(t, w.Header().Get("Content-Disposition"), "report.json")
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.Equal(t, `{"ok":true}`, w.Body.String())
}

func TestServeRejectsBothParams(t *testing.T) {
	w := httptest.NewRecorder()
	err := Serve(DownloadRequest{FilePath: "a", Directory: "b"}, w)
	require.Error(t, err)
}

func TestIsArchivable(t *testing.T) {
	require.True(t, IsArchivable("x.tar.gz"))
	require.True(t, IsArchivable("x.zip"))
	require.False(t, IsArchivable("x.txt"))
}
