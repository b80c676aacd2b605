package transfer

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gravitational/trace"
)

// DefaultChunkSize matches get_large_file's default of 8,192 bytes.
const DefaultChunkSize = 8192

// DownloadRequest mirrors get_large_file's query-parameter surface.
type DownloadRequest struct {
	FilePath  string // exactly one of FilePath/Directory is set
	Directory string
	ChunkSize int
}

// Serve streams either filepath or an on-the-fly zip of directory to w,
// setting Content-Disposition and the guessed (or "unknown") media type.
func Serve(req DownloadRequest, w http.ResponseWriter) error {
	if (req.FilePath == "") == (req.Directory == "") {
		return trace.BadParameter("exactly one of filepath or directory must be set")
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	path := req.FilePath
	if req.Directory != "" {
		tmp, err := os.CreateTemp("", "ninja-archive-*.zip")
		if err != nil {
			return trace.Wrap(err)
		}
		tmp.Close()
		defer os.Remove(tmp.Name()) //nolint:errcheck

		if err := Archive(req.Directory, tmp.Name()); err != nil {
			return trace.Wrap(err)
		}
		path = tmp.Name()
	}

	f, err := os.Open(path)
	if err != nil {
		return trace.Wrap(err)
	}
	defer f.Close()

	basename := filepath.Base(req.FilePath)
	if req.Directory != "" {
		basename = filepath.Base(req.Directory) + ".zip"
	}

	mediaType := mime.TypeByExtension(filepath.Ext(basename))
	if mediaType == "" {
		mediaType = "unknown"
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", basename))
	w.Header().Set("Content-Type", mediaType)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, chunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return trace.Wrap(err)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return trace.Wrap(readErr)
		}
	}
}
