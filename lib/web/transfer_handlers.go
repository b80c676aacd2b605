/*
Copyright 2024 PyNinja Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package web

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"

	"github.com/thevickypedia/pyninja-go/lib/transfer"
)

// listFilesRequest is the JSON body of /list-files: the directory to
// enumerate.
type listFilesRequest struct {
	Directory string `json:"directory"`
}

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	var req listFilesRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Directory == "" {
		return nil, trace.BadParameter("directory is required")
	}
	entries, err := os.ReadDir(req.Directory)
	if err != nil {
		return nil, trace.NotFound("%v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

type getFileRequest struct {
	Filepath string `json:"filepath"`
}

func (h *Handler) getFile(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	var req getFileRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Filepath == "" {
		return nil, trace.BadParameter("filepath is required")
	}
	data, err := os.ReadFile(req.Filepath)
	if err != nil {
		return nil, trace.NotFound("%v", err)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data) //nolint:errcheck
	return nil, nil
}

type deleteContentRequest struct {
	Filepath string `json:"filepath"`
}

func (h *Handler) deleteContent(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	var req deleteContentRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Filepath == "" {
		return nil, trace.BadParameter("filepath is required")
	}
	if err := os.RemoveAll(req.Filepath); err != nil {
		return nil, trace.Wrap(err)
	}
	return ok(req.Filepath + " deleted"), nil
}

// putFile is the small, single-shot upload path: the entire body is the
// file content, filename/directory come from the query string.
func (h *Handler) putFile(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	q := r.URL.Query()
	filename := q.Get("filename")
	directory := q.Get("directory")
	if filename == "" {
		return nil, trace.BadParameter("filename is required")
	}
	if directory == "" {
		directory = "."
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, trace.Wrap(err)
	}
	path := filepath.Join(directory, filename)
	if q.Get("overwrite") != "true" {
		if _, err := os.Stat(path); err == nil {
			return nil, trace.BadParameter("%q already exists; set overwrite=true", filename)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer f.Close() //nolint:errcheck
	n, err := io.Copy(f, r.Body)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	h.recorder.UploadBytesTotal.Add(float64(n))
	return ok(filename + " uploaded"), nil
}

// putLargeFile implements the chunked upload protocol described in
// spec.md §4.7: query-parameter-driven part metadata, raw body bytes.
func (h *Handler) putLargeFile(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	q := r.URL.Query()
	filename := q.Get("filename")
	directory := q.Get("directory")
	if filename == "" {
		return nil, trace.BadParameter("filename is required")
	}
	if directory == "" {
		directory = "."
	}
	partNumber, _ := strconv.Atoi(q.Get("part_number"))

	req := transfer.UploadRequest{
		Filename:         filename,
		Directory:        directory,
		PartNumber:       partNumber,
		IsLast:           q.Get("is_last") == "true",
		Checksum:         q.Get("checksum"),
		Overwrite:        q.Get("overwrite") == "true",
		Unzip:            q.Get("unzip") == "true",
		DeleteAfterUnzip: q.Get("delete_after_unzip") == "true",
	}

	counted := &countingReader{r: r.Body}
	outcome, err := h.uploader.PutChunk(req, counted)
	h.recorder.UploadBytesTotal.Add(float64(counted.n))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	switch {
	case outcome.Partial:
		w.WriteHeader(http.StatusPartialContent)
	case outcome.Accepted:
		w.WriteHeader(http.StatusAccepted)
	}
	return outcome, nil
}

// countingReader tallies bytes read so the upload path can feed the byte
// counter without the uploader needing to know about metrics.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// getLargeFile implements get_large_file: a plain file or an on-the-fly
// zip of a directory, streamed in ChunkSize pieces.
func (h *Handler) getLargeFile(w http.ResponseWriter, r *http.Request, p httprouter.Params) (interface{}, error) {
	q := r.URL.Query()
	chunkSize, _ := strconv.Atoi(q.Get("chunk_size"))
	req := transfer.DownloadRequest{
		FilePath:  q.Get("filepath"),
		Directory: q.Get("directory"),
		ChunkSize: chunkSize,
	}
	if err := transfer.Serve(req, w); err != nil {
		return nil, trace.Wrap(err)
	}
	return nil, nil
}
