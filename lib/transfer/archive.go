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

// Package transfer is the chunked upload/download subsystem: resumable
// multi-part uploads with per-part append, checksum validation, optional
// post-upload unarchive; streaming downloads of files or on-the-fly
// archived directories.
package transfer

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gravitational/trace"
	"github.com/ulikunitz/xz"
)

// archivableSuffixes are the only extensions put_large_file will unzip.
var archivableSuffixes = []string{
	".zip", ".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tbz", ".tar.xz", ".txz",
}

// IsArchivable reports whether filename carries one of the supported
// archive suffixes.
func IsArchivable(filename string) bool {
	lower := strings.ToLower(filename)
	for _, suffix := range archivableSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Archive writes path (file or directory) into a zip at destZip. For a
// directory, every member is written with an arcname relative to the
// directory's parent (so the directory's own name is the zip's top-level
// folder); for a single file, it is written under its basename.
func Archive(path, destZip string) error {
	out, err := os.Create(destZip)
	if err != nil {
		return trace.Wrap(err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	info, err := os.Stat(path)
	if err != nil {
		return trace.Wrap(err)
	}

	if !info.IsDir() {
		return trace.Wrap(addFileToZip(zw, path, filepath.Base(path)))
	}

	parent := filepath.Dir(path)
	return trace.Wrap(filepath.Walk(path, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(parent, file)
		if err != nil {
			return err
		}
		return addFileToZip(zw, file, filepath.ToSlash(rel))
	}))
}

func addFileToZip(zw *zip.Writer, diskPath, arcname string) error {
	f, err := os.Open(diskPath)
	if err != nil {
		return trace.Wrap(err)
	}
	defer f.Close()

	w, err := zw.Create(arcname)
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = io.Copy(w, f)
	return trace.Wrap(err)
}

// Unarchive extracts archivePath into destDir. Supported suffixes match
// IsArchivable exactly.
func Unarchive(archivePath, destDir string) error {
	lower := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return trace.Wrap(unzip(archivePath, destDir))
	case strings.HasSuffix(lower, ".tar"):
		return trace.Wrap(untarWithDecoder(archivePath, destDir, func(r io.Reader) (io.Reader, error) { return r, nil }))
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return trace.Wrap(untarWithDecoder(archivePath, destDir, func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }))
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz"):
		return trace.Wrap(untarWithDecoder(archivePath, destDir, func(r io.Reader) (io.Reader, error) { return bzip2.NewReader(r), nil }))
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return trace.Wrap(untarWithDecoder(archivePath, destDir, func(r io.Reader) (io.Reader, error) { return xz.NewReader(r) }))
	default:
		return trace.BadParameter("unsupported archive suffix for %q", archivePath)
	}
}

func unzip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return trace.Wrap(err)
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return trace.BadParameter("illegal file path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return trace.Wrap(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return trace.Wrap(err)
		}
		if err := extractZipFile(f, target); err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return trace.Wrap(err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return trace.Wrap(err)
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return trace.Wrap(err)
}

func untarWithDecoder(archivePath, destDir string, decode func(io.Reader) (io.Reader, error)) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return trace.Wrap(err)
	}
	defer f.Close()

	decoded, err := decode(f)
	if err != nil {
		return trace.Wrap(err)
	}

	tr := tar.NewReader(decoded)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return trace.Wrap(err)
		}

		target := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return trace.BadParameter("illegal file path in archive: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return trace.Wrap(err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return trace.Wrap(err)
			}
			dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return trace.Wrap(err)
			}
			if _, err := io.Copy(dst, tr); err != nil {
				dst.Close()
				return trace.Wrap(err)
			}
			dst.Close()
		}
	}
}
