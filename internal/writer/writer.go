// Package writer lays out a torrent's content on disk, the external
// collaborator spec.md §6 describes as the driver → writer boundary:
// create(torrent, download_root) returns a handle, write_piece appends
// verified bytes across the declared file set honoring per-file lengths
// and rolling over from one file to the next.
package writer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreswarm/gorent/internal/bterror"
	"github.com/coreswarm/gorent/internal/metainfo"
)

// Writer accepts verified piece bytes in ascending piece order and lays
// them out across one or more files.
type Writer interface {
	// WritePiece appends buf to the file set, rolling over to the next
	// file when the current one reaches its declared length.
	WritePiece(buf []byte) error
	// Close closes all open file handles.
	Close() error
	// Abort closes and removes every output file. Used when a download
	// fails partway through, per spec.md §7's "no partial output files
	// left truncated" guarantee.
	Abort() error
}

type fileSpan struct {
	path   string
	f      *os.File
	length int64
}

type fileWriter struct {
	spans   []fileSpan
	active  int
	written int64
}

// Create creates the output file(s) for t rooted at downloadRoot,
// creating parent directories as needed, and returns a Writer ready to
// receive pieces starting at index 0.
func Create(t *metainfo.Torrent, downloadRoot string) (Writer, error) {
	const op = "writer.Create"

	if len(t.Files) == 0 {
		path := filepath.Join(downloadRoot, t.Name)
		span, err := createSpan(op, path, t.Length)
		if err != nil {
			return nil, err
		}
		return &fileWriter{spans: []fileSpan{span}}, nil
	}

	root := filepath.Join(downloadRoot, t.Name)
	spans := make([]fileSpan, 0, len(t.Files))
	for _, f := range t.Files {
		parts := append([]string{root}, f.Path...)
		path := filepath.Join(parts...)
		span, err := createSpan(op, path, f.Length)
		if err != nil {
			for _, s := range spans {
				s.f.Close()
			}
			return nil, err
		}
		spans = append(spans, span)
	}
	return &fileWriter{spans: spans}, nil
}

func createSpan(op, path string, length int64) (fileSpan, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fileSpan{}, bterror.New(op, bterror.IoError, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fileSpan{}, bterror.New(op, bterror.IoError, err)
	}
	return fileSpan{path: path, f: f, length: length}, nil
}

func (w *fileWriter) WritePiece(buf []byte) error {
	const op = "writer.fileWriter.WritePiece"

	for len(buf) > 0 {
		if w.active >= len(w.spans) {
			return bterror.New(op, bterror.IoError, fmt.Errorf("write of %d bytes extends past the declared file set", len(buf)))
		}
		span := w.spans[w.active]
		capacity := span.length - w.written
		if capacity <= 0 {
			w.active++
			w.written = 0
			continue
		}

		n := int64(len(buf))
		if n > capacity {
			n = capacity
		}
		if _, err := span.f.Write(buf[:n]); err != nil {
			return bterror.New(op, bterror.IoError, err)
		}
		w.written += n
		buf = buf[n:]

		if w.written >= span.length {
			w.active++
			w.written = 0
		}
	}
	return nil
}

func (w *fileWriter) Close() error {
	var firstErr error
	for _, s := range w.spans {
		if err := s.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *fileWriter) Abort() error {
	var firstErr error
	for _, s := range w.spans {
		s.f.Close()
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
