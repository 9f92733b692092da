// Package storage handles the uploads directory: receiving inbound files
// in bounded chunks, collision-free destination naming, listing stream
// candidates and sweeping stale uploads.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"loopcast/internal/models"
)

// ChunkSize is the fixed copy chunk; memory use of a receive is bounded
// by one chunk regardless of file size.
const ChunkSize = 1 << 20 // 1 MiB

// videoExtensions are the upload formats the encoder command is built for.
var videoExtensions = map[string]bool{".mp4": true, ".flv": true}

// Store manages one uploads directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the uploads directory path.
func (s *Store) Dir() string {
	return s.dir
}

// ValidName reports whether name is a plain file name with a supported
// video extension. Path separators are rejected to prevent traversal.
func ValidName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid file name %q", name)
	}
	if !videoExtensions[strings.ToLower(filepath.Ext(name))] {
		return models.ErrUnsupportedFormat
	}
	return nil
}

// Allocate opens a destination file for name, never reusing an existing
// path. On collision the name gets a time-based suffix, then a counter;
// creation uses O_EXCL so two concurrent uploads of the same name always
// land on distinct files.
func (s *Store) Allocate(name string) (*os.File, string, error) {
	if err := ValidName(name); err != nil {
		return nil, "", err
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for attempt := 0; ; attempt++ {
		path := filepath.Join(s.dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("%w: %v", models.ErrIO, err)
		}

		stamp := time.Now().Unix()
		if attempt == 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, stamp, ext)
		} else {
			candidate = fmt.Sprintf("%s_%d_%d%s", stem, stamp, attempt, ext)
		}
	}
}

// Receive copies src into dst in fixed-size chunks, invoking progress
// after each chunk with (bytes_written, total). total is passed through
// as given; use models.TotalUnknown when the source size is not known.
// On a write failure the partial file stays on disk and the returned
// error wraps models.ErrIO.
func Receive(dst io.Writer, src io.Reader, total int64, progress func(written, total int64)) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return written, fmt.Errorf("%w: %v", models.ErrIO, writeErr)
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			// Wrap without flattening so callers can still match the
			// source error, e.g. http.MaxBytesError from a capped body.
			return written, fmt.Errorf("%w: %w", models.ErrIO, readErr)
		}
	}
}

// Save receives src into a freshly allocated destination and returns the
// completed upload target. The partial file is left in place on failure;
// cleanup is the caller's call.
func (s *Store) Save(name string, src io.Reader, total int64, progress func(written, total int64)) (*models.UploadTarget, error) {
	f, path, err := s.Allocate(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	written, err := Receive(f, src, total, progress)
	if err != nil {
		return nil, err
	}

	return &models.UploadTarget{
		OriginalName:    name,
		DestinationPath: path,
		TotalBytes:      total,
		BytesWritten:    written,
	}, nil
}

// ListVideos returns the stream candidates in the uploads directory and
// any extra directories (typically the working directory), sorted.
func (s *Store) ListVideos(extraDirs ...string) []string {
	var out []string
	for _, dir := range append([]string{s.dir}, extraDirs...) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				continue
			}
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(out)
	return out
}

// Resolve checks that path names an existing video inside the uploads
// directory or one of the extra directories and returns it cleaned.
func (s *Store) Resolve(path string, extraDirs ...string) (string, error) {
	clean := filepath.Clean(path)

	for _, candidate := range s.ListVideos(extraDirs...) {
		if candidate == clean {
			return clean, nil
		}
	}
	return "", models.ErrVideoNotFound
}

// SweepStale removes uploads whose modification time is older than the
// retention window. Returns the number of files removed.
func (s *Store) SweepStale(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("reading upload dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	var errs []error

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}
