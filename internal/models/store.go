package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const tmpSuffix = ".download"

// ProgressFunc receives cumulative bytes written and the declared total.
// total is -1 while the server did not declare a length.
type ProgressFunc func(done, total int64)

// Store tracks model artifacts under a single directory. At most one size
// variant is expected to be resident once a switch has settled; Prune
// enforces that after a successful download.
type Store struct {
	dir     string
	baseURL string
	client  *http.Client

	// mu serializes filesystem mutations (rename, delete, prune).
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithBaseURL overrides the artifact host. The file name is appended.
func WithBaseURL(u string) Option {
	return func(s *Store) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// NewStore creates a Store rooted at dir. The directory is created lazily.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:     dir,
		baseURL: defaultBaseURL,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the artifact directory.
func (s *Store) Dir() string { return s.dir }

// Path returns where the artifact for size lives (present or not).
func (s *Store) Path(size Size) string {
	m, ok := Lookup(size)
	if !ok {
		return ""
	}
	return filepath.Join(s.dir, m.FileName)
}

// IsPresent reports whether a usable artifact exists for size. A zero-byte
// file or a leftover partial download does not count.
func (s *Store) IsPresent(size Size) bool {
	path := s.Path(size)
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Resident lists the sizes whose artifacts are present, smallest first.
func (s *Store) Resident() []Size {
	var out []Size
	for _, m := range catalog {
		if s.IsPresent(m.Size) {
			out = append(out, m.Size)
		}
	}
	return out
}

// Download fetches the artifact for size into the store. The body is
// written to a temporary file and renamed into place only after the full
// declared length arrived, so a failed or interrupted download never
// leaves a file that IsPresent accepts. onProgress may be nil; when set,
// its last call reports done == total.
func (s *Store) Download(ctx context.Context, size Size, onProgress ProgressFunc) (string, error) {
	m, ok := Lookup(size)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownSize, int(size))
	}
	destPath := s.Path(size)

	if info, err := os.Stat(destPath); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		report(onProgress, info.Size(), info.Size())
		return destPath, nil
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", diskErr(size, fmt.Errorf("creating models dir: %w", err))
	}

	url := s.baseURL + "/" + m.FileName
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", networkErr(size, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("User-Agent", "whisperclip")

	slog.Info("Downloading model", "model", m.ID, "url", url)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", networkErr(size, fmt.Errorf("requesting %s: %w", m.FileName, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", networkErr(size, fmt.Errorf("unexpected HTTP status: %s", resp.Status))
	}

	tmpPath := destPath + tmpSuffix
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", diskErr(size, fmt.Errorf("creating temp file: %w", err))
	}

	total := resp.ContentLength
	if total <= 0 {
		total = -1
	}
	pw := &progressWriter{writer: f, total: total, onProgress: onProgress}
	report(onProgress, 0, total)

	written, copyErr := io.Copy(pw, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		if pw.writeErr != nil {
			return "", diskErr(size, fmt.Errorf("writing model file: %w", pw.writeErr))
		}
		return "", networkErr(size, fmt.Errorf("reading response body: %w", copyErr))
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", diskErr(size, fmt.Errorf("closing temp file: %w", closeErr))
	}
	if total > 0 && written != total {
		_ = os.Remove(tmpPath)
		return "", networkErr(size, fmt.Errorf("short body: got %d of %d bytes", written, total))
	}
	if written == 0 {
		_ = os.Remove(tmpPath)
		return "", networkErr(size, errors.New("empty response body"))
	}

	s.mu.Lock()
	err = os.Rename(tmpPath, destPath)
	s.mu.Unlock()
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", diskErr(size, fmt.Errorf("moving model file: %w", err))
	}

	if total < 0 {
		report(onProgress, written, written)
	}

	slog.Info("Model downloaded", "model", m.ID, "bytes", written, "path", destPath)
	return destPath, nil
}

// Delete removes the artifact for size. Deleting an absent artifact succeeds.
func (s *Store) Delete(size Size) error {
	path := s.Path(size)
	if path == "" {
		return fmt.Errorf("%w: %d", ErrUnknownSize, int(size))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("models: delete %s: %w", size, err)
	}
	if err := os.Remove(path + tmpSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("models: delete partial %s: %w", size, err)
	}
	return nil
}

// Prune deletes every catalog artifact except keep. Pass 0 to delete all.
func (s *Store) Prune(keep Size) error {
	var errs []error
	for _, m := range catalog {
		if m.Size == keep {
			continue
		}
		if err := s.Delete(m.Size); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func report(fn ProgressFunc, done, total int64) {
	if fn != nil {
		fn(done, total)
	}
}

// progressWriter wraps the artifact file and forwards cumulative progress.
type progressWriter struct {
	writer     io.Writer
	total      int64
	written    int64
	onProgress ProgressFunc
	writeErr   error
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if err != nil {
		pw.writeErr = err
		return n, err
	}
	report(pw.onProgress, pw.written, pw.total)
	return n, nil
}
