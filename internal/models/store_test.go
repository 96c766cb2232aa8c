package models

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func modelServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ".bin") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  Size
	}{
		{"local-tiny", Tiny},
		{"local-base", Base},
		{"small", Small},
		{"LOCAL-MEDIUM", Medium},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if err != nil {
				t.Fatalf("ParseSize(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	if _, err := ParseSize("local-huge"); !errors.Is(err, ErrUnknownSize) {
		t.Errorf("ParseSize(local-huge) error = %v, want ErrUnknownSize", err)
	}
}

func TestSizeTextRoundTrip(t *testing.T) {
	text, err := Small.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}
	if string(text) != "local-small" {
		t.Errorf("MarshalText() = %q, want local-small", text)
	}
	var s Size
	if err := s.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if s != Small {
		t.Errorf("UnmarshalText() = %v, want %v", s, Small)
	}
	if _, err := Size(0).MarshalText(); err == nil {
		t.Error("MarshalText() on zero size should fail")
	}
}

func TestIsPresentIgnoresEmptyFile(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	if s.IsPresent(Base) {
		t.Fatal("IsPresent() = true for missing file")
	}
	if err := os.WriteFile(s.Path(Base), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if s.IsPresent(Base) {
		t.Error("IsPresent() = true for zero-byte file")
	}
	if err := os.WriteFile(s.Path(Base), []byte("weights"), 0644); err != nil {
		t.Fatal(err)
	}
	if !s.IsPresent(Base) {
		t.Error("IsPresent() = false for non-empty file")
	}
}

func TestDownloadReportsMonotonicProgress(t *testing.T) {
	body := strings.Repeat("x", 64*1024)
	srv := modelServer(t, body)
	s := NewStore(t.TempDir(), WithBaseURL(srv.URL))

	var dones, totals []int64
	path, err := s.Download(context.Background(), Tiny, func(done, total int64) {
		dones = append(dones, done)
		totals = append(totals, total)
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if path != filepath.Join(s.Dir(), "ggml-tiny.en.bin") {
		t.Errorf("Download() path = %q", path)
	}
	if !s.IsPresent(Tiny) {
		t.Fatal("artifact not present after download")
	}
	if len(dones) < 2 {
		t.Fatalf("got %d progress calls, want at least 2", len(dones))
	}
	for i := 1; i < len(dones); i++ {
		if dones[i] < dones[i-1] {
			t.Fatalf("progress went backwards: %v", dones)
		}
	}
	last := len(dones) - 1
	if dones[last] != int64(len(body)) || totals[last] != int64(len(body)) {
		t.Errorf("final progress = %d/%d, want %d/%d", dones[last], totals[last], len(body), len(body))
	}
	if _, err := os.Stat(path + tmpSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Error("temp file left behind after download")
	}
}

func TestDownloadHTTPErrorLeavesNothingPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewStore(t.TempDir(), WithBaseURL(srv.URL))
	_, err := s.Download(context.Background(), Small, nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Download() error = %v, want ErrNetwork", err)
	}
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) || dlErr.Size != Small {
		t.Errorf("Download() error = %#v, want *DownloadError for Small", err)
	}
	if s.IsPresent(Small) {
		t.Error("artifact reported present after failed download")
	}
}

func TestDownloadTruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("partial"))
	}))
	defer srv.Close()

	s := NewStore(t.TempDir(), WithBaseURL(srv.URL))
	if _, err := s.Download(context.Background(), Base, nil); !errors.Is(err, ErrNetwork) {
		t.Fatalf("Download() error = %v, want ErrNetwork", err)
	}
	if s.IsPresent(Base) {
		t.Error("truncated artifact reported present")
	}
	if _, err := os.Stat(s.Path(Base) + tmpSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Error("partial temp file left behind")
	}
}

func TestDownloadDiskError(t *testing.T) {
	srv := modelServer(t, "weights")
	// A regular file where the models directory should be.
	blocker := filepath.Join(t.TempDir(), "models")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(blocker, WithBaseURL(srv.URL))
	if _, err := s.Download(context.Background(), Tiny, nil); !errors.Is(err, ErrDisk) {
		t.Fatalf("Download() error = %v, want ErrDisk", err)
	}
}

func TestDownloadCancelled(t *testing.T) {
	srv := modelServer(t, "weights")
	s := NewStore(t.TempDir(), WithBaseURL(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Download(ctx, Tiny, nil)
	if !errors.Is(err, ErrNetwork) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Download() error = %v, want ErrNetwork wrapping context.Canceled", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Delete(Medium); err != nil {
		t.Fatalf("Delete() on absent artifact error = %v", err)
	}
	if err := os.WriteFile(s.Path(Medium), []byte("w"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(Medium); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if s.IsPresent(Medium) {
		t.Error("artifact still present after Delete()")
	}
	if err := s.Delete(Medium); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
}

func TestPruneKeepsOnlyOne(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, size := range []Size{Tiny, Base, Small} {
		if err := os.WriteFile(s.Path(size), []byte("w"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Prune(Base); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	got := s.Resident()
	if len(got) != 1 || got[0] != Base {
		t.Errorf("Resident() = %v, want [%v]", got, Base)
	}

	if err := s.Prune(0); err != nil {
		t.Fatalf("Prune(0) error = %v", err)
	}
	if got := s.Resident(); len(got) != 0 {
		t.Errorf("Resident() after Prune(0) = %v, want none", got)
	}
}
