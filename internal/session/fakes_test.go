package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/whisperclip/internal/backend"
	"github.com/chaz8081/whisperclip/internal/models"
	"github.com/chaz8081/whisperclip/internal/settings"
	"github.com/chaz8081/whisperclip/internal/storage"
	"github.com/chaz8081/whisperclip/internal/transcribe"
)

type fakeCapture struct {
	mu       sync.Mutex
	samples  []float32
	rate     int
	startErr error
	starts   int
	stops    int
}

func (f *fakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	return nil
}

func (f *fakeCapture) Stop() ([]float32, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.samples, f.rate
}

type fakeModels struct {
	mu      sync.Mutex
	present map[models.Size]bool
	total   int64
	steps   []int64
	fail    error
	release chan struct{}
}

func newFakeModels(present ...models.Size) *fakeModels {
	m := &fakeModels{present: map[models.Size]bool{}, total: 100, steps: []int64{0, 40, 40, 100}}
	for _, s := range present {
		m.present[s] = true
	}
	return m
}

func (m *fakeModels) IsPresent(size models.Size) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.present[size]
}

func (m *fakeModels) Download(ctx context.Context, size models.Size, onProgress models.ProgressFunc) (string, error) {
	for _, done := range m.steps {
		onProgress(done, m.total)
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return "", &models.DownloadError{Kind: models.ErrNetwork, Size: size, Err: ctx.Err()}
		}
	}
	if m.fail != nil {
		return "", m.fail
	}
	m.mu.Lock()
	m.present[size] = true
	m.mu.Unlock()
	return "/models/" + size.String(), nil
}

func (m *fakeModels) Prune(keep models.Size) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.present {
		if s != keep {
			delete(m.present, s)
		}
	}
	return nil
}

func (m *fakeModels) resident() []models.Size {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Size
	for s, ok := range m.present {
		if ok {
			out = append(out, s)
		}
	}
	return out
}

type fakeTranscriber struct {
	text    string
	err     error
	release chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ []float32, _ int) (string, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func (f *fakeTranscriber) Close() error { return nil }

type fakeFactory struct {
	mu   sync.Mutex
	tr   *fakeTranscriber
	err  error
	cfgs []backend.Config
}

func (f *fakeFactory) New(cfg backend.Config) (transcribe.Transcriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfgs = append(f.cfgs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	return f.tr, nil
}

func (f *fakeFactory) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cfgs)
}

type fakeSettings struct {
	mu    sync.Mutex
	saved []settings.Settings
	fail  error
}

func (f *fakeSettings) Save(st settings.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.saved = append(f.saved, st.Clone())
	return nil
}

func (f *fakeSettings) last() (settings.Settings, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return settings.Settings{}, false
	}
	return f.saved[len(f.saved)-1], true
}

type fakeHistory struct {
	mu   sync.Mutex
	rows []storage.Transcription
}

func (h *fakeHistory) SaveTranscription(ctx context.Context, t *storage.Transcription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows = append(h.rows, *t)
	return nil
}

func (h *fakeHistory) all() []storage.Transcription {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]storage.Transcription(nil), h.rows...)
}

type harness struct {
	c        *Controller
	capture  *fakeCapture
	models   *fakeModels
	factory  *fakeFactory
	settings *fakeSettings
	history  *fakeHistory
}

func newHarness(t *testing.T, initial backend.Config, present ...models.Size) *harness {
	t.Helper()
	h := &harness{
		capture:  &fakeCapture{samples: make([]float32, 16000), rate: 16000},
		models:   newFakeModels(present...),
		factory:  &fakeFactory{tr: &fakeTranscriber{text: "hello world"}},
		settings: &fakeSettings{},
		history:  &fakeHistory{},
	}
	c, err := New(Options{
		Capture:      h.capture,
		Models:       h.models,
		Transcribers: h.factory,
		Settings:     h.settings,
		History:      h.history,
		Initial:      settings.Settings{Active: initial},
		MinAudio:     300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	h.c = c
	return h
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.State(), want)
}

func eventsOf(c *Controller, types ...EventType) []Event {
	var out []Event
	for _, ev := range c.Events().Since(0) {
		for _, typ := range types {
			if ev.Type == typ {
				out = append(out, ev)
			}
		}
	}
	return out
}

func mustErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want %v", err, want)
	}
}
