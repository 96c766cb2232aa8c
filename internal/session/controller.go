// Package session owns the recording and transcription lifecycle and the
// active transcription backend.
//
// A Controller is a state machine over Idle, Recording, Transcribing and
// DownloadingModel. Transitions are decided under one mutex and are O(1);
// transcription and model downloads run on their own goroutines and report
// back through the EventBus.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/whisperclip/internal/backend"
	"github.com/chaz8081/whisperclip/internal/models"
	"github.com/chaz8081/whisperclip/internal/settings"
	"github.com/chaz8081/whisperclip/internal/storage"
	"github.com/chaz8081/whisperclip/internal/transcribe"
	"github.com/google/uuid"
)

var (
	// ErrBusy is returned when a command is not allowed in the current state.
	ErrBusy = errors.New("busy")

	// ErrNotRecording is returned by StopRecording outside Recording.
	ErrNotRecording = fmt.Errorf("%w: not recording", ErrBusy)

	ErrModelUnavailable  = transcribe.ErrModelUnavailable
	ErrMissingCredential = transcribe.ErrMissingCredential
	ErrInvalidConfig     = backend.ErrInvalidConfig
)

// historyTimeout bounds one history write.
const historyTimeout = 5 * time.Second

// Capture is the microphone. Stop tears the device down synchronously and
// returns mono samples at the returned rate.
type Capture interface {
	Start() error
	Stop() ([]float32, int)
}

// ModelStore manages local model artifacts.
type ModelStore interface {
	IsPresent(size models.Size) bool
	Download(ctx context.Context, size models.Size, onProgress models.ProgressFunc) (string, error)
	Prune(keep models.Size) error
}

// TranscriberFactory builds the Transcriber for a backend config.
type TranscriberFactory interface {
	New(cfg backend.Config) (transcribe.Transcriber, error)
}

// SettingsStore persists the active backend and credentials.
type SettingsStore interface {
	Save(st settings.Settings) error
}

// History records finished transcriptions.
type History interface {
	SaveTranscription(ctx context.Context, t *storage.Transcription) error
}

// Options wires a Controller to its collaborators. Capture, Models,
// Transcribers and Settings are required.
type Options struct {
	Capture      Capture
	Models       ModelStore
	Transcribers TranscriberFactory
	Settings     SettingsStore
	History      History
	Events       *EventBus
	Logger       *slog.Logger

	// Initial is the persisted settings read at startup.
	Initial settings.Settings
	// MinAudio rejects shorter recordings with transcribe.ErrNoAudio.
	MinAudio time.Duration
	// DownloadTimeout bounds one model download; zero means no limit.
	DownloadTimeout time.Duration
}

// Controller is the single owner of the lifecycle state.
type Controller struct {
	capture      Capture
	models       ModelStore
	transcribers TranscriberFactory
	store        SettingsStore
	history      History
	events       *EventBus
	log          *slog.Logger
	minAudio     time.Duration
	dlTimeout    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	state        State
	settings     settings.Settings
	sessionID    string
	message      string
	target       backend.Config
	stopDownload context.CancelFunc

	// download progress, written by the download goroutine only
	dlDone  atomic.Int64
	dlTotal atomic.Int64
}

// New creates a Controller in Idle with opts.Initial as the active backend.
func New(opts Options) (*Controller, error) {
	if opts.Capture == nil || opts.Models == nil || opts.Transcribers == nil || opts.Settings == nil {
		return nil, errors.New("session: capture, models, transcribers and settings are required")
	}
	if err := opts.Initial.Active.Validate(); err != nil {
		return nil, fmt.Errorf("session: initial backend: %w", err)
	}
	if opts.Events == nil {
		opts.Events = NewEventBus(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		capture:      opts.Capture,
		models:       opts.Models,
		transcribers: opts.Transcribers,
		store:        opts.Settings,
		history:      opts.History,
		events:       opts.Events,
		log:          opts.Logger,
		minAudio:     opts.MinAudio,
		dlTimeout:    opts.DownloadTimeout,
		ctx:          ctx,
		cancel:       cancel,
		state:        Idle,
		settings:     opts.Initial.Clone(),
	}, nil
}

// Events returns the controller's event bus.
func (c *Controller) Events() *EventBus { return c.events }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns the active backend config without its key.
func (c *Controller) Active() backend.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Active
}

// Status returns a snapshot. Download progress is read from atomics.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		State:   c.state,
		Backend: c.settings.Active.Label(),
		Message: c.message,
	}
	if c.state == DownloadingModel {
		st.Target = c.target.Label()
	}
	c.mu.Unlock()

	if st.State == DownloadingModel {
		p := c.Progress()
		st.Progress = &p
	}
	return st
}

// Progress returns the current download progress without taking the
// transition lock.
func (c *Controller) Progress() Progress {
	return Progress{Done: c.dlDone.Load(), Total: c.dlTotal.Load()}
}

// StartRecording opens the microphone. It fails with ErrBusy outside Idle
// and with ErrModelUnavailable when the local model is not on disk.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *Controller) startLocked() error {
	if c.state != Idle {
		return fmt.Errorf("session: cannot record while %s: %w", c.state, ErrBusy)
	}
	active := c.settings.Active
	if active.IsLocal() && !c.models.IsPresent(active.Size) {
		return fmt.Errorf("session: %s: %w", active.Label(), ErrModelUnavailable)
	}
	if err := c.capture.Start(); err != nil {
		return fmt.Errorf("session: start capture: %w", err)
	}

	c.sessionID = uuid.NewString()
	c.setStateLocked(Recording)
	return nil
}

// StopRecording closes the microphone and transcribes the buffer on a
// separate goroutine. The state is Transcribing when it returns.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	if c.state != Recording {
		return fmt.Errorf("session: %s: %w", c.state, ErrNotRecording)
	}
	samples, rate := c.capture.Stop()
	if tc, ok := c.capture.(interface{ Truncated() bool }); ok && tc.Truncated() {
		c.log.Warn("recording hit the maximum duration; later audio was dropped", "session", c.sessionID)
	}

	cfg := c.settings.Active.WithAPIKey(c.settings.Credential(c.settings.Active.Label()))
	id := c.sessionID
	c.setStateLocked(Transcribing)

	c.wg.Add(1)
	go c.runTranscription(id, cfg, samples, rate)
	return nil
}

// Toggle starts a recording from Idle or stops one from Recording.
func (c *Controller) Toggle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Idle:
		return c.startLocked()
	case Recording:
		return c.stopLocked()
	default:
		return fmt.Errorf("session: cannot toggle while %s: %w", c.state, ErrBusy)
	}
}

// Cancel discards a recording without transcribing it, or aborts a model
// download. In Idle and Transcribing it is accepted and does nothing; an
// in-flight transcription still has to finish before the next recording.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Recording:
		c.capture.Stop()
		c.sessionID = ""
		c.message = "recording cancelled"
		c.setStateLocked(Idle)
	case DownloadingModel:
		if c.stopDownload != nil {
			c.stopDownload()
		}
	}
	return nil
}

// SwitchBackend makes cfg the active backend. It is only allowed in Idle.
//
// A local config whose model is absent moves to DownloadingModel and returns;
// the switch completes when the download does, and the previously resident
// model is deleted only after the new one is in place. A remote config that
// needs a key with none supplied or stored fails with ErrMissingCredential
// and changes nothing. Every other switch is applied and persisted
// immediately, and resident models not needed by cfg are deleted.
func (c *Controller) SwitchBackend(cfg backend.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return fmt.Errorf("session: cannot switch backend while %s: %w", c.state, ErrBusy)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	if cfg.IsLocal() {
		if c.models.IsPresent(cfg.Size) {
			return c.activateLocked(cfg, c.settings)
		}
		c.beginDownloadLocked(cfg)
		return nil
	}

	next := c.settings
	label := cfg.Label()
	switch {
	case cfg.Provider == backend.Custom:
		// A custom key belongs to one endpoint; a keyless config clears it.
		next = next.WithCredential(label, cfg.APIKey)
	case cfg.APIKey != "":
		next = next.WithCredential(label, cfg.APIKey)
	}
	if cfg.RequiresKey() && next.Credential(label) == "" {
		return fmt.Errorf("session: %s: %w", label, ErrMissingCredential)
	}
	return c.activateLocked(cfg.WithAPIKey(""), next)
}

// SetCustomAPIConfig switches to an arbitrary OpenAI-compatible endpoint.
func (c *Controller) SetCustomAPIConfig(baseURL, apiKey, model string) error {
	cfg, err := backend.NewCustom(baseURL, apiKey, model)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return c.SwitchBackend(cfg)
}

// SetCredential stores key for a provider label without switching to it.
// An empty key removes the stored one.
func (c *Controller) SetCredential(label, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.settings.WithCredential(label, key)
	if err := c.store.Save(next); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	c.settings = next
	c.log.Info("credential updated", "provider", label, "present", key != "")
	return nil
}

// activateLocked persists next with cfg active and prunes models cfg does not use.
func (c *Controller) activateLocked(cfg backend.Config, next settings.Settings) error {
	next.Active = cfg
	if err := c.store.Save(next); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	c.settings = next
	c.pruneLocked(cfg)

	c.message = "backend: " + cfg.Label()
	c.log.Info("backend switched", "backend", cfg.Label())
	c.events.Publish(Event{Type: EventBackendChanged, State: c.state, Backend: cfg.Label()})
	return nil
}

func (c *Controller) pruneLocked(cfg backend.Config) {
	var keep models.Size
	if cfg.IsLocal() {
		keep = cfg.Size
	}
	if err := c.models.Prune(keep); err != nil {
		c.log.Warn("could not delete unused models", "error", err)
	}
}

func (c *Controller) beginDownloadLocked(cfg backend.Config) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.dlTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.dlTimeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	c.stopDownload = cancel
	c.target = cfg
	c.dlDone.Store(0)
	c.dlTotal.Store(-1)
	c.setStateLocked(DownloadingModel)

	c.wg.Add(1)
	go c.runDownload(ctx, cancel, cfg)
}

func (c *Controller) runDownload(ctx context.Context, cancel context.CancelFunc, cfg backend.Config) {
	defer c.wg.Done()
	defer cancel()

	c.log.Info("downloading model", "model", cfg.Label())
	_, err := c.models.Download(ctx, cfg.Size, func(done, total int64) {
		if done < c.dlDone.Load() {
			done = c.dlDone.Load()
		}
		c.dlDone.Store(done)
		c.dlTotal.Store(total)
		p := Progress{Done: done, Total: total}
		c.events.Publish(Event{Type: EventDownloadProgress, State: DownloadingModel, Backend: cfg.Label(), Progress: &p})
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopDownload = nil
	c.target = backend.Config{}

	if err == nil && !c.models.IsPresent(cfg.Size) {
		err = fmt.Errorf("session: %s: %w", cfg.Label(), ErrModelUnavailable)
	}
	if err == nil {
		err = c.activateLocked(cfg, c.settings)
		if err != nil {
			// Keep the previous backend usable and the directory at one model.
			c.pruneLocked(c.settings.Active)
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.message = "download cancelled"
			c.log.Info("model download cancelled", "model", cfg.Label())
		} else {
			c.message = "download failed: " + err.Error()
			c.log.Error("model download failed", "model", cfg.Label(), "error", err)
		}
		c.events.Publish(Event{Type: EventDownloadFailed, State: DownloadingModel, Backend: cfg.Label(), Err: err})
	}
	c.setStateLocked(Idle)
}

func (c *Controller) runTranscription(id string, cfg backend.Config, samples []float32, rate int) {
	defer c.wg.Done()

	started := time.Now()
	text, err := c.transcribe(cfg, samples, rate)
	elapsed := time.Since(started)

	c.mu.Lock()
	if err != nil {
		c.message = "transcription failed: " + err.Error()
		c.log.Error("transcription failed", "backend", cfg.Label(), "session", id, "error", err)
		c.events.Publish(Event{Type: EventTranscriptionFailed, State: Transcribing, Backend: cfg.Label(), SessionID: id, Err: err})
	} else {
		c.message = text
		c.log.Info("transcription complete", "backend", cfg.Label(), "session", id, "chars", len(text), "elapsed", elapsed)
		c.events.Publish(Event{Type: EventTranscriptionCompleted, State: Transcribing, Backend: cfg.Label(), SessionID: id, Text: text})
	}
	c.sessionID = ""
	c.setStateLocked(Idle)
	c.mu.Unlock()

	c.record(id, cfg, text, elapsed, err)
}

func (c *Controller) transcribe(cfg backend.Config, samples []float32, rate int) (string, error) {
	if len(samples) == 0 || rate <= 0 {
		return "", transcribe.ErrNoAudio
	}
	if got := time.Duration(float64(len(samples)) / float64(rate) * float64(time.Second)); got < c.minAudio {
		return "", fmt.Errorf("%w: %.2fs is shorter than %s", transcribe.ErrNoAudio, got.Seconds(), c.minAudio)
	}

	tr, err := c.transcribers.New(cfg)
	if err != nil {
		return "", err
	}
	defer tr.Close()
	return tr.Transcribe(c.ctx, samples, rate)
}

func (c *Controller) record(id string, cfg backend.Config, text string, elapsed time.Duration, err error) {
	if c.history == nil {
		return
	}
	row := &storage.Transcription{
		ID:       id,
		Backend:  cfg.Label(),
		Text:     text,
		Duration: elapsed,
		Success:  err == nil,
	}
	if err != nil {
		row.Error = err.Error()
	}
	// c.ctx may already be cancelled by Close; the row is still written.
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if herr := c.history.SaveTranscription(ctx, row); herr != nil {
		c.log.Warn("could not save history", "error", herr)
	}
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	ev := Event{Type: EventStateChanged, State: s, Backend: c.settings.Active.Label(), SessionID: c.sessionID}
	if s == DownloadingModel {
		p := c.Progress()
		ev.Progress = &p
		ev.Backend = c.target.Label()
	}
	c.events.Publish(ev)
}

// Close releases an open microphone, aborts running downloads and
// transcriptions, and waits for their goroutines to return.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.state == Recording {
		c.capture.Stop()
		c.sessionID = ""
		c.message = "recording discarded on shutdown"
		c.setStateLocked(Idle)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}
