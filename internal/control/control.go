// Package control turns named external commands (overlay clicks, hotkeys,
// D-Bus calls, HTTP requests) into session operations, one at a time.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chaz8081/whisperclip/internal/backend"
	"github.com/chaz8081/whisperclip/internal/models"
	"github.com/chaz8081/whisperclip/internal/session"
)

// ErrInvalidCommand is returned for unknown commands and malformed
// arguments. State is unchanged.
var ErrInvalidCommand = errors.New("invalid command")

// Command names.
const (
	CmdRecord          = "record"
	CmdStop            = "stop"
	CmdCancel          = "cancel"
	CmdToggle          = "toggle"
	CmdSelectProvider  = "select-provider"
	CmdSelectLocalSize = "select-local-size"
	CmdSetAPIConfig    = "set-api-config"
	CmdSetCredential   = "set-credential"
	CmdStatus          = "status"
)

// Spec describes one command for help output and introspection.
type Spec struct {
	Name    string
	Arg     string
	Summary string
}

var commands = []Spec{
	{CmdRecord, "", "start recording"},
	{CmdStop, "", "stop recording and transcribe"},
	{CmdCancel, "", "discard the recording or abort a model download"},
	{CmdToggle, "", "record when idle, stop when recording"},
	{CmdSelectProvider, "groq|ollama|openrouter|lmstudio", "switch to a remote preset"},
	{CmdSelectLocalSize, "local-tiny|local-base|local-small|local-medium", "switch to a local model, downloading it if needed"},
	{CmdSetAPIConfig, `{"base_url":..,"model":..,"api_key":..}`, "switch to a custom endpoint"},
	{CmdSetCredential, `{"provider":..,"api_key":..}`, "store an API key for a preset"},
	{CmdStatus, "", "print the current state"},
}

// Commands lists the supported commands.
func Commands() []Spec {
	out := make([]Spec, len(commands))
	copy(out, commands)
	return out
}

// Controller is the session API the surface drives.
type Controller interface {
	StartRecording() error
	StopRecording() error
	Cancel() error
	Toggle() error
	SwitchBackend(cfg backend.Config) error
	SetCustomAPIConfig(baseURL, apiKey, model string) error
	SetCredential(label, key string) error
	Status() session.Status
}

// Surface serializes commands from every caller. Status reads bypass the
// lock so a UI can poll download progress while a command is running.
type Surface struct {
	mu  sync.Mutex
	ctl Controller
	log *slog.Logger
}

// New returns a Surface over ctl.
func New(ctl Controller, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{ctl: ctl, log: logger}
}

// Status returns the controller snapshot.
func (s *Surface) Status() session.Status {
	return s.ctl.Status()
}

// Execute runs the named command with its optional argument. CmdStatus is
// accepted and does nothing; use Status for the payload.
func (s *Surface) Execute(name, arg string) error {
	op, err := s.parse(strings.TrimSpace(name), strings.TrimSpace(arg))
	if err != nil {
		s.log.Debug("rejected command", "command", name, "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := op(); err != nil {
		s.log.Debug("command failed", "command", name, "error", err)
		return err
	}
	s.log.Debug("command accepted", "command", name)
	return nil
}

// parse validates input before any lock is taken and returns the operation.
func (s *Surface) parse(name, arg string) (func() error, error) {
	noArg := func(fn func() error) (func() error, error) {
		if arg != "" {
			return nil, fmt.Errorf("%w: %s takes no argument", ErrInvalidCommand, name)
		}
		return fn, nil
	}

	switch name {
	case CmdRecord:
		return noArg(s.ctl.StartRecording)
	case CmdStop:
		return noArg(s.ctl.StopRecording)
	case CmdCancel:
		return noArg(s.ctl.Cancel)
	case CmdToggle:
		return noArg(s.ctl.Toggle)
	case CmdStatus:
		return noArg(func() error { return nil })
	case CmdSelectProvider:
		p, err := backend.ParseProvider(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		cfg, err := backend.FromPreset(p, "")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		return func() error { return s.ctl.SwitchBackend(cfg) }, nil
	case CmdSelectLocalSize:
		if !strings.HasPrefix(strings.ToLower(arg), "local-") {
			return nil, fmt.Errorf("%w: %q is not a local size", ErrInvalidCommand, arg)
		}
		size, err := models.ParseSize(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		return func() error { return s.ctl.SwitchBackend(backend.Local(size)) }, nil
	case CmdSetAPIConfig:
		req, err := ParseAPIConfig(arg)
		if err != nil {
			return nil, err
		}
		return func() error { return s.ctl.SetCustomAPIConfig(req.BaseURL, req.APIKey, req.Model) }, nil
	case CmdSetCredential:
		req, err := ParseCredential(arg)
		if err != nil {
			return nil, err
		}
		return func() error { return s.ctl.SetCredential(req.Provider, req.APIKey) }, nil
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, name)
	}
}

// Record starts a recording.
func (s *Surface) Record() error { return s.Execute(CmdRecord, "") }

// Stop stops the recording and starts transcription.
func (s *Surface) Stop() error { return s.Execute(CmdStop, "") }

// Cancel discards the recording or aborts a download.
func (s *Surface) Cancel() error { return s.Execute(CmdCancel, "") }

// Toggle records from idle and stops from recording.
func (s *Surface) Toggle() error { return s.Execute(CmdToggle, "") }

// SelectProvider switches to a remote preset by label.
func (s *Surface) SelectProvider(label string) error { return s.Execute(CmdSelectProvider, label) }

// SelectLocalSize switches to a local model by label ("local-base").
func (s *Surface) SelectLocalSize(label string) error { return s.Execute(CmdSelectLocalSize, label) }

// SetAPIConfig switches to the custom endpoint described by the JSON object.
func (s *Surface) SetAPIConfig(raw string) error { return s.Execute(CmdSetAPIConfig, raw) }

// SetCredential stores a key described by {"provider", "api_key"}.
func (s *Surface) SetCredential(raw string) error { return s.Execute(CmdSetCredential, raw) }

// APIConfig is the validated set-api-config payload.
type APIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// ParseAPIConfig extracts base_url and model (required, non-empty strings)
// and api_key (optional) from a JSON object. Other fields are ignored.
func ParseAPIConfig(raw string) (APIConfig, error) {
	var in struct {
		BaseURL *string `json:"base_url"`
		Model   *string `json:"model"`
		APIKey  *string `json:"api_key"`
	}
	if err := decodeObject(raw, &in); err != nil {
		return APIConfig{}, err
	}

	out := APIConfig{}
	var err error
	if out.BaseURL, err = required("base_url", in.BaseURL); err != nil {
		return APIConfig{}, err
	}
	if out.Model, err = required("model", in.Model); err != nil {
		return APIConfig{}, err
	}
	if in.APIKey != nil {
		out.APIKey = strings.TrimSpace(*in.APIKey)
	}
	return out, nil
}

// Credential is the validated set-credential payload.
type Credential struct {
	Provider string
	APIKey   string
}

// ParseCredential extracts a preset provider label and its key. An empty
// api_key clears the stored key.
func ParseCredential(raw string) (Credential, error) {
	var in struct {
		Provider *string `json:"provider"`
		APIKey   *string `json:"api_key"`
	}
	if err := decodeObject(raw, &in); err != nil {
		return Credential{}, err
	}

	label, err := required("provider", in.Provider)
	if err != nil {
		return Credential{}, err
	}
	p, err := backend.ParseProvider(label)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if in.APIKey == nil {
		return Credential{}, fmt.Errorf("%w: api_key is required", ErrInvalidCommand)
	}
	return Credential{Provider: p.String(), APIKey: strings.TrimSpace(*in.APIKey)}, nil
}

func decodeObject(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		return fmt.Errorf("%w: expected a JSON object", ErrInvalidCommand)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return nil
}

func required(field string, v *string) (string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidCommand, field)
	}
	return strings.TrimSpace(*v), nil
}
