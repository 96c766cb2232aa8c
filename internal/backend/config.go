// Package backend describes which transcription backend is active and how
// to build a transcribe.Transcriber for it.
package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chaz8081/whisperclip/internal/models"
)

// ErrInvalidConfig is returned for configs missing a required field.
var ErrInvalidConfig = errors.New("invalid backend config")

// Kind distinguishes local and remote backends.
type Kind int

const (
	KindLocal Kind = iota + 1
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Config is an immutable backend description. Replace it wholesale; the
// With* helpers return modified copies.
type Config struct {
	Kind Kind

	// Local
	Size models.Size

	// Remote
	Provider Provider
	BaseURL  string
	Model    string
	APIKey   string
}

// Local returns the config for a local whisper model of the given size.
func Local(size models.Size) Config {
	return Config{Kind: KindLocal, Size: size}
}

// FromPreset returns the remote config for a preset provider. apiKey may be
// empty; Validate reports whether the provider can run without one.
func FromPreset(p Provider, apiKey string) (Config, error) {
	pr, ok := PresetFor(p)
	if !ok {
		return Config{}, fmt.Errorf("%w: %v", ErrUnknownProvider, p)
	}
	return Config{
		Kind:     KindRemote,
		Provider: p,
		BaseURL:  pr.BaseURL,
		Model:    pr.DefaultModel,
		APIKey:   strings.TrimSpace(apiKey),
	}, nil
}

// NewCustom returns a remote config for an arbitrary OpenAI-compatible
// endpoint. baseURL and model are required; the key is optional.
func NewCustom(baseURL, apiKey, model string) (Config, error) {
	c := Config{
		Kind:     KindRemote,
		Provider: Custom,
		BaseURL:  strings.TrimSpace(baseURL),
		Model:    strings.TrimSpace(model),
		APIKey:   strings.TrimSpace(apiKey),
	}
	if err := c.checkFields(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Label is the control-surface name: "local-base", "groq", "custom", ...
func (c Config) Label() string {
	if c.Kind == KindLocal {
		return c.Size.String()
	}
	return c.Provider.String()
}

// IsLocal reports whether c runs on a local model file.
func (c Config) IsLocal() bool { return c.Kind == KindLocal }

// RequiresKey reports whether activation needs a non-empty APIKey.
func (c Config) RequiresKey() bool {
	return c.Kind == KindRemote && c.Provider.RequiresKey()
}

// WithAPIKey returns a copy of c carrying key.
func (c Config) WithAPIKey(key string) Config {
	c.APIKey = strings.TrimSpace(key)
	return c
}

// Validate checks structural fields. A missing required key is not a
// structural error; see RequiresKey.
func (c Config) Validate() error {
	return c.checkFields()
}

func (c Config) checkFields() error {
	switch c.Kind {
	case KindLocal:
		if !c.Size.Valid() {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, models.ErrUnknownSize)
		}
	case KindRemote:
		if c.BaseURL == "" {
			return fmt.Errorf("%w: base_url is required", ErrInvalidConfig)
		}
		if c.Model == "" {
			return fmt.Errorf("%w: model is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown kind %v", ErrInvalidConfig, c.Kind)
	}
	return nil
}

// Equal reports whether a and b select the same backend, ignoring keys.
func (c Config) Equal(o Config) bool {
	if c.Kind != o.Kind {
		return false
	}
	if c.Kind == KindLocal {
		return c.Size == o.Size
	}
	return c.Provider == o.Provider && c.BaseURL == o.BaseURL && c.Model == o.Model
}

// persisted is the JSON form. API keys are never part of it; they are kept
// in the credential map of the settings record.
type persisted struct {
	Kind     string `json:"kind"`
	Size     string `json:"size,omitempty"`
	Provider string `json:"provider,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
	Model    string `json:"model,omitempty"`
}

// MarshalJSON encodes c without its API key.
func (c Config) MarshalJSON() ([]byte, error) {
	if err := c.checkFields(); err != nil {
		return nil, err
	}
	p := persisted{Kind: c.Kind.String()}
	if c.Kind == KindLocal {
		p.Size = c.Size.String()
	} else {
		p.Provider = c.Provider.String()
		p.BaseURL = c.BaseURL
		p.Model = c.Model
	}
	return json.Marshal(p)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (c *Config) UnmarshalJSON(data []byte) error {
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var out Config
	switch p.Kind {
	case "local":
		size, err := models.ParseSize(p.Size)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		out = Local(size)
	case "remote":
		provider, err := parseLabel(p.Provider)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		out = Config{
			Kind:     KindRemote,
			Provider: provider,
			BaseURL:  strings.TrimSpace(p.BaseURL),
			Model:    strings.TrimSpace(p.Model),
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, p.Kind)
	}
	if err := out.checkFields(); err != nil {
		return err
	}
	*c = out
	return nil
}
