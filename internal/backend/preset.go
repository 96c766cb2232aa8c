package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Provider identifies a remote transcription service. Custom is any
// OpenAI-compatible endpoint configured by hand.
type Provider int

const (
	Custom Provider = iota
	Groq
	Ollama
	OpenRouter
	LMStudio
)

// ErrUnknownProvider is returned for labels outside the preset table.
var ErrUnknownProvider = errors.New("unknown provider")

// Preset is the fixed endpoint description for one Provider.
type Preset struct {
	Provider     Provider
	Label        string
	Name         string
	BaseURL      string
	DefaultModel string
	RequiresKey  bool
}

var presets = []Preset{
	{Provider: Groq, Label: "groq", Name: "Groq", BaseURL: "https://api.groq.com/openai/v1", DefaultModel: "whisper-large-v3-turbo", RequiresKey: true},
	{Provider: Ollama, Label: "ollama", Name: "Ollama", BaseURL: "http://localhost:11434/v1", DefaultModel: "whisper", RequiresKey: false},
	{Provider: OpenRouter, Label: "openrouter", Name: "OpenRouter", BaseURL: "https://openrouter.ai/api/v1", DefaultModel: "openai/whisper-1", RequiresKey: true},
	{Provider: LMStudio, Label: "lmstudio", Name: "LM Studio", BaseURL: "http://localhost:1234/v1", DefaultModel: "whisper-1", RequiresKey: false},
}

const customLabel = "custom"

// Presets returns the selectable providers in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// PresetFor returns the table entry for p. Custom has no entry.
func PresetFor(p Provider) (Preset, bool) {
	for _, pr := range presets {
		if pr.Provider == p {
			return pr, true
		}
	}
	return Preset{}, false
}

// ParseProvider maps a selectable label (groq, ollama, openrouter, lmstudio)
// to its Provider. "custom" is not selectable by label.
func ParseProvider(label string) (Provider, error) {
	l := strings.ToLower(strings.TrimSpace(label))
	for _, pr := range presets {
		if pr.Label == l {
			return pr.Provider, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProvider, label)
}

// String returns the provider label.
func (p Provider) String() string {
	if p == Custom {
		return customLabel
	}
	if pr, ok := PresetFor(p); ok {
		return pr.Label
	}
	return fmt.Sprintf("Provider(%d)", int(p))
}

// RequiresKey reports whether the provider refuses unauthenticated calls.
func (p Provider) RequiresKey() bool {
	pr, ok := PresetFor(p)
	return ok && pr.RequiresKey
}

func parseLabel(label string) (Provider, error) {
	if strings.EqualFold(strings.TrimSpace(label), customLabel) {
		return Custom, nil
	}
	return ParseProvider(label)
}
