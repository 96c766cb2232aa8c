package backend

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaz8081/whisperclip/internal/models"
	"github.com/chaz8081/whisperclip/internal/transcribe"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		label   string
		want    Provider
		wantErr bool
	}{
		{"groq", Groq, false},
		{"Ollama", Ollama, false},
		{" openrouter ", OpenRouter, false},
		{"lmstudio", LMStudio, false},
		{"custom", 0, true},
		{"openai", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseProvider(tt.label)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownProvider) {
					t.Fatalf("ParseProvider(%q) error = %v, want ErrUnknownProvider", tt.label, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProvider(%q) error = %v", tt.label, err)
			}
			if got != tt.want {
				t.Errorf("ParseProvider(%q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}

func TestPresetKeyRequirements(t *testing.T) {
	want := map[Provider]bool{Groq: true, OpenRouter: true, Ollama: false, LMStudio: false, Custom: false}
	for p, req := range want {
		if got := p.RequiresKey(); got != req {
			t.Errorf("%v.RequiresKey() = %v, want %v", p, got, req)
		}
	}
}

func TestFromPreset(t *testing.T) {
	c, err := FromPreset(Groq, " gsk_123 ")
	if err != nil {
		t.Fatalf("FromPreset() error = %v", err)
	}
	if c.BaseURL != "https://api.groq.com/openai/v1" || c.Model != "whisper-large-v3-turbo" {
		t.Errorf("FromPreset(Groq) = %+v", c)
	}
	if c.APIKey != "gsk_123" {
		t.Errorf("APIKey = %q, want trimmed", c.APIKey)
	}
	if c.Label() != "groq" || !c.RequiresKey() {
		t.Errorf("Label=%q RequiresKey=%v", c.Label(), c.RequiresKey())
	}

	if _, err := FromPreset(Custom, ""); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("FromPreset(Custom) error = %v, want ErrUnknownProvider", err)
	}
}

func TestNewCustomValidation(t *testing.T) {
	if _, err := NewCustom("", "", "whisper"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing base_url error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewCustom("http://localhost:11434/v1", "", "  "); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing model error = %v, want ErrInvalidConfig", err)
	}

	c, err := NewCustom("http://localhost:11434/v1", "", "whisper")
	if err != nil {
		t.Fatalf("NewCustom() error = %v", err)
	}
	if c.RequiresKey() {
		t.Error("custom config should never require a key")
	}
	if c.Label() != "custom" {
		t.Errorf("Label() = %q, want custom", c.Label())
	}
}

func TestConfigJSONOmitsKey(t *testing.T) {
	c, _ := FromPreset(OpenRouter, "sk-or-secret")
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "sk-or-secret") {
		t.Fatalf("persisted form leaks the key: %s", data)
	}

	var got Config
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !got.Equal(c) || got.APIKey != "" {
		t.Errorf("round trip = %+v, want %+v without key", got, c)
	}
}

func TestConfigJSONLocalAndCustom(t *testing.T) {
	for _, c := range []Config{
		Local(models.Medium),
		{Kind: KindRemote, Provider: Custom, BaseURL: "http://gpu-box:8000/v1", Model: "large-v3"},
	} {
		data, err := json.Marshal(c)
		if err != nil {
			t.Fatalf("Marshal(%v) error = %v", c.Label(), err)
		}
		var got Config
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", data, err)
		}
		if !got.Equal(c) {
			t.Errorf("round trip = %+v, want %+v", got, c)
		}
	}
}

func TestConfigJSONRejectsGarbage(t *testing.T) {
	for _, in := range []string{
		`{"kind":"local","size":"local-huge"}`,
		`{"kind":"remote","provider":"nope","base_url":"x","model":"y"}`,
		`{"kind":"remote","provider":"custom","model":"y"}`,
		`{"kind":"quantum"}`,
	} {
		var c Config
		if err := json.Unmarshal([]byte(in), &c); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Unmarshal(%s) error = %v, want ErrInvalidConfig", in, err)
		}
	}
}

type dirPaths string

func (d dirPaths) Path(size models.Size) string {
	m, _ := models.Lookup(size)
	return filepath.Join(string(d), m.FileName)
}

type stubEngine struct{}

func (stubEngine) Infer(context.Context, string, []float32) (string, error) { return "hi", nil }

func TestFactoryLocal(t *testing.T) {
	dir := t.TempDir()
	f := Factory{Models: dirPaths(dir), Engine: stubEngine{}}

	if _, err := f.New(Local(models.Tiny)); !errors.Is(err, transcribe.ErrModelUnavailable) {
		t.Fatalf("New(absent model) error = %v, want ErrModelUnavailable", err)
	}

	if err := os.WriteFile(dirPaths(dir).Path(models.Tiny), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	tr, err := f.New(Local(models.Tiny))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tr.Close()
	if _, ok := tr.(*transcribe.LocalTranscriber); !ok {
		t.Errorf("New() = %T, want *transcribe.LocalTranscriber", tr)
	}
}

func TestFactoryRemote(t *testing.T) {
	f := Factory{}

	groq, _ := FromPreset(Groq, "")
	if _, err := f.New(groq); !errors.Is(err, transcribe.ErrMissingCredential) {
		t.Fatalf("New(groq without key) error = %v, want ErrMissingCredential", err)
	}

	ollama, _ := FromPreset(Ollama, "")
	tr, err := f.New(ollama)
	if err != nil {
		t.Fatalf("New(ollama) error = %v", err)
	}
	if _, ok := tr.(*transcribe.RemoteTranscriber); !ok {
		t.Errorf("New() = %T, want *transcribe.RemoteTranscriber", tr)
	}
}
