package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppName names the config and data directories.
const AppName = "whisperclip"

// EnvSoundNotification overrides sound_notification when set.
const EnvSoundNotification = "SOUND_NOTIFICATION_ON_COMPLETION"

// Config holds all process configuration. The active transcription backend
// is not part of it; that lives in the persisted settings record.
type Config struct {
	DataDir           string         `yaml:"data_dir"`
	ModelsDir         string         `yaml:"models_dir"`
	LogLevel          string         `yaml:"log_level"`
	Audio             AudioConfig    `yaml:"audio"`
	Hotkey            HotkeyConfig   `yaml:"hotkey"`
	Inject            InjectConfig   `yaml:"inject"`
	SoundNotification bool           `yaml:"sound_notification"`
	Remote            RemoteConfig   `yaml:"remote"`
	Download          DownloadConfig `yaml:"download"`
	Whisper           WhisperConfig  `yaml:"whisper"`
	DBus              DBusConfig     `yaml:"dbus"`
	Web               WebConfig      `yaml:"web"`
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	SampleRate uint32  `yaml:"sample_rate"`
	Channels   uint32  `yaml:"channels"`
	MinSeconds float64 `yaml:"min_seconds"`
	MaxSeconds float64 `yaml:"max_seconds"` // 0 = unbounded
}

// HotkeyConfig holds hotkey-related settings.
type HotkeyConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Keys       []string `yaml:"keys"`
	CancelKeys []string `yaml:"cancel_keys"`
	Mode       string   `yaml:"mode"` // "hold" or "toggle"
}

// InjectConfig holds text delivery settings.
type InjectConfig struct {
	Method string `yaml:"method"` // "none", "clipboard", "paste" or "type"
}

// RemoteConfig bounds calls to remote transcription services.
type RemoteConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// DownloadConfig bounds model downloads.
type DownloadConfig struct {
	Timeout time.Duration `yaml:"timeout"` // 0 = no limit
}

// WhisperConfig selects the whisper.cpp binary for local transcription.
type WhisperConfig struct {
	Binary   string `yaml:"binary"`
	Language string `yaml:"language"`
}

// DBusConfig toggles the session-bus control surface.
type DBusConfig struct {
	Enabled bool `yaml:"enabled"`
}

// WebConfig toggles the local HTTP API.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", AppName)
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns $XDG_DATA_HOME/whisperclip, falling back to
// ~/.local/share/whisperclip.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", AppName)
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			MinSeconds: 0.3,
			MaxSeconds: 300,
		},
		Hotkey: HotkeyConfig{
			Enabled:    true,
			Keys:       []string{"ctrl", "shift", "r"},
			CancelKeys: []string{"esc"},
			Mode:       "hold",
		},
		Inject: InjectConfig{
			Method: "paste",
		},
		Remote:   RemoteConfig{Timeout: 60 * time.Second},
		Download: DownloadConfig{Timeout: 30 * time.Minute},
		Whisper:  WhisperConfig{Binary: "whisper-cli", Language: "auto"},
		DBus:     DBusConfig{Enabled: true},
		Web:      WebConfig{Enabled: false, Addr: "127.0.0.1:7788"},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in directory paths is expanded to the user's
// home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.DataDir = expandTilde(cfg.DataDir)
	cfg.ModelsDir = expandTilde(cfg.ModelsDir)
	cfg.Whisper.Binary = expandTilde(cfg.Whisper.Binary)

	return cfg, nil
}

// ApplyEnv applies environment overrides. lookup is os.LookupEnv in
// production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvSoundNotification); ok && strings.TrimSpace(v) != "" {
		on, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSoundNotification, err)
		}
		c.SoundNotification = on
	}
	return nil
}

// ModelsPath returns models_dir, or <data_dir>/models when unset.
func (c *Config) ModelsPath() string {
	if c.ModelsDir != "" {
		return c.ModelsDir
	}
	return filepath.Join(c.DataDir, "models")
}

// MinAudio is audio.min_seconds as a duration.
func (c *Config) MinAudio() time.Duration {
	return time.Duration(c.Audio.MinSeconds * float64(time.Second))
}

// MaxAudio is audio.max_seconds as a duration; zero means unbounded.
func (c *Config) MaxAudio() time.Duration {
	return time.Duration(c.Audio.MaxSeconds * float64(time.Second))
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}

	if c.Hotkey.Enabled && len(c.Hotkey.Keys) == 0 {
		return errors.New("hotkey.keys must not be empty")
	}

	switch c.Hotkey.Mode {
	case "hold", "toggle":
	default:
		return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
	}

	if c.Audio.SampleRate == 0 {
		return errors.New("audio.sample_rate must be > 0")
	}

	if c.Audio.Channels == 0 {
		return errors.New("audio.channels must be > 0")
	}

	if c.Audio.MinSeconds < 0 || c.Audio.MaxSeconds < 0 {
		return errors.New("audio.min_seconds and audio.max_seconds must be >= 0")
	}

	if c.Audio.MaxSeconds > 0 && c.Audio.MaxSeconds < c.Audio.MinSeconds {
		return fmt.Errorf("audio.max_seconds (%g) must be >= audio.min_seconds (%g)", c.Audio.MaxSeconds, c.Audio.MinSeconds)
	}

	switch c.Inject.Method {
	case "none", "clipboard", "paste", "type":
	default:
		return fmt.Errorf("inject.method must be none, clipboard, paste, or type, got %q", c.Inject.Method)
	}

	if c.Remote.Timeout <= 0 {
		return errors.New("remote.timeout must be > 0")
	}

	if c.Download.Timeout < 0 {
		return errors.New("download.timeout must be >= 0")
	}

	if c.Web.Enabled && c.Web.Addr == "" {
		return errors.New("web.addr must not be empty when web.enabled")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level string to a slog.Level. Unknown values
// yield info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// defaultTemplate is written by WriteDefault. It must decode to Default().
const defaultTemplate = `# whisperclip configuration
#
# The active transcription backend (local model size or remote provider)
# is chosen at runtime with "whisperclip ctl" and persisted separately.

# data_dir holds history.db, the credential key and downloaded models.
# data_dir: ~/.local/share/whisperclip
# models_dir: ~/.local/share/whisperclip/models

log_level: info # debug, info, warn, error

audio:
  sample_rate: 16000
  channels: 1
  min_seconds: 0.3
  max_seconds: 300 # 0 = unbounded

hotkey:
  enabled: true
  keys: ["ctrl", "shift", "r"]
  cancel_keys: ["esc"]
  mode: hold # hold or toggle

inject:
  method: paste # none, clipboard, paste, type

sound_notification: false

remote:
  timeout: 60s

download:
  timeout: 30m

whisper:
  binary: whisper-cli
  language: auto

dbus:
  enabled: true

web:
  enabled: false
  addr: 127.0.0.1:7788
`

// WriteDefault writes the default config file if none exists. It returns
// the path written, or "" when a config file is already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultTemplate), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
