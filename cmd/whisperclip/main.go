// Command whisperclip is a push-to-talk dictation daemon. It records from
// the microphone, transcribes with a local whisper model or an
// OpenAI-compatible service, and delivers the text to the desktop.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/chaz8081/whisperclip/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "whisperclip",
	Short: "Push-to-talk speech-to-text for the desktop",
	Long: `whisperclip records speech, transcribes it, and pastes the result.

Modes:
  whisperclip              Run the daemon (same as "whisperclip run")
  whisperclip ctl <cmd>    Send a command to the running daemon
  whisperclip models list  Show local models and which is downloaded
  whisperclip history      Show recent transcriptions`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	RunE:         runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to config file (default: ~/.config/whisperclip/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults. Environment
// overrides are applied last.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func readConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}

// newLogger builds the process logger: tint on stderr, colored when
// stderr is a terminal.
func newLogger(level string) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      config.ParseLogLevel(level),
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}
