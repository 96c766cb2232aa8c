package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// commandResult is the captured output of one process run.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
	}
	return res, err
}

// WhisperCLI is an Engine backed by the whisper.cpp command-line binary.
// Each call writes the utterance to a temporary WAV file that is removed
// before Infer returns.
type WhisperCLI struct {
	binary   string
	language string
	runner   commandRunner
}

// NewWhisperCLI creates an engine that runs binary (e.g. "whisper-cli").
func NewWhisperCLI(binary, language string) *WhisperCLI {
	if binary == "" {
		binary = "whisper-cli"
	}
	return &WhisperCLI{binary: binary, language: language, runner: execRunner{}}
}

// Infer transcribes mono 16kHz float32 audio samples with the given model.
func (w *WhisperCLI) Infer(ctx context.Context, modelPath string, samples []float32) (string, error) {
	f, err := os.CreateTemp("", "whisperclip-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp wav: %w", err)
	}
	wavPath := f.Name()
	defer os.Remove(wavPath)

	writeErr := writeWAV(f, samples, TargetSampleRate)
	closeErr := f.Close()
	if writeErr != nil {
		return "", writeErr
	}
	if closeErr != nil {
		return "", fmt.Errorf("close temp wav: %w", closeErr)
	}

	args := buildWhisperArgs(modelPath, wavPath, w.language)
	res, err := w.runner.Run(ctx, w.binary, args...)
	if err != nil {
		stderr := strings.TrimSpace(res.Stderr)
		if stderr != "" {
			return "", fmt.Errorf("%s exited %d: %s", w.binary, res.ExitCode, stderr)
		}
		return "", fmt.Errorf("%s: %w", w.binary, err)
	}

	return joinSegments(res.Stdout), nil
}

// buildWhisperArgs builds whisper.cpp args for plain-text output on stdout.
func buildWhisperArgs(modelPath, audioPath, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-nt",
		"-np",
	}
	if lang := strings.TrimSpace(language); lang != "" {
		args = append(args, "-l", lang)
	}
	return args
}

// joinSegments collapses whisper's one-segment-per-line output.
func joinSegments(stdout string) string {
	var segments []string
	for _, line := range strings.Split(stdout, "\n") {
		if seg := strings.TrimSpace(line); seg != "" {
			segments = append(segments, seg)
		}
	}
	return strings.TrimSpace(strings.Join(segments, " "))
}
