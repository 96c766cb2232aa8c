package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Engine runs whisper inference for one utterance. samples are mono 16 kHz.
type Engine interface {
	Infer(ctx context.Context, modelPath string, samples []float32) (string, error)
}

// LocalTranscriber runs a whisper model file through an Engine.
type LocalTranscriber struct {
	modelPath string
	engine    Engine
}

// NewLocalTranscriber binds engine to the model at modelPath. It fails with
// ErrModelUnavailable if the file is missing or empty; it never downloads.
func NewLocalTranscriber(modelPath string, engine Engine) (*LocalTranscriber, error) {
	if engine == nil {
		return nil, errors.New("transcribe: local engine is nil")
	}
	info, err := os.Stat(modelPath)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return nil, fmt.Errorf("transcribe: %w: %s", ErrModelUnavailable, modelPath)
	}
	return &LocalTranscriber{modelPath: modelPath, engine: engine}, nil
}

// Transcribe resamples to TargetSampleRate and invokes the engine.
func (t *LocalTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", fmt.Errorf("transcribe: %w", ErrNoAudio)
	}
	if _, err := os.Stat(t.modelPath); err != nil {
		return "", fmt.Errorf("transcribe: %w: %s", ErrModelUnavailable, t.modelPath)
	}

	pcm := Resample(samples, sampleRate, TargetSampleRate)
	text, err := t.engine.Infer(ctx, t.modelPath, pcm)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w: %v", ErrInference, err)
	}
	return text, nil
}

// Close is a no-op; the engine owns no per-transcriber resources.
func (t *LocalTranscriber) Close() error {
	return nil
}
