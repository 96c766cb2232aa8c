// Package transcribe provides speech-to-text backends.
//
// Supported backends:
//   - local: whisper.cpp model file on disk, driven through an Engine
//   - remote: any OpenAI-compatible /audio/transcriptions endpoint
package transcribe

import (
	"context"
	"errors"
	"fmt"
)

// TargetSampleRate is the rate whisper.cpp models expect.
const TargetSampleRate = 16000

// Transcriber converts one captured utterance to text. Transcribe blocks
// until the backend answers; callers run it off their control path.
type Transcriber interface {
	// Transcribe converts mono float32 samples captured at sampleRate.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
	// Close releases backend resources.
	Close() error
}

var (
	// ErrModelUnavailable means the local model artifact is missing.
	ErrModelUnavailable = errors.New("local model unavailable")

	// ErrMissingCredential means a remote provider needs an API key that was not supplied.
	ErrMissingCredential = errors.New("missing API credential")

	// ErrAuth is a 401/403 answer from a remote endpoint.
	ErrAuth = errors.New("authentication failed")

	// ErrRateLimited is a 429 answer from a remote endpoint. It is not retried.
	ErrRateLimited = errors.New("rate limited")

	// ErrNetwork covers connection failures and timeouts.
	ErrNetwork = errors.New("network error")

	// ErrProtocol covers unexpected statuses and malformed response bodies.
	ErrProtocol = errors.New("protocol error")

	// ErrInference is a local engine failure.
	ErrInference = errors.New("inference failed")

	// ErrNoAudio means the captured buffer was empty or too short to send.
	ErrNoAudio = errors.New("no audio recorded")
)

// maxBodyInError bounds how much of a response body is echoed in errors.
const maxBodyInError = 512

// APIError carries the HTTP status and raw body of a failed remote call.
// Kind is ErrAuth, ErrRateLimited, or ErrProtocol and matches with errors.Is.
type APIError struct {
	Kind       error
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	return fmt.Sprintf("transcribe: %v: HTTP %d: %s", e.Kind, e.StatusCode, body)
}

// Is lets errors.Is match on Kind.
func (e *APIError) Is(target error) bool {
	return target == e.Kind
}
