package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// TranscriptionPath is appended to a provider's base URL.
const TranscriptionPath = "/audio/transcriptions"

// DefaultRemoteTimeout bounds one remote transcription call.
const DefaultRemoteTimeout = 60 * time.Second

// RemoteOptions configures a RemoteTranscriber.
type RemoteOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	RequireKey bool
	Timeout    time.Duration
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// RemoteTranscriber posts WAV audio to an OpenAI-compatible endpoint.
type RemoteTranscriber struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// NewRemoteTranscriber validates opts. It fails with ErrMissingCredential
// when the provider requires a key and none was given.
func NewRemoteTranscriber(opts RemoteOptions) (*RemoteTranscriber, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("transcribe: base URL is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("transcribe: model is required")
	}
	if opts.RequireKey && strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("transcribe: %w for %s", ErrMissingCredential, base)
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultRemoteTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &RemoteTranscriber{
		url:    base + TranscriptionPath,
		apiKey: strings.TrimSpace(opts.APIKey),
		model:  opts.Model,
		client: client,
	}, nil
}

// Transcribe sends the utterance as a multipart form and parses {"text": ...}.
func (r *RemoteTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", fmt.Errorf("transcribe: %w", ErrNoAudio)
	}

	wavData, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	header.Set("Content-Type", "audio/wav")
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", fmt.Errorf("transcribe: write audio data: %w", err)
	}
	if err := writer.WriteField("model", r.model); err != nil {
		return "", fmt.Errorf("transcribe: write model field: %w", err)
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("transcribe: write response_format field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w: reading response: %v", ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &APIError{Kind: ErrAuth, StatusCode: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &APIError{Kind: ErrRateLimited, StatusCode: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &APIError{Kind: ErrProtocol, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || result.Text == nil {
		return "", &APIError{Kind: ErrProtocol, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return strings.TrimSpace(*result.Text), nil
}

// Close is a no-op; idle connections belong to the shared client.
func (r *RemoteTranscriber) Close() error {
	return nil
}
