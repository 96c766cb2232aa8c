// Package audio captures microphone input into an in-memory mono buffer.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// ErrAlreadyRecording is returned by Start while a capture is open.
var ErrAlreadyRecording = errors.New("audio: already recording")

// Recorder captures audio from the default microphone into a float32 buffer.
// Frames beyond the configured maximum duration are dropped.
type Recorder struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	channels   uint32
	maxSamples int

	mu        sync.Mutex
	buf       []float32
	recording bool
	truncated bool
}

// NewRecorder creates a new audio recorder. maxDuration <= 0 means no cap.
// Call Close() when done.
func NewRecorder(sampleRate, channels uint32, maxDuration time.Duration) (*Recorder, error) {
	if sampleRate == 0 || channels == 0 {
		return nil, fmt.Errorf("audio: invalid format %d Hz x %d channels", sampleRate, channels)
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: initializing context: %w", err)
	}

	r := &Recorder{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}
	if maxDuration > 0 {
		r.maxSamples = int(maxDuration.Seconds() * float64(sampleRate) * float64(channels))
	}
	return r, nil
}

// SampleRate is the rate of the mono samples returned by Stop.
func (r *Recorder) SampleRate() int { return int(r.sampleRate) }

// Start begins capturing audio from the default microphone.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.buf = r.buf[:0] // reset buffer but keep capacity
	r.truncated = false
	r.recording = true
	r.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = r.channels
	deviceCfg.SampleRate = r.sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: r.onData,
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return fmt.Errorf("audio: initializing capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return fmt.Errorf("audio: starting capture device: %w", err)
	}

	r.mu.Lock()
	r.device = device
	r.mu.Unlock()

	return nil
}

// Stop tears the capture device down synchronously and returns the mono
// samples and their rate. It returns nil samples when not recording.
func (r *Recorder) Stop() ([]float32, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return nil, int(r.sampleRate)
	}

	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.recording = false

	return Downmix(r.buf, int(r.channels)), int(r.sampleRate)
}

// Truncated reports whether the last recording hit the duration cap.
func (r *Recorder) Truncated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.truncated
}

// IsRecording returns whether the recorder is currently capturing audio.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Close releases all audio resources.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.recording = false
	r.mu.Unlock()

	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return fmt.Errorf("audio: uninitializing context: %w", err)
		}
		r.ctx.Free()
		r.ctx = nil
	}

	return nil
}

// onData is the malgo callback invoked when audio data is available.
// pSample contains the captured audio frames as raw bytes (float32 format).
func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	samples := bytesToFloat32(pSample, frameCount*r.channels)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.buf, r.truncated = appendCapped(r.buf, samples, r.maxSamples, int(r.channels))
}

// appendCapped appends samples to buf without exceeding max (0 = no cap).
// The cut lands on a frame boundary. truncated is true when anything was dropped.
func appendCapped(buf, samples []float32, max, channels int) (out []float32, truncated bool) {
	if max <= 0 || len(buf)+len(samples) <= max {
		return append(buf, samples...), false
	}
	room := max - len(buf)
	if room < 0 {
		room = 0
	}
	room -= room % channels
	return append(buf, samples[:room]...), true
}

// Downmix averages interleaved frames into a mono signal. A mono input is
// returned as a copy.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
