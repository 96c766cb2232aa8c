// Package inject delivers finished transcriptions to the desktop using
// robotgo: copy to the clipboard, paste into the focused window, or type
// keystrokes.
package inject

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/go-vgo/robotgo"

	"github.com/chaz8081/whisperclip/internal/session"
)

// Method selects how text reaches the desktop.
type Method string

const (
	MethodNone      Method = "none"
	MethodClipboard Method = "clipboard"
	MethodPaste     Method = "paste"
	MethodType      Method = "type"
)

// ParseMethod accepts none, clipboard, paste or type.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodNone, MethodClipboard, MethodPaste, MethodType:
		return Method(s), nil
	}
	return "", fmt.Errorf("inject: unknown method %q", s)
}

// Desktop is the subset of robotgo the injector drives.
type Desktop interface {
	ReadClipboard() (string, error)
	WriteClipboard(text string) error
	TapPaste() error
	Type(text string)
}

// Robot is the robotgo-backed Desktop. Paste uses cmd+v on macOS and
// ctrl+v elsewhere.
type Robot struct{}

func (Robot) ReadClipboard() (string, error) { return robotgo.ReadAll() }

func (Robot) WriteClipboard(text string) error { return robotgo.WriteAll(text) }

func (Robot) TapPaste() error {
	mod := "ctrl"
	if runtime.GOOS == "darwin" {
		mod = "cmd"
	}
	return robotgo.KeyTap("v", mod)
}

func (Robot) Type(text string) { robotgo.Type(text) }

// Injector handles delivering text with one Method.
type Injector struct {
	method  Method
	desktop Desktop
}

// NewInjector creates an Injector. A nil desktop uses Robot.
func NewInjector(method Method, desktop Desktop) *Injector {
	if desktop == nil {
		desktop = Robot{}
	}
	return &Injector{method: method, desktop: desktop}
}

// Inject sends text to the desktop using the configured method.
func (inj *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}

	switch inj.method {
	case MethodNone:
		return nil
	case MethodClipboard:
		if err := inj.desktop.WriteClipboard(text); err != nil {
			return fmt.Errorf("inject: write to clipboard: %w", err)
		}
		return nil
	case MethodPaste:
		return inj.paste(text)
	default:
		inj.desktop.Type(text)
		return nil
	}
}

// paste copies text to the clipboard, taps the paste shortcut, then puts
// back what the clipboard held before.
func (inj *Injector) paste(text string) error {
	prev, _ := inj.desktop.ReadClipboard()

	if err := inj.desktop.WriteClipboard(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}
	if err := inj.desktop.TapPaste(); err != nil {
		return fmt.Errorf("inject: key tap paste: %w", err)
	}

	// best effort
	_ = inj.desktop.WriteClipboard(prev)
	return nil
}

// Run injects the text of every completed transcription until events is
// closed or ctx is done.
func (inj *Injector) Run(ctx context.Context, events <-chan session.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != session.EventTranscriptionCompleted {
				continue
			}
			if err := inj.Inject(ev.Text); err != nil {
				logger.Warn("inject failed", "method", inj.method, "session", ev.SessionID, "error", err)
				continue
			}
			logger.Debug("injected transcription", "method", inj.method, "chars", len(ev.Text))
		}
	}
}
