// Package notify sounds a beep and shows a desktop notification when a
// transcription finishes, using beeep.
package notify

import (
	"context"
	"log/slog"

	"github.com/gen2brain/beeep"

	"github.com/chaz8081/whisperclip/internal/session"
)

// AppName is shown as the notification title.
const AppName = "WhisperClip"

// maxBody caps the transcript preview in a notification.
const maxBody = 120

// Alerter is the subset of beeep the notifier drives.
type Alerter interface {
	Beep() error
	Notify(title, message string) error
}

// Desktop is the beeep-backed Alerter.
type Desktop struct{}

func (Desktop) Beep() error { return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration) }

func (Desktop) Notify(title, message string) error { return beeep.Notify(title, message, "") }

// Notifier reacts to transcription outcomes.
type Notifier struct {
	alert  Alerter
	sound  bool
	logger *slog.Logger
}

// New creates a Notifier. sound enables the completion beep; failures are
// always shown as a desktop notification. A nil alert uses Desktop.
func New(alert Alerter, sound bool, logger *slog.Logger) *Notifier {
	if alert == nil {
		beeep.AppName = AppName
		alert = Desktop{}
	}
	return &Notifier{alert: alert, sound: sound, logger: logger}
}

// Run handles events until events is closed or ctx is done.
func (n *Notifier) Run(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.handle(ev)
		}
	}
}

func (n *Notifier) handle(ev session.Event) {
	switch ev.Type {
	case session.EventTranscriptionCompleted:
		if !n.sound {
			return
		}
		if err := n.alert.Beep(); err != nil {
			n.logger.Debug("beep failed", "error", err)
		}
		if err := n.alert.Notify(AppName, preview(ev.Text)); err != nil {
			n.logger.Debug("notification failed", "error", err)
		}
	case session.EventTranscriptionFailed, session.EventDownloadFailed:
		msg := "Transcription failed: " + ev.Message
		if ev.Type == session.EventDownloadFailed {
			msg = "Model download failed: " + ev.Message
		}
		if err := n.alert.Notify(AppName, msg); err != nil {
			n.logger.Debug("notification failed", "error", err)
		}
	}
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= maxBody {
		return text
	}
	return string(r[:maxBody]) + "…"
}
