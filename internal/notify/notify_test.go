package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/chaz8081/whisperclip/internal/session"
)

type fakeAlerter struct {
	beeps    int
	messages []string
	err      error
}

func (f *fakeAlerter) Beep() error {
	f.beeps++
	return f.err
}

func (f *fakeAlerter) Notify(title, message string) error {
	f.messages = append(f.messages, title+": "+message)
	return f.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func run(n *Notifier, evs ...session.Event) {
	ch := make(chan session.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	n.Run(context.Background(), ch)
}

func TestCompletionSoundEnabled(t *testing.T) {
	a := &fakeAlerter{}
	run(New(a, true, discard()),
		session.Event{Type: session.EventStateChanged},
		session.Event{Type: session.EventTranscriptionCompleted, Text: "hello"},
	)
	if a.beeps != 1 {
		t.Errorf("beeps = %d, want 1", a.beeps)
	}
	if len(a.messages) != 1 || a.messages[0] != "WhisperClip: hello" {
		t.Errorf("messages = %v", a.messages)
	}
}

func TestCompletionSoundDisabled(t *testing.T) {
	a := &fakeAlerter{}
	run(New(a, false, discard()), session.Event{Type: session.EventTranscriptionCompleted, Text: "hello"})
	if a.beeps != 0 || len(a.messages) != 0 {
		t.Errorf("beeps = %d messages = %v, want none", a.beeps, a.messages)
	}
}

func TestFailuresAlwaysNotify(t *testing.T) {
	a := &fakeAlerter{err: errors.New("no dbus")}
	run(New(a, false, discard()),
		session.Event{Type: session.EventTranscriptionFailed, Message: "unauthorized"},
		session.Event{Type: session.EventDownloadFailed, Message: "download cancelled"},
	)
	if len(a.messages) != 2 {
		t.Fatalf("messages = %v, want 2", a.messages)
	}
	if !strings.Contains(a.messages[0], "unauthorized") || !strings.Contains(a.messages[1], "Model download failed") {
		t.Errorf("messages = %v", a.messages)
	}
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("é", maxBody+10)
	got := preview(long)
	if n := len([]rune(got)); n != maxBody+1 {
		t.Errorf("preview rune length = %d, want %d", n, maxBody+1)
	}
	if preview("short") != "short" {
		t.Error("short text should be unchanged")
	}
}
