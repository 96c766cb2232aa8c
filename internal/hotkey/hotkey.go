// Package hotkey provides a global hotkey listener using gohook.
// It supports "hold" mode (press to record, release to stop) and
// "toggle" mode (each press toggles recording). An optional cancel combo
// aborts a recording or a model download.
package hotkey

import (
	"fmt"
	"sync"

	hook "github.com/robotn/gohook"
)

// Mode selects how the record combo maps to commands.
type Mode string

const (
	ModeHold   Mode = "hold"
	ModeToggle Mode = "toggle"
)

// ParseMode accepts "hold" or "toggle".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeHold, ModeToggle:
		return Mode(s), nil
	}
	return "", fmt.Errorf("hotkey: unknown mode %q (want hold or toggle)", s)
}

// EventType is the command a key event stands for.
type EventType int

const (
	// EventStart is a record-combo press in hold mode.
	EventStart EventType = iota
	// EventStop is a record-combo release in hold mode.
	EventStop
	// EventToggle is a record-combo press in toggle mode.
	EventToggle
	// EventCancel is a cancel-combo press.
	EventCancel
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventToggle:
		return "toggle"
	case EventCancel:
		return "cancel"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener manages the global hotkeys and emits events.
type Listener struct {
	keys       []string
	cancelKeys []string
	mode       Mode
	ch         chan Event
	done       chan struct{}
	once       sync.Once
}

// NewListener creates a Listener for the record combo and an optional
// cancel combo. Key names are lowercase (e.g. ["ctrl", "shift", "r"]).
func NewListener(keys, cancelKeys []string, mode Mode) *Listener {
	return &Listener{
		keys:       keys,
		cancelKeys: cancelKeys,
		mode:       mode,
		ch:         make(chan Event, 16),
		done:       make(chan struct{}),
	}
}

// Events returns the channel that receives hotkey events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start registers the hooks and blocks until Stop is called.
// Run it in a goroutine.
func (l *Listener) Start() {
	if l.mode == ModeToggle {
		hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.emit(EventToggle) })
	} else {
		hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.emit(EventStart) })
		hook.Register(hook.KeyUp, l.keys, func(hook.Event) { l.emit(EventStop) })
	}
	if len(l.cancelKeys) > 0 {
		hook.Register(hook.KeyDown, l.cancelKeys, func(hook.Event) { l.emit(EventCancel) })
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

func (l *Listener) emit(t EventType) {
	select {
	case l.ch <- Event{Type: t}:
	default: // don't block the hook thread
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
