package hotkey

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chaz8081/whisperclip/internal/session"
)

// Target receives the commands bound to hotkeys. *control.Surface
// satisfies it.
type Target interface {
	Record() error
	Stop() error
	Toggle() error
	Cancel() error
}

// Drive forwards hotkey events to target until events is closed or ctx is
// done. Rejected commands are logged; Busy rejections are expected with key
// auto-repeat and log at debug.
func Drive(ctx context.Context, events <-chan Event, target Target, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := dispatch(ev, target); err != nil {
				if errors.Is(err, session.ErrBusy) {
					logger.Debug("hotkey command rejected", "event", ev.Type, "error", err)
				} else {
					logger.Warn("hotkey command failed", "event", ev.Type, "error", err)
				}
			}
		}
	}
}

func dispatch(ev Event, target Target) error {
	switch ev.Type {
	case EventStart:
		return target.Record()
	case EventStop:
		return target.Stop()
	case EventToggle:
		return target.Toggle()
	case EventCancel:
		return target.Cancel()
	}
	return nil
}
