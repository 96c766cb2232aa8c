// Package dbusctl exposes the control surface on the D-Bus session bus so
// scripts and other desktop tools can drive whisperclip:
//
//	gdbus call --session --dest io.github.chaz8081.WhisperClip \
//	  --object-path /io/github/chaz8081/WhisperClip \
//	  --method io.github.chaz8081.WhisperClip.Execute select-provider groq
package dbusctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/chaz8081/whisperclip/internal/backend"
	"github.com/chaz8081/whisperclip/internal/control"
	"github.com/chaz8081/whisperclip/internal/models"
	"github.com/chaz8081/whisperclip/internal/session"
	"github.com/chaz8081/whisperclip/internal/transcribe"
)

const (
	BusName   = "io.github.chaz8081.WhisperClip"
	Interface = "io.github.chaz8081.WhisperClip"
	Path      = dbus.ObjectPath("/io/github/chaz8081/WhisperClip")

	// SignalStatusChanged carries the status JSON after every state change.
	SignalStatusChanged = Interface + ".StatusChanged"
)

// ErrNameTaken is returned by Serve when another instance owns BusName.
var ErrNameTaken = errors.New("dbusctl: bus name already owned; is whisperclip already running?")

// Surface is the command API exported on the bus.
type Surface interface {
	Execute(name, arg string) error
	Status() session.Status
}

// service is the exported object. Method names are the D-Bus member names.
type service struct {
	surface Surface
}

func (s *service) exec(name, arg string) *dbus.Error {
	if err := s.surface.Execute(name, arg); err != nil {
		return toDBusError(err)
	}
	return nil
}

func (s *service) Record() *dbus.Error { return s.exec(control.CmdRecord, "") }
func (s *service) Stop() *dbus.Error   { return s.exec(control.CmdStop, "") }
func (s *service) Cancel() *dbus.Error { return s.exec(control.CmdCancel, "") }
func (s *service) Toggle() *dbus.Error { return s.exec(control.CmdToggle, "") }

func (s *service) SelectProvider(label string) *dbus.Error {
	return s.exec(control.CmdSelectProvider, label)
}

func (s *service) SelectLocalSize(size string) *dbus.Error {
	return s.exec(control.CmdSelectLocalSize, size)
}

func (s *service) SetApiConfig(raw string) *dbus.Error {
	return s.exec(control.CmdSetAPIConfig, raw)
}

func (s *service) SetCredential(raw string) *dbus.Error {
	return s.exec(control.CmdSetCredential, raw)
}

// Execute runs any command by name; arg may be empty.
func (s *service) Execute(name, arg string) *dbus.Error {
	return s.exec(name, arg)
}

// Status returns the status snapshot as JSON.
func (s *service) Status() (string, *dbus.Error) {
	data, err := json.Marshal(s.surface.Status())
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

// Error names, one per failure class.
const (
	ErrorBusy              = Interface + ".Error.Busy"
	ErrorInvalidCommand    = Interface + ".Error.InvalidCommand"
	ErrorModelUnavailable  = Interface + ".Error.ModelUnavailable"
	ErrorMissingCredential = Interface + ".Error.MissingCredential"
	ErrorFailed            = "org.freedesktop.DBus.Error.Failed"
)

func errorName(err error) string {
	switch {
	case errors.Is(err, session.ErrBusy):
		return ErrorBusy
	case errors.Is(err, control.ErrInvalidCommand),
		errors.Is(err, backend.ErrInvalidConfig),
		errors.Is(err, backend.ErrUnknownProvider),
		errors.Is(err, models.ErrUnknownSize):
		return ErrorInvalidCommand
	case errors.Is(err, transcribe.ErrModelUnavailable):
		return ErrorModelUnavailable
	case errors.Is(err, transcribe.ErrMissingCredential):
		return ErrorMissingCredential
	default:
		return ErrorFailed
	}
}

func toDBusError(err error) *dbus.Error {
	return dbus.NewError(errorName(err), []any{err.Error()})
}

func introspectNode() *introspect.Node {
	str := func(name string) introspect.Arg { return introspect.Arg{Name: name, Type: "s", Direction: "in"} }
	return &introspect.Node{
		Name: string(Path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: Interface,
				Methods: []introspect.Method{
					{Name: "Record"},
					{Name: "Stop"},
					{Name: "Cancel"},
					{Name: "Toggle"},
					{Name: "SelectProvider", Args: []introspect.Arg{str("label")}},
					{Name: "SelectLocalSize", Args: []introspect.Arg{str("size")}},
					{Name: "SetApiConfig", Args: []introspect.Arg{str("json")}},
					{Name: "SetCredential", Args: []introspect.Arg{str("json")}},
					{Name: "Execute", Args: []introspect.Arg{str("command"), str("arg")}},
					{Name: "Status", Args: []introspect.Arg{{Name: "json", Type: "s", Direction: "out"}}},
				},
				Signals: []introspect.Signal{
					{Name: "StatusChanged", Args: []introspect.Arg{{Name: "json", Type: "s"}}},
				},
			},
		},
	}
}

// Serve claims BusName on the session bus, exports surface, and emits
// StatusChanged for every event until ctx is done.
func Serve(ctx context.Context, surface Surface, events *session.EventBus, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("dbusctl: connect session bus: %w", err)
	}
	defer conn.Close()

	svc := &service{surface: surface}
	if err := conn.Export(svc, Path, Interface); err != nil {
		return fmt.Errorf("dbusctl: export: %w", err)
	}
	if err := conn.Export(introspect.NewIntrospectable(introspectNode()), Path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("dbusctl: export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("dbusctl: request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return ErrNameTaken
	}
	logger.Info("D-Bus control surface ready", "name", BusName, "path", Path)

	ch, unsubscribe := events.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Type != session.EventStateChanged && ev.Type != session.EventBackendChanged &&
				ev.Type != session.EventDownloadProgress {
				continue
			}
			status, _ := svc.Status()
			if err := conn.Emit(Path, SignalStatusChanged, status); err != nil {
				logger.Warn("D-Bus emit failed", "error", err)
			}
		}
	}
}
