package dbusctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/chaz8081/whisperclip/internal/control"
	"github.com/chaz8081/whisperclip/internal/session"
)

// Client calls a running whisperclip over the session bus.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Dial connects to the session bus.
func Dial() (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("dbusctl: connect session bus: %w", err)
	}
	return &Client{conn: conn, obj: conn.Object(BusName, Path)}, nil
}

// Close releases the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Execute runs a command on the remote instance.
func (c *Client) Execute(ctx context.Context, name, arg string) error {
	call := c.obj.CallWithContext(ctx, Interface+".Execute", 0, name, arg)
	return remoteError(call.Err)
}

// Status fetches the remote status snapshot and its raw JSON.
func (c *Client) Status(ctx context.Context) (session.Status, json.RawMessage, error) {
	var raw string
	if err := c.obj.CallWithContext(ctx, Interface+".Status", 0).Store(&raw); err != nil {
		return session.Status{}, nil, remoteError(err)
	}
	var st session.Status
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return session.Status{}, nil, fmt.Errorf("dbusctl: decode status: %w", err)
	}
	return st, json.RawMessage(raw), nil
}

// Watch streams the status carried by StatusChanged signals until ctx is
// done or the connection closes.
func (c *Client) Watch(ctx context.Context) (<-chan session.Status, error) {
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(Path),
		dbus.WithMatchInterface(Interface),
		dbus.WithMatchMember("StatusChanged"),
	}
	if err := c.conn.AddMatchSignalContext(ctx, match...); err != nil {
		return nil, fmt.Errorf("dbusctl: add match: %w", err)
	}

	sigs := make(chan *dbus.Signal, 16)
	c.conn.Signal(sigs)
	out := make(chan session.Status, 16)
	go func() {
		defer close(out)
		defer c.conn.RemoveSignal(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-sigs:
				if !ok {
					return
				}
				st, ok := decodeStatusSignal(sig)
				if !ok {
					continue
				}
				select {
				case out <- st:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeStatusSignal(sig *dbus.Signal) (session.Status, bool) {
	if sig == nil || sig.Name != SignalStatusChanged || len(sig.Body) != 1 {
		return session.Status{}, false
	}
	raw, ok := sig.Body[0].(string)
	if !ok {
		return session.Status{}, false
	}
	var st session.Status
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return session.Status{}, false
	}
	return st, true
}

// RemoteError is a failure reported by the running instance.
type RemoteError struct {
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Message
}

// Is maps bus error names back to the local sentinels.
func (e *RemoteError) Is(target error) bool {
	switch e.Name {
	case ErrorBusy:
		return target == session.ErrBusy
	case ErrorInvalidCommand:
		return target == control.ErrInvalidCommand
	case ErrorModelUnavailable:
		return target == session.ErrModelUnavailable
	case ErrorMissingCredential:
		return target == session.ErrMissingCredential
	}
	return false
}

func remoteError(err error) error {
	if err == nil {
		return nil
	}
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return fromDBusError(dbusErr)
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) && dbusErrPtr != nil {
		return fromDBusError(*dbusErrPtr)
	}
	return fmt.Errorf("dbusctl: %w", err)
}

func fromDBusError(e dbus.Error) *RemoteError {
	re := &RemoteError{Name: e.Name}
	if len(e.Body) > 0 {
		if msg, ok := e.Body[0].(string); ok {
			re.Message = msg
		}
	}
	return re
}
