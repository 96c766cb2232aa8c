package dbusctl

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/chaz8081/whisperclip/internal/control"
	"github.com/chaz8081/whisperclip/internal/session"
)

type fakeSurface struct {
	name, arg string
	err       error
}

func (f *fakeSurface) Execute(name, arg string) error {
	f.name, f.arg = name, arg
	return f.err
}

func (f *fakeSurface) Status() session.Status {
	return session.Status{State: session.DownloadingModel, Backend: "local-base", Target: "local-small", Progress: &session.Progress{Done: 5, Total: 10}}
}

func TestServiceMethodsMapToCommands(t *testing.T) {
	fs := &fakeSurface{}
	svc := &service{surface: fs}

	tests := []struct {
		call     func() *dbus.Error
		wantName string
		wantArg  string
	}{
		{svc.Record, control.CmdRecord, ""},
		{svc.Stop, control.CmdStop, ""},
		{svc.Cancel, control.CmdCancel, ""},
		{svc.Toggle, control.CmdToggle, ""},
		{func() *dbus.Error { return svc.SelectProvider("groq") }, control.CmdSelectProvider, "groq"},
		{func() *dbus.Error { return svc.SelectLocalSize("local-tiny") }, control.CmdSelectLocalSize, "local-tiny"},
		{func() *dbus.Error { return svc.SetApiConfig(`{"base_url":"x","model":"y"}`) }, control.CmdSetAPIConfig, `{"base_url":"x","model":"y"}`},
		{func() *dbus.Error { return svc.Execute("stop", "") }, control.CmdStop, ""},
	}
	for _, tt := range tests {
		if err := tt.call(); err != nil {
			t.Fatalf("%s: error = %v", tt.wantName, err)
		}
		if fs.name != tt.wantName || fs.arg != tt.wantArg {
			t.Errorf("Execute(%q, %q), want (%q, %q)", fs.name, fs.arg, tt.wantName, tt.wantArg)
		}
	}
}

func TestStatusIsJSON(t *testing.T) {
	svc := &service{surface: &fakeSurface{}}
	raw, derr := svc.Status()
	if derr != nil {
		t.Fatalf("Status() error = %v", derr)
	}

	if !strings.Contains(raw, `"state":"downloading"`) {
		t.Errorf("status JSON %s does not name the state", raw)
	}
	var st session.Status
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		t.Fatalf("Status() is not JSON: %v (%s)", err, raw)
	}
	if st.State != session.DownloadingModel || st.Target != "local-small" || st.Progress == nil || st.Progress.Total != 10 {
		t.Errorf("status = %+v", st)
	}
}

func TestErrorNames(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", session.ErrBusy), ErrorBusy},
		{session.ErrNotRecording, ErrorBusy},
		{fmt.Errorf("%w: bad json", control.ErrInvalidCommand), ErrorInvalidCommand},
		{session.ErrModelUnavailable, ErrorModelUnavailable},
		{session.ErrMissingCredential, ErrorMissingCredential},
		{errors.New("disk full"), ErrorFailed},
	}
	for _, tt := range tests {
		if got := errorName(tt.err); got != tt.want {
			t.Errorf("errorName(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestServiceReturnsTypedBusErrors(t *testing.T) {
	svc := &service{surface: &fakeSurface{err: fmt.Errorf("session: cannot record while transcribing: %w", session.ErrBusy)}}
	derr := svc.Record()
	if derr == nil {
		t.Fatal("Record() should fail")
	}
	if derr.Name != ErrorBusy {
		t.Errorf("error name = %q, want %q", derr.Name, ErrorBusy)
	}
}

func TestRemoteErrorRoundTrip(t *testing.T) {
	for _, sentinel := range []error{session.ErrBusy, control.ErrInvalidCommand, session.ErrModelUnavailable, session.ErrMissingCredential} {
		wire := *toDBusError(fmt.Errorf("wrapped: %w", sentinel))
		err := remoteError(wire)
		if !errors.Is(err, sentinel) {
			t.Errorf("remoteError(%s) does not match %v", wire.Name, sentinel)
		}
		if !strings.Contains(err.Error(), "wrapped") {
			t.Errorf("message lost: %q", err.Error())
		}
	}
	if remoteError(nil) != nil {
		t.Error("remoteError(nil) should be nil")
	}
}

func TestIntrospectionListsMethods(t *testing.T) {
	data, err := xml.Marshal(introspectNode())
	if err != nil {
		t.Fatalf("xml.Marshal() error = %v", err)
	}
	for _, name := range []string{"SelectProvider", "SelectLocalSize", "SetApiConfig", "StatusChanged", Interface} {
		if !strings.Contains(string(data), name) {
			t.Errorf("introspection XML missing %s", name)
		}
	}
}

func TestDecodeStatusSignal(t *testing.T) {
	good := &dbus.Signal{
		Name: SignalStatusChanged,
		Body: []any{`{"state":"downloading","progress":{"done":5,"total":10},"backend":"local-base","target":"local-small"}`},
	}
	st, ok := decodeStatusSignal(good)
	if !ok {
		t.Fatal("decodeStatusSignal() rejected a valid signal")
	}
	if st.State != session.DownloadingModel || st.Progress == nil || st.Progress.Done != 5 || st.Target != "local-small" {
		t.Errorf("status = %+v", st)
	}

	bad := []*dbus.Signal{
		nil,
		{Name: "org.example.Other", Body: good.Body},
		{Name: SignalStatusChanged},
		{Name: SignalStatusChanged, Body: []any{42}},
		{Name: SignalStatusChanged, Body: []any{"not json"}},
	}
	for i, sig := range bad {
		if _, ok := decodeStatusSignal(sig); ok {
			t.Errorf("case %d: decodeStatusSignal() accepted %+v", i, sig)
		}
	}
}
