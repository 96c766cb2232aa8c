package control

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chaz8081/whisperclip/internal/backend"
	"github.com/chaz8081/whisperclip/internal/models"
	"github.com/chaz8081/whisperclip/internal/session"
)

type fakeController struct {
	mu       sync.Mutex
	calls    []string
	switched []backend.Config
	custom   APIConfig
	cred     Credential
	err      error

	block    chan struct{}
	inflight atomic.Int32
	overlap  atomic.Bool
}

func (f *fakeController) do(name string) error {
	if f.inflight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inflight.Add(-1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) StartRecording() error { return f.do("start") }
func (f *fakeController) StopRecording() error  { return f.do("stop") }
func (f *fakeController) Cancel() error         { return f.do("cancel") }
func (f *fakeController) Toggle() error         { return f.do("toggle") }

func (f *fakeController) SwitchBackend(cfg backend.Config) error {
	f.mu.Lock()
	f.switched = append(f.switched, cfg)
	f.mu.Unlock()
	return f.do("switch")
}

func (f *fakeController) SetCustomAPIConfig(baseURL, apiKey, model string) error {
	f.mu.Lock()
	f.custom = APIConfig{BaseURL: baseURL, APIKey: apiKey, Model: model}
	f.mu.Unlock()
	return f.do("custom")
}

func (f *fakeController) SetCredential(label, key string) error {
	f.mu.Lock()
	f.cred = Credential{Provider: label, APIKey: key}
	f.mu.Unlock()
	return f.do("credential")
}

func (f *fakeController) Status() session.Status {
	return session.Status{State: session.DownloadingModel, Backend: "local-base", Progress: &session.Progress{Done: 1, Total: 2}}
}

func (f *fakeController) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestExecuteDispatch(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		want string
	}{
		{CmdRecord, "", "start"},
		{CmdStop, "", "stop"},
		{CmdCancel, "", "cancel"},
		{CmdToggle, "", "toggle"},
		{CmdSelectProvider, "ollama", "switch"},
		{CmdSelectLocalSize, "local-small", "switch"},
		{CmdSetAPIConfig, `{"base_url":"http://localhost:11434/v1","model":"whisper"}`, "custom"},
		{CmdSetCredential, `{"provider":"groq","api_key":"gsk"}`, "credential"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeController{}
			s := New(fc, nil)
			if err := s.Execute(tt.name, tt.arg); err != nil {
				t.Fatalf("Execute(%s) error = %v", tt.name, err)
			}
			calls := fc.callList()
			if len(calls) != 1 || calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", calls, tt.want)
			}
		})
	}
}

func TestSelectProviderBuildsPreset(t *testing.T) {
	fc := &fakeController{}
	s := New(fc, nil)
	if err := s.SelectProvider("groq"); err != nil {
		t.Fatal(err)
	}
	cfg := fc.switched[0]
	if cfg.Kind != backend.KindRemote || cfg.BaseURL != "https://api.groq.com/openai/v1" || cfg.Model != "whisper-large-v3-turbo" {
		t.Errorf("switched to %+v", cfg)
	}

	if err := s.SelectLocalSize("local-medium"); err != nil {
		t.Fatal(err)
	}
	if !fc.switched[1].Equal(backend.Local(models.Medium)) {
		t.Errorf("switched to %+v, want local-medium", fc.switched[1])
	}
}

func TestSelectLocalSizeAcceptsActiveLabel(t *testing.T) {
	for _, size := range []models.Size{models.Tiny, models.Base, models.Small, models.Medium} {
		want := backend.Local(size)
		fc := &fakeController{}
		if err := New(fc, nil).SelectLocalSize(want.Label()); err != nil {
			t.Fatalf("SelectLocalSize(%q) error = %v", want.Label(), err)
		}
		if !fc.switched[0].Equal(want) {
			t.Errorf("switched to %+v, want %s", fc.switched[0], want.Label())
		}
	}
}

func TestInvalidCommandsLeaveControllerUntouched(t *testing.T) {
	tests := []struct {
		name string
		arg  string
	}{
		{"dance", ""},
		{CmdRecord, "now"},
		{CmdSelectProvider, "openai"},
		{CmdSelectProvider, "custom"},
		{CmdSelectProvider, ""},
		{CmdSelectLocalSize, "base"},
		{CmdSelectLocalSize, "local-large"},
		{CmdSetAPIConfig, "not json"},
		{CmdSetAPIConfig, `["http://x","m"]`},
		{CmdSetAPIConfig, `{"base_url":"http://x"}`},
		{CmdSetAPIConfig, `{"model":"whisper"}`},
		{CmdSetAPIConfig, `{"base_url":"  ","model":"whisper"}`},
		{CmdSetAPIConfig, `{"base_url":42,"model":"whisper"}`},
		{CmdSetCredential, `{"provider":"groq"}`},
		{CmdSetCredential, `{"provider":"nope","api_key":"k"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.arg, func(t *testing.T) {
			fc := &fakeController{}
			err := New(fc, nil).Execute(tt.name, tt.arg)
			if !errors.Is(err, ErrInvalidCommand) {
				t.Fatalf("Execute(%q, %q) error = %v, want ErrInvalidCommand", tt.name, tt.arg, err)
			}
			if calls := fc.callList(); len(calls) != 0 {
				t.Errorf("controller called: %v", calls)
			}
		})
	}
}

func TestParseAPIConfigIgnoresExtraFields(t *testing.T) {
	got, err := ParseAPIConfig(`{"base_url":" http://localhost:1234/v1 ","model":"whisper-1","api_key":"k","temperature":0.2}`)
	if err != nil {
		t.Fatalf("ParseAPIConfig() error = %v", err)
	}
	want := APIConfig{BaseURL: "http://localhost:1234/v1", Model: "whisper-1", APIKey: "k"}
	if got != want {
		t.Errorf("ParseAPIConfig() = %+v, want %+v", got, want)
	}
}

func TestParseCredentialNormalizesLabel(t *testing.T) {
	got, err := ParseCredential(`{"provider":"OpenRouter","api_key":""}`)
	if err != nil {
		t.Fatalf("ParseCredential() error = %v", err)
	}
	if got.Provider != "openrouter" || got.APIKey != "" {
		t.Errorf("ParseCredential() = %+v", got)
	}
}

func TestControllerErrorsPassThrough(t *testing.T) {
	fc := &fakeController{err: session.ErrBusy}
	if err := New(fc, nil).Record(); !errors.Is(err, session.ErrBusy) {
		t.Errorf("Record() error = %v, want ErrBusy", err)
	}
}

func TestCommandsAreSerialized(t *testing.T) {
	fc := &fakeController{block: make(chan struct{})}
	s := New(fc, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Toggle()
		}()
	}

	// Status must not wait behind the blocked command.
	done := make(chan session.Status, 1)
	go func() { done <- s.Status() }()
	select {
	case st := <-done:
		if st.Progress == nil || st.Progress.Done != 1 {
			t.Errorf("Status() = %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("Status() blocked behind a running command")
	}

	for i := 0; i < 4; i++ {
		fc.block <- struct{}{}
	}
	wg.Wait()

	if fc.overlap.Load() {
		t.Error("two commands ran concurrently")
	}
	if n := len(fc.callList()); n != 4 {
		t.Errorf("calls = %d, want 4", n)
	}
}

func TestCommandsListed(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range Commands() {
		seen[c.Name] = true
	}
	for _, name := range []string{CmdRecord, CmdStop, CmdSelectProvider, CmdSelectLocalSize, CmdSetAPIConfig} {
		if !seen[name] {
			t.Errorf("Commands() missing %s", name)
		}
	}
}
