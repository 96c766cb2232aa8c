// Package settings persists the active backend and per-provider API keys.
package settings

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/chaz8081/whisperclip/internal/backend"
	"github.com/chaz8081/whisperclip/internal/models"
)

// Key is the KV key of the single settings record.
const Key = "settings"

// KV is the persistent key-value store the record lives in.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// Sealer encrypts credentials at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Settings is the persisted state: the active backend and API keys by
// provider label. Active never carries a key; use Key/WithCredential.
type Settings struct {
	Active      backend.Config
	Credentials map[string]string
}

// Default is the first-run record: local base model, no credentials.
func Default() Settings {
	return Settings{Active: backend.Local(models.Base), Credentials: map[string]string{}}
}

// Credential returns the stored key for label.
func (s Settings) Credential(label string) string {
	return s.Credentials[label]
}

// WithCredential returns a copy of s with key stored under label. An empty
// key removes the entry.
func (s Settings) WithCredential(label, key string) Settings {
	s = s.Clone()
	key = strings.TrimSpace(key)
	if key == "" {
		delete(s.Credentials, label)
	} else {
		s.Credentials[label] = key
	}
	return s
}

// Clone returns a copy of s that shares no map with it.
func (s Settings) Clone() Settings {
	s.Credentials = maps.Clone(s.Credentials)
	if s.Credentials == nil {
		s.Credentials = map[string]string{}
	}
	return s
}

// Store loads and saves Settings through a KV.
type Store struct {
	kv     KV
	sealer Sealer
	seed   Settings
}

// NewStore returns a Store over kv. seed is returned by Load until the first
// Save. sealer may be nil, in which case keys are stored in plain text.
func NewStore(kv KV, sealer Sealer, seed Settings) *Store {
	return &Store{kv: kv, sealer: sealer, seed: seed}
}

type record struct {
	ActiveBackend backend.Config    `json:"active_backend"`
	Credentials   map[string]string `json:"credentials,omitempty"`
}

// Load reads the record, or returns the seed if none was saved yet.
func (s *Store) Load() (Settings, error) {
	raw, ok, err := s.kv.Get(Key)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: load: %w", err)
	}
	if !ok {
		return s.seed.Clone(), nil
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Settings{}, fmt.Errorf("settings: decode: %w", err)
	}

	out := Settings{Active: rec.ActiveBackend, Credentials: make(map[string]string, len(rec.Credentials))}
	for label, value := range rec.Credentials {
		key, err := s.open(value)
		if err != nil {
			return Settings{}, fmt.Errorf("settings: credential for %s: %w", label, err)
		}
		out.Credentials[label] = key
	}
	return out, nil
}

// Init is Load for the daemon: on first run the seed is saved, so later
// starts read the stored record instead of re-deriving it.
func (s *Store) Init() (Settings, error) {
	_, ok, err := s.kv.Get(Key)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: load: %w", err)
	}
	if ok {
		return s.Load()
	}
	seed := s.seed.Clone()
	if err := s.Save(seed); err != nil {
		return Settings{}, err
	}
	return seed, nil
}

// Save writes st as the single settings record.
func (s *Store) Save(st Settings) error {
	rec := record{ActiveBackend: st.Active, Credentials: make(map[string]string, len(st.Credentials))}
	for label, key := range st.Credentials {
		sealed, err := s.seal(key)
		if err != nil {
			return fmt.Errorf("settings: seal credential for %s: %w", label, err)
		}
		rec.Credentials[label] = sealed
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := s.kv.Set(Key, string(data)); err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	return nil
}

func (s *Store) seal(key string) (string, error) {
	if s.sealer == nil {
		return key, nil
	}
	return s.sealer.Seal(key)
}

func (s *Store) open(value string) (string, error) {
	if s.sealer == nil {
		return value, nil
	}
	return s.sealer.Open(value)
}
