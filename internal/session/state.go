package session

import "fmt"

// State is the lifecycle state. Exactly one is current at any instant.
type State int

const (
	Idle State = iota
	Recording
	Transcribing
	DownloadingModel
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	case DownloadingModel:
		return "downloading"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Recording, Transcribing, DownloadingModel} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", text)
}

// Progress is the payload of DownloadingModel. Total is -1 while unknown.
type Progress struct {
	Done  int64 `json:"done"`
	Total int64 `json:"total"`
}

// Fraction returns Done/Total in [0, 1], or 0 when Total is unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Done) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

// Status is a snapshot for UIs and automation clients.
type Status struct {
	State State `json:"state"`
	// Progress is set only in DownloadingModel.
	Progress *Progress `json:"progress,omitempty"`
	// Backend is the active backend label.
	Backend string `json:"backend"`
	// Target is the backend being downloaded, in DownloadingModel.
	Target string `json:"target,omitempty"`
	// Message is the last user-visible result or failure.
	Message string `json:"message,omitempty"`
}
