package settings

import (
	"log/slog"
	"strings"

	"github.com/chaz8081/whisperclip/internal/backend"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

func firstEnv(lookup LookupFunc, keys ...string) string {
	for _, k := range keys {
		if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// FromEnv builds the first-run settings from the environment:
//
//	PRIMARY_TRANSCRIPTION_SERVICE  api (or groq) | local
//	API_BASE_URL                   default https://api.groq.com/openai/v1
//	API_KEY, GROQ_API_KEY
//	API_MODEL, GROQ_STT_MODEL
//
// A remote backend is seeded when the service is api/groq, or when it is
// unset and an API key is present. Otherwise the result is Default().
// A base URL matching a preset selects that preset; any other URL is a
// custom endpoint.
func FromEnv(lookup LookupFunc) Settings {
	st := Default()

	service := strings.ToLower(firstEnv(lookup, "PRIMARY_TRANSCRIPTION_SERVICE"))
	key := firstEnv(lookup, "API_KEY", "GROQ_API_KEY")
	switch service {
	case "api", "groq":
	case "":
		if key == "" {
			return st
		}
	default:
		return st
	}

	groq, _ := backend.PresetFor(backend.Groq)
	baseURL := firstEnv(lookup, "API_BASE_URL")
	if baseURL == "" {
		baseURL = groq.BaseURL
	}
	model := firstEnv(lookup, "API_MODEL", "GROQ_STT_MODEL")

	var active backend.Config
	for _, pr := range backend.Presets() {
		if strings.TrimRight(baseURL, "/") == pr.BaseURL {
			active, _ = backend.FromPreset(pr.Provider, "")
			if model != "" {
				active.Model = model
			}
			break
		}
	}
	if active.Kind == 0 {
		if model == "" {
			model = groq.DefaultModel
		}
		custom, err := backend.NewCustom(baseURL, "", model)
		if err != nil {
			slog.Warn("ignoring API environment", "error", err)
			return st
		}
		active = custom
	}

	st.Active = active
	return st.WithCredential(active.Label(), key)
}
