package backend

import (
	"fmt"
	"net/http"
	"time"

	"github.com/chaz8081/whisperclip/internal/models"
	"github.com/chaz8081/whisperclip/internal/transcribe"
)

// ModelPaths resolves where a local model artifact lives.
type ModelPaths interface {
	Path(size models.Size) string
}

// Factory builds Transcribers for configs.
type Factory struct {
	Models ModelPaths
	Engine transcribe.Engine
	// Timeout bounds each remote call; zero uses transcribe.DefaultRemoteTimeout.
	Timeout time.Duration
	Client  *http.Client
}

// New constructs the Transcriber for c. Local configs fail with
// transcribe.ErrModelUnavailable when the artifact is absent; remote configs
// fail with transcribe.ErrMissingCredential when a required key is empty.
func (f Factory) New(c Config) (transcribe.Transcriber, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	switch c.Kind {
	case KindLocal:
		if f.Models == nil {
			return nil, fmt.Errorf("backend: no model store for %s", c.Label())
		}
		return transcribe.NewLocalTranscriber(f.Models.Path(c.Size), f.Engine)
	default:
		return transcribe.NewRemoteTranscriber(transcribe.RemoteOptions{
			BaseURL:    c.BaseURL,
			APIKey:     c.APIKey,
			Model:      c.Model,
			RequireKey: c.RequiresKey(),
			Timeout:    f.Timeout,
			Client:     f.Client,
		})
	}
}
