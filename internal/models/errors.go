package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSize is returned for labels or values outside the catalog.
	ErrUnknownSize = errors.New("models: unknown model size")

	// ErrNetwork classifies download failures caused by the remote side or
	// the connection, including cancellation.
	ErrNetwork = errors.New("models: network error")

	// ErrDisk classifies download failures caused by the local filesystem.
	ErrDisk = errors.New("models: disk error")
)

// DownloadError reports a failed artifact download. Kind is ErrNetwork or
// ErrDisk and matches with errors.Is.
type DownloadError struct {
	Kind error
	Size Size
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("models: download %s: %v: %v", e.Size, e.Kind, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNetwork) and errors.Is(err, ErrDisk) match on Kind.
func (e *DownloadError) Is(target error) bool {
	return target == e.Kind
}

func networkErr(size Size, err error) error {
	return &DownloadError{Kind: ErrNetwork, Size: size, Err: err}
}

func diskErr(size Size, err error) error {
	return &DownloadError{Kind: ErrDisk, Size: size, Err: err}
}
