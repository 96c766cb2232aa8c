// Package models manages the local whisper.cpp model artifacts: which size
// variants exist on disk, downloading missing ones with progress reporting,
// and removing artifacts that are no longer needed.
package models

import (
	"fmt"
	"strings"
)

const defaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// Size identifies one local model variant. The zero value is not a valid size.
type Size int

const (
	Tiny Size = iota + 1
	Base
	Small
	Medium
)

// Model describes one downloadable size variant.
type Model struct {
	Size      Size
	ID        string
	Name      string
	FileName  string
	SizeLabel string
}

var catalog = []Model{
	{Size: Tiny, ID: "local-tiny", Name: "Tiny", FileName: "ggml-tiny.en.bin", SizeLabel: "~75 MB"},
	{Size: Base, ID: "local-base", Name: "Base", FileName: "ggml-base.en.bin", SizeLabel: "~142 MB"},
	{Size: Small, ID: "local-small", Name: "Small", FileName: "ggml-small.en.bin", SizeLabel: "~466 MB"},
	{Size: Medium, ID: "local-medium", Name: "Medium", FileName: "ggml-medium.en.bin", SizeLabel: "~1.5 GB"},
}

// Catalog returns a copy of the supported size variants, smallest first.
func Catalog() []Model {
	out := make([]Model, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the catalog entry for size.
func Lookup(size Size) (Model, bool) {
	for _, m := range catalog {
		if m.Size == size {
			return m, true
		}
	}
	return Model{}, false
}

// ParseSize accepts either the control-surface label ("local-base") or the
// bare name ("base"), case-insensitively.
func ParseSize(s string) (Size, error) {
	id := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(id, "local-") {
		id = "local-" + id
	}
	for _, m := range catalog {
		if m.ID == id {
			return m.Size, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSize, s)
}

// String returns the control-surface label, e.g. "local-base".
func (s Size) String() string {
	if m, ok := Lookup(s); ok {
		return m.ID
	}
	return fmt.Sprintf("Size(%d)", int(s))
}

// Valid reports whether s names a catalog entry.
func (s Size) Valid() bool {
	_, ok := Lookup(s)
	return ok
}

// MarshalText encodes the size as its label so persisted settings stay readable.
func (s Size) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSize, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a label produced by MarshalText.
func (s *Size) UnmarshalText(text []byte) error {
	parsed, err := ParseSize(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
