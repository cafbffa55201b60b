package fetch

import (
	"context"
	"regexp"
	"strings"

	"vidgo/internal/services"
)

// MediaKind classifies what a fetcher produced.
type MediaKind string

const (
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
)

// Params carries per-job fetch settings. Fetchers receive everything they
// need here rather than reading process globals.
type Params struct {
	// WorkDir is where the fetcher writes downloaded media.
	WorkDir string
	// UserAgent is sent on every platform request.
	UserAgent string
	// Credential is the platform session token, when one applies.
	Credential string
	// PartIndex selects a single part of a multi-part source (1-based).
	// Zero fetches every part.
	PartIndex int
	// OnProgress reports overall completion in [0, 1].
	OnProgress func(float64)
}

// IngestResult describes one downloaded media file and its metadata.
// Multi-part sources produce one result per part.
type IngestResult struct {
	Kind         MediaKind
	WorkFile     string
	Title        string
	Author       string
	DurationS    float64
	ThumbnailURL string
	PartIndex    int
	PartTotal    int
}

// Fetcher is a platform adapter. Matches decides URL ownership; dispatch is
// a registry lookup, never URL switch statements in callers.
type Fetcher interface {
	Name() string
	Matches(url string) bool
	Fetch(ctx context.Context, url string, params Params) ([]IngestResult, error)
}

// Registry holds the known fetchers in registration order.
type Registry struct {
	fetchers []Fetcher
}

func NewRegistry(fetchers ...Fetcher) *Registry {
	return &Registry{fetchers: fetchers}
}

// Lookup returns the first fetcher claiming the URL.
func (r *Registry) Lookup(url string) (Fetcher, error) {
	for _, f := range r.fetchers {
		if f.Matches(url) {
			return f, nil
		}
	}
	return nil, services.Wrap(services.ErrValidation, "fetch", "lookup", "unsupported url "+url, nil)
}

// Names lists the registered fetcher names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.fetchers))
	for i, f := range r.fetchers {
		names[i] = f.Name()
	}
	return names
}

var filenameSpecials = regexp.MustCompile(`[ |?？*:"<>/\\&%#@!()+^~,';.]`)

// SanitizeFilename strips characters that are unsafe in file names and caps
// the result at maxBytes without splitting a multi-byte rune.
func SanitizeFilename(title string, maxBytes int) string {
	cleaned := filenameSpecials.ReplaceAllString(title, "-")
	if len(cleaned) <= maxBytes {
		return strings.Trim(cleaned, "-")
	}
	cut := maxBytes
	for cut > 0 && !isRuneStart(cleaned[cut]) {
		cut--
	}
	return strings.Trim(cleaned[:cut], "-")
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
