// Package acquire fetches a media resource through a primary extractor and,
// when that fails, falls back to minting a time-limited direct link.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artur/peaktube/internal/database/models"
)

// Rendition is the form of media a request asks for.
type Rendition string

const (
	RenditionVideo          Rendition = "video"
	RenditionAudio          Rendition = "audio"
	RenditionSubtitledVideo Rendition = "subtitled_video"
)

// Format is one downloadable variant reported by an extractor.
type Format struct {
	Label    string
	Height   int
	Size     int64
	HasAudio bool
}

// Metadata describes a resource as reported by an extractor.
type Metadata struct {
	ResourceID     string
	SourceURL      string
	Title          string
	Channel        string
	Duration       time.Duration
	ViewCount      int64
	SubtitleTracks []string
	Formats        []Format
}

// Heights returns the distinct video heights the extractor reported.
func (m *Metadata) Heights() []int {
	seen := make(map[int]bool, len(m.Formats))
	heights := make([]int, 0, len(m.Formats))
	for _, f := range m.Formats {
		if f.Height <= 0 || seen[f.Height] {
			continue
		}
		seen[f.Height] = true
		heights = append(heights, f.Height)
	}
	return heights
}

// HasSubtitles reports whether a track for lang is listed.
func (m *Metadata) HasSubtitles(lang string) bool {
	for _, l := range m.SubtitleTracks {
		if l == lang {
			return true
		}
	}
	return false
}

// Request is what the engine is asked to fetch. Height is already capped by
// the caller's entitlement; the engine only clamps it to what exists.
type Request struct {
	ResourceID string
	Rendition  Rendition
	Height     int
}

// FetchRequest is handed to an Extractor for the actual transfer.
type FetchRequest struct {
	Metadata  *Metadata
	Rendition Rendition
	Height    int
	Dir       string
}

// ProgressFunc receives raw byte counts from an extractor.
type ProgressFunc func(downloaded, total int64)

// Extractor is a primary backend able to describe and download a resource.
type Extractor interface {
	Extract(ctx context.Context, resourceID string) (*Metadata, error)
	Fetch(ctx context.Context, req FetchRequest, progress ProgressFunc) (string, error)
}

// ProbeFormat is one format listed by a metadata-only probe.
type ProbeFormat struct {
	URL     string
	Quality float64
	Height  int
	Ext     string
}

// ProbeResult is the output of a metadata-only extraction.
type ProbeResult struct {
	Metadata Metadata
	// URL is set when the probe resolved a single direct URL.
	URL     string
	Formats []ProbeFormat
}

// Prober performs the metadata-only extraction used on the fallback path.
type Prober interface {
	Probe(ctx context.Context, resourceID string) (*ProbeResult, error)
}

// LinkMinter persists a direct link record.
type LinkMinter interface {
	Mint(ctx context.Context, sourceURL, directURL, title string) (*models.DirectLink, error)
}

// Outcome is the result of one acquisition: Downloaded, FallbackLink or Failed.
type Outcome interface {
	outcome()
}

// Downloaded means the artifact is on local disk. Dir is the scratch
// directory holding it; the caller removes it once delivered.
type Downloaded struct {
	Path     string
	Dir      string
	Metadata Metadata
	Height   int
}

// FallbackLink means the primary path failed and a direct link was minted.
type FallbackLink struct {
	Link     *models.DirectLink
	Metadata Metadata
}

// Failed means neither path produced anything.
type Failed struct {
	Reason string
	Err    error
}

func (Downloaded) outcome()   {}
func (FallbackLink) outcome() {}
func (Failed) outcome()       {}

var (
	ErrExtraction         = errors.New("extraction failed")
	ErrTransfer           = errors.New("transfer failed")
	ErrFallbackExtraction = errors.New("fallback extraction failed")
	ErrNoDirectURL        = errors.New("no direct url in probe result")
	ErrNoFormatWithinCap  = errors.New("no format at or below requested height")
)

// Stage names the engine step an error came from.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageTransfer Stage = "transfer"
	StageFallback Stage = "fallback"
	StageMint     Stage = "mint"
)

// StageError wraps a backend error with where it happened.
type StageError struct {
	Stage      Stage
	ResourceID string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.ResourceID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's stage.
func (e *StageError) Is(target error) bool {
	switch target {
	case ErrExtraction:
		return e.Stage == StageExtract
	case ErrTransfer:
		return e.Stage == StageTransfer
	case ErrFallbackExtraction:
		return e.Stage == StageFallback
	}
	return false
}
