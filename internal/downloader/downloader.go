package downloader

import (
	"fmt"

	"github.com/artur/peaktube/internal/acquire"
)

const (
	BackendYouTube = "youtube"
	BackendYtdlp   = "ytdlp"
)

// Downloader is a primary backend for the acquisition engine.
type Downloader interface {
	acquire.Extractor
	Name() string
}

// New returns the primary backend selected by name.
func New(name string, ytdlp *YtdlpDownloader) (Downloader, error) {
	switch name {
	case BackendYouTube, "":
		return NewYouTubeDownloader(), nil
	case BackendYtdlp:
		if ytdlp == nil {
			return nil, fmt.Errorf("ytdlp backend selected but not configured")
		}
		return ytdlp, nil
	}
	return nil, fmt.Errorf("unknown downloader backend %q", name)
}

// WatchURL builds the canonical page URL for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
