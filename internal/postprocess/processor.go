// Package postprocess turns a downloaded video into its final deliverable:
// an MP3, or a video with burned-in or attached subtitles.
//
// Every intermediate file lives in a scratch directory created per call and
// removed on every exit path. Only promoted deliverables remain afterwards.
package postprocess

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artur/peaktube/internal/logging"
)

const DefaultAudioBitrate = "192k"

var log = logging.For("postprocess")

// Transcoder performs the media conversions.
type Transcoder interface {
	ExtractAudio(ctx context.Context, in, out, bitrate string) error
	BurnSubtitles(ctx context.Context, video, subs string, style SubtitleStyle) (string, error)
}

// SubtitleFetcher downloads a subtitle track as SRT into dir.
type SubtitleFetcher interface {
	FetchSubtitles(ctx context.Context, resourceID, lang, dir string) (string, error)
}

// TranscodeError reports a failed conversion. The source file is left in place.
type TranscodeError struct {
	Op     string
	Source string
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, filepath.Base(e.Source), e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// Warning marks a degradation the user should hear about. Callers render
// the text.
type Warning string

const (
	WarnSubtitlesUnavailable  Warning = "subtitles_unavailable"
	WarnBurnInFailed          Warning = "burn_in_failed"
	WarnAudioConversionFailed Warning = "audio_conversion_failed"
)

// SubtitleResult is what AttachSubtitles delivers.
type SubtitleResult struct {
	VideoPath string
	// SubtitlePath is set when the track is delivered as a separate file.
	SubtitlePath string
	BurnedIn     bool
	Warnings     []Warning
}

type Processor struct {
	transcoder Transcoder
	subtitles  SubtitleFetcher
	bitrate    string
	style      SubtitleStyle
}

func NewProcessor(transcoder Transcoder, subtitles SubtitleFetcher, bitrate string) *Processor {
	if bitrate == "" {
		bitrate = DefaultAudioBitrate
	}
	return &Processor{
		transcoder: transcoder,
		subtitles:  subtitles,
		bitrate:    bitrate,
		style:      DefaultStyle,
	}
}

// ExtractAudio transcodes videoPath to MP3 next to it and removes the source.
func (p *Processor) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	scratch, err := newScratch(videoPath)
	if err != nil {
		return "", err
	}
	defer scratch.cleanup()

	tmp := filepath.Join(scratch.dir, "audio.mp3")
	if err := p.transcoder.ExtractAudio(ctx, videoPath, tmp, p.bitrate); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TranscodeError{Op: "extract audio", Source: videoPath, Err: err}
	}

	final := replaceExt(videoPath, ".mp3")
	if final == videoPath {
		final = replaceExt(videoPath, "_audio.mp3")
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", &TranscodeError{Op: "extract audio", Source: videoPath, Err: err}
	}
	if err := os.Remove(videoPath); err != nil {
		log.WithError(err).WithField("path", videoPath).Warn("Failed to remove source after transcode")
	}
	return final, nil
}

// AttachSubtitles fetches the lang track and either burns it in or hands it
// back as a separate SRT. Missing tracks and burn failures degrade with a
// warning; only cancellation and promotion errors are returned.
func (p *Processor) AttachSubtitles(ctx context.Context, resourceID, videoPath, lang string, burnIn bool) (*SubtitleResult, error) {
	entry := log.WithField("resource_id", resourceID).WithField("lang", lang)
	result := &SubtitleResult{VideoPath: videoPath}

	scratch, err := newScratch(videoPath)
	if err != nil {
		return nil, err
	}
	defer scratch.cleanup()

	track, err := p.subtitles.FetchSubtitles(ctx, resourceID, lang, scratch.dir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		entry.WithError(err).Warn("Subtitle fetch failed, delivering video only")
		result.Warnings = append(result.Warnings, WarnSubtitlesUnavailable)
		return result, nil
	}

	normalized := filepath.Join(scratch.dir, "sub.srt")
	if err := normalizeSRT(track, normalized); err != nil {
		entry.WithError(err).Warn("Subtitle track unreadable, delivering video only")
		result.Warnings = append(result.Warnings, WarnSubtitlesUnavailable)
		return result, nil
	}

	if burnIn {
		burned, err := p.transcoder.BurnSubtitles(ctx, videoPath, normalized, p.style)
		if err == nil {
			final := strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + "_hardsub.mp4"
			if err := os.Rename(burned, final); err != nil {
				return nil, fmt.Errorf("promote burned video: %w", err)
			}
			if err := os.Remove(videoPath); err != nil {
				entry.WithError(err).Warn("Failed to remove unburned source")
			}
			result.VideoPath = final
			result.BurnedIn = true
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		entry.WithError(err).Warn("Subtitle burn-in failed, attaching track instead")
		result.Warnings = append(result.Warnings, WarnBurnInFailed)
	}

	final := replaceExt(videoPath, "."+lang+".srt")
	if err := os.Rename(normalized, final); err != nil {
		return nil, fmt.Errorf("promote subtitle file: %w", err)
	}
	result.SubtitlePath = final
	return result, nil
}

type scratchDir struct {
	dir string
}

func newScratch(near string) (*scratchDir, error) {
	dir, err := os.MkdirTemp(filepath.Dir(near), ".pp-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &scratchDir{dir: dir}, nil
}

func (s *scratchDir) cleanup() {
	if err := os.RemoveAll(s.dir); err != nil {
		log.WithError(err).WithField("dir", s.dir).Warn("Failed to remove scratch dir")
	}
}

// normalizeSRT copies an SRT track dropping the BOM and CRLF line endings.
func normalizeSRT(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("empty subtitle track")
	}
	return os.WriteFile(dst, data, 0o644)
}

func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
