package postprocess

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	AudioCodec  = "libmp3lame"
	VideoCodec  = "libx264"
	VideoPreset = "veryfast"
	VideoCRF    = "23"

	FFmpegCommand = "ffmpeg"
	burnedName    = "burned.mp4"
)

// SubtitleStyle is the look of burned-in subtitles, in ASS force_style terms.
type SubtitleStyle struct {
	FontSize      int
	PrimaryColour string
	OutlineColour string
	BackColour    string
	BorderStyle   int
	Alignment     int
}

// DefaultStyle is bottom-centered white text with a black outline on a
// semi-opaque box.
var DefaultStyle = SubtitleStyle{
	FontSize:      24,
	PrimaryColour: "&HFFFFFF&",
	OutlineColour: "&H000000&",
	BackColour:    "&H80000000&",
	BorderStyle:   3,
	Alignment:     2,
}

// ForceStyle renders the style for the subtitles filter.
func (s SubtitleStyle) ForceStyle() string {
	return fmt.Sprintf("Fontsize=%d,PrimaryColour=%s,OutlineColour=%s,BorderStyle=%d,BackColour=%s,Alignment=%d",
		s.FontSize, s.PrimaryColour, s.OutlineColour, s.BorderStyle, s.BackColour, s.Alignment)
}

// FFmpeg runs transcodes through the ffmpeg binary. The process is killed
// when the context is cancelled.
type FFmpeg struct {
	path string
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = FFmpegCommand
	}
	return &FFmpeg{path: path}
}

// BuildAudioArgs returns the arguments for an MP3 transcode.
func (f *FFmpeg) BuildAudioArgs(in, out, bitrate string) []string {
	return []string{
		"-y",
		"-i", in,
		"-vn",
		"-c:a", AudioCodec,
		"-b:a", bitrate,
		out,
	}
}

// BuildBurnArgs returns the arguments for a subtitle burn-in.
func (f *FFmpeg) BuildBurnArgs(video, subs, out string, style SubtitleStyle) []string {
	filter := fmt.Sprintf("subtitles='%s':force_style='%s'", escapeFilterPath(subs), style.ForceStyle())
	return []string{
		"-y",
		"-i", video,
		"-vf", filter,
		"-c:a", "copy",
		"-c:v", VideoCodec,
		"-preset", VideoPreset,
		"-crf", VideoCRF,
		out,
	}
}

func (f *FFmpeg) ExtractAudio(ctx context.Context, in, out, bitrate string) error {
	return f.run(ctx, f.BuildAudioArgs(in, out, bitrate))
}

// BurnSubtitles writes the burned video next to the subtitle file.
func (f *FFmpeg) BurnSubtitles(ctx context.Context, video, subs string, style SubtitleStyle) (string, error) {
	out := filepath.Join(filepath.Dir(subs), burnedName)
	if err := f.run(ctx, f.BuildBurnArgs(video, subs, out, style)); err != nil {
		os.Remove(out)
		return "", err
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	return out, nil
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

func escapeFilterPath(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	return r.Replace(p)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
