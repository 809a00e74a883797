package downloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/kkdai/youtube/v2"

	"github.com/artur/peaktube/internal/acquire"
)

// maxSendableSize is the largest file the Bot API accepts through a local server.
const maxSendableSize = 2000 * 1024 * 1024

type YouTubeDownloader struct {
	client  youtube.Client
	maxSize int64
}

func NewYouTubeDownloader() *YouTubeDownloader {
	return &YouTubeDownloader{
		client:  youtube.Client{},
		maxSize: maxSendableSize,
	}
}

func (d *YouTubeDownloader) Name() string { return BackendYouTube }

// Extract reads video metadata and the mp4 formats that fit the size limit.
func (d *YouTubeDownloader) Extract(ctx context.Context, videoID string) (*acquire.Metadata, error) {
	video, err := d.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}

	meta := &acquire.Metadata{
		ResourceID: videoID,
		SourceURL:  WatchURL(videoID),
		Title:      video.Title,
		Channel:    video.Author,
		Duration:   video.Duration,
		ViewCount:  int64(video.Views),
		Formats:    d.availableFormats(video.Formats),
	}
	for _, track := range video.CaptionTracks {
		if track.LanguageCode != "" && !meta.HasSubtitles(track.LanguageCode) {
			meta.SubtitleTracks = append(meta.SubtitleTracks, track.LanguageCode)
		}
	}
	return meta, nil
}

func (d *YouTubeDownloader) availableFormats(all youtube.FormatList) []acquire.Format {
	// Prefer formats that carry audio; fall back to video-only streams.
	formats := all.WithAudioChannels()
	if len(formats) == 0 {
		formats = all
	}

	byLabel := make(map[string]acquire.Format)
	for _, f := range formats {
		if !strings.Contains(f.MimeType, "video/mp4") || f.QualityLabel == "" {
			continue
		}
		if f.ContentLength > d.maxSize {
			continue
		}

		hasAudio := f.AudioChannels > 0
		if existing, ok := byLabel[f.QualityLabel]; ok && existing.HasAudio && !hasAudio {
			continue
		}

		height := f.Height
		if height == 0 {
			height = parseQualityNum(f.QualityLabel)
		}
		byLabel[f.QualityLabel] = acquire.Format{
			Label:    formatDescription(f.QualityLabel, f.ContentLength, hasAudio),
			Height:   height,
			Size:     f.ContentLength,
			HasAudio: hasAudio,
		}
	}

	result := make([]acquire.Format, 0, len(byLabel))
	for _, f := range byLabel {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Height < result[j].Height
	})
	return result
}

// Fetch streams the chosen format into req.Dir.
func (d *YouTubeDownloader) Fetch(ctx context.Context, req acquire.FetchRequest, progress acquire.ProgressFunc) (string, error) {
	video, err := d.client.GetVideoContext(ctx, req.Metadata.ResourceID)
	if err != nil {
		return "", fmt.Errorf("failed to get video info: %w", err)
	}

	var format *youtube.Format
	if req.Rendition == acquire.RenditionAudio {
		format = selectAudioFormat(video.Formats)
	} else {
		format = selectVideoFormat(video.Formats, req.Height)
	}
	if format == nil {
		return "", fmt.Errorf("no suitable format for %s", req.Rendition)
	}

	stream, size, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", fmt.Errorf("failed to get stream: %w", err)
	}
	defer stream.Close()

	path := filepath.Join(req.Dir, req.Metadata.ResourceID+extensionFor(format.MimeType))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	_, err = io.Copy(out, &progressReader{r: stream, total: size, report: progress})
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to download video: %w", err)
	}
	return path, nil
}

// selectVideoFormat picks the tallest mp4 with audio that does not exceed
// height. It returns nil when every such format is taller.
func selectVideoFormat(all youtube.FormatList, height int) *youtube.Format {
	formats := all.WithAudioChannels()
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if !strings.Contains(f.MimeType, "video/mp4") || f.Height > height {
			continue
		}
		if best == nil || f.Height > best.Height {
			best = f
		}
	}
	return best
}

func selectAudioFormat(all youtube.FormatList) *youtube.Format {
	audio := all.Type("audio")
	var best *youtube.Format
	for i := range audio {
		f := &audio[i]
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	return best
}

func extensionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "video/mp4"):
		return ".mp4"
	case strings.HasPrefix(mimeType, "audio/mp4"):
		return ".m4a"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	}
	return ".bin"
}

func formatDescription(quality string, size int64, hasAudio bool) string {
	desc := quality
	if size > 0 {
		desc += " (~" + humanize.IBytes(uint64(size)) + ")"
	}
	if !hasAudio {
		desc += " 🔇"
	}
	return desc
}

func parseQualityNum(quality string) int {
	var num int
	fmt.Sscanf(quality, "%dp", &num)
	return num
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report acquire.ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.report != nil && n > 0 {
		p.report(p.read, p.total)
	}
	return n, err
}
