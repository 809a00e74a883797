package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/artur/peaktube/internal/acquire"
)

// ErrNoSubtitles is returned when yt-dlp produced no track for the language.
var ErrNoSubtitles = errors.New("no subtitles for language")

// YtdlpDownloader drives the yt-dlp binary. It serves as a primary backend,
// as the metadata-only prober for the direct-link fallback, and as the
// subtitle fetcher.
type YtdlpDownloader struct {
	ytdlpPath  string
	ffmpegPath string
	maxSize    int64
	interval   time.Duration
}

func NewYtdlpDownloader(ytdlpPath, ffmpegPath string) *YtdlpDownloader {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	return &YtdlpDownloader{
		ytdlpPath:  ytdlpPath,
		ffmpegPath: ffmpegPath,
		maxSize:    maxSendableSize,
		interval:   500 * time.Millisecond,
	}
}

func (d *YtdlpDownloader) Name() string { return BackendYtdlp }

type ytdlpFormat struct {
	FormatID       string  `json:"format_id"`
	URL            string  `json:"url"`
	Ext            string  `json:"ext"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	FormatNote     string  `json:"format_note"`
	Quality        float64 `json:"quality"`
}

type ytdlpVideoInfo struct {
	ID          string                     `json:"id"`
	Title       string                     `json:"title"`
	Description string                     `json:"description"`
	Duration    float64                    `json:"duration"`
	Uploader    string                     `json:"uploader"`
	Channel     string                     `json:"channel"`
	ViewCount   int64                      `json:"view_count"`
	WebpageURL  string                     `json:"webpage_url"`
	URL         string                     `json:"url"`
	Formats     []ytdlpFormat              `json:"formats"`
	Subtitles   map[string]json.RawMessage `json:"subtitles"`
}

func (d *YtdlpDownloader) command() *ytdlp.Command {
	cmd := ytdlp.New().SetExecutable(d.ytdlpPath).NoPlaylist()
	if d.ffmpegPath != "" {
		cmd = cmd.FFmpegLocation(d.ffmpegPath)
	}
	return cmd
}

func (d *YtdlpDownloader) dumpInfo(ctx context.Context, videoID string) (*ytdlpVideoInfo, error) {
	res, err := d.command().SkipDownload().DumpJSON().Run(ctx, WatchURL(videoID))
	if err != nil {
		return nil, fmt.Errorf("yt-dlp metadata: %w", err)
	}
	return parseVideoInfo([]byte(res.Stdout))
}

func parseVideoInfo(data []byte) (*ytdlpVideoInfo, error) {
	var info ytdlpVideoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}
	return &info, nil
}

// Extract lists metadata through yt-dlp.
func (d *YtdlpDownloader) Extract(ctx context.Context, videoID string) (*acquire.Metadata, error) {
	info, err := d.dumpInfo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	meta := info.metadata(videoID)
	meta.Formats = filterFormats(info.Formats, d.maxSize)
	return meta, nil
}

func (info *ytdlpVideoInfo) metadata(videoID string) *acquire.Metadata {
	channel := info.Channel
	if channel == "" {
		channel = info.Uploader
	}
	sourceURL := info.WebpageURL
	if sourceURL == "" {
		sourceURL = WatchURL(videoID)
	}

	meta := &acquire.Metadata{
		ResourceID: videoID,
		SourceURL:  sourceURL,
		Title:      info.Title,
		Channel:    channel,
		Duration:   time.Duration(info.Duration * float64(time.Second)),
		ViewCount:  info.ViewCount,
	}
	for lang := range info.Subtitles {
		meta.SubtitleTracks = append(meta.SubtitleTracks, lang)
	}
	sort.Strings(meta.SubtitleTracks)
	return meta
}

// filterFormats lists one entry per video height. Video-only streams count
// since Fetch merges them with the best audio; their size is estimated as
// video plus that audio. A height is dropped when its largest estimate
// exceeds maxSize.
func filterFormats(formats []ytdlpFormat, maxSize int64) []acquire.Format {
	var audioSize int64
	for _, f := range formats {
		if isNone(f.VCodec) && !isNone(f.ACodec) {
			audioSize = max(audioSize, f.size())
		}
	}

	byHeight := make(map[int]acquire.Format)
	for _, f := range formats {
		if isNone(f.VCodec) || f.Height == 0 {
			continue
		}

		size := f.size()
		if size > 0 && isNone(f.ACodec) {
			size += audioSize
		}
		if prev, ok := byHeight[f.Height]; ok && prev.Size >= size {
			continue
		}
		byHeight[f.Height] = acquire.Format{
			Label:    formatDescription(fmt.Sprintf("%dp", f.Height), size, true),
			Height:   f.Height,
			Size:     size,
			HasAudio: true,
		}
	}

	result := make([]acquire.Format, 0, len(byHeight))
	for _, f := range byHeight {
		if f.Size > maxSize {
			continue
		}
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Height < result[j].Height
	})
	return result
}

func (f ytdlpFormat) size() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeApprox
}

func isNone(codec string) bool {
	return codec == "" || codec == "none"
}

// Fetch downloads into req.Dir and returns the resulting file.
func (d *YtdlpDownloader) Fetch(ctx context.Context, req acquire.FetchRequest, progress acquire.ProgressFunc) (string, error) {
	cmd := d.command().
		ForceOverwrites().
		RestrictFilenames().
		Output(filepath.Join(req.Dir, "%(id)s.%(ext)s"))

	if req.Rendition == acquire.RenditionAudio {
		cmd = cmd.Format("bestaudio/best")
	} else {
		cmd = cmd.
			Format(videoFormatSelector(req.Height)).
			MergeOutputFormat("mp4")
	}

	if progress != nil {
		cmd.ProgressFunc(d.interval, func(update ytdlp.ProgressUpdate) {
			progress(int64(update.DownloadedBytes), int64(update.TotalBytes))
		})
	}

	if _, err := cmd.Run(ctx, WatchURL(req.Metadata.ResourceID)); err != nil {
		return "", fmt.Errorf("yt-dlp download: %w", err)
	}
	return largestFile(req.Dir)
}

func videoFormatSelector(height int) string {
	return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", height, height)
}

// Probe runs a metadata-only extraction for the direct-link fallback.
func (d *YtdlpDownloader) Probe(ctx context.Context, videoID string) (*acquire.ProbeResult, error) {
	info, err := d.dumpInfo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return info.probeResult(videoID), nil
}

func (info *ytdlpVideoInfo) probeResult(videoID string) *acquire.ProbeResult {
	res := &acquire.ProbeResult{
		Metadata: *info.metadata(videoID),
		URL:      info.URL,
	}
	for _, f := range info.Formats {
		res.Formats = append(res.Formats, acquire.ProbeFormat{
			URL:     f.URL,
			Quality: f.Quality,
			Height:  f.Height,
			Ext:     f.Ext,
		})
	}
	return res
}

// FetchSubtitles writes the track for lang as SRT into dir.
func (d *YtdlpDownloader) FetchSubtitles(ctx context.Context, videoID, lang, dir string) (string, error) {
	_, err := d.command().
		SkipDownload().
		WriteSubs().
		SubLangs(lang).
		ConvertSubs("srt").
		Output(filepath.Join(dir, "track.%(ext)s")).
		Run(ctx, WatchURL(videoID))
	if err != nil {
		return "", fmt.Errorf("yt-dlp subtitles: %w", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "track*.srt"))
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoSubtitles, lang)
	}
	return matches[0], nil
}

func largestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var (
		best string
		size int64 = -1
	)
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.Size() > size {
			best, size = filepath.Join(dir, e.Name()), fi.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no output file in %s", dir)
	}
	return best, nil
}
