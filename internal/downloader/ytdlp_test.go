package downloader

import (
	"testing"
	"time"

	"github.com/artur/peaktube/internal/acquire"
)

const sampleInfo = `{
	"id": "test123",
	"title": "Test Video",
	"description": "Test Description",
	"duration": 120.5,
	"channel": "Test Channel",
	"view_count": 4200,
	"webpage_url": "https://www.youtube.com/watch?v=test123",
	"subtitles": {"fa": [], "en": []},
	"formats": [
		{
			"format_id": "18",
			"url": "https://cdn.example/18",
			"ext": "mp4",
			"width": 640,
			"height": 360,
			"filesize": 10485760,
			"vcodec": "avc1.42001E",
			"acodec": "mp4a.40.2",
			"format_note": "360p",
			"quality": 1
		},
		{
			"format_id": "22",
			"url": "https://cdn.example/22",
			"ext": "mp4",
			"width": 1280,
			"height": 720,
			"filesize_approx": 52428800,
			"vcodec": "avc1.64001F",
			"acodec": "mp4a.40.2",
			"format_note": "720p",
			"quality": 3
		},
		{
			"format_id": "248",
			"url": "https://cdn.example/248",
			"ext": "webm",
			"height": 1080,
			"vcodec": "vp9",
			"acodec": "none",
			"quality": 3
		}
	]
}`

func TestYtdlpVideoInfoParsing(t *testing.T) {
	info, err := parseVideoInfo([]byte(sampleInfo))
	if err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if info.ID != "test123" {
		t.Errorf("expected ID 'test123', got %s", info.ID)
	}
	if info.Title != "Test Video" {
		t.Errorf("expected Title 'Test Video', got %s", info.Title)
	}
	if info.Duration != 120.5 {
		t.Errorf("expected Duration 120.5, got %f", info.Duration)
	}
	if len(info.Formats) != 3 {
		t.Fatalf("expected 3 formats, got %d", len(info.Formats))
	}
	if info.Formats[0].Height != 360 || info.Formats[0].Ext != "mp4" {
		t.Errorf("unexpected first format %+v", info.Formats[0])
	}

	meta := info.metadata("test123")
	if meta.Channel != "Test Channel" || meta.ViewCount != 4200 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Duration != 120500*time.Millisecond {
		t.Errorf("duration = %s", meta.Duration)
	}
	if len(meta.SubtitleTracks) != 2 || meta.SubtitleTracks[0] != "en" {
		t.Errorf("subtitle tracks = %v", meta.SubtitleTracks)
	}
}

func TestParseVideoInfo_Invalid(t *testing.T) {
	if _, err := parseVideoInfo([]byte("WARNING: not json")); err == nil {
		t.Error("expected parse error")
	}
}

func TestYtdlpFormatFiltering(t *testing.T) {
	const mb = 1024 * 1024
	formats := []ytdlpFormat{
		{FormatID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a.40.2", Filesize: 4 * mb},
		{FormatID: "18", Ext: "mp4", Height: 360, VCodec: "avc1", ACodec: "mp4a", Filesize: 10 * mb},
		{FormatID: "135", Ext: "mp4", Height: 480, VCodec: "avc1", ACodec: "none", Filesize: 20 * mb},
		{FormatID: "136", Ext: "mp4", Height: 720, VCodec: "avc1", ACodec: "none", FilesizeApprox: 40 * mb},
		{FormatID: "247", Ext: "webm", Height: 720, VCodec: "vp9", ACodec: "none", Filesize: 30 * mb},
		{FormatID: "137", Ext: "mp4", Height: 1080, VCodec: "avc1", ACodec: "none", Filesize: 90 * mb},
		{FormatID: "sb0", Ext: "mhtml", Height: 0, VCodec: "none", ACodec: "none"},
		{FormatID: "401", Ext: "mp4", Height: 2160, VCodec: "av01", ACodec: "none", Filesize: 3000 * mb},
	}

	got := filterFormats(formats, maxSendableSize)

	wantHeights := []int{360, 480, 720, 1080}
	if len(got) != len(wantHeights) {
		t.Fatalf("expected heights %v, got %+v", wantHeights, got)
	}
	for i, h := range wantHeights {
		if got[i].Height != h {
			t.Errorf("format %d height = %d, want %d", i, got[i].Height, h)
		}
		if !got[i].HasAudio {
			t.Errorf("%dp should be delivered with merged audio", h)
		}
	}

	sizes := map[int]int64{360: 10 * mb, 480: 24 * mb, 720: 44 * mb, 1080: 94 * mb}
	for _, f := range got {
		if f.Size != sizes[f.Height] {
			t.Errorf("%dp size = %d, want %d", f.Height, f.Size, sizes[f.Height])
		}
	}
}

func TestYtdlpFormatFiltering_UnknownSizesKept(t *testing.T) {
	formats := []ytdlpFormat{
		{Ext: "webm", Height: 1440, VCodec: "vp9", ACodec: "none"},
		{Ext: "mp4", Height: 240, VCodec: "avc1", ACodec: "none"},
	}
	got := filterFormats(formats, maxSendableSize)
	if len(got) != 2 || got[0].Height != 240 || got[1].Height != 1440 {
		t.Fatalf("unexpected formats %+v", got)
	}
	if got[0].Size != 0 {
		t.Errorf("unknown size should stay 0, got %d", got[0].Size)
	}
}

func TestProbeResult(t *testing.T) {
	info, err := parseVideoInfo([]byte(sampleInfo))
	if err != nil {
		t.Fatal(err)
	}

	res := info.probeResult("test123")
	if res.URL != "" {
		t.Errorf("expected no top-level url, got %q", res.URL)
	}
	if len(res.Formats) != 3 {
		t.Fatalf("expected 3 probe formats, got %d", len(res.Formats))
	}
	if res.Formats[1].URL != "https://cdn.example/22" || res.Formats[1].Quality != 3 {
		t.Errorf("unexpected probe format %+v", res.Formats[1])
	}
	if res.Metadata.Title != "Test Video" {
		t.Errorf("unexpected title %q", res.Metadata.Title)
	}
}

func TestVideoFormatSelector(t *testing.T) {
	want := "bestvideo[height<=720]+bestaudio/best[height<=720]"
	if got := videoFormatSelector(720); got != want {
		t.Errorf("videoFormatSelector(720) = %q, want %q", got, want)
	}
}

var (
	_ acquire.Extractor = (*YtdlpDownloader)(nil)
	_ acquire.Prober    = (*YtdlpDownloader)(nil)
)
