package postprocess

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

type fakeTranscoder struct {
	audioErr error
	burnErr  error
	cancel   context.CancelFunc
	burnSubs string
}

func (f *fakeTranscoder) ExtractAudio(ctx context.Context, in, out, bitrate string) error {
	if err := os.WriteFile(out, []byte("partial mp3"), 0o644); err != nil {
		return err
	}
	if f.cancel != nil {
		f.cancel()
		return ctx.Err()
	}
	return f.audioErr
}

func (f *fakeTranscoder) BurnSubtitles(ctx context.Context, video, subs string, style SubtitleStyle) (string, error) {
	f.burnSubs = subs
	out := filepath.Join(filepath.Dir(subs), burnedName)
	if err := os.WriteFile(out, []byte("burned"), 0o644); err != nil {
		return "", err
	}
	if f.cancel != nil {
		f.cancel()
		return "", ctx.Err()
	}
	if f.burnErr != nil {
		return "", f.burnErr
	}
	return out, nil
}

type fakeFetcher struct {
	err     error
	content string
}

func (f *fakeFetcher) FetchSubtitles(ctx context.Context, resourceID, lang, dir string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(dir, "track."+lang+".srt")
	content := f.content
	if content == "" {
		content = "\xef\xbb\xbf1\r\n00:00:01,000 --> 00:00:02,000\r\nHello\r\n"
	}
	return path, os.WriteFile(path, []byte(content), 0o644)
}

func setupVideo(t *testing.T) (dir, video string) {
	t.Helper()
	dir = t.TempDir()
	video = filepath.Join(dir, "abc.mp4")
	if err := os.WriteFile(video, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, video
}

// assertOnly fails unless dir holds exactly the named files.
func assertOnly(t *testing.T, dir string, names ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	sort.Strings(got)
	sort.Strings(names)
	if strings.Join(got, ",") != strings.Join(names, ",") {
		t.Errorf("dir contents = %v, want %v", got, names)
	}
}

func TestExtractAudio_Success(t *testing.T) {
	dir, video := setupVideo(t)
	p := NewProcessor(&fakeTranscoder{}, &fakeFetcher{}, "")

	out, err := p.ExtractAudio(context.Background(), video)
	if err != nil {
		t.Fatalf("ExtractAudio: %v", err)
	}
	if filepath.Base(out) != "abc.mp3" {
		t.Errorf("unexpected output %s", out)
	}
	assertOnly(t, dir, "abc.mp3")
}

func TestExtractAudio_FailureKeepsSource(t *testing.T) {
	dir, video := setupVideo(t)
	p := NewProcessor(&fakeTranscoder{audioErr: errors.New("codec missing")}, &fakeFetcher{}, "")

	_, err := p.ExtractAudio(context.Background(), video)
	var te *TranscodeError
	if !errors.As(err, &te) {
		t.Fatalf("expected TranscodeError, got %v", err)
	}
	if te.Source != video {
		t.Errorf("error source = %q", te.Source)
	}
	assertOnly(t, dir, "abc.mp4")
}

func TestExtractAudio_CancellationCleansUp(t *testing.T) {
	dir, video := setupVideo(t)
	ctx, cancel := context.WithCancel(context.Background())
	p := NewProcessor(&fakeTranscoder{cancel: cancel}, &fakeFetcher{}, "")

	if _, err := p.ExtractAudio(ctx, video); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	assertOnly(t, dir, "abc.mp4")
}

func TestAttachSubtitles_BurnIn(t *testing.T) {
	dir, video := setupVideo(t)
	tc := &fakeTranscoder{}
	p := NewProcessor(tc, &fakeFetcher{}, "")

	res, err := p.AttachSubtitles(context.Background(), "abc", video, "en", true)
	if err != nil {
		t.Fatalf("AttachSubtitles: %v", err)
	}
	if !res.BurnedIn || res.SubtitlePath != "" {
		t.Errorf("expected single burned video, got %+v", res)
	}
	if filepath.Base(res.VideoPath) != "abc_hardsub.mp4" {
		t.Errorf("unexpected video path %s", res.VideoPath)
	}
	if filepath.Base(tc.burnSubs) != "sub.srt" {
		t.Errorf("burn should use the normalized copy, got %s", tc.burnSubs)
	}
	assertOnly(t, dir, "abc_hardsub.mp4")
}

func TestAttachSubtitles_BurnFailureAttachesTrack(t *testing.T) {
	dir, video := setupVideo(t)
	p := NewProcessor(&fakeTranscoder{burnErr: errors.New("libass missing")}, &fakeFetcher{}, "")

	res, err := p.AttachSubtitles(context.Background(), "abc", video, "en", true)
	if err != nil {
		t.Fatalf("AttachSubtitles: %v", err)
	}
	if res.BurnedIn || res.VideoPath != video {
		t.Errorf("expected original video, got %+v", res)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != WarnBurnInFailed {
		t.Errorf("expected burn-in warning, got %v", res.Warnings)
	}
	data, err := os.ReadFile(res.SubtitlePath)
	if err != nil {
		t.Fatalf("subtitle file: %v", err)
	}
	if strings.Contains(string(data), "\r") || strings.HasPrefix(string(data), "\xef\xbb\xbf") {
		t.Errorf("subtitle not normalized: %q", data)
	}
	assertOnly(t, dir, "abc.mp4", "abc.en.srt")
}

func TestAttachSubtitles_NoBurnIn(t *testing.T) {
	dir, video := setupVideo(t)
	p := NewProcessor(&fakeTranscoder{}, &fakeFetcher{}, "")

	res, err := p.AttachSubtitles(context.Background(), "abc", video, "fa", false)
	if err != nil {
		t.Fatalf("AttachSubtitles: %v", err)
	}
	if res.SubtitlePath == "" || len(res.Warnings) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	assertOnly(t, dir, "abc.mp4", "abc.fa.srt")
}

func TestAttachSubtitles_FetchFailureDeliversVideoOnly(t *testing.T) {
	dir, video := setupVideo(t)
	p := NewProcessor(&fakeTranscoder{}, &fakeFetcher{err: errors.New("no track")}, "")

	res, err := p.AttachSubtitles(context.Background(), "abc", video, "en", true)
	if err != nil {
		t.Fatalf("AttachSubtitles: %v", err)
	}
	if res.VideoPath != video || res.SubtitlePath != "" || len(res.Warnings) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Warnings) == 1 && res.Warnings[0] != WarnSubtitlesUnavailable {
		t.Errorf("warning = %q, want %q", res.Warnings[0], WarnSubtitlesUnavailable)
	}
	assertOnly(t, dir, "abc.mp4")
}

func TestAttachSubtitles_CancellationCleansUp(t *testing.T) {
	dir, video := setupVideo(t)
	ctx, cancel := context.WithCancel(context.Background())
	p := NewProcessor(&fakeTranscoder{cancel: cancel}, &fakeFetcher{}, "")

	if _, err := p.AttachSubtitles(ctx, "abc", video, "en", true); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	assertOnly(t, dir, "abc.mp4")
}

func TestBuildBurnArgs(t *testing.T) {
	f := NewFFmpeg("")
	args := f.BuildBurnArgs("in.mp4", `C:\tmp\it's.srt`, "out.mp4", DefaultStyle)

	var filter string
	for i, a := range args {
		if a == "-vf" {
			filter = args[i+1]
		}
	}
	want := `subtitles='C\:\\tmp\\it\'s.srt':force_style='Fontsize=24,PrimaryColour=&HFFFFFF&,OutlineColour=&H000000&,BorderStyle=3,BackColour=&H80000000&,Alignment=2'`
	if filter != want {
		t.Errorf("filter = %s\nwant     %s", filter, want)
	}
	if args[len(args)-1] != "out.mp4" {
		t.Errorf("output should be last, got %v", args)
	}
}

func TestBuildAudioArgs(t *testing.T) {
	args := NewFFmpeg("").BuildAudioArgs("in.mp4", "out.mp3", "192k")
	joined := strings.Join(args, " ")
	if joined != "-y -i in.mp4 -vn -c:a libmp3lame -b:a 192k out.mp3" {
		t.Errorf("unexpected args %q", joined)
	}
}
