package export

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/ffmpeg"
	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/timeline"
)

// fakeEncoder writes a small file to the requested output and reports
// progress in three steps. When block is set it waits for release or for
// the context to end.
type fakeEncoder struct {
	mu    sync.Mutex
	calls []ffmpeg.EncodeOptions

	block   bool
	started chan struct{}
	release chan struct{}
	err     error
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (f *fakeEncoder) Encode(ctx context.Context, opts ffmpeg.EncodeOptions) error {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()
	f.started <- struct{}{}

	if opts.ProgressFunc != nil {
		opts.ProgressFunc(&ffmpeg.Progress{OutTime: opts.Duration / 3})
	}
	if f.block {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.release:
		}
	}
	if f.err != nil {
		return f.err
	}
	if opts.ProgressFunc != nil {
		opts.ProgressFunc(&ffmpeg.Progress{OutTime: opts.Duration / 3})
		opts.ProgressFunc(&ffmpeg.Progress{OutTime: opts.Duration, Done: true})
	}
	return os.WriteFile(opts.Output, []byte("encoded"), 0o644)
}

func (f *fakeEncoder) last() ffmpeg.EncodeOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeEncoder) factory() EncoderFactory {
	return func() (Encoder, error) { return f, nil }
}

type testEnv struct {
	tempDir string
	srcDir  string
	enc     *fakeEncoder
	exp     *Exporter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		tempDir: t.TempDir(),
		srcDir:  t.TempDir(),
		enc:     newFakeEncoder(),
	}
	env.exp = New(zerolog.Nop(), Options{TempDir: env.tempDir}, env.enc.factory())
	t.Cleanup(func() { env.exp.Close() })
	return env
}

func (env *testEnv) source(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(env.srcDir, name)
	if err := os.WriteFile(p, []byte("media bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func (env *testEnv) assertCleaned(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(env.tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace left behind: %d entries", len(entries))
	}
}

func newTimeline() *timeline.Timeline {
	return timeline.New(zerolog.Nop(), timeline.DefaultDefaults())
}

func placeVideo(t *testing.T, tl *timeline.Timeline, src string, start, dur time.Duration) timeline.Clip {
	t.Helper()
	c, err := tl.Place(timeline.AssetItem(media.Asset{
		ID: filepath.Base(src), Kind: media.KindVideo, Source: src, Duration: dur, DurationKnown: true,
	}), timeline.PlaceOptions{Start: timeline.At(start)})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestExportSingleVideo(t *testing.T) {
	env := newTestEnv(t)
	tl := newTimeline()
	placeVideo(t, tl, env.source(t, "clip.mp4"), 0, 10*time.Second)

	var progress []float64
	var out bytes.Buffer
	res, err := env.exp.Export(context.Background(), tl.Snapshot(), Landscape, &out, func(f float64) {
		progress = append(progress, f)
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if res.Width != 1920 || res.Height != 1080 || res.Duration != 10*time.Second {
		t.Errorf("result = %+v", res)
	}
	if out.String() != "encoded" || res.Bytes != int64(out.Len()) {
		t.Errorf("output = %q (%d bytes)", out.String(), res.Bytes)
	}
	if opts := env.enc.last(); opts.Duration != 10*time.Second || opts.AudioMap != "" {
		t.Errorf("encode options = %+v", opts)
	}

	if len(progress) == 0 || progress[len(progress)-1] != 1 {
		t.Fatalf("progress = %v, want ending at 1", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] <= progress[i-1] {
			t.Errorf("progress not increasing: %v", progress)
		}
	}
	env.assertCleaned(t)
}

func TestExportTextOnlySquare(t *testing.T) {
	env := newTestEnv(t)
	tl := newTimeline()
	if _, err := tl.Place(timeline.TextItem(timeline.TextProps{Text: "Hi"}), timeline.PlaceOptions{
		Start: timeline.At(2 * time.Second), Duration: 5 * time.Second,
	}); err != nil {
		t.Fatal(err)
	}

	res, err := env.exp.Export(context.Background(), tl.Snapshot(), Square, &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Width != 1080 || res.Height != 1080 || res.Duration != 7*time.Second {
		t.Errorf("result = %+v", res)
	}
	opts := env.enc.last()
	if len(opts.Inputs) != 2 || !opts.Inputs[0].Lavfi {
		t.Errorf("inputs = %+v", opts.Inputs)
	}
	env.assertCleaned(t)
}

func TestExportIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	tl := newTimeline()
	placeVideo(t, tl, env.source(t, "a.mp4"), 0, 4*time.Second)
	if _, err := tl.Place(timeline.AssetItem(media.Asset{
		ID: "m", Kind: media.KindAudio, Source: env.source(t, "m.mp3"), Duration: 6 * time.Second, DurationKnown: true,
	}), timeline.PlaceOptions{Start: timeline.At(time.Second)}); err != nil {
		t.Fatal(err)
	}
	snap := tl.Snapshot()

	first, err := env.exp.Export(context.Background(), snap, Portrait, &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	a := env.enc.last()
	second, err := env.exp.Export(context.Background(), snap, Portrait, &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b := env.enc.last()

	if first.Width != second.Width || first.Height != second.Height || first.Duration != second.Duration {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
	if a.FilterGraph != b.FilterGraph || len(a.Inputs) != len(b.Inputs) || a.AudioMap != b.AudioMap {
		t.Error("encode plans differ between identical exports")
	}
}

func TestExportMissingSourceIsAssetLoadError(t *testing.T) {
	env := newTestEnv(t)
	tl := newTimeline()
	placeVideo(t, tl, env.source(t, "ok.mp4"), 0, 2*time.Second)
	bad := placeVideo(t, tl, filepath.Join(env.srcDir, "missing.mp4"), 0, 2*time.Second)

	_, err := env.exp.Export(context.Background(), tl.Snapshot(), Landscape, &bytes.Buffer{}, nil)
	var loadErr *AssetLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected AssetLoadError, got %v", err)
	}
	if loadErr.ClipID != bad.ID {
		t.Errorf("clip = %s, want %s", loadErr.ClipID, bad.ID)
	}
	if len(env.enc.calls) != 0 {
		t.Error("encoder should not run after a load failure")
	}
	env.assertCleaned(t)
}

func TestExportEmptySourceIsAssetLoadError(t *testing.T) {
	env := newTestEnv(t)
	empty := filepath.Join(env.srcDir, "empty.mp4")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	tl := newTimeline()
	placeVideo(t, tl, empty, 0, time.Second)

	_, err := env.exp.Export(context.Background(), tl.Snapshot(), Landscape, &bytes.Buffer{}, nil)
	var loadErr *AssetLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected AssetLoadError, got %v", err)
	}
}

func TestExportTextRenderFailureIsAssetLoadError(t *testing.T) {
	env := newTestEnv(t)
	brokenFont := filepath.Join(env.srcDir, "broken.ttf")
	if err := os.WriteFile(brokenFont, []byte("not a font"), 0o644); err != nil {
		t.Fatal(err)
	}
	tl := newTimeline()
	c, err := tl.Place(timeline.TextItem(timeline.TextProps{Text: "Hi", FontFamily: brokenFont}), timeline.PlaceOptions{
		Start: timeline.At(0), Duration: 2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.exp.Export(context.Background(), tl.Snapshot(), Landscape, &bytes.Buffer{}, nil)
	var loadErr *AssetLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected AssetLoadError, got %v", err)
	}
	if loadErr.ClipID != c.ID || loadErr.Source != brokenFont {
		t.Errorf("load error = %+v", loadErr)
	}
	if len(env.enc.calls) != 0 {
		t.Error("encoder should not run after a text render failure")
	}
	env.assertCleaned(t)
}

func TestExportEncoderInitError(t *testing.T) {
	tl := newTimeline()
	tl.Place(timeline.TextItem(timeline.TextProps{Text: "x"}), timeline.PlaceOptions{Start: timeline.At(0)})

	exp := New(zerolog.Nop(), Options{TempDir: t.TempDir()}, FFmpegEncoder(zerolog.Nop(), ffmpeg.Options{
		BinaryPath: "/nonexistent/ffmpeg",
	}))
	_, err := exp.Export(context.Background(), tl.Snapshot(), Landscape, &bytes.Buffer{}, nil)
	var initErr *EncoderInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected EncoderInitError, got %v", err)
	}
}

func TestExportEncodeErrorCarriesDiagnostics(t *testing.T) {
	env := newTestEnv(t)
	env.enc.err = &ffmpeg.RunError{
		Err: errors.New("exit status 1"),
		Log: []string{"[fc#0] No such filter: 'bogus'"},
	}
	tl := newTimeline()
	placeVideo(t, tl, env.source(t, "a.mp4"), 0, time.Second)

	_, err := env.exp.Export(context.Background(), tl.Snapshot(), Landscape, &bytes.Buffer{}, nil)
	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodeError, got %v", err)
	}
	if len(encErr.Diagnostics) != 1 || encErr.Diagnostics[0] != "[fc#0] No such filter: 'bogus'" {
		t.Errorf("diagnostics = %v", encErr.Diagnostics)
	}
	env.assertCleaned(t)
}

func TestExportEmptyTimeline(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.exp.Export(context.Background(), newTimeline().Snapshot(), Landscape, &bytes.Buffer{}, nil); !errors.Is(err, ErrEmptyTimeline) {
		t.Errorf("expected ErrEmptyTimeline, got %v", err)
	}
}

func TestExportDownloadsRemoteSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/clip.mp4" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("remote media"))
	}))
	defer srv.Close()

	env := newTestEnv(t)
	tl := newTimeline()
	placeVideo(t, tl, srv.URL+"/clip.mp4", 0, time.Second)

	if _, err := env.exp.Export(context.Background(), tl.Snapshot(), Landscape, &bytes.Buffer{}, nil); err != nil {
		t.Fatalf("Export: %v", err)
	}
	in := env.enc.last().Inputs[1].Path
	if filepath.Base(in) != "source-000.mp4" {
		t.Errorf("staged input = %s", in)
	}
	env.assertCleaned(t)

	tl2 := newTimeline()
	bad := placeVideo(t, tl2, srv.URL+"/gone.mp4", 0, time.Second)
	_, err := env.exp.Export(context.Background(), tl2.Snapshot(), Landscape, &bytes.Buffer{}, nil)
	var loadErr *AssetLoadError
	if !errors.As(err, &loadErr) || loadErr.ClipID != bad.ID {
		t.Errorf("expected AssetLoadError for %s, got %v", bad.ID, err)
	}
}

func TestSessionRejectsConcurrentExport(t *testing.T) {
	env := newTestEnv(t)
	env.enc.block = true
	tl := newTimeline()
	placeVideo(t, tl, env.source(t, "a.mp4"), 0, time.Second)

	s := NewSession(env.exp)
	job, err := s.Start(context.Background(), tl, Landscape, &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	<-env.enc.started

	if _, err := s.Start(context.Background(), tl, Landscape, &bytes.Buffer{}, nil); !errors.Is(err, ErrExportInProgress) {
		t.Errorf("expected ErrExportInProgress, got %v", err)
	}
	if !s.Running() {
		t.Error("session should report a running export")
	}

	close(env.enc.release)
	if _, err := job.Wait(); err != nil {
		t.Fatalf("first export: %v", err)
	}

	job2, err := s.Start(context.Background(), tl, Landscape, &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatalf("start after finish: %v", err)
	}
	if _, err := job2.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestSessionUsesSnapshotFromStart(t *testing.T) {
	env := newTestEnv(t)
	env.enc.block = true
	tl := newTimeline()
	c := placeVideo(t, tl, env.source(t, "a.mp4"), 0, 3*time.Second)

	s := NewSession(env.exp)
	job, err := s.Start(context.Background(), tl, Landscape, &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	<-env.enc.started

	long := 30 * time.Second
	if err := tl.Update(c.ID, timeline.Patch{Duration: &long}); err != nil {
		t.Fatal(err)
	}
	close(env.enc.release)

	res, err := job.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if res.Duration != 3*time.Second || env.enc.last().Duration != 3*time.Second {
		t.Errorf("export saw a later edit: %v", res.Duration)
	}
}

func TestSessionCancel(t *testing.T) {
	env := newTestEnv(t)
	env.enc.block = true
	tl := newTimeline()
	placeVideo(t, tl, env.source(t, "a.mp4"), 0, 3*time.Second)

	var mu sync.Mutex
	var calls int
	s := NewSession(env.exp)
	job, err := s.Start(context.Background(), tl, Landscape, &bytes.Buffer{}, func(float64) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	<-env.enc.started
	job.Cancel()

	if _, err := job.Wait(); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("progress calls = %d, want only the one before cancel", calls)
	}
	env.assertCleaned(t)
}

func TestExportWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available")
	}

	tl := newTimeline()
	if _, err := tl.Place(timeline.TextItem(timeline.TextProps{Text: "Hi"}), timeline.PlaceOptions{
		Start: timeline.At(0), Duration: time.Second,
	}); err != nil {
		t.Fatal(err)
	}

	exp := New(zerolog.Nop(), Options{TempDir: t.TempDir(), Preset: "ultrafast", FPS: 10},
		FFmpegEncoder(zerolog.Nop(), ffmpeg.Options{}))
	defer exp.Close()

	out := filepath.Join(t.TempDir(), "out.mp4")
	f, err := os.Create(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := exp.Export(ctx, tl.Snapshot(), Square, f, nil); err != nil {
		t.Fatalf("Export: %v", err)
	}
	f.Close()

	executor, err := ffmpeg.New(zerolog.Nop(), ffmpeg.Options{})
	if err != nil {
		t.Fatal(err)
	}
	info, err := executor.ProbeVideo(ctx, out)
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 1080 || info.Height != 1080 {
		t.Errorf("resolution = %dx%d", info.Width, info.Height)
	}
	if d := info.Duration; d < 900*time.Millisecond || d > 1200*time.Millisecond {
		t.Errorf("duration = %v, want about 1s", d)
	}
}
