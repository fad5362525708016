package gui

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/textrender"
	"github.com/kikiluvv/splice/internal/timeline"
)

type fakeExtractor struct {
	calls []time.Duration
}

func (f *fakeExtractor) ExtractFrame(ctx context.Context, input, output string, timestamp time.Duration) error {
	f.calls = append(f.calls, timestamp)
	return writePNG(output, 1920, 1080)
}

func writePNG(path string, w, h int) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func newTestCache(t *testing.T, ex FrameExtractor) *frameCache {
	t.Helper()
	text := textrender.New(zerolog.Nop())
	t.Cleanup(func() { text.Close() })
	return newFrameCache(zerolog.Nop(), ex, text, t.TempDir(), 10, 480, 270, 1920, 1080)
}

func TestFitImage(t *testing.T) {
	big := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
	got := fitImage(big, 480, 270).Bounds()
	if got.Dx() != 480 || got.Dy() != 270 {
		t.Errorf("fitted = %v", got)
	}

	tall := image.NewRGBA(image.Rect(0, 0, 1080, 1920))
	got = fitImage(tall, 480, 270).Bounds()
	if got.Dy() != 270 || got.Dx() > 480 {
		t.Errorf("tall fitted = %v", got)
	}

	small := image.NewRGBA(image.Rect(0, 0, 100, 50))
	if fitImage(small, 480, 270) != image.Image(small) {
		t.Error("small images should not be scaled")
	}
}

func TestVideoFrameUsesSourceOffsetAndCache(t *testing.T) {
	ex := &fakeExtractor{}
	fc := newTestCache(t, ex)
	c := timeline.Clip{
		ID: "v", Kind: timeline.KindVideo, Source: "clip.mp4",
		Start: 2 * time.Second, Duration: 10 * time.Second,
		AV: &timeline.AVProps{Speed: 2, Volume: 1, Offset: time.Second},
	}

	img, err := fc.videoFrame(context.Background(), c, 3*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 480 {
		t.Errorf("frame width = %d", img.Bounds().Dx())
	}
	if len(ex.calls) != 1 || ex.calls[0] != 3*time.Second {
		t.Errorf("extract calls = %v, want [3s]", ex.calls)
	}

	// same quantised position comes from the cache
	if _, err := fc.videoFrame(context.Background(), c, 3*time.Second+10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if len(ex.calls) != 1 {
		t.Errorf("expected cached frame, extract calls = %v", ex.calls)
	}
}

func TestStillAndTextLayers(t *testing.T) {
	fc := newTestCache(t, nil)
	path := filepath.Join(t.TempDir(), "logo.png")
	if err := writePNG(path, 960, 960); err != nil {
		t.Fatal(err)
	}

	img, err := fc.still(timeline.Clip{ID: "i", Kind: timeline.KindImage, Source: path})
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dy() != 270 {
		t.Errorf("still = %v", b)
	}

	txt, err := fc.textLayer(timeline.Clip{ID: "t", Kind: timeline.KindText, Text: &timeline.TextProps{Text: "Hi", FontSize: 48}})
	if err != nil {
		t.Fatal(err)
	}
	if b := txt.Bounds(); b.Dx() != 480 || b.Dy() != 270 {
		t.Errorf("text layer = %v", b)
	}

	if _, err := fc.videoFrame(context.Background(), timeline.Clip{Kind: timeline.KindVideo, AV: &timeline.AVProps{Speed: 1}}, 0); err == nil {
		t.Error("expected error without extractor")
	}
}

func TestFrameCacheIsBounded(t *testing.T) {
	ex := &fakeExtractor{}
	fc := newTestCache(t, ex)
	c := timeline.Clip{
		ID: "v", Kind: timeline.KindVideo, Source: "long.mp4",
		Duration: time.Hour, AV: &timeline.AVProps{Speed: 1, Volume: 1},
	}

	// scrub across more distinct frames than the cache holds
	for i := 0; i < cachedImages+20; i++ {
		if _, err := fc.videoFrame(context.Background(), c, time.Duration(i)*100*time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}
	if n := fc.images.Len(); n != cachedImages {
		t.Errorf("cached images = %d, want %d", n, cachedImages)
	}

	// the oldest frame was evicted and is extracted again
	calls := len(ex.calls)
	if _, err := fc.videoFrame(context.Background(), c, 0); err != nil {
		t.Fatal(err)
	}
	if len(ex.calls) != calls+1 {
		t.Error("expected the first frame to have been evicted")
	}
}
