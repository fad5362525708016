package gui

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/textrender"
	"github.com/kikiluvv/splice/internal/timeline"
)

// FrameExtractor pulls a single frame out of a video file.
// *ffmpeg.Executor implements it.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, input, output string, timestamp time.Duration) error
}

// cachedImages bounds the preview images kept in memory.
const cachedImages = 120

// frameCache produces preview images for clips, bounded to maxW x maxH.
// Video frames are quantised to step so scrubbing reuses extractions; the
// least recently shown images are evicted first.
type frameCache struct {
	logger    zerolog.Logger
	extractor FrameExtractor
	text      *textrender.Renderer
	dir       string
	step      time.Duration
	maxW      uint
	maxH      uint
	canvasW   int
	canvasH   int

	seq atomic.Int64

	images *lru.Cache[string, image.Image]
}

func newFrameCache(logger zerolog.Logger, extractor FrameExtractor, text *textrender.Renderer, dir string, fps int, maxW, maxH uint, canvasW, canvasH int) *frameCache {
	if fps <= 0 {
		fps = 30
	}
	images, err := lru.New[string, image.Image](cachedImages)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &frameCache{
		logger:    logger,
		extractor: extractor,
		text:      text,
		dir:       dir,
		step:      time.Second / time.Duration(fps),
		maxW:      maxW,
		maxH:      maxH,
		canvasW:   canvasW,
		canvasH:   canvasH,
		images:    images,
	}
}

func (fc *frameCache) get(key string) (image.Image, bool) {
	return fc.images.Get(key)
}

func (fc *frameCache) put(key string, img image.Image) {
	fc.images.Add(key, img)
}

// videoFrame returns the frame of c shown at composition time t.
func (fc *frameCache) videoFrame(ctx context.Context, c timeline.Clip, t time.Duration) (image.Image, error) {
	if fc.extractor == nil {
		return nil, fmt.Errorf("no frame extractor")
	}
	pos := c.SourceOffset(t).Truncate(fc.step)
	key := fmt.Sprintf("video|%s|%d", c.Source, pos)
	if img, ok := fc.get(key); ok {
		return img, nil
	}

	out := filepath.Join(fc.dir, fmt.Sprintf("frame-%d.jpg", fc.seq.Add(1)))
	if err := fc.extractor.ExtractFrame(ctx, c.Source, out, pos); err != nil {
		return nil, err
	}
	defer os.Remove(out)

	img, err := decodeFile(out)
	if err != nil {
		return nil, err
	}
	img = fitImage(img, fc.maxW, fc.maxH)
	fc.put(key, img)
	return img, nil
}

// still returns the fitted image of an image clip.
func (fc *frameCache) still(c timeline.Clip) (image.Image, error) {
	key := "image|" + c.Source
	if img, ok := fc.get(key); ok {
		return img, nil
	}
	img, err := decodeFile(c.Source)
	if err != nil {
		return nil, err
	}
	img = fitImage(img, fc.maxW, fc.maxH)
	fc.put(key, img)
	return img, nil
}

// textLayer renders a text clip at export resolution, so positions match
// the exported file, then shrinks it to preview size.
func (fc *frameCache) textLayer(c timeline.Clip) (image.Image, error) {
	p := c.Text
	key := fmt.Sprintf("text|%s|%s|%g|%s|%s|%g|%g", c.ID, p.Text, p.FontSize, p.FontFamily, p.Color, p.X, p.Y)
	if img, ok := fc.get(key); ok {
		return img, nil
	}
	img, err := fc.text.Render(*p, fc.canvasW, fc.canvasH)
	if err != nil {
		return nil, err
	}
	fitted := fitImage(img, fc.maxW, fc.maxH)
	fc.put(key, fitted)
	return fitted, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// fitImage scales img down to fit within maxW x maxH keeping its aspect
// ratio. Smaller images are returned unchanged.
func fitImage(img image.Image, maxW, maxH uint) image.Image {
	b := img.Bounds()
	if uint(b.Dx()) <= maxW && uint(b.Dy()) <= maxH {
		return img
	}
	return resize.Thumbnail(maxW, maxH, img, resize.Lanczos3)
}
