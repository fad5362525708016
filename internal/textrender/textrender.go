// Package textrender rasterises text clips onto transparent canvases so
// they can be overlaid like images.
package textrender

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/internal/timeline"
	"github.com/kikiluvv/splice/pkg/util"
)

var builtinFonts = map[string][]byte{
	"go":      goregular.TTF,
	"go bold": gobold.TTF,
	"go mono": gomono.TTF,
}

type faceKey struct {
	family string
	size   float64
}

// Renderer draws text with cached font faces. It is safe for concurrent
// use.
type Renderer struct {
	logger zerolog.Logger

	mu    sync.Mutex
	fonts map[string]*opentype.Font
	faces map[faceKey]font.Face
}

// New creates a renderer
func New(logger zerolog.Logger) *Renderer {
	return &Renderer{
		logger: logging.WithComponent(logger, "textrender"),
		fonts:  make(map[string]*opentype.Font),
		faces:  make(map[faceKey]font.Face),
	}
}

// Render draws props onto a transparent width x height canvas. X and Y are
// the top-left corner of the text block in canvas pixels. Lines are split
// on "\n".
func (r *Renderer) Render(props timeline.TextProps, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas %dx%d", width, height)
	}
	col, err := util.ParseColor(props.Color)
	if err != nil {
		return nil, err
	}
	face, err := r.face(props.FontFamily, props.FontSize)
	if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	metrics := face.Metrics()
	lineHeight := metrics.Height
	if lineHeight <= 0 {
		lineHeight = metrics.Ascent + metrics.Descent
	}

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
	}
	x := fixed.I(int(props.X))
	y := fixed.I(int(props.Y)) + metrics.Ascent
	for _, line := range strings.Split(props.Text, "\n") {
		drawer.Dot = fixed.Point26_6{X: x, Y: y}
		drawer.DrawString(line)
		y += lineHeight
	}
	return dst, nil
}

// Measure returns the pixel size of the rendered text block.
func (r *Renderer) Measure(props timeline.TextProps) (int, int, error) {
	face, err := r.face(props.FontFamily, props.FontSize)
	if err != nil {
		return 0, 0, err
	}
	lines := strings.Split(props.Text, "\n")
	var w fixed.Int26_6
	for _, line := range lines {
		if adv := font.MeasureString(face, line); adv > w {
			w = adv
		}
	}
	m := face.Metrics()
	h := m.Ascent + m.Descent + m.Height.Mul(fixed.I(len(lines)-1))
	return w.Ceil(), h.Ceil(), nil
}

// WritePNG renders props and writes the result to path.
func (r *Renderer) WritePNG(path string, props timeline.TextProps, width, height int) error {
	img, err := r.Render(props, width, height)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

func (r *Renderer) face(family string, size float64) (font.Face, error) {
	if size <= 0 {
		size = 48
	}
	key := faceKey{family: strings.ToLower(strings.TrimSpace(family)), size: size}

	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.faces[key]; ok {
		return f, nil
	}
	otf, err := r.loadFont(key.family, family)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(otf, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	r.faces[key] = face
	return face, nil
}

// loadFont resolves a family to a built-in Go font or a font file path.
// Unknown families fall back to Go regular.
func (r *Renderer) loadFont(key, family string) (*opentype.Font, error) {
	if f, ok := r.fonts[key]; ok {
		return f, nil
	}

	data, ok := builtinFonts[key]
	if !ok {
		if raw, err := os.ReadFile(family); err == nil {
			data = raw
		} else {
			if key != "" {
				r.logger.Warn().Str("family", family).Msg("unknown font, using Go regular")
			}
			data = goregular.TTF
		}
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %q: %w", family, err)
	}
	r.fonts[key] = f
	return f, nil
}

// Close releases cached faces.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, f := range r.faces {
		f.Close()
		delete(r.faces, k)
	}
	return nil
}
