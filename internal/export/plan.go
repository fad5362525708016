package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/kikiluvv/splice/internal/ffmpeg"
	"github.com/kikiluvv/splice/internal/timeline"
	"github.com/kikiluvv/splice/pkg/util"
)

// Aspect is an output aspect ratio such as "16:9".
type Aspect string

const (
	Landscape Aspect = "16:9"
	Portrait  Aspect = "9:16"
	Square    Aspect = "1:1"
)

var resolutions = map[Aspect][2]int{
	Landscape: {1920, 1080},
	Portrait:  {1080, 1920},
	Square:    {1080, 1080},
}

// Resolution returns the output size for a; unknown ratios get 16:9.
func Resolution(a Aspect) (int, int) {
	r, ok := resolutions[Aspect(strings.TrimSpace(string(a)))]
	if !ok {
		r = resolutions[Landscape]
	}
	return r[0], r[1]
}

// plan is everything the encoder needs for one export.
type plan struct {
	Inputs   []ffmpeg.Input
	Graph    string
	VideoMap string
	AudioMap string
	Duration time.Duration
	Width    int
	Height   int
}

type planInput struct {
	clips      []timeline.Clip
	width      int
	height     int
	fps        int
	background string
	pixFmt     string
	// sources maps a clip source to its staged path.
	sources map[string]string
	// texts maps a text clip id to its rendered canvas.
	texts map[string]string
}

// visualOrder returns the drawn clips bottom to top: videos by layer,
// then texts in insertion order, then images by layer. This is the order
// the preview draws in.
func visualOrder(clips []timeline.Clip) []timeline.Clip {
	snap := timeline.Snapshot{Clips: clips}
	out := snap.ByLayer(timeline.KindVideo)
	out = append(out, snap.OfKind(timeline.KindText)...)
	return append(out, snap.ByLayer(timeline.KindImage)...)
}

// buildPlan lays out inputs and the filter graph. Input 0 is always a
// solid background of the full duration; every visual clip is overlaid on
// it inside its own window, and every audio clip is delayed, gained and
// mixed.
func buildPlan(in planInput) (*plan, error) {
	var total time.Duration
	for _, c := range in.clips {
		if e := c.End(); e > total {
			total = e
		}
	}
	if total <= 0 {
		return nil, ErrEmptyTimeline
	}
	if in.background == "" {
		in.background = "black"
	}
	if in.fps <= 0 {
		in.fps = ffmpeg.DefaultFPS
	}
	if in.pixFmt == "" {
		in.pixFmt = ffmpeg.DefaultPixelFormat
	}

	p := &plan{Duration: total, Width: in.width, Height: in.height}
	g := ffmpeg.NewGraph()

	p.Inputs = append(p.Inputs, ffmpeg.Input{
		Lavfi: true,
		Path: fmt.Sprintf("color=c=%s:s=%dx%d:r=%d:d=%s",
			in.background, in.width, in.height, in.fps, util.Seconds(total)),
	})
	base := ffmpeg.VideoInput(0)

	for _, c := range visualOrder(in.clips) {
		idx := len(p.Inputs)
		fb := ffmpeg.NewFilterBuilder()

		switch c.Kind {
		case timeline.KindVideo:
			src, ok := in.sources[c.Source]
			if !ok {
				return nil, fmt.Errorf("clip %s: source %q not staged", c.ID, c.Source)
			}
			p.Inputs = append(p.Inputs, ffmpeg.Input{Path: src})
			fb.Trim(c.AV.Offset, scaled(c.Duration, c.Speed())).
				ShiftPTS(c.Start, c.Speed()).
				Fit(in.width, in.height)
		case timeline.KindImage:
			src, ok := in.sources[c.Source]
			if !ok {
				return nil, fmt.Errorf("clip %s: source %q not staged", c.ID, c.Source)
			}
			p.Inputs = append(p.Inputs, ffmpeg.Input{Path: src, Loop: true, Duration: c.Duration})
			fb.FitAlpha(in.width, in.height).ShiftPTS(c.Start, 1)
		case timeline.KindText:
			src, ok := in.texts[c.ID]
			if !ok {
				return nil, fmt.Errorf("clip %s: text not rendered", c.ID)
			}
			p.Inputs = append(p.Inputs, ffmpeg.Input{Path: src, Loop: true, Duration: c.Duration})
			fb.Custom("format=rgba").ShiftPTS(c.Start, 1)
		}

		layer := g.Label("v")
		g.Chain([]string{ffmpeg.VideoInput(idx)}, fb.Build(), layer)

		next := g.Label("base")
		g.Chain([]string{base, layer}, ffmpeg.Overlay(0, 0, ffmpeg.EnableWindow(c.Window())), next)
		base = next
	}

	p.VideoMap = "vout"
	g.Chain([]string{base}, ffmpeg.NewFilterBuilder().Format(in.pixFmt).Build(), p.VideoMap)

	var mixed []string
	for _, c := range in.clips {
		if c.Kind != timeline.KindAudio {
			continue
		}
		src, ok := in.sources[c.Source]
		if !ok {
			return nil, fmt.Errorf("clip %s: source %q not staged", c.ID, c.Source)
		}
		idx := len(p.Inputs)
		p.Inputs = append(p.Inputs, ffmpeg.Input{Path: src})

		filter := ffmpeg.NewFilterBuilder().
			ATrim(c.AV.Offset, scaled(c.Duration, c.Speed())).
			ATempo(c.Speed()).
			Volume(c.Volume()).
			ADelay(c.Start).
			Build()
		label := g.Label("a")
		g.Chain([]string{ffmpeg.AudioInput(idx)}, filter, label)
		mixed = append(mixed, label)
	}

	switch len(mixed) {
	case 0:
	case 1:
		p.AudioMap = mixed[0]
	default:
		p.AudioMap = "aout"
		g.Chain(mixed, ffmpeg.Mix(len(mixed)), p.AudioMap)
	}

	p.Graph = g.String()
	return p, nil
}

// scaled is the source length consumed by d of composition time.
func scaled(d time.Duration, speed float64) time.Duration {
	return time.Duration(float64(d) * speed)
}
