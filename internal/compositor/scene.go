package compositor

import (
	"sort"
	"time"

	"github.com/kikiluvv/splice/internal/timeline"
)

// Scene is what should be drawn and heard at one instant. Draw order is
// Background, then Texts, then Images.
type Scene struct {
	Time time.Duration

	// Background is the video clip drawn full-frame; nil means a blank
	// canvas.
	Background *timeline.Clip
	// Texts are in insertion order.
	Texts []timeline.Clip
	// Images are in ascending layer order.
	Images []timeline.Clip
	// Audible lists audio clips whose window contains Time.
	Audible []timeline.Clip
}

// Resolve decides which clips are active at t. Windows are half-open, so a
// clip ending exactly at t is not included. When several video clips cover
// t, the one on the highest layer wins; equal layers go to the later
// insertion.
func Resolve(clips []timeline.Clip, t time.Duration) Scene {
	scene := Scene{Time: t}

	for i := range clips {
		c := clips[i]
		if !c.Contains(t) {
			continue
		}
		switch c.Kind {
		case timeline.KindVideo:
			if scene.Background == nil || c.Layer >= scene.Background.Layer {
				bg := c
				scene.Background = &bg
			}
		case timeline.KindText:
			scene.Texts = append(scene.Texts, c)
		case timeline.KindImage:
			scene.Images = append(scene.Images, c)
		case timeline.KindAudio:
			scene.Audible = append(scene.Audible, c)
		}
	}

	sort.SliceStable(scene.Images, func(i, j int) bool {
		return scene.Images[i].Layer < scene.Images[j].Layer
	})
	return scene
}

// Visible returns the drawn clips bottom to top.
func (s Scene) Visible() []timeline.Clip {
	out := make([]timeline.Clip, 0, 1+len(s.Texts)+len(s.Images))
	if s.Background != nil {
		out = append(out, *s.Background)
	}
	out = append(out, s.Texts...)
	return append(out, s.Images...)
}
