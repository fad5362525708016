package timeline

import (
	"fmt"
	"time"

	"github.com/jinzhu/copier"

	"github.com/kikiluvv/splice/pkg/util"
)

// Kind is the kind of a placed clip. Text clips have no backing asset.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// ParseKind validates a clip kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindVideo, KindAudio, KindImage, KindText:
		return k, nil
	default:
		return "", fmt.Errorf("unknown clip kind %q", s)
	}
}

// Visual reports whether the clip is drawn.
func (k Kind) Visual() bool {
	return k != KindAudio
}

// AVProps are carried by video and audio clips.
type AVProps struct {
	// Speed is the playback-rate multiplier, > 0.
	Speed float64
	// Volume is a linear gain in [0, 2].
	Volume float64
	// Offset is the position in the source media shown at Start.
	Offset time.Duration
}

// TextProps are carried by text clips. X and Y are in composition pixels.
type TextProps struct {
	Text       string
	FontSize   float64
	FontFamily string
	Color      string
	X          float64
	Y          float64
}

// Clip is one entry on the timeline. Exactly one of AV and Text is set for
// video/audio and text clips respectively; image clips carry neither.
type Clip struct {
	ID      string
	Kind    Kind
	MediaID string
	Source  string

	Start    time.Duration
	Duration time.Duration
	Layer    int

	AV   *AVProps
	Text *TextProps
}

// End is the exclusive end of the coverage window.
func (c Clip) End() time.Duration {
	return c.Start + c.Duration
}

// Window returns the coverage window [Start, End).
func (c Clip) Window() (time.Duration, time.Duration) {
	return c.Start, c.End()
}

// Contains reports whether t falls inside the half-open window [Start, End).
func (c Clip) Contains(t time.Duration) bool {
	return t >= c.Start && t < c.End()
}

// Speed returns the playback rate, 1 for clips without AV properties.
func (c Clip) Speed() float64 {
	if c.AV == nil || c.AV.Speed <= 0 {
		return 1
	}
	return c.AV.Speed
}

// Volume returns the gain, 1 for clips without AV properties.
func (c Clip) Volume() float64 {
	if c.AV == nil {
		return 1
	}
	return c.AV.Volume
}

// SourceOffset maps composition time t to a position in the source media.
func (c Clip) SourceOffset(t time.Duration) time.Duration {
	if c.AV == nil {
		return 0
	}
	return c.AV.Offset + time.Duration(float64(t-c.Start)*c.Speed())
}

// Clone returns a deep copy; variant pointers are not shared.
func (c Clip) Clone() Clip {
	var out Clip
	if err := copier.CopyWithOption(&out, &c, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on mismatched types, which cannot happen here
		panic(fmt.Sprintf("clone clip %s: %v", c.ID, err))
	}
	return out
}

// Validate checks the per-clip invariants.
func (c Clip) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("clip has no id")
	}
	if c.Start < 0 {
		return fmt.Errorf("clip %s: start %v is negative", c.ID, c.Start)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("clip %s: duration %v must be positive", c.ID, c.Duration)
	}
	if c.Layer < 0 {
		return fmt.Errorf("clip %s: layer %d is negative", c.ID, c.Layer)
	}

	switch c.Kind {
	case KindVideo, KindAudio:
		if c.AV == nil || c.Text != nil {
			return fmt.Errorf("clip %s: %s clips carry only AV properties", c.ID, c.Kind)
		}
		if c.AV.Speed < MinSpeed || c.AV.Speed > MaxSpeed {
			return fmt.Errorf("clip %s: speed %v outside [%v, %v]", c.ID, c.AV.Speed, MinSpeed, MaxSpeed)
		}
		if c.AV.Volume < 0 || c.AV.Volume > MaxVolume {
			return fmt.Errorf("clip %s: volume %v outside [0, %v]", c.ID, c.AV.Volume, MaxVolume)
		}
		if c.AV.Offset < 0 {
			return fmt.Errorf("clip %s: negative source offset", c.ID)
		}
	case KindImage:
		if c.AV != nil || c.Text != nil {
			return fmt.Errorf("clip %s: image clips carry no properties", c.ID)
		}
	case KindText:
		if c.Text == nil || c.AV != nil {
			return fmt.Errorf("clip %s: text clips carry only text properties", c.ID)
		}
		if _, err := util.ParseColor(c.Text.Color); err != nil {
			return fmt.Errorf("clip %s: %w", c.ID, err)
		}
	default:
		return fmt.Errorf("clip %s: unknown kind %q", c.ID, c.Kind)
	}

	if c.Kind != KindText && c.Source == "" {
		return fmt.Errorf("clip %s: %s clip has no source", c.ID, c.Kind)
	}
	return nil
}

// Limits applied to AV properties.
const (
	MaxVolume = 2.0
	MinSpeed  = 0.1
	MaxSpeed  = 4.0
)
