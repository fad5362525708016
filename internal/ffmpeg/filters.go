package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kikiluvv/splice/pkg/util"
)

// FilterBuilder helps construct comma-separated ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Fit scales the input to fit inside width x height keeping its aspect
// ratio, then pads the remainder so the output is exactly width x height.
func (fb *FilterBuilder) Fit(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black", width, height),
		"setsar=1",
	)
	return fb
}

// FitAlpha is Fit with a transparent pad, for overlays that must not
// cover what is underneath.
func (fb *FilterBuilder) FitAlpha(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters,
		"format=rgba",
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black@0", width, height),
		"setsar=1",
	)
	return fb
}

// Trim keeps length of the input starting at offset.
func (fb *FilterBuilder) Trim(offset, length time.Duration) *FilterBuilder {
	if length <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("trim=start=%s:duration=%s", util.Seconds(offset), util.Seconds(length)))
	return fb
}

// ShiftPTS rebases timestamps to zero, divides them by speed and shifts
// the result so the first frame lands at start.
func (fb *FilterBuilder) ShiftPTS(start time.Duration, speed float64) *FilterBuilder {
	expr := "PTS-STARTPTS"
	if speed > 0 && speed != 1 {
		expr = fmt.Sprintf("(PTS-STARTPTS)/%s", formatFactor(speed))
	}
	if start > 0 {
		expr += fmt.Sprintf("+%s/TB", util.Seconds(start))
	}
	fb.filters = append(fb.filters, "setpts="+expr)
	return fb
}

// Format adds a pixel format conversion
func (fb *FilterBuilder) Format(pixFmt string) *FilterBuilder {
	if pixFmt == "" {
		return fb
	}
	fb.filters = append(fb.filters, "format="+pixFmt)
	return fb
}

// ATrim is the audio counterpart of Trim followed by a timestamp reset.
func (fb *FilterBuilder) ATrim(offset, length time.Duration) *FilterBuilder {
	if length <= 0 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("atrim=start=%s:duration=%s", util.Seconds(offset), util.Seconds(length)),
		"asetpts=PTS-STARTPTS",
	)
	return fb
}

// ATempo changes audio speed. atempo only accepts factors in [0.5, 2] on
// older ffmpeg builds, so larger changes are chained.
func (fb *FilterBuilder) ATempo(speed float64) *FilterBuilder {
	if speed <= 0 || speed == 1 {
		return fb
	}
	for speed > 2 {
		fb.filters = append(fb.filters, "atempo=2.0")
		speed /= 2
	}
	for speed < 0.5 {
		fb.filters = append(fb.filters, "atempo=0.5")
		speed /= 0.5
	}
	fb.filters = append(fb.filters, "atempo="+formatFactor(speed))
	return fb
}

// Volume applies a linear gain; 1.0 is a no-op.
func (fb *FilterBuilder) Volume(gain float64) *FilterBuilder {
	if gain < 0 || gain == 1 {
		return fb
	}
	fb.filters = append(fb.filters, "volume="+formatFactor(gain))
	return fb
}

// ADelay delays every channel of the stream by d.
func (fb *FilterBuilder) ADelay(d time.Duration) *FilterBuilder {
	if d <= 0 {
		return fb
	}
	ms := util.Millis(d)
	fb.filters = append(fb.filters, fmt.Sprintf("adelay=delays=%d:all=1", ms))
	return fb
}

// Custom adds a custom filter string
func (fb *FilterBuilder) Custom(filter string) *FilterBuilder {
	fb.filters = append(fb.filters, filter)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

func formatFactor(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
