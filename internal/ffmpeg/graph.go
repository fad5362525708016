package ffmpeg

import (
	"fmt"
	"strings"
	"time"

	"github.com/kikiluvv/splice/pkg/util"
)

// Graph assembles a -filter_complex expression out of labelled chains.
type Graph struct {
	chains []string
	labels map[string]int
}

// NewGraph creates an empty filter graph
func NewGraph() *Graph {
	return &Graph{labels: make(map[string]int)}
}

// Label returns a label unique within the graph, e.g. "v0", "v1".
func (g *Graph) Label(prefix string) string {
	n := g.labels[prefix]
	g.labels[prefix] = n + 1
	return fmt.Sprintf("%s%d", prefix, n)
}

// Chain appends "[in1][in2]filter[out]". An empty filter becomes a
// passthrough (null for video, anull for audio labels starting with "a").
func (g *Graph) Chain(inputs []string, filter, output string) {
	var sb strings.Builder
	for _, in := range inputs {
		sb.WriteString("[" + in + "]")
	}
	if filter == "" {
		filter = "null"
		if strings.HasPrefix(output, "a") {
			filter = "anull"
		}
	}
	sb.WriteString(filter)
	if output != "" {
		sb.WriteString("[" + output + "]")
	}
	g.chains = append(g.chains, sb.String())
}

// String renders the graph for -filter_complex
func (g *Graph) String() string {
	return strings.Join(g.chains, ";")
}

// VideoInput names the video stream of input i ("3:v").
func VideoInput(i int) string {
	return fmt.Sprintf("%d:v", i)
}

// AudioInput names the audio stream of input i ("3:a").
func AudioInput(i int) string {
	return fmt.Sprintf("%d:a", i)
}

// EnableWindow is an overlay enable predicate true on [start, end).
func EnableWindow(start, end time.Duration) string {
	return fmt.Sprintf("enable='gte(t,%s)*lt(t,%s)'", util.Seconds(start), util.Seconds(end))
}

// Overlay composites the second input onto the first at x:y while the
// enable predicate holds. Frames past the overlay's end pass the base
// through untouched.
func Overlay(x, y int, enable string) string {
	f := fmt.Sprintf("overlay=%d:%d:eof_action=pass", x, y)
	if enable != "" {
		f += ":" + enable
	}
	return f
}

// Mix sums n audio streams with equal weight.
func Mix(n int) string {
	return fmt.Sprintf("amix=inputs=%d:duration=longest:dropout_transition=0:normalize=0", n)
}
