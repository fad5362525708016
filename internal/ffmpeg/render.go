package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kikiluvv/splice/pkg/util"
)

// Input is one -i declaration.
type Input struct {
	Path string
	// Loop repeats a still image; Duration bounds how long it is read.
	Loop     bool
	Duration time.Duration
	// Lavfi treats Path as a lavfi source description such as
	// "color=c=black:s=1920x1080:d=7".
	Lavfi bool
}

// Args renders the input options followed by -i.
func (in Input) Args() []string {
	var args []string
	if in.Lavfi {
		args = append(args, "-f", "lavfi")
	}
	if in.Loop {
		args = append(args, "-loop", "1")
	}
	if in.Duration > 0 {
		args = append(args, "-t", util.Seconds(in.Duration))
	}
	return append(args, "-i", in.Path)
}

// EncodeOptions describes a single filter_complex encode.
type EncodeOptions struct {
	Inputs      []Input
	FilterGraph string
	VideoMap    string
	AudioMap    string
	Duration    time.Duration
	Output      string

	VideoCodec  string
	AudioCodec  string
	PixelFormat string
	CRF         int
	Preset      string
	FPS         int

	ProgressFunc ProgressFunc
}

// BuildEncodeArgs assembles the ffmpeg argument list: inputs, the filter
// graph, stream mappings, codec flags and the output file.
func BuildEncodeArgs(opts EncodeOptions) ([]string, error) {
	if len(opts.Inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	if opts.Output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if opts.VideoMap == "" {
		return nil, fmt.Errorf("video stream mapping is required")
	}
	if opts.CRF < 0 || opts.CRF > 51 {
		return nil, fmt.Errorf("CRF must be between 0 and 51")
	}

	var args []string
	for _, in := range opts.Inputs {
		args = append(args, in.Args()...)
	}

	if opts.FilterGraph != "" {
		args = append(args, "-filter_complex", opts.FilterGraph)
	}

	args = append(args, "-map", "["+opts.VideoMap+"]")
	if opts.AudioMap != "" {
		args = append(args, "-map", "["+opts.AudioMap+"]")
	}

	videoCodec := opts.VideoCodec
	if videoCodec == "" {
		videoCodec = DefaultVideoCodec
	}
	args = append(args, "-c:v", videoCodec)

	crf := opts.CRF
	if crf == 0 {
		crf = DefaultCRF
	}
	args = append(args, "-crf", strconv.Itoa(crf))

	preset := opts.Preset
	if preset == "" {
		preset = DefaultPreset
	}
	args = append(args, "-preset", preset)

	pixFmt := opts.PixelFormat
	if pixFmt == "" {
		pixFmt = DefaultPixelFormat
	}
	args = append(args, "-pix_fmt", pixFmt)

	fps := opts.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	args = append(args, "-r", strconv.Itoa(fps))

	if opts.AudioMap != "" {
		audioCodec := opts.AudioCodec
		if audioCodec == "" {
			audioCodec = DefaultAudioCodec
		}
		args = append(args, "-c:a", audioCodec)
	}

	if opts.Duration > 0 {
		args = append(args, "-t", util.Seconds(opts.Duration))
	}

	args = append(args, "-movflags", "+faststart", opts.Output)
	return args, nil
}

// Encode runs a filter_complex encode built from opts
func (e *Executor) Encode(ctx context.Context, opts EncodeOptions) error {
	args, err := BuildEncodeArgs(opts)
	if err != nil {
		return fmt.Errorf("invalid encode options: %w", err)
	}

	e.logger.Info().
		Int("inputs", len(opts.Inputs)).
		Str("output", opts.Output).
		Dur("duration", opts.Duration).
		Msg("starting encode")

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("encode output")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return err
	}

	e.logger.Info().Str("output", opts.Output).Msg("encode completed")
	return nil
}
