// Package export flattens a timeline snapshot into a single encoded file
// by driving ffmpeg with one filter graph.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/config"
	"github.com/kikiluvv/splice/internal/ffmpeg"
	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/internal/textrender"
	"github.com/kikiluvv/splice/internal/timeline"
)

// Encoder runs one filter_complex encode. *ffmpeg.Executor implements it.
type Encoder interface {
	Encode(ctx context.Context, opts ffmpeg.EncodeOptions) error
}

// EncoderFactory loads an encoder for one export.
type EncoderFactory func() (Encoder, error)

// FFmpegEncoder returns a factory that locates the ffmpeg binaries on
// every call.
func FFmpegEncoder(logger zerolog.Logger, opts ffmpeg.Options) EncoderFactory {
	return func() (Encoder, error) {
		executor, err := ffmpeg.New(logger, opts)
		if err != nil {
			return nil, err
		}
		return executor, nil
	}
}

// Options control encoding.
type Options struct {
	TempDir         string
	FPS             int
	CRF             int
	Preset          string
	VideoCodec      string
	AudioCodec      string
	PixelFormat     string
	BackgroundColor string
	HTTPClient      *http.Client
}

// OptionsFromConfig maps the ffmpeg section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TempDir:         cfg.TempDir,
		FPS:             cfg.FFmpeg.FPS,
		CRF:             cfg.FFmpeg.CRF,
		Preset:          cfg.FFmpeg.Preset,
		VideoCodec:      cfg.FFmpeg.VideoCodec,
		AudioCodec:      cfg.FFmpeg.AudioCodec,
		PixelFormat:     cfg.FFmpeg.PixelFormat,
		BackgroundColor: cfg.FFmpeg.BackgroundColor,
	}
}

// ProgressFunc receives the encoded fraction in [0, 1].
type ProgressFunc func(fraction float64)

// Result describes a finished export.
type Result struct {
	Width    int
	Height   int
	Duration time.Duration
	Bytes    int64
	Args     []string
}

// Exporter turns snapshots into encoded files.
type Exporter struct {
	logger     zerolog.Logger
	opts       Options
	newEncoder EncoderFactory
	text       *textrender.Renderer
}

// New creates an exporter
func New(logger zerolog.Logger, opts Options, newEncoder EncoderFactory) *Exporter {
	logger = logging.WithComponent(logger, "export")
	return &Exporter{
		logger:     logger,
		opts:       opts,
		newEncoder: newEncoder,
		text:       textrender.New(logger),
	}
}

// Export encodes snap at the resolution of aspect and writes the file to
// dst. The workspace is removed on every return path.
func (e *Exporter) Export(ctx context.Context, snap timeline.Snapshot, aspect Aspect, dst io.Writer, onProgress ProgressFunc) (*Result, error) {
	total := snap.TotalDuration()
	if total <= 0 {
		return nil, ErrEmptyTimeline
	}
	width, height := Resolution(aspect)

	enc, err := e.newEncoder()
	if err != nil {
		return nil, &EncoderInitError{Err: err}
	}
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	ws, err := NewWorkspace(e.opts.TempDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("failed to remove workspace")
		}
	}()

	log := e.logger.With().Str("workspace", ws.Dir).Logger()
	log.Info().
		Int("clips", len(snap.Clips)).
		Int("width", width).
		Int("height", height).
		Dur("duration", total).
		Msg("starting export")

	st := &stager{ws: ws, client: e.opts.HTTPClient}
	sources, err := st.stageAll(ctx, snap.Clips)
	if err != nil {
		return nil, cancelled(ctx, err)
	}

	texts := make(map[string]string)
	for _, c := range snap.Clips {
		if c.Kind != timeline.KindText {
			continue
		}
		p := ws.Path(fmt.Sprintf("text-%s.png", c.ID))
		if err := e.text.WritePNG(p, *c.Text, width, height); err != nil {
			return nil, &AssetLoadError{ClipID: c.ID, Source: c.Text.FontFamily, Err: err}
		}
		texts[c.ID] = p
	}

	pl, err := buildPlan(planInput{
		clips:      snap.Clips,
		width:      width,
		height:     height,
		fps:        e.opts.FPS,
		background: e.opts.BackgroundColor,
		pixFmt:     e.opts.PixelFormat,
		sources:    sources,
		texts:      texts,
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("graph", pl.Graph).Msg("filter graph")

	prog := &progress{ctx: ctx, total: total, fn: onProgress}
	output := ws.Path("output.mp4")
	encOpts := ffmpeg.EncodeOptions{
		Inputs:       pl.Inputs,
		FilterGraph:  pl.Graph,
		VideoMap:     pl.VideoMap,
		AudioMap:     pl.AudioMap,
		Duration:     pl.Duration,
		Output:       output,
		VideoCodec:   e.opts.VideoCodec,
		AudioCodec:   e.opts.AudioCodec,
		PixelFormat:  e.opts.PixelFormat,
		CRF:          e.opts.CRF,
		Preset:       e.opts.Preset,
		FPS:          e.opts.FPS,
		ProgressFunc: prog.report,
	}
	args, err := ffmpeg.BuildEncodeArgs(encOpts)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}

	if err := enc.Encode(ctx, encOpts); err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		if runErr, ok := ffmpeg.IsRunError(err); ok {
			return nil, &EncodeError{Diagnostics: runErr.Log, Err: runErr.Err}
		}
		return nil, &EncodeError{Err: err}
	}

	f, err := os.Open(output)
	if err != nil {
		return nil, &EncodeError{Err: fmt.Errorf("encoder produced no output: %w", err)}
	}
	defer f.Close()
	n, err := io.Copy(dst, f)
	if err != nil {
		return nil, fmt.Errorf("failed to write output: %w", err)
	}
	if n == 0 {
		return nil, &EncodeError{Err: errors.New("encoder produced an empty file")}
	}

	prog.finish()
	log.Info().Int64("bytes", n).Msg("export completed")

	return &Result{Width: width, Height: height, Duration: total, Bytes: n, Args: args}, nil
}

// Close releases cached fonts.
func (e *Exporter) Close() error {
	return e.text.Close()
}

// progress converts encoder progress into a non-decreasing fraction and
// stops reporting once ctx is done.
type progress struct {
	ctx   context.Context
	total time.Duration
	fn    ProgressFunc
	last  float64
}

func (p *progress) report(pr *ffmpeg.Progress) {
	frac := float64(pr.OutTime) / float64(p.total)
	if pr.Done {
		frac = 1
	}
	p.emit(frac)
}

func (p *progress) finish() {
	p.emit(1)
}

func (p *progress) emit(frac float64) {
	if p.fn == nil || p.ctx.Err() != nil {
		return
	}
	if frac > 1 {
		frac = 1
	}
	if frac <= p.last {
		return
	}
	p.last = frac
	p.fn(frac)
}

func cancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return err
}
