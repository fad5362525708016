package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog"
	"github.com/tcolgate/mp3"

	"github.com/kikiluvv/splice/internal/ffmpeg"
	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/pkg/util"
)

// StreamProber is the subset of ffmpeg.Executor the prober needs.
type StreamProber interface {
	ProbeVideo(ctx context.Context, filePath string) (*ffmpeg.VideoInfo, error)
}

// Prober turns a file on disk into an Asset with its decoded duration.
type Prober struct {
	logger  zerolog.Logger
	ffprobe StreamProber
}

// NewProber creates a prober. ffprobe may be nil, in which case only mp3
// durations can be decoded.
func NewProber(logger zerolog.Logger, ffprobe StreamProber) *Prober {
	return &Prober{
		logger:  logging.WithComponent(logger, "prober"),
		ffprobe: ffprobe,
	}
}

// Probe inspects path. The returned asset has no ID yet.
func (p *Prober) Probe(ctx context.Context, path string) (Asset, error) {
	if _, err := os.Stat(path); err != nil {
		return Asset{}, err
	}

	kind, ok := KindFromPath(path)
	if !ok {
		return Asset{}, fmt.Errorf("unsupported media file %s", filepath.Base(path))
	}

	asset := Asset{
		Kind:        kind,
		Source:      path,
		DisplayName: displayName(path),
	}

	if !kind.Timed() {
		return asset, nil
	}

	d, err := p.decodeDuration(ctx, path)
	if err != nil {
		// The asset is still usable; duration can be filled in later.
		p.logger.Warn().Err(err).Str("path", path).Msg("duration unavailable")
		return asset, nil
	}

	asset.Duration = d
	asset.DurationKnown = true
	return asset, nil
}

func (p *Prober) decodeDuration(ctx context.Context, path string) (time.Duration, error) {
	if p.ffprobe != nil {
		info, err := p.ffprobe.ProbeVideo(ctx, path)
		if err == nil && info.Duration > 0 {
			return info.Duration, nil
		}
		if err != nil {
			p.logger.Debug().Err(err).Str("path", path).Msg("ffprobe failed, trying fallback")
		}
	}

	if util.Ext(path) == ".mp3" {
		return mp3Duration(path)
	}

	return 0, fmt.Errorf("no decoder for %s", filepath.Base(path))
}

// mp3Duration walks every frame, which is exact for VBR files too.
func mp3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total time.Duration

	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration()
	}

	if total <= 0 {
		return 0, fmt.Errorf("no mp3 frames in %s", filepath.Base(path))
	}
	return total, nil
}

// displayName prefers the embedded title tag over the file name.
func displayName(path string) string {
	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return fallback
	}

	title := strings.TrimSpace(meta.Title())
	if title == "" {
		return fallback
	}
	if artist := strings.TrimSpace(meta.Artist()); artist != "" {
		return artist + " - " + title
	}
	return title
}

// IngestFile probes path and adds the result to reg.
func IngestFile(ctx context.Context, reg *Registry, p *Prober, path string) (Asset, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Asset{}, err
	}
	asset, err := p.Probe(ctx, abs)
	if err != nil {
		return Asset{}, fmt.Errorf("probe %s: %w", filepath.Base(path), err)
	}
	return reg.Ingest(asset)
}
