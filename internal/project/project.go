// Package project reads and writes YAML project documents: the assets of
// an editing session and the clips placed on its timeline.
package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/splice/internal/export"
	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/timeline"
	"github.com/kikiluvv/splice/pkg/util"
)

// Document is the on-disk form. Times are in seconds.
type Document struct {
	Aspect string     `yaml:"aspect"`
	Assets []AssetDoc `yaml:"assets"`
	Clips  []ClipDoc  `yaml:"clips"`

	// baseDir resolves relative sources.
	baseDir string
}

type AssetDoc struct {
	ID       string  `yaml:"id"`
	Kind     string  `yaml:"kind,omitempty"`
	Source   string  `yaml:"source"`
	Name     string  `yaml:"name,omitempty"`
	Duration float64 `yaml:"duration,omitempty"`
}

type ClipDoc struct {
	ID       string   `yaml:"id,omitempty"`
	Asset    string   `yaml:"asset,omitempty"`
	Text     string   `yaml:"text,omitempty"`
	Start    float64  `yaml:"start"`
	Duration float64  `yaml:"duration,omitempty"`
	Layer    *int     `yaml:"layer,omitempty"`
	Speed    float64  `yaml:"speed,omitempty"`
	Volume   *float64 `yaml:"volume,omitempty"`
	Offset   float64  `yaml:"offset,omitempty"`

	FontSize   float64 `yaml:"font_size,omitempty"`
	FontFamily string  `yaml:"font_family,omitempty"`
	Color      string  `yaml:"color,omitempty"`
	X          float64 `yaml:"x,omitempty"`
	Y          float64 `yaml:"y,omitempty"`
}

// Project is a loaded editing session.
type Project struct {
	Registry *media.Registry
	Timeline *timeline.Timeline
	Aspect   export.Aspect
}

// Load reads a project document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err == nil {
		doc.baseDir = abs
	}
	return doc, nil
}

// Parse decodes a project document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse project: %w", err)
	}
	return &doc, nil
}

// Build ingests the assets and places the clips. Timed assets without a
// duration are probed when prober is non-nil; otherwise their clips fall
// back to the still duration unless the clip sets one.
func (d *Document) Build(ctx context.Context, logger zerolog.Logger, defaults timeline.Defaults, prober *media.Prober) (*Project, error) {
	logger = logging.WithComponent(logger, "project")

	reg := media.NewRegistry()
	for i, a := range d.Assets {
		asset, err := d.asset(a)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}
		asset, err = reg.Ingest(asset)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}

		if asset.DurationKnown || !asset.Kind.Timed() || prober == nil {
			continue
		}
		probed, err := prober.Probe(ctx, asset.Source)
		if err != nil || !probed.DurationKnown {
			logger.Warn().Err(err).Str("asset", asset.ID).Msg("duration unknown")
			continue
		}
		if err := reg.SetDuration(asset.ID, probed.Duration); err != nil {
			return nil, err
		}
	}

	tl := timeline.New(logger, defaults)
	items := make([]timeline.BatchItem, 0, len(d.Clips))
	for i, c := range d.Clips {
		item, err := clipItem(reg, c)
		if err != nil {
			return nil, fmt.Errorf("clip %d: %w", i, err)
		}
		items = append(items, item)
	}
	placed, err := tl.PlaceBatch(items)
	if err != nil {
		return nil, err
	}

	for i, c := range d.Clips {
		var patch timeline.Patch
		if c.Offset > 0 {
			off := util.FromSeconds(c.Offset)
			patch.Offset = &off
		}
		patch.Layer = c.Layer
		if patch.Offset == nil && patch.Layer == nil {
			continue
		}
		if err := tl.Update(placed[i].ID, patch); err != nil {
			return nil, fmt.Errorf("clip %d: %w", i, err)
		}
	}

	logger.Debug().
		Int("assets", len(reg.List())).
		Int("clips", tl.Len()).
		Dur("duration", tl.TotalDuration()).
		Msg("project loaded")

	return &Project{Registry: reg, Timeline: tl, Aspect: export.Aspect(d.Aspect)}, nil
}

func (d *Document) asset(a AssetDoc) (media.Asset, error) {
	src := a.Source
	if src != "" && !isURL(src) {
		src = util.ExpandHome(src)
		if !filepath.IsAbs(src) && d.baseDir != "" {
			src = filepath.Join(d.baseDir, src)
		}
	}

	var kind media.Kind
	if a.Kind != "" {
		k, err := media.ParseKind(a.Kind)
		if err != nil {
			// also accept a declared MIME type such as "video/mp4"
			ck, ok := media.KindFromContentType(a.Kind)
			if !ok {
				return media.Asset{}, err
			}
			k = ck
		}
		kind = k
	} else {
		k, ok := media.KindFromPath(src)
		if !ok {
			return media.Asset{}, fmt.Errorf("cannot tell the kind of %q", a.Source)
		}
		kind = k
	}

	out := media.Asset{ID: a.ID, Kind: kind, Source: src, DisplayName: a.Name}
	if out.DisplayName == "" {
		out.DisplayName = filepath.Base(a.Source)
	}
	if a.Duration > 0 {
		out.Duration = util.FromSeconds(a.Duration)
		out.DurationKnown = true
	}
	return out, nil
}

func clipItem(reg *media.Registry, c ClipDoc) (timeline.BatchItem, error) {
	opts := timeline.PlaceOptions{
		ID:     c.ID,
		Start:  timeline.At(util.FromSeconds(c.Start)),
		Speed:  c.Speed,
		Volume: c.Volume,
	}
	if c.Duration > 0 {
		opts.Duration = util.FromSeconds(c.Duration)
	}

	switch {
	case c.Asset != "" && c.Text != "":
		return timeline.BatchItem{}, fmt.Errorf("clip sets both asset and text")
	case c.Asset != "":
		a, ok := reg.Get(c.Asset)
		if !ok {
			return timeline.BatchItem{}, fmt.Errorf("unknown asset %q", c.Asset)
		}
		return timeline.BatchItem{Item: timeline.AssetItem(a), Options: opts}, nil
	case c.Text != "":
		return timeline.BatchItem{Item: timeline.TextItem(timeline.TextProps{
			Text:       c.Text,
			FontSize:   c.FontSize,
			FontFamily: c.FontFamily,
			Color:      c.Color,
			X:          c.X,
			Y:          c.Y,
		}), Options: opts}, nil
	default:
		return timeline.BatchItem{}, fmt.Errorf("clip needs an asset or text")
	}
}

// FromProject captures the current state of p as a document.
func FromProject(p *Project) *Document {
	doc := &Document{Aspect: string(p.Aspect)}
	for _, a := range p.Registry.List() {
		ad := AssetDoc{ID: a.ID, Kind: string(a.Kind), Source: a.Source, Name: a.DisplayName}
		if a.DurationKnown {
			ad.Duration = a.Duration.Seconds()
		}
		doc.Assets = append(doc.Assets, ad)
	}
	for _, c := range p.Timeline.Clips() {
		layer := c.Layer
		cd := ClipDoc{
			ID:       c.ID,
			Asset:    c.MediaID,
			Start:    c.Start.Seconds(),
			Duration: c.Duration.Seconds(),
			Layer:    &layer,
		}
		if c.AV != nil {
			vol := c.AV.Volume
			cd.Speed = c.AV.Speed
			cd.Volume = &vol
			cd.Offset = c.AV.Offset.Seconds()
		}
		if c.Text != nil {
			cd.Text = c.Text.Text
			cd.FontSize = c.Text.FontSize
			cd.FontFamily = c.Text.FontFamily
			cd.Color = c.Text.Color
			cd.X = c.Text.X
			cd.Y = c.Text.Y
		}
		doc.Clips = append(doc.Clips, cd)
	}
	return doc
}

// Save writes doc to path.
func (d *Document) Save(path string) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write project: %w", err)
	}
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "file://")
}
