package timeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/internal/media"
)

var (
	// ErrInvalidOperation marks a mutation whose precondition failed. The
	// timeline is left unchanged.
	ErrInvalidOperation = errors.New("invalid timeline operation")
	ErrNotFound         = errors.New("clip not found")
)

// Playhead supplies the current composition time.
type Playhead interface {
	Now() time.Duration
}

// Defaults are applied when placing clips.
type Defaults struct {
	StillDuration time.Duration
	FontSize      float64
	FontFamily    string
	Color         string
}

// DefaultDefaults mirrors the built-in configuration.
func DefaultDefaults() Defaults {
	return Defaults{
		StillDuration: 5 * time.Second,
		FontSize:      48,
		FontFamily:    "Go",
		Color:         "#FFFFFF",
	}
}

// Timeline owns the placed clips of one editing session. It is safe for
// concurrent use; all mutations go through its methods.
type Timeline struct {
	logger   zerolog.Logger
	defaults Defaults

	mu       sync.RWMutex
	clips    []*Clip // insertion order
	playhead Playhead

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// New creates an empty timeline
func New(logger zerolog.Logger, defaults Defaults) *Timeline {
	if defaults.StillDuration <= 0 {
		defaults.StillDuration = DefaultDefaults().StillDuration
	}
	return &Timeline{
		logger:   logging.WithComponent(logger, "timeline"),
		defaults: defaults,
		subs:     make(map[int]func(Event)),
	}
}

// SetPlayhead sets the source of the default start time for Place.
func (tl *Timeline) SetPlayhead(p Playhead) {
	tl.mu.Lock()
	tl.playhead = p
	tl.mu.Unlock()
}

// Item is something that can be placed: a media asset or a text overlay.
type Item struct {
	Asset *media.Asset
	Text  *TextProps
}

// AssetItem wraps an asset for placement.
func AssetItem(a media.Asset) Item {
	return Item{Asset: &a}
}

// TextItem wraps text properties for placement.
func TextItem(p TextProps) Item {
	return Item{Text: &p}
}

// PlaceOptions override placement defaults. Zero values mean "default".
type PlaceOptions struct {
	// ID keeps a caller-chosen clip id, e.g. one loaded from a project
	// file. It must not be in use.
	ID string
	// Start is the composition time of the first frame; nil places the
	// clip at the playhead.
	Start    *time.Duration
	Duration time.Duration
	Speed    float64
	Volume   *float64
}

// At is a convenience for PlaceOptions.Start.
func At(d time.Duration) *time.Duration {
	return &d
}

// Gain is a convenience for PlaceOptions.Volume.
func Gain(v float64) *float64 {
	return &v
}

// Place adds a clip built from item and returns it.
func (tl *Timeline) Place(item Item, opts PlaceOptions) (Clip, error) {
	clips, err := tl.PlaceBatch([]BatchItem{{Item: item, Options: opts}})
	if err != nil {
		return Clip{}, err
	}
	return clips[0], nil
}

// BatchItem is one entry of PlaceBatch.
type BatchItem struct {
	Item    Item
	Options PlaceOptions
}

// PlaceBatch places several items in one step. Layers account for clips
// already on the timeline and for earlier items in the same batch. If any
// item is invalid nothing is placed.
func (tl *Timeline) PlaceBatch(items []BatchItem) ([]Clip, error) {
	if len(items) == 0 {
		return nil, nil
	}

	tl.mu.Lock()

	var now time.Duration
	if tl.playhead != nil {
		now = tl.playhead.Now()
	}

	counts := make(map[Kind]int)
	used := make(map[string]bool, len(tl.clips))
	for _, c := range tl.clips {
		counts[c.Kind]++
		used[c.ID] = true
	}

	built := make([]*Clip, 0, len(items))
	for i, it := range items {
		c, err := tl.build(it.Item, it.Options, now)
		if err != nil {
			tl.mu.Unlock()
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		if used[c.ID] {
			tl.mu.Unlock()
			return nil, fmt.Errorf("batch item %d: %w: clip id %s in use", i, ErrInvalidOperation, c.ID)
		}
		used[c.ID] = true
		c.Layer = counts[c.Kind]
		counts[c.Kind]++
		built = append(built, c)
	}

	out := make([]Clip, 0, len(built))
	for _, c := range built {
		tl.clips = append(tl.clips, c)
		out = append(out, c.Clone())
	}
	tl.mu.Unlock()

	for _, c := range out {
		tl.logger.Debug().
			Str("clip", c.ID).
			Str("kind", string(c.Kind)).
			Dur("start", c.Start).
			Dur("duration", c.Duration).
			Int("layer", c.Layer).
			Msg("clip placed")
		tl.emit(Event{Type: EventPlaced, Clip: c})
	}
	return out, nil
}

func (tl *Timeline) build(item Item, opts PlaceOptions, now time.Duration) (*Clip, error) {
	c := &Clip{ID: opts.ID, Start: now}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if opts.Start != nil {
		c.Start = *opts.Start
	}

	switch {
	case item.Asset != nil && item.Text != nil:
		return nil, fmt.Errorf("%w: item is both asset and text", ErrInvalidOperation)
	case item.Text != nil:
		c.Kind = KindText
		text := *item.Text
		if text.FontSize <= 0 {
			text.FontSize = tl.defaults.FontSize
		}
		if text.FontFamily == "" {
			text.FontFamily = tl.defaults.FontFamily
		}
		if text.Color == "" {
			text.Color = tl.defaults.Color
		}
		c.Text = &text
		c.Duration = tl.defaults.StillDuration
	case item.Asset != nil:
		a := item.Asset
		c.MediaID = a.ID
		c.Source = a.Source
		switch a.Kind {
		case media.KindVideo, media.KindAudio:
			c.Kind = Kind(a.Kind)
			c.AV = &AVProps{Speed: 1, Volume: 1}
			if opts.Speed > 0 {
				c.AV.Speed = opts.Speed
			}
			if opts.Volume != nil {
				c.AV.Volume = *opts.Volume
			}
			c.Duration = tl.defaults.StillDuration
			if a.DurationKnown {
				c.Duration = a.Duration
			}
		case media.KindImage:
			c.Kind = KindImage
			c.Duration = tl.defaults.StillDuration
		default:
			return nil, fmt.Errorf("%w: unknown asset kind %q", ErrInvalidOperation, a.Kind)
		}
	default:
		return nil, fmt.Errorf("%w: empty item", ErrInvalidOperation)
	}

	if opts.Duration > 0 {
		c.Duration = opts.Duration
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	return c, nil
}

// Patch lists the fields Update changes; nil fields are left alone.
type Patch struct {
	Start    *time.Duration
	Duration *time.Duration
	Layer    *int
	Speed    *float64
	Volume   *float64
	Offset   *time.Duration

	Text       *string
	FontSize   *float64
	FontFamily *string
	Color      *string
	X          *float64
	Y          *float64
}

// Update merges patch into the clip. Fields are checked individually;
// combinations (e.g. duration against speed) are the caller's concern.
func (tl *Timeline) Update(id string, patch Patch) error {
	tl.mu.Lock()
	c, _ := tl.find(id)
	if c == nil {
		tl.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := c.Clone()
	if err := applyPatch(&next, patch); err != nil {
		tl.mu.Unlock()
		return err
	}
	if err := next.Validate(); err != nil {
		tl.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	*c = next
	out := next.Clone()
	tl.mu.Unlock()

	tl.emit(Event{Type: EventUpdated, Clip: out})
	return nil
}

func applyPatch(c *Clip, p Patch) error {
	if p.Start != nil {
		c.Start = *p.Start
	}
	if p.Duration != nil {
		c.Duration = *p.Duration
	}
	if p.Layer != nil {
		c.Layer = *p.Layer
	}

	if p.Speed != nil || p.Volume != nil || p.Offset != nil {
		if c.AV == nil {
			return fmt.Errorf("%w: %s clip %s has no speed or volume", ErrInvalidOperation, c.Kind, c.ID)
		}
		if p.Speed != nil {
			c.AV.Speed = *p.Speed
		}
		if p.Volume != nil {
			c.AV.Volume = *p.Volume
		}
		if p.Offset != nil {
			c.AV.Offset = *p.Offset
		}
	}

	if p.Text != nil || p.FontSize != nil || p.FontFamily != nil || p.Color != nil || p.X != nil || p.Y != nil {
		if c.Text == nil {
			return fmt.Errorf("%w: %s clip %s has no text properties", ErrInvalidOperation, c.Kind, c.ID)
		}
		if p.Text != nil {
			c.Text.Text = *p.Text
		}
		if p.FontSize != nil {
			c.Text.FontSize = *p.FontSize
		}
		if p.FontFamily != nil {
			c.Text.FontFamily = *p.FontFamily
		}
		if p.Color != nil {
			c.Text.Color = *p.Color
		}
		if p.X != nil {
			c.Text.X = *p.X
		}
		if p.Y != nil {
			c.Text.Y = *p.Y
		}
	}
	return nil
}

// Remove deletes the clip. Observers receive EventRemoved, which is how a
// selection tracker learns to clear itself.
func (tl *Timeline) Remove(id string) error {
	tl.mu.Lock()
	c, i := tl.find(id)
	if c == nil {
		tl.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	tl.clips = append(tl.clips[:i], tl.clips[i+1:]...)
	out := c.Clone()
	tl.mu.Unlock()

	tl.logger.Debug().Str("clip", id).Msg("clip removed")
	tl.emit(Event{Type: EventRemoved, Clip: out})
	return nil
}

// Split cuts the clip at composition time at, which must lie strictly
// inside its window. The left part keeps the id; the right part gets a new
// id, is inserted directly after the left one and continues the source
// media where the left part stops. On ErrInvalidOperation nothing changes.
func (tl *Timeline) Split(id string, at time.Duration) (Clip, Clip, error) {
	tl.mu.Lock()
	c, i := tl.find(id)
	if c == nil {
		tl.mu.Unlock()
		return Clip{}, Clip{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if at <= c.Start || at >= c.End() {
		tl.mu.Unlock()
		return Clip{}, Clip{}, fmt.Errorf("%w: split at %v outside (%v, %v)", ErrInvalidOperation, at, c.Start, c.End())
	}

	right := c.Clone()
	right.ID = uuid.NewString()
	right.Start = at
	right.Duration = c.Duration - (at - c.Start)
	if right.AV != nil {
		right.AV.Offset = c.SourceOffset(at)
	}

	c.Duration = at - c.Start

	tl.clips = append(tl.clips, nil)
	copy(tl.clips[i+2:], tl.clips[i+1:])
	tl.clips[i+1] = &right

	left := c.Clone()
	out := right.Clone()
	tl.mu.Unlock()

	tl.logger.Debug().
		Str("clip", id).
		Str("right", out.ID).
		Dur("at", at).
		Msg("clip split")
	tl.emit(Event{Type: EventSplit, Clip: left, Related: &out})
	return left, out.Clone(), nil
}

// Reorder moves the clip to position layer within the stack of clips of
// its kind and renumbers that stack densely from 0.
func (tl *Timeline) Reorder(id string, layer int) error {
	tl.mu.Lock()
	c, _ := tl.find(id)
	if c == nil {
		tl.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var stack []*Clip
	for _, o := range tl.clips {
		if o.Kind == c.Kind && o != c {
			stack = append(stack, o)
		}
	}
	sort.SliceStable(stack, func(i, j int) bool { return stack[i].Layer < stack[j].Layer })

	if layer < 0 {
		layer = 0
	}
	if layer > len(stack) {
		layer = len(stack)
	}
	stack = append(stack, nil)
	copy(stack[layer+1:], stack[layer:])
	stack[layer] = c

	var changed []Clip
	for n, o := range stack {
		if o.Layer != n {
			o.Layer = n
			changed = append(changed, o.Clone())
		}
	}
	tl.mu.Unlock()

	for _, ch := range changed {
		tl.emit(Event{Type: EventUpdated, Clip: ch})
	}
	return nil
}

// BringToFront puts the clip above every other clip of its kind.
func (tl *Timeline) BringToFront(id string) error {
	return tl.Reorder(id, int(^uint(0)>>1))
}

// Get returns a copy of the clip.
func (tl *Timeline) Get(id string) (Clip, bool) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	c, _ := tl.find(id)
	if c == nil {
		return Clip{}, false
	}
	return c.Clone(), true
}

// Len returns the number of clips
func (tl *Timeline) Len() int {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	return len(tl.clips)
}

// Clips returns deep copies of all clips in insertion order.
func (tl *Timeline) Clips() []Clip {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	out := make([]Clip, 0, len(tl.clips))
	for _, c := range tl.clips {
		out = append(out, c.Clone())
	}
	return out
}

// Snapshot freezes the current state. Later mutations are not visible in it.
func (tl *Timeline) Snapshot() Snapshot {
	return Snapshot{Clips: tl.Clips()}
}

// TotalDuration is the latest window end over all clips.
func (tl *Timeline) TotalDuration() time.Duration {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	var total time.Duration
	for _, c := range tl.clips {
		if e := c.End(); e > total {
			total = e
		}
	}
	return total
}

func (tl *Timeline) find(id string) (*Clip, int) {
	for i, c := range tl.clips {
		if c.ID == id {
			return c, i
		}
	}
	return nil, -1
}
