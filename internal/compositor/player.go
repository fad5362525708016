package compositor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/internal/timeline"
)

// State of a Player.
type State int

const (
	Paused State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "paused"
}

// Element is a media element that plays one clip's source, such as a
// decoder feeding the preview surface or an audio sink. Position and Seek
// are in source time.
type Element interface {
	Position() time.Duration
	Seek(pos time.Duration) error
	SetRate(rate float64) error
	Play() error
	Pause() error
}

// Source is the timeline a player reads from.
type Source interface {
	Clips() []timeline.Clip
	TotalDuration() time.Duration
	Subscribe(fn func(timeline.Event)) func()
}

// PlayerOptions configure a Player.
type PlayerOptions struct {
	FrameRate      int
	DriftTolerance time.Duration
	// OnFrame receives every resolved scene. It runs on the player's
	// goroutine and must return promptly without calling Pause.
	OnFrame func(Scene)
}

type tracked struct {
	el      Element
	playing bool
	rate    float64
}

// Player drives preview playback: it advances the clock, resolves a scene
// per frame and keeps attached media elements in step with the clock.
type Player struct {
	logger zerolog.Logger
	src    Source
	clock  *Clock
	opts   PlayerOptions

	// frameMu orders tick delivery against Pause.
	frameMu sync.Mutex

	mu       sync.Mutex
	state    State
	elements map[string]*tracked
	stop     chan struct{}

	unsubscribe func()
}

// NewPlayer creates a paused player over src.
func NewPlayer(logger zerolog.Logger, src Source, clock *Clock, opts PlayerOptions) *Player {
	if clock == nil {
		clock = NewClock(nil)
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 30
	}
	if opts.DriftTolerance <= 0 {
		opts.DriftTolerance = 100 * time.Millisecond
	}
	p := &Player{
		logger:   logging.WithComponent(logger, "player"),
		src:      src,
		clock:    clock,
		opts:     opts,
		elements: make(map[string]*tracked),
	}
	p.unsubscribe = src.Subscribe(p.onTimelineEvent)
	return p
}

// Now returns the playhead. Player satisfies timeline.Playhead.
func (p *Player) Now() time.Duration {
	return p.clock.Now()
}

// State returns the current playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Attach binds a media element to a clip. The element is driven by the
// player from then on and must not be controlled elsewhere.
func (p *Player) Attach(clipID string, el Element) {
	p.mu.Lock()
	p.elements[clipID] = &tracked{el: el}
	p.mu.Unlock()
	p.Step()
}

// Detach releases the element bound to clipID, pausing it first.
func (p *Player) Detach(clipID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detachLocked(clipID)
}

func (p *Player) detachLocked(clipID string) {
	tr, ok := p.elements[clipID]
	if !ok {
		return
	}
	if tr.playing {
		if err := tr.el.Pause(); err != nil {
			p.logger.Warn().Err(err).Str("clip", clipID).Msg("pause element")
		}
	}
	delete(p.elements, clipID)
}

// Toggle switches between playing and paused.
func (p *Player) Toggle() {
	if p.State() == Playing {
		p.Pause()
		return
	}
	p.Play()
}

// Play starts playback. At the end of the timeline it restarts from 0.
func (p *Player) Play() {
	p.mu.Lock()
	if p.state == Playing {
		p.mu.Unlock()
		return
	}
	if total := p.src.TotalDuration(); total > 0 && p.clock.Now() >= total {
		p.clock.Seek(0)
	}
	p.state = Playing
	p.clock.Play()
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	p.logger.Debug().Dur("at", p.clock.Now()).Msg("play")
	go p.loop(stop)
}

// Pause stops playback immediately. Pausing a paused player is a no-op.
// No tick frame is delivered once Pause has returned.
func (p *Player) Pause() {
	p.frameMu.Lock()
	defer p.frameMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseLocked()
}

func (p *Player) pauseLocked() {
	if p.state == Paused {
		return
	}
	p.state = Paused
	p.clock.Pause()
	close(p.stop)
	p.stop = nil

	for id, tr := range p.elements {
		if !tr.playing {
			continue
		}
		if err := tr.el.Pause(); err != nil {
			p.logger.Warn().Err(err).Str("clip", id).Msg("pause element")
		}
		tr.playing = false
	}
	p.logger.Debug().Dur("at", p.clock.Now()).Msg("pause")
}

// Seek moves the playhead to t, clamped to [0, total], and renders the
// scene there.
func (p *Player) Seek(t time.Duration) Scene {
	if total := p.src.TotalDuration(); t > total {
		t = total
	}
	p.clock.Seek(t)
	return p.Step()
}

// SetRate changes the preview rate. Element rates are clip speed times
// this rate.
func (p *Player) SetRate(rate float64) {
	p.clock.SetRate(rate)
	p.Step()
}

// Step performs one frame: it pauses at the end of the timeline, syncs
// elements to the clock and delivers the resolved scene to OnFrame.
func (p *Player) Step() Scene {
	scene, _ := p.resolve(nil)
	if p.opts.OnFrame != nil {
		p.opts.OnFrame(scene)
	}
	return scene
}

// tick is a Step issued by the play loop of session. It delivers nothing
// once that session has been paused.
func (p *Player) tick(session <-chan struct{}) {
	p.frameMu.Lock()
	defer p.frameMu.Unlock()
	scene, ok := p.resolve(session)
	if ok && p.opts.OnFrame != nil {
		p.opts.OnFrame(scene)
	}
}

func (p *Player) resolve(session <-chan struct{}) (Scene, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if session != nil && p.stop != session {
		return Scene{}, false
	}
	now := p.clock.Now()
	if p.state == Playing {
		if total := p.src.TotalDuration(); now >= total {
			p.clock.Seek(total)
			p.pauseLocked()
			now = total
		}
	}
	clips := p.src.Clips()
	scene := Resolve(clips, now)
	p.syncLocked(clips, now)
	return scene, true
}

func (p *Player) syncLocked(clips []timeline.Clip, now time.Duration) {
	byID := make(map[string]timeline.Clip, len(clips))
	for _, c := range clips {
		byID[c.ID] = c
	}
	rate := p.clock.Rate()

	for id, tr := range p.elements {
		c, ok := byID[id]
		if !ok {
			p.detachLocked(id)
			continue
		}
		log := p.logger.With().Str("clip", id).Logger()

		if !c.Contains(now) {
			if tr.playing {
				if err := tr.el.Pause(); err != nil {
					log.Warn().Err(err).Msg("pause element")
				}
				tr.playing = false
			}
			continue
		}

		if want := c.Speed() * rate; want != tr.rate {
			if err := tr.el.SetRate(want); err != nil {
				log.Warn().Err(err).Msg("set element rate")
			} else {
				tr.rate = want
			}
		}

		target := c.SourceOffset(now)
		if drift := tr.el.Position() - target; drift > p.opts.DriftTolerance || drift < -p.opts.DriftTolerance {
			if err := tr.el.Seek(target); err != nil {
				log.Warn().Err(err).Msg("seek element")
			}
		}

		if p.state == Playing && !tr.playing {
			if err := tr.el.Play(); err != nil {
				log.Warn().Err(err).Msg("play element")
				continue
			}
			tr.playing = true
		}
	}
}

func (p *Player) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second / time.Duration(p.opts.FrameRate))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.tick(stop)
		}
	}
}

func (p *Player) onTimelineEvent(ev timeline.Event) {
	if ev.Type == timeline.EventRemoved {
		p.Detach(ev.Clip.ID)
	}
	p.Step()
}

// Close stops playback and detaches from the timeline.
func (p *Player) Close() {
	p.Pause()
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.mu.Lock()
	for id := range p.elements {
		p.detachLocked(id)
	}
	p.mu.Unlock()
}
