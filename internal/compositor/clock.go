package compositor

import (
	"sync"
	"time"
)

// Clock is the virtual time authority of a preview session. Media elements
// follow it; it never follows them.
type Clock struct {
	mu      sync.Mutex
	source  func() time.Time
	base    time.Duration
	anchor  time.Time
	rate    float64
	running bool
}

// NewClock returns a paused clock at 0. source supplies wall time and
// defaults to time.Now.
func NewClock(source func() time.Time) *Clock {
	if source == nil {
		source = time.Now
	}
	return &Clock{source: source, rate: 1}
}

// Now returns the current composition time.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Clock) nowLocked() time.Duration {
	if !c.running {
		return c.base
	}
	elapsed := c.source().Sub(c.anchor)
	return c.base + time.Duration(float64(elapsed)*c.rate)
}

// Play starts advancing. Calling it while running has no effect.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.anchor = c.source()
	c.running = true
}

// Pause freezes the clock at its current time. Calling it while paused has
// no effect.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.base = c.nowLocked()
	c.running = false
}

// Seek moves the clock to t, clamped at 0.
func (c *Clock) Seek(t time.Duration) {
	if t < 0 {
		t = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = t
	c.anchor = c.source()
}

// SetRate changes how fast composition time advances relative to wall time.
func (c *Clock) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = c.nowLocked()
	c.anchor = c.source()
	c.rate = rate
}

// Rate returns the current rate
func (c *Clock) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Running reports whether the clock is advancing.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
