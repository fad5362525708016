package media

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("asset not found")
	ErrEmptySource        = errors.New("asset source is empty")
	ErrDurationAlreadySet = errors.New("asset duration already set")
	ErrUntimedAsset       = errors.New("asset kind has no duration")
)

// Asset is an ingested source file. Assets are immutable once ingested
// except for the one-time duration fill after decode.
type Asset struct {
	ID          string
	Kind        Kind
	Source      string
	DisplayName string

	// Duration is zero until DurationKnown is set.
	Duration      time.Duration
	DurationKnown bool
}

// Registry holds ingested assets in ingestion order.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]Asset
	order  []string

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Asset)
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[string]Asset),
		subs:   make(map[int]func(Asset)),
	}
}

// Ingest adds an asset. An empty ID is replaced by a fresh one.
func (r *Registry) Ingest(a Asset) (Asset, error) {
	if a.Source == "" {
		return Asset{}, ErrEmptySource
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if !a.Kind.Timed() {
		a.Duration = 0
		a.DurationKnown = false
	}

	r.mu.Lock()
	if _, exists := r.assets[a.ID]; exists {
		r.mu.Unlock()
		return Asset{}, fmt.Errorf("asset %s already ingested", a.ID)
	}
	r.assets[a.ID] = a
	r.order = append(r.order, a.ID)
	r.mu.Unlock()

	r.notify(a)
	return a, nil
}

// SetDuration records the decoded duration of a video or audio asset.
// It succeeds exactly once per asset.
func (r *Registry) SetDuration(id string, d time.Duration) error {
	r.mu.Lock()
	a, ok := r.assets[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !a.Kind.Timed() {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrUntimedAsset, id, a.Kind)
	}
	if a.DurationKnown {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDurationAlreadySet, id)
	}
	if d <= 0 {
		r.mu.Unlock()
		return fmt.Errorf("invalid duration %v for asset %s", d, id)
	}
	a.Duration = d
	a.DurationKnown = true
	r.assets[id] = a
	r.mu.Unlock()

	r.notify(a)
	return nil
}

// Get retrieves an asset by ID
func (r *Registry) Get(id string) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[id]
	return a, ok
}

// List returns all assets in ingestion order
func (r *Registry) List() []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Asset, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.assets[id])
	}
	return out
}

// Subscribe registers fn to be called after every ingest or duration
// update. The returned func removes the subscription.
func (r *Registry) Subscribe(fn func(Asset)) func() {
	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.subMu.Unlock()

	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Registry) notify(a Asset) {
	r.subMu.Lock()
	fns := make([]func(Asset), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn(a)
	}
}
