package timeline

import "sync"

// Selection tracks the single selected clip of an editing session. It
// follows the timeline: removing the selected clip clears it, and any split
// selects the right part of the split clip.
type Selection struct {
	mu     sync.Mutex
	id     string
	cancel func()
}

// NewSelection attaches a selection tracker to tl.
func NewSelection(tl *Timeline) *Selection {
	s := &Selection{}
	s.cancel = tl.Subscribe(s.observe)
	return s
}

func (s *Selection) observe(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case EventRemoved:
		if ev.Clip.ID == s.id {
			s.id = ""
		}
	case EventSplit:
		if ev.Related != nil {
			s.id = ev.Related.ID
		}
	}
}

// Select marks id as selected; "" clears the selection.
func (s *Selection) Select(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// Selected returns the selected clip id and whether one is selected.
func (s *Selection) Selected() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.id != ""
}

// Close detaches the tracker from its timeline.
func (s *Selection) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}
