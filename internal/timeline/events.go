package timeline

import "sort"

// EventType identifies a timeline change.
type EventType string

const (
	EventPlaced  EventType = "placed"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
	EventSplit   EventType = "split"
)

// Event describes one change. For EventSplit, Clip is the shortened left
// part and Related the new right part.
type Event struct {
	Type    EventType
	Clip    Clip
	Related *Clip
}

// Subscribe registers fn for every change and returns a function that
// unregisters it. Callbacks run on the mutating goroutine after the
// timeline lock is released, so they may call back into the timeline.
func (tl *Timeline) Subscribe(fn func(Event)) func() {
	tl.subMu.Lock()
	id := tl.nextID
	tl.nextID++
	tl.subs[id] = fn
	tl.subMu.Unlock()

	return func() {
		tl.subMu.Lock()
		delete(tl.subs, id)
		tl.subMu.Unlock()
	}
}

func (tl *Timeline) emit(ev Event) {
	tl.subMu.Lock()
	ids := make([]int, 0, len(tl.subs))
	for id := range tl.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Event), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, tl.subs[id])
	}
	tl.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
