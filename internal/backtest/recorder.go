package backtest

import (
	"sync"

	"zonebreak/internal/events"
)

// Recorder is an in-memory event sink used during replays. It keeps every
// event so the report can reconstruct the trade history without a database.
type Recorder struct {
	mu   sync.Mutex
	evts []events.Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evts = append(r.evts, e)
}

func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.evts))
	copy(out, r.evts)
	return out
}

func (r *Recorder) ByType(typ events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.evts {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
