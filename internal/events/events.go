// Package events carries engine state transitions to one-way consumers.
// Consumers observe; they never feed back into the decision loop.
package events

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"zonebreak/internal/logger"

	"github.com/google/uuid"
)

type Type string

const (
	SessionStart Type = "session_start"
	SessionEnd   Type = "session_end"
	SessionSkip  Type = "session_skip"
	VolFilter    Type = "vol_filter"
	Sweep        Type = "sweep"
	TradeOpen    Type = "trade_open"
	TradeClose   Type = "trade_close"
)

// Event is one state transition with free-form structured fields.
type Event struct {
	ID     string
	Type   Type
	At     time.Time
	Fields map[string]any
}

// New stamps a fresh event with a unique ID.
func New(t Type, at time.Time, fields map[string]any) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   t,
		At:     at,
		Fields: fields,
	}
}

// Sink receives events. Implementations must not block the tick loop.
type Sink interface {
	Emit(evt Event)
}

// Fanout delivers each event to every registered sink, isolating panics so
// one bad consumer cannot take down the loop.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	out := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			out.sinks = append(out.sinks, s)
		}
	}
	return out
}

// Add registers another sink. Call before the tick loop starts; Fanout does
// not synchronize with concurrent Emit.
func (f *Fanout) Add(s Sink) {
	if s != nil {
		f.sinks = append(f.sinks, s)
	}
}

func (f *Fanout) Emit(evt Event) {
	for _, s := range f.sinks {
		func(dst Sink) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("event sink panic on %s: %v", evt.Type, r)
				}
			}()
			dst.Emit(evt)
		}(s)
	}
}

// LogSink writes every event as one structured log line.
type LogSink struct{}

func (LogSink) Emit(evt Event) {
	logger.Infof("event %s %s", evt.Type, formatFields(evt.Fields))
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
