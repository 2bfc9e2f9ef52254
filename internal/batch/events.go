package batch

import (
	"sync"
	"time"
)

type EventKind string

const (
	EventFileStarted   EventKind = "file-started"
	EventFileProgress  EventKind = "file-progress"
	EventFileCompleted EventKind = "file-completed"
	EventFileFailed    EventKind = "file-failed"
)

// Event reports one per-file transition of a running job.
type Event struct {
	Kind    EventKind `json:"kind"`
	JobID   string    `json:"jobId"`
	FileID  string    `json:"fileId"`
	Percent int       `json:"percent"`
	Message string    `json:"message,omitempty"`
	// Pages is the input document's page count, when known.
	Pages   int              `json:"pages,omitempty"`
	Outputs []OutputFileInfo `json:"outputs,omitempty"`
	Err     string           `json:"error,omitempty"`
	At      time.Time        `json:"at"`
}

// Sink receives executor events. Implementations must be safe for use by
// several running jobs at once.
type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// MultiSink forwards each event to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// Recorder keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds filters recorded events by kind.
func (r *Recorder) Kinds(kind EventKind) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
