package invalidate

import (
	"context"
	"sync"

	"github.com/quillpress/quill/pkg/models"
)

// Recorder keeps every event it receives. It is both a Notifier (recording
// synchronously) and an Invalidator, and is meant for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent Invalidate calls return err after recording.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Name() string {
	return "recorder"
}

func (r *Recorder) Invalidate(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *Recorder) Notify(c models.Collection, reason Reason, ids ...int) {
	if len(ids) == 0 {
		return
	}
	_ = r.Invalidate(context.Background(), NewEvent(c, reason, ids...))
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reasons returns the reason of every recorded event in order.
func (r *Recorder) Reasons() []Reason {
	events := r.Events()
	out := make([]Reason, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Reason)
	}
	return out
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
