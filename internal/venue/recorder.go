package venue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Recorder is an in-process venue that accepts every call and keeps a log.
// Set Fail to make it reject calls.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	Fail  error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Execute records call, or returns Fail if set.
func (r *Recorder) Execute(_ context.Context, call Call) (Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return Receipt{}, r.Fail
	}
	r.calls = append(r.calls, call)
	return Receipt{Ref: uuid.NewString()}, nil
}

// Calls returns the accepted calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}
