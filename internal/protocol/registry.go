package protocol

import (
	"context"
	"sync"
)

// Result is the settled outcome of one operation.
type Result struct {
	ID    string
	Op    string
	Value any
	Err   error
}

// Entry is one pending operation awaiting its reply line.
type Entry struct {
	ID string
	Op string

	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func newEntry(id, op string) *Entry {
	return &Entry{ID: id, Op: op, done: make(chan struct{})}
}

// settle records the outcome. Only the first call has an effect; it reports
// whether this call settled the entry.
func (e *Entry) settle(value any, err error) bool {
	settled := false

	e.once.Do(func() {
		e.value = value
		e.err = err
		settled = true

		close(e.done)
	})

	return settled
}

// Done returns a channel that is closed once the entry is settled.
func (e *Entry) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the entry is settled or ctx ends.
func (e *Entry) Wait(ctx context.Context) (any, error) {
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome. It must only be called after Done is closed.
func (e *Entry) Result() Result {
	return Result{ID: e.ID, Op: e.Op, Value: e.value, Err: e.err}
}

// Registry is the ordered queue of a batch's unsettled entries.
//
// Replies are correlated by position rather than by id: FATAL lines carry no
// id, so the oldest pending entry is always the one a reply belongs to.
type Registry struct {
	mu      sync.Mutex
	pending []*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a new pending entry.
func (r *Registry) Register(id, op string) *Entry {
	entry := newEntry(id, op)

	r.mu.Lock()
	r.pending = append(r.pending, entry)
	r.mu.Unlock()

	return entry
}

// PopOldest removes and returns the oldest pending entry, or nil when the
// queue is empty.
func (r *Registry) PopOldest() *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		return nil
	}

	entry := r.pending[0]
	r.pending[0] = nil
	r.pending = r.pending[1:]

	return entry
}

// Drain removes and returns every pending entry in submission order.
func (r *Registry) Drain() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	drained := r.pending
	r.pending = nil

	return drained
}

// Len returns the number of pending entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending)
}
