package extraction

import (
	"context"
	"sync"
)

type task struct {
	jobID   string
	attempt int64
	cancel  context.CancelFunc
	done    chan struct{}
}

// taskRegistry tracks the pipelines running in this process, one per job id
type taskRegistry struct {
	mu     sync.Mutex
	tasks  map[string]*task
	wg     sync.WaitGroup
	closed bool
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{tasks: make(map[string]*task)}
}

// add registers a pipeline; false once the registry is closed
func (r *taskRegistry) add(jobID string, attempt int64, cancel context.CancelFunc) (*task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false
	}
	t := &task{jobID: jobID, attempt: attempt, cancel: cancel, done: make(chan struct{})}
	if prev, ok := r.tasks[jobID]; ok {
		prev.cancel()
	}
	r.tasks[jobID] = t
	r.wg.Add(1)
	return t, true
}

// finish marks t done and drops it unless a newer attempt replaced it
func (r *taskRegistry) finish(t *task) {
	r.mu.Lock()
	if current, ok := r.tasks[t.jobID]; ok && current == t {
		delete(r.tasks, t.jobID)
	}
	r.mu.Unlock()

	t.cancel()
	close(t.done)
	r.wg.Done()
}

func (r *taskRegistry) cancel(jobID string) bool {
	r.mu.Lock()
	t, ok := r.tasks[jobID]
	r.mu.Unlock()

	if ok {
		t.cancel()
	}
	return ok
}

func (r *taskRegistry) active(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[jobID]
	return ok
}

func (r *taskRegistry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *taskRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// close stops further registrations
func (r *taskRegistry) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// wait blocks until every task finished. When ctx expires first the remaining
// tasks are cancelled and ctx.Err() is returned.
func (r *taskRegistry) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	r.mu.Lock()
	for _, t := range r.tasks {
		t.cancel()
	}
	r.mu.Unlock()
	return ctx.Err()
}
