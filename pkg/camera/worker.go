package camera

import "sync"

// Worker is a single goroutine draining an ordered task queue. Every driver
// callback and every piece of session state is handled on it, so session
// fields need no locks of their own.
//
// Post never blocks; the queue is unbounded because drivers post from their
// own threads and must not stall.
type Worker struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []func()
	started bool
	stopped bool

	done chan struct{}
}

// NewWorker creates a stopped worker.
func NewWorker(name string) *Worker {
	w := &Worker{
		name: name,
		done: make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Name returns the worker name.
func (w *Worker) Name() string {
	return w.name
}

// Start launches the goroutine. Starting twice, or after Stop, is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.run()
}

// Post queues fn. It returns false once the worker has been stopped.
func (w *Worker) Post(fn func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || !w.started {
		return false
	}
	w.tasks = append(w.tasks, fn)
	w.cond.Signal()
	return true
}

// Call posts fn and waits for it to finish. It returns false if fn was not
// accepted or was discarded by Stop. Call must not be used from the worker
// goroutine itself.
func (w *Worker) Call(fn func()) bool {
	ran := make(chan struct{})
	if !w.Post(func() {
		fn()
		close(ran)
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-w.done:
		// The task may have been the last one to run before exit.
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Stop refuses new tasks, discards pending ones, waits for the running task
// to return and joins the goroutine. Safe to call more than once. Stop must
// not be called from the worker goroutine.
func (w *Worker) Stop() {
	w.mu.Lock()
	wasStarted := w.started
	if !w.stopped {
		w.stopped = true
		w.tasks = nil
		w.cond.Broadcast()
	}
	w.mu.Unlock()

	if wasStarted {
		<-w.done
	}
}

// Pending returns the number of queued tasks.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tasks)
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.tasks) == 0 && !w.stopped {
			w.cond.Wait()
		}
		if w.stopped {
			w.mu.Unlock()
			return
		}
		fn := w.tasks[0]
		w.tasks[0] = nil
		w.tasks = w.tasks[1:]
		w.mu.Unlock()

		fn()
	}
}

var _ Executor = (*Worker)(nil)
