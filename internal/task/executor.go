package task

import (
	"sync"

	"github.com/arloliu/go-smp/internal/queue"
)

// Executor runs submitted functions one at a time, in submission order, on a single
// goroutine owned by a Manager.
type Executor struct {
	mgr    *Manager
	name   string
	mu     sync.Mutex
	jobs   queue.Queue[func()]
	notify chan struct{}
	closed bool
}

// StartExecutor starts a serial executor task named name.
//
// When the Manager stops, the executor runs the jobs already queued and then exits. Submit
// reports false from then on.
func (mgr *Manager) StartExecutor(name string) (*Executor, error) {
	e := &Executor{
		mgr:    mgr,
		name:   name,
		jobs:   queue.NewSliceQueue[func()](16),
		notify: make(chan struct{}, 1),
	}

	mgr.logger.Debug("start executor task", "name", name)

	starter, err := mgr.newTaskStarter(name)
	if err != nil {
		return nil, err
	}

	starter.startTask(e.run)
	if err := starter.waitForStart(); err != nil {
		return nil, err
	}

	return e, nil
}

// Submit queues fn for execution. It never blocks.
//
// It returns false if the executor has shut down, in which case fn is not run.
func (e *Executor) Submit(fn func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.jobs.Enqueue(fn)
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}

	return true
}

func (e *Executor) run() {
	ctx := e.mgr.Context()
	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.closed = true
			e.mu.Unlock()
			e.drain()

			return
		case <-e.notify:
			e.drain()
		}
	}
}

func (e *Executor) drain() {
	for {
		e.mu.Lock()
		fn, ok := e.jobs.Dequeue()
		e.mu.Unlock()
		if !ok {
			return
		}
		e.mgr.callWithRecover(e.name, fn)
	}
}
