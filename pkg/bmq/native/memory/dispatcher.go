package memory

import "sync"

// dispatcher runs tasks one at a time in submission order on its own goroutine.
// The backlog is unbounded so the broker never blocks on a slow handler.
type dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)

	go d.run()

	return d
}

func (d *dispatcher) push(task func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	d.tasks = append(d.tasks, task)
	d.cond.Signal()

	return true
}

func (d *dispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		for len(d.tasks) == 0 && !d.closed {
			d.cond.Wait()
		}

		if d.closed {
			d.mu.Unlock()

			return
		}

		task := d.tasks[0]
		d.tasks[0] = nil
		d.tasks = d.tasks[1:]
		d.mu.Unlock()

		task()
	}
}

// stop discards the backlog. The task in progress, if any, runs to completion.
func (d *dispatcher) stop() {
	d.mu.Lock()
	d.closed = true
	d.tasks = nil
	d.cond.Broadcast()
	d.mu.Unlock()
}

func (d *dispatcher) wait() { <-d.done }
