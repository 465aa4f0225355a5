package session

import (
	"sync"

	"deskauth/pkg/auth"
)

// Notifier receives every session transition.
type Notifier interface {
	Notify(status auth.Status)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(status auth.Status)

func (f NotifierFunc) Notify(status auth.Status) {
	f(status)
}

// dispatcher delivers statuses to the notifier in order from one goroutine.
// Pushing never blocks, so transitions can be queued under the controller's
// lock.
type dispatcher struct {
	notifier Notifier

	mu     sync.Mutex
	queue  []auth.Status
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatcher(n Notifier) *dispatcher {
	d := &dispatcher{
		notifier: n,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) push(st auth.Status) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, st)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, st := range batch {
			if d.notifier != nil {
				d.notifier.Notify(st)
			}
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) > 0 {
			continue
		}
		<-d.wake
	}
}

// close delivers what is queued and stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}
