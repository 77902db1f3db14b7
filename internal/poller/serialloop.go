package poller

import (
	"sync"
	"time"
)

// SerialLoop is a minimal cooperative host loop for contexts without a TUI:
// callbacks scheduled via ScheduleAfter all execute on the single goroutine
// running Run, so the poller's no-interleaving guarantee holds there too.
type SerialLoop struct {
	fns  chan func()
	done chan struct{}
	once sync.Once
}

func NewSerialLoop() *SerialLoop {
	return &SerialLoop{
		fns:  make(chan func(), 64),
		done: make(chan struct{}),
	}
}

// ScheduleAfter queues fn to run on the loop goroutine after at least d.
// Callbacks scheduled after Quit are dropped.
func (l *SerialLoop) ScheduleAfter(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		select {
		case l.fns <- fn:
		case <-l.done:
		}
	})
}

// Run executes callbacks until Quit is called. This is the loop's thread of
// control; nothing here may block beyond the callbacks themselves.
func (l *SerialLoop) Run() {
	for {
		select {
		case fn := <-l.fns:
			fn()
		case <-l.done:
			return
		}
	}
}

// Quit stops Run. Idempotent.
func (l *SerialLoop) Quit() {
	l.once.Do(func() { close(l.done) })
}
