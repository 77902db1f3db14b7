// Package poller turns the host loop's "run a callback after a delay"
// primitive into recurring completion checks against the supervisor. It
// never sleeps and never blocks: all waiting is expressed as a reschedule
// through the host loop, which is what keeps the foreground interactive.
package poller

import (
	"context"
	"time"

	"github.com/brahmanda-ai/Parishad/internal/supervisor"
)

// DefaultInterval balances responsiveness against redundant filesystem
// checks.
const DefaultInterval = 500 * time.Millisecond

// ScheduleFunc is the single primitive required from the environment:
// invoke fn once, after at least d, on the host loop's own thread of
// control.
type ScheduleFunc func(d time.Duration, fn func())

// TaskPoller is the supervisor surface the poller drives. Satisfied by
// *supervisor.Supervisor.
type TaskPoller interface {
	Poll(ctx context.Context, h *supervisor.TaskHandle) supervisor.PollResult
}

// Poller schedules recurring checks for submitted tasks.
type Poller struct {
	tasks    TaskPoller
	interval time.Duration
	schedule ScheduleFunc
}

// New creates a Poller. interval <= 0 selects DefaultInterval.
func New(tasks TaskPoller, interval time.Duration, schedule ScheduleFunc) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		tasks:    tasks,
		interval: interval,
		schedule: schedule,
	}
}

// Watch is one task's polling registration.
type Watch struct {
	stopped bool
	fired   bool
}

// Stop cancels the pending reschedule. Idempotent. The callback may already
// be queued on the host loop; a stopped watch makes it a no-op.
func (w *Watch) Stop() {
	w.stopped = true
}

// Start registers the recurring check for h. onDone is invoked exactly once
// with the terminal outcome, on the host loop's thread, after which no
// further checks are scheduled. Callbacks run on the host loop, so Watch
// state needs no locking.
func (p *Poller) Start(ctx context.Context, h *supervisor.TaskHandle, onDone func(supervisor.Outcome)) *Watch {
	w := &Watch{}

	var check func()
	check = func() {
		if w.stopped || w.fired {
			return
		}
		res := p.tasks.Poll(ctx, h)
		if res.Done {
			w.fired = true
			onDone(res.Outcome)
			return
		}
		p.schedule(p.interval, check)
	}

	p.schedule(p.interval, check)
	return w
}
