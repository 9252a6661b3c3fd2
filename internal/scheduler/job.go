package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type JobSpec struct {
	Name     string
	Schedule Schedule
	// First, when positive, replaces the schedule for the first run.
	First time.Duration
	// OnSkip is called when a fire is dropped because the previous run is
	// still going.
	OnSkip func()
}

// Job fires a function on a schedule. Runs are single-flight: a fire that
// lands while the previous run is in progress is skipped, never queued.
// Missed slots (a suspended host, a slow clock) are coalesced into one run.
type Job struct {
	spec    JobSpec
	clk     clock.Clock
	log     *zap.Logger
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	runs    sync.WaitGroup
	running atomic.Bool
}

// StartJob arms the job before returning: the first fire time is fixed
// relative to the clock's current time.
func StartJob(ctx context.Context, clk clock.Clock, log *zap.Logger, spec JobSpec, fn func(context.Context)) *Job {
	j := &Job{
		spec: spec,
		clk:  clk,
		log:  log.With(zap.String("job", spec.Name)),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	now := clk.Now()
	next := spec.Schedule.Next(now)
	if spec.First > 0 {
		next = now.Add(spec.First)
	}
	go j.loop(ctx, next, fn)
	return j
}

func (j *Job) loop(ctx context.Context, next time.Time, fn func(context.Context)) {
	defer close(j.done)
	for {
		if d := next.Sub(j.clk.Now()); d > 0 {
			timer := j.clk.Timer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-j.stop:
				timer.Stop()
				return
			case <-timer.C:
			}
		} else {
			select {
			case <-ctx.Done():
				return
			case <-j.stop:
				return
			default:
			}
		}

		j.fire(ctx, fn)

		now := j.clk.Now()
		next = j.spec.Schedule.Next(next)
		if next.Before(now) {
			j.log.Warn("job_slots_coalesced", zap.Time("scheduled", next))
			next = j.spec.Schedule.Next(now)
		}
	}
}

func (j *Job) fire(ctx context.Context, fn func(context.Context)) {
	if !j.running.CompareAndSwap(false, true) {
		j.log.Warn("job_skipped_previous_running")
		if j.spec.OnSkip != nil {
			j.spec.OnSkip()
		}
		return
	}
	j.runs.Add(1)
	go func() {
		defer j.runs.Done()
		defer j.running.Store(false)
		fn(ctx)
	}()
}

// Stop disarms the job. A run in progress is left to finish; once Stop
// returns no new run will start.
func (j *Job) Stop() {
	j.once.Do(func() { close(j.stop) })
	<-j.done
}

// Wait blocks until the job is stopped and its last run has returned.
func (j *Job) Wait() {
	<-j.done
	j.runs.Wait()
}

func (j *Job) Name() string { return j.spec.Name }
