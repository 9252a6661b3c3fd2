// Package monitor is the engine: it owns the live target list, the per-target
// state map and the periodic jobs, and exposes the query surface used by the
// HTTP adapter and the chat front-end.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/metrics"
	"github.com/hamed0406/pingwatch/internal/notify"
	"github.com/hamed0406/pingwatch/internal/repo"
	"github.com/hamed0406/pingwatch/internal/scheduler"
)

var (
	ErrTickInFlight   = errors.New("tick already in progress")
	ErrUnknownTarget  = errors.New("unknown target")
	ErrAlreadyStarted = errors.New("monitor already started")
)

// Loader is where targets and settings come from; *registry.Registry in
// production.
type Loader interface {
	Load() (domain.Settings, []domain.Target, error)
}

// Notifier is the broadcast side of notify.Broadcaster.
type Notifier interface {
	Broadcast(ctx context.Context, text string) notify.Report
}

type Options struct {
	ProbeTimeout   time.Duration
	FirstTickDelay time.Duration
	// Digest schedules the daily summary; nil disables it.
	Digest *scheduler.Daily
	// Location is used for timestamps inside messages.
	Location *time.Location
}

type Monitor struct {
	log      *zap.Logger
	clk      clock.Clock
	metrics  *metrics.Metrics
	opts     Options
	loader   Loader
	store    repo.StateStore
	fanout   *scheduler.FanOut
	notifier Notifier

	mu       sync.Mutex
	settings domain.Settings
	targets  []domain.Target
	states   map[string]domain.TargetState
	dirty    bool // last save failed

	// saveMu spans snapshot and write so saves land in snapshot order.
	saveMu sync.Mutex

	tickMu   sync.Mutex
	reloadMu sync.Mutex

	jobMu     sync.Mutex
	runCtx    context.Context
	cancel    context.CancelFunc
	tickJob   *scheduler.Job
	digestJob *scheduler.Job
}

// New loads the configuration and persisted state. A configuration error is
// returned as is and should stop the process; a persistence error is logged
// and the monitor starts from whatever could be read.
func New(
	ctx context.Context,
	log *zap.Logger,
	clk clock.Clock,
	m *metrics.Metrics,
	loader Loader,
	store repo.StateStore,
	fanout *scheduler.FanOut,
	notifier Notifier,
	opts Options,
) (*Monitor, error) {
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 1200 * time.Millisecond
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	settings, targets, err := loader.Load()
	if err != nil {
		return nil, err
	}

	mon := &Monitor{
		log:      log,
		clk:      clk,
		metrics:  m,
		opts:     opts,
		loader:   loader,
		store:    store,
		fanout:   fanout,
		notifier: notifier,
		settings: settings,
		targets:  targets,
	}

	states, err := store.LoadStates(ctx)
	if err != nil {
		log.Error("state_load_failed", zap.Error(err), zap.Int("recovered", len(states)))
		m.PersistErrors.WithLabelValues("load_states").Inc()
	}
	if states == nil {
		states = map[string]domain.TargetState{}
	}
	mon.states = states

	added := mon.ensureStatesLocked()
	for _, t := range targets {
		m.SetStatus(t.Name, states[t.Name].Status)
	}
	if added > 0 {
		_ = mon.persist(ctx)
	}
	log.Info("monitor_ready",
		zap.Int("targets", len(targets)),
		zap.Int("states", len(states)),
		zap.Int("new_states", added),
		zap.Duration("interval", settings.PollInterval),
	)
	return mon, nil
}

// ensureStatesLocked gives every configured target a state entry. Existing
// entries, including those of dropped targets, are left alone.
func (m *Monitor) ensureStatesLocked() int {
	added := 0
	for _, t := range m.targets {
		if _, ok := m.states[t.Name]; !ok {
			m.states[t.Name] = domain.NewTargetState()
			added++
		}
	}
	return added
}

// persist snapshots the current states and writes them. Failures are logged
// and remembered so the next tick retries even without a status change.
// Callers must not hold m.mu.
func (m *Monitor) persist(ctx context.Context) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	snapshot := repo.CopyStates(m.states)
	m.mu.Unlock()

	err := m.store.SaveStates(ctx, snapshot)
	m.mu.Lock()
	m.dirty = err != nil
	m.mu.Unlock()
	if err != nil {
		m.metrics.PersistErrors.WithLabelValues("save_states").Inc()
		m.log.Error("state_save_failed", zap.Error(err), zap.Int("entries", len(snapshot)))
	}
	return err
}

// Start arms the tick job and, when configured, the daily digest. The jobs run
// under their own context; ctx only bounds Start itself.
func (m *Monitor) Start(ctx context.Context) error {
	m.jobMu.Lock()
	defer m.jobMu.Unlock()
	if m.runCtx != nil {
		return ErrAlreadyStarted
	}
	m.runCtx, m.cancel = context.WithCancel(context.Background())

	m.mu.Lock()
	interval := m.settings.PollInterval
	m.mu.Unlock()

	first := m.opts.FirstTickDelay
	if first <= 0 {
		first = interval
	}
	m.tickJob = m.startTickJob(interval, first)
	if m.opts.Digest != nil {
		m.digestJob = scheduler.StartJob(m.runCtx, m.clk, m.log, scheduler.JobSpec{
			Name:     "digest",
			Schedule: *m.opts.Digest,
		}, func(ctx context.Context) { m.Digest(ctx) })
	}
	m.log.Info("monitor_started", zap.Duration("interval", interval), zap.Duration("first_tick", first))
	return nil
}

func (m *Monitor) startTickJob(interval, first time.Duration) *scheduler.Job {
	return scheduler.StartJob(m.runCtx, m.clk, m.log, scheduler.JobSpec{
		Name:     "tick",
		Schedule: scheduler.Every(interval),
		First:    first,
		OnSkip:   func() { m.metrics.Ticks.WithLabelValues("skipped").Inc() },
	}, func(ctx context.Context) {
		if err := m.Tick(ctx); err != nil && !errors.Is(err, ErrTickInFlight) && !errors.Is(err, context.Canceled) {
			m.log.Warn("tick_failed", zap.Error(err))
		}
	})
}

// reschedule arms a tick job at the new interval, then stops the old one.
// A tick already running is not interrupted.
func (m *Monitor) reschedule(interval time.Duration) bool {
	m.jobMu.Lock()
	defer m.jobMu.Unlock()
	if m.tickJob == nil {
		return false
	}
	next := m.startTickJob(interval, interval)
	old := m.tickJob
	m.tickJob = next
	old.Stop()
	return true
}

// Stop disarms both jobs, cancels in-flight work and waits for it to return
// or for ctx to expire.
func (m *Monitor) Stop(ctx context.Context) error {
	m.jobMu.Lock()
	jobs := []*scheduler.Job{m.tickJob, m.digestJob}
	cancel := m.cancel
	m.tickJob, m.digestJob = nil, nil
	m.jobMu.Unlock()

	for _, j := range jobs {
		if j != nil {
			j.Stop()
		}
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, j := range jobs {
			if j != nil {
				j.Wait()
			}
		}
		// ticks started by a job retired on reload
		m.tickMu.Lock()
		m.tickMu.Unlock()
	}()
	select {
	case <-done:
		m.log.Info("monitor_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
