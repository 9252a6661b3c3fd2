package monitor

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/scheduler"
)

// Tick probes every configured target, applies the results, persists on a
// status change and broadcasts the alerts the cooldown lets through.
// Concurrent calls do not queue: all but one return ErrTickInFlight.
func (m *Monitor) Tick(ctx context.Context) error {
	if !m.tickMu.TryLock() {
		m.metrics.Ticks.WithLabelValues("skipped").Inc()
		m.log.Warn("tick_skipped")
		return ErrTickInFlight
	}
	defer m.tickMu.Unlock()

	start := m.clk.Now()
	log := m.log.With(zap.String("tick_id", uuid.NewString()))

	m.mu.Lock()
	settings := m.settings
	targets := append([]domain.Target(nil), m.targets...)
	m.mu.Unlock()

	if len(targets) == 0 {
		m.metrics.Ticks.WithLabelValues("done").Inc()
		return nil
	}

	outcomes := m.fanout.ProbeAll(ctx, targets, m.opts.ProbeTimeout)
	if err := ctx.Err(); err != nil {
		// cancelled probes are not evidence of anything
		log.Info("tick_abandoned", zap.Error(err))
		return err
	}

	now := domain.Stamp(m.clk.Now())
	th := scheduler.Thresholds{Fail: settings.FailThreshold, Recover: settings.RecoverThreshold}

	var (
		alerts  []string
		changed int
		up      int
	)
	m.mu.Lock()
	live := make(map[string]bool, len(m.targets))
	for _, t := range m.targets {
		live[t.Name] = true
	}
	for _, o := range outcomes {
		t := o.Target
		if !live[t.Name] {
			// dropped by a reload while probing
			continue
		}
		if o.Result.Up {
			up++
		}
		st, ok := m.states[t.Name]
		if !ok {
			st = domain.NewTargetState()
		}
		tr := scheduler.Apply(&st, o.Result.Up, now, th, t.EffectiveCooldown(settings.DefaultCooldown))
		m.states[t.Name] = st
		if !tr.Changed() {
			continue
		}

		changed++
		m.metrics.SetStatus(t.Name, tr.To)
		m.metrics.Transitions.WithLabelValues(string(tr.To), strconv.FormatBool(tr.Alert)).Inc()
		fields := []zap.Field{
			zap.String("target", t.Name),
			zap.String("host", t.Host),
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)),
			zap.Int("fails", st.ConsecutiveFailures),
			zap.Int("succ", st.ConsecutiveSuccesses),
			zap.String("reason", o.Result.Reason),
		}
		if tr.Alert {
			log.Info("transition_alert", fields...)
			alerts = append(alerts, transitionMessage(t, tr, m.opts.Location))
		} else {
			log.Info("transition_suppressed", append(fields, zap.Time("last_alert", st.LastAlert))...)
		}
	}
	save := changed > 0 || m.dirty
	m.mu.Unlock()

	if save {
		_ = m.persist(ctx)
	}

	for _, text := range alerts {
		rep := m.notifier.Broadcast(ctx, text)
		log.Info("alert_sent",
			zap.String("broadcast_id", rep.ID),
			zap.Int("sent", len(rep.Sent)),
			zap.Int("pruned", len(rep.Pruned)),
		)
	}

	took := m.clk.Since(start)
	m.metrics.Ticks.WithLabelValues("done").Inc()
	m.metrics.TickDuration.Observe(took.Seconds())
	log.Info("tick_done",
		zap.Int("targets", len(outcomes)),
		zap.Int("up", up),
		zap.Int("changed", changed),
		zap.Int("alerts", len(alerts)),
		zap.Duration("took", took),
	)
	return nil
}

// ReloadResult reports what a reload changed.
type ReloadResult struct {
	OldInterval time.Duration `json:"old_interval"`
	NewInterval time.Duration `json:"new_interval"`
	TargetCount int           `json:"target_count"`
	Added       int           `json:"added"`
	Rescheduled bool          `json:"rescheduled"`
}

// TriggerReload re-reads the target file. On error nothing changes and the
// previous configuration stays active. New targets start as UNKNOWN; existing
// states, including their counters, are untouched. The tick job is only
// replaced when the interval changed.
func (m *Monitor) TriggerReload(ctx context.Context) (ReloadResult, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	settings, targets, err := m.loader.Load()
	if err != nil {
		m.log.Warn("reload_rejected", zap.Error(err))
		return ReloadResult{}, err
	}

	m.mu.Lock()
	res := ReloadResult{
		OldInterval: m.settings.PollInterval,
		NewInterval: settings.PollInterval,
		TargetCount: len(targets),
	}
	m.settings = settings
	m.targets = targets
	res.Added = m.ensureStatesLocked()
	for _, t := range targets {
		m.metrics.SetStatus(t.Name, m.states[t.Name].Status)
	}
	m.mu.Unlock()

	if res.Added > 0 {
		_ = m.persist(ctx)
	}
	if res.OldInterval != res.NewInterval {
		res.Rescheduled = m.reschedule(res.NewInterval)
	}
	m.log.Info("reload_done",
		zap.Int("targets", res.TargetCount),
		zap.Int("added", res.Added),
		zap.Duration("old_interval", res.OldInterval),
		zap.Duration("new_interval", res.NewInterval),
		zap.Bool("rescheduled", res.Rescheduled),
	)
	return res, nil
}
