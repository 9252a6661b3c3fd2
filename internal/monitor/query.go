package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/notify"
	"github.com/hamed0406/pingwatch/internal/probe"
)

// TargetView is one row of the status display.
type TargetView struct {
	Name                 string        `json:"name"`
	Host                 string        `json:"host"`
	Status               domain.Status `json:"status"`
	ConsecutiveFailures  int           `json:"fails"`
	ConsecutiveSuccesses int           `json:"succ"`
	Cooldown             time.Duration `json:"cooldown"`
	LastUp               time.Time     `json:"last_up"`
	LastDown             time.Time     `json:"last_down"`
	LastAlert            time.Time     `json:"last_alert"`
}

// lookupLocked finds a configured target, exact name first, then ignoring case.
func (m *Monitor) lookupLocked(name string) (domain.Target, bool) {
	for _, t := range m.targets {
		if t.Name == name {
			return t, true
		}
	}
	for _, t := range m.targets {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return domain.Target{}, false
}

func (m *Monitor) Target(name string) (domain.Target, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(name)
}

func (m *Monitor) CurrentStatus(name string) (domain.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.lookupLocked(name)
	if !ok {
		return domain.StatusUnknown, false
	}
	return m.states[t.Name].Status, true
}

func (m *Monitor) ListTargets() []domain.Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Target(nil), m.targets...)
}

func (m *Monitor) Settings() domain.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Snapshot lists every configured target with its state, in config order.
func (m *Monitor) Snapshot() []TargetView {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TargetView, 0, len(m.targets))
	for _, t := range m.targets {
		st := m.states[t.Name]
		out = append(out, TargetView{
			Name:                 t.Name,
			Host:                 t.Host,
			Status:               st.Status,
			ConsecutiveFailures:  st.ConsecutiveFailures,
			ConsecutiveSuccesses: st.ConsecutiveSuccesses,
			Cooldown:             t.EffectiveCooldown(m.settings.DefaultCooldown),
			LastUp:               st.LastUp,
			LastDown:             st.LastDown,
			LastAlert:            st.LastAlert,
		})
	}
	return out
}

// ProbeNow runs one probe against a configured target. It reports
// reachability only; the state machine is not fed.
func (m *Monitor) ProbeNow(ctx context.Context, name string) (probe.Result, error) {
	t, ok := m.Target(name)
	if !ok {
		return probe.Result{}, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}
	res := m.fanout.Prober.Probe(ctx, t.Host, m.opts.ProbeTimeout)
	m.log.Info("probe_on_demand",
		zap.String("target", t.Name),
		zap.String("host", t.Host),
		zap.Bool("up", res.Up),
		zap.String("reason", res.Reason),
	)
	return res, nil
}

// TestAlert sends a fixed message through the whole delivery path.
func (m *Monitor) TestAlert(ctx context.Context) notify.Report {
	return m.notifier.Broadcast(ctx, testAlertMessage)
}

// Digest broadcasts the daily summary of configured targets.
func (m *Monitor) Digest(ctx context.Context) notify.Report {
	views := m.Snapshot()
	rep := m.notifier.Broadcast(ctx, digestMessage(views, m.clk.Now().In(m.opts.Location)))
	m.log.Info("digest_sent", zap.String("broadcast_id", rep.ID), zap.Int("sent", len(rep.Sent)))
	return rep
}

// PurgeOrphans drops persisted states of targets no longer configured and
// returns their names.
func (m *Monitor) PurgeOrphans(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	live := make(map[string]bool, len(m.targets))
	for _, t := range m.targets {
		live[t.Name] = true
	}
	var gone []string
	for name := range m.states {
		if !live[name] {
			gone = append(gone, name)
		}
	}
	if len(gone) == 0 {
		m.mu.Unlock()
		return nil, nil
	}
	for _, name := range gone {
		delete(m.states, name)
		m.metrics.ForgetTarget(name)
	}
	m.mu.Unlock()

	sort.Strings(gone)
	if err := m.persist(ctx); err != nil {
		return gone, fmt.Errorf("purge orphans: %w", err)
	}
	m.log.Info("orphans_purged", zap.Strings("targets", gone))
	return gone, nil
}
