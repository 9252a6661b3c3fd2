package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/metrics"
	"github.com/hamed0406/pingwatch/internal/probe"
)

// --- fakes ---

// gaugeProber tracks how many probes run at once.
type gaugeProber struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	hold     time.Duration
	down     map[string]bool
}

func (g *gaugeProber) Probe(ctx context.Context, host string, timeout time.Duration) probe.Result {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	g.mu.Unlock()

	time.Sleep(g.hold)

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()

	if g.down[host] {
		return probe.Result{Up: false, Reason: "timeout"}
	}
	return probe.Result{Up: true, Latency: time.Millisecond, Reason: "echo_reply"}
}

func targets(n int) []domain.Target {
	out := make([]domain.Target, n)
	for i := range out {
		out[i] = domain.Target{Name: fmt.Sprintf("cam-%02d", i), Host: fmt.Sprintf("10.0.0.%d", i+1)}
	}
	return out
}

// --- tests ---

func TestFanOut_BoundsConcurrency(t *testing.T) {
	p := &gaugeProber{hold: 20 * time.Millisecond}
	m := metrics.New(nil)
	f := NewFanOut(zap.NewNop(), p, m, 3)

	out := f.ProbeAll(context.Background(), targets(10), time.Second)

	require.Len(t, out, 10)
	assert.LessOrEqual(t, p.peak, 3)
	assert.GreaterOrEqual(t, p.peak, 2, "probes should overlap")
	assert.Equal(t, 10.0, testutil.ToFloat64(m.Probes.WithLabelValues("up")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ProbesInFlight))
}

func TestFanOut_KeepsTargetOrder(t *testing.T) {
	ts := targets(5)
	p := &gaugeProber{down: map[string]bool{ts[1].Host: true, ts[3].Host: true}}
	f := NewFanOut(zap.NewNop(), p, nil, 2)

	out := f.ProbeAll(context.Background(), ts, time.Second)

	for i, o := range out {
		assert.Equal(t, ts[i], o.Target)
		assert.Equal(t, i != 1 && i != 3, o.Result.Up, o.Target.Name)
	}
}

func TestFanOut_EmptyList(t *testing.T) {
	var calls atomic.Int32
	p := probe.ProberFunc(func(context.Context, string, time.Duration) probe.Result {
		calls.Add(1)
		return probe.Result{Up: true}
	})
	out := NewFanOut(zap.NewNop(), p, nil, 0).ProbeAll(context.Background(), nil, time.Second)
	assert.Empty(t, out)
	assert.Zero(t, calls.Load())
}

func TestFanOut_CancelledContextMarksRemainingDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := probe.ProberFunc(func(ctx context.Context, _ string, _ time.Duration) probe.Result {
		return probe.Result{Up: false, Reason: "canceled"}
	})

	out := NewFanOut(zap.NewNop(), p, nil, 1).ProbeAll(ctx, targets(4), time.Second)

	require.Len(t, out, 4)
	for _, o := range out {
		assert.False(t, o.Result.Up)
	}
}
