package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/metrics"
	"github.com/hamed0406/pingwatch/internal/probe"
)

// DefaultConcurrency caps in-flight probes so a large target list does not
// flood the local network stack.
const DefaultConcurrency = 50

type Outcome struct {
	Target domain.Target
	Result probe.Result
}

// FanOut runs one probe per target with bounded parallelism.
type FanOut struct {
	Logger      *zap.Logger
	Prober      probe.Prober
	Metrics     *metrics.Metrics
	Concurrency int
}

func NewFanOut(logger *zap.Logger, prober probe.Prober, m *metrics.Metrics, concurrency int) *FanOut {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &FanOut{
		Logger:      logger,
		Prober:      prober,
		Metrics:     m,
		Concurrency: concurrency,
	}
}

// ProbeAll probes every target and returns only when all probes have finished.
// Outcomes are in the order of targets. If ctx is cancelled while waiting for a
// slot, the remaining targets are reported unreachable without being probed.
func (f *FanOut) ProbeAll(ctx context.Context, targets []domain.Target, timeout time.Duration) []Outcome {
	out := make([]Outcome, len(targets))
	if len(targets) == 0 {
		return out
	}

	sem := semaphore.NewWeighted(int64(f.Concurrency))
	var wg sync.WaitGroup

	for i, t := range targets {
		out[i].Target = t
		if err := sem.Acquire(ctx, 1); err != nil {
			out[i].Result = probe.Result{Up: false, Reason: "canceled"}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			f.Metrics.ProbesInFlight.Inc()
			res := f.Prober.Probe(ctx, t.Host, timeout)
			f.Metrics.ProbesInFlight.Dec()

			out[i].Result = res
			f.Metrics.ProbeLatency.Observe(res.Latency.Seconds())
			if res.Up {
				f.Metrics.Probes.WithLabelValues("up").Inc()
			} else {
				f.Metrics.Probes.WithLabelValues("down").Inc()
			}
			f.Logger.Debug("probe_done",
				zap.String("target", t.Name),
				zap.String("host", t.Host),
				zap.Bool("up", res.Up),
				zap.Duration("latency", res.Latency),
				zap.String("reason", res.Reason),
			)
		}()
	}

	wg.Wait()
	return out
}
