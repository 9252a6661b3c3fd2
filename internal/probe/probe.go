package probe

import (
	"context"
	"time"
)

// Result is the outcome of a single reachability check. An unreachable host
// is an ordinary result with Up=false and a Reason; it is never an error.
type Result struct {
	Up      bool          `json:"up"`
	Latency time.Duration `json:"latency"`
	Reason  string        `json:"reason,omitempty"`
}

// Prober performs one reachability check against host, giving up after timeout.
type Prober interface {
	Probe(ctx context.Context, host string, timeout time.Duration) Result
}

// ProberFunc adapts a plain function to Prober.
type ProberFunc func(ctx context.Context, host string, timeout time.Duration) Result

func (f ProberFunc) Probe(ctx context.Context, host string, timeout time.Duration) Result {
	return f(ctx, host, timeout)
}
