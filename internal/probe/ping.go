package probe

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// PingProber sends a single ICMP echo using the system ping binary. The
// process is killed once timeout elapses, whatever ping's own wait is.
type PingProber struct {
	GOOS string
	run  func(ctx context.Context, name string, args ...string) error
}

func NewPingProber() *PingProber {
	return &PingProber{
		GOOS: runtime.GOOS,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

func (p *PingProber) Probe(ctx context.Context, host string, timeout time.Duration) Result {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.run(cctx, "ping", pingArgs(p.GOOS, host, timeout)...)
	lat := time.Since(start)
	if err == nil {
		return Result{Up: true, Latency: lat, Reason: "echo_reply"}
	}

	var reason string
	var exitErr *exec.ExitError
	switch {
	case errors.Is(cctx.Err(), context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(ctx.Err(), context.Canceled):
		reason = "canceled"
	case errors.As(err, &exitErr):
		reason = "exit_" + strconv.Itoa(exitErr.ExitCode())
	default:
		reason = (&domain.ProbeError{Host: host, Err: err}).Error()
	}
	return Result{Up: false, Latency: lat, Reason: reason}
}

// pingArgs builds a one-packet ping command line for the given OS.
func pingArgs(goos, host string, timeout time.Duration) []string {
	if goos == "windows" {
		ms := timeout.Milliseconds()
		if ms < 1 {
			ms = 1
		}
		return []string{"-n", "1", "-w", strconv.FormatInt(ms, 10), host}
	}
	// -W takes whole seconds; truncate so ping gives up no later than the kill.
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	return []string{"-c", "1", "-W", strconv.Itoa(secs), host}
}
