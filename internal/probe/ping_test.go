package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePing(err error, gotArgs *[]string) *PingProber {
	return &PingProber{
		GOOS: "linux",
		run: func(ctx context.Context, name string, args ...string) error {
			if gotArgs != nil {
				*gotArgs = append([]string{name}, args...)
			}
			return err
		},
	}
}

func TestPingArgs(t *testing.T) {
	assert.Equal(t, []string{"-c", "1", "-W", "1", "10.0.0.1"}, pingArgs("linux", "10.0.0.1", 1200*time.Millisecond))
	assert.Equal(t, []string{"-c", "1", "-W", "2", "10.0.0.1"}, pingArgs("linux", "10.0.0.1", 2900*time.Millisecond))
	assert.Equal(t, []string{"-c", "1", "-W", "1", "10.0.0.1"}, pingArgs("darwin", "10.0.0.1", 100*time.Millisecond))
	assert.Equal(t, []string{"-n", "1", "-w", "1200", "cam.local"}, pingArgs("windows", "cam.local", 1200*time.Millisecond))
}

func TestPingProber_ReplyIsUp(t *testing.T) {
	var args []string
	p := fakePing(nil, &args)
	out := p.Probe(context.Background(), "192.168.1.10", time.Second)
	assert.True(t, out.Up)
	assert.Equal(t, "echo_reply", out.Reason)
	assert.Equal(t, "ping", args[0])
	assert.Equal(t, "192.168.1.10", args[len(args)-1])
}

func TestPingProber_FailureIsDataNotError(t *testing.T) {
	p := fakePing(errors.New("exec: \"ping\": executable file not found in $PATH"), nil)
	out := p.Probe(context.Background(), "192.168.1.10", time.Second)
	assert.False(t, out.Up)
	assert.Contains(t, out.Reason, "192.168.1.10")
}

func TestPingProber_TimeoutReason(t *testing.T) {
	p := &PingProber{
		GOOS: "linux",
		run: func(ctx context.Context, name string, args ...string) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	out := p.Probe(context.Background(), "10.9.9.9", 10*time.Millisecond)
	require.False(t, out.Up)
	assert.Equal(t, "timeout", out.Reason)
}

func TestPingProber_KilledAtTimeout(t *testing.T) {
	var deadline time.Time
	p := &PingProber{
		GOOS: "linux",
		run: func(ctx context.Context, name string, args ...string) error {
			deadline, _ = ctx.Deadline()
			<-ctx.Done()
			return ctx.Err()
		},
	}
	start := time.Now()
	out := p.Probe(context.Background(), "10.9.9.9", 1200*time.Millisecond)
	assert.Equal(t, "timeout", out.Reason)
	assert.WithinDuration(t, start.Add(1200*time.Millisecond), deadline, 100*time.Millisecond)
	assert.Less(t, out.Latency, 1700*time.Millisecond)
}

func TestProberFunc(t *testing.T) {
	var p Prober = ProberFunc(func(_ context.Context, host string, _ time.Duration) Result {
		return Result{Up: host == "up"}
	})
	assert.True(t, p.Probe(context.Background(), "up", time.Second).Up)
	assert.False(t, p.Probe(context.Background(), "down", time.Second).Up)
}
