package notify

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/metrics"
)

// --- fakes ---

type memSubs struct {
	mu      sync.Mutex
	subs    domain.Subscribers
	loadErr error
	removed []domain.RecipientID
}

func (m *memSubs) LoadSubscribers(context.Context) (domain.Subscribers, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return domain.Subscribers{}, m.loadErr
	}
	return m.subs, nil
}

func (m *memSubs) RemoveSubscribers(_ context.Context, ids []domain.RecipientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, ids...)
	m.subs = m.subs.Without(ids)
	return nil
}

type recSender struct {
	mu    sync.Mutex
	dead  map[domain.RecipientID]bool
	calls map[domain.RecipientID]int
	texts []string
	// failFirst fails the first n attempts for every recipient.
	failFirst int
}

func (r *recSender) Send(_ context.Context, to domain.RecipientID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[domain.RecipientID]int{}
	}
	r.calls[to]++
	r.texts = append(r.texts, text)
	if r.dead[to] || r.calls[to] <= r.failFirst {
		return &domain.DeliveryError{Recipient: to, Err: errors.New("unreachable")}
	}
	return nil
}

func ids(s ...string) []domain.RecipientID {
	out := make([]domain.RecipientID, len(s))
	for i, v := range s {
		out[i] = domain.RecipientID(v)
	}
	return out
}

func fastOpts() Options {
	return Options{SenderName: "CCTV Ping Monitor", Attempts: 3, Backoff: time.Millisecond, Parallelism: 4}
}

// --- tests ---

func TestBroadcast_PrunesOnlyDeadRecipient(t *testing.T) {
	subs := &memSubs{subs: domain.Subscribers{Subs: ids("1", "2", "3", "4", "5"), Pending: ids("9")}}
	snd := &recSender{dead: map[domain.RecipientID]bool{"3": true}}
	m := metrics.New(nil)
	b := NewBroadcaster(zap.NewNop(), snd, subs, nil, m, fastOpts())

	rep := b.Broadcast(context.Background(), "❌ ALERT")

	assert.ElementsMatch(t, ids("1", "2", "4", "5"), rep.Sent)
	assert.Equal(t, ids("3"), rep.Pruned)
	assert.NoError(t, rep.PruneErr)
	assert.NotEmpty(t, rep.ID)

	assert.Equal(t, 3, snd.calls["3"])
	for _, id := range ids("1", "2", "4", "5") {
		assert.Equal(t, 1, snd.calls[id], id)
	}
	assert.Equal(t, ids("1", "2", "4", "5"), subs.subs.Subs)
	assert.Equal(t, ids("9"), subs.subs.Pending)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pruned))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("failed")))
}

func TestBroadcast_RetrySucceeds(t *testing.T) {
	subs := &memSubs{subs: domain.Subscribers{Subs: ids("1")}}
	snd := &recSender{failFirst: 2}
	b := NewBroadcaster(zap.NewNop(), snd, subs, nil, nil, fastOpts())

	rep := b.Broadcast(context.Background(), "x")

	assert.Equal(t, ids("1"), rep.Sent)
	assert.Empty(t, rep.Pruned)
	assert.Equal(t, 3, snd.calls["1"])
	assert.Empty(t, subs.removed)
}

func TestBroadcast_UnroutedRecipientsAreKept(t *testing.T) {
	subs := &memSubs{subs: domain.Subscribers{Subs: ids("111", "222", "slack:ops")}}
	var slackCalls int
	r := Router{Slack: SenderFunc(func(context.Context, domain.RecipientID, string) error {
		slackCalls++
		return nil
	})}
	m := metrics.New(nil)
	b := NewBroadcaster(zap.NewNop(), r, subs, nil, m, Options{Attempts: 3, Backoff: time.Millisecond, Parallelism: 1})

	rep := b.Broadcast(context.Background(), "❌ ALERT")

	assert.Equal(t, ids("slack:ops"), rep.Sent)
	assert.ElementsMatch(t, ids("111", "222"), rep.Failed)
	assert.Empty(t, rep.Pruned)
	assert.Empty(t, subs.removed)
	assert.Equal(t, ids("111", "222", "slack:ops"), subs.subs.Subs)
	assert.Equal(t, 1, slackCalls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("no_route")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("retry")))
}

func TestBroadcast_PrefixesSenderName(t *testing.T) {
	subs := &memSubs{subs: domain.Subscribers{Subs: ids("1")}}
	snd := &recSender{}
	b := NewBroadcaster(zap.NewNop(), snd, subs, nil, nil, fastOpts())

	b.Broadcast(context.Background(), "hello")

	require.Len(t, snd.texts, 1)
	assert.Equal(t, "🛰️ CCTV Ping Monitor\n\nhello", snd.texts[0])
}

func TestBroadcast_NoSubscribers(t *testing.T) {
	snd := &recSender{}
	b := NewBroadcaster(zap.NewNop(), snd, &memSubs{}, nil, nil, fastOpts())
	rep := b.Broadcast(context.Background(), "x")
	assert.Empty(t, rep.Sent)
	assert.Empty(t, snd.calls)
}

func TestBroadcast_LoadFailureUsesLastKnown(t *testing.T) {
	subs := &memSubs{subs: domain.Subscribers{Subs: ids("1", "2")}}
	snd := &recSender{}
	b := NewBroadcaster(zap.NewNop(), snd, subs, nil, nil, fastOpts())
	b.Broadcast(context.Background(), "first")

	subs.loadErr = errors.New("disk gone")
	rep := b.Broadcast(context.Background(), "second")

	assert.ElementsMatch(t, ids("1", "2"), rep.Sent)
}

func TestBroadcast_CancelDoesNotPrune(t *testing.T) {
	subs := &memSubs{subs: domain.Subscribers{Subs: ids("1")}}
	ctx, cancel := context.WithCancel(context.Background())
	snd := SenderFunc(func(context.Context, domain.RecipientID, string) error {
		cancel()
		return errors.New("shutting down")
	})
	opts := fastOpts()
	opts.Backoff = time.Hour
	b := NewBroadcaster(zap.NewNop(), snd, subs, nil, nil, opts)

	rep := b.Broadcast(ctx, "x")

	assert.Equal(t, ids("1"), rep.Failed)
	assert.Empty(t, rep.Pruned)
	assert.Empty(t, subs.removed)
}

func TestBroadcast_SlowRecipientDoesNotBlockOthers(t *testing.T) {
	subs := &memSubs{subs: domain.Subscribers{Subs: ids("slow", "a", "b")}}
	release := make(chan struct{})
	var mu sync.Mutex
	var done []string
	snd := SenderFunc(func(_ context.Context, to domain.RecipientID, _ string) error {
		if to == "slow" {
			<-release
		}
		mu.Lock()
		done = append(done, string(to))
		mu.Unlock()
		return nil
	})
	b := NewBroadcaster(zap.NewNop(), snd, subs, nil, nil, fastOpts())

	finished := make(chan Report)
	go func() { finished <- b.Broadcast(context.Background(), "x") }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(done) == 2
	}, 2*time.Second, time.Millisecond)
	close(release)
	rep := <-finished
	assert.Len(t, rep.Sent, 3)
	slices.Sort(done)
	assert.Equal(t, "a,b,slow", strings.Join(done, ","))
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(2*time.Second, 1))
	assert.Equal(t, 4*time.Second, Backoff(2*time.Second, 2))
	assert.Equal(t, 8*time.Second, Backoff(2*time.Second, 3))
	assert.Zero(t, Backoff(2*time.Second, 0))
}
