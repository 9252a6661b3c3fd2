package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/metrics"
)

// SubscriberSource is the slice of the subscriber store a broadcast needs.
type SubscriberSource interface {
	LoadSubscribers(ctx context.Context) (domain.Subscribers, error)
	RemoveSubscribers(ctx context.Context, ids []domain.RecipientID) error
}

type Options struct {
	SenderName  string
	Attempts    int
	Backoff     time.Duration
	Parallelism int
}

func (o Options) withDefaults() Options {
	if o.Attempts < 1 {
		o.Attempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	if o.Parallelism < 1 {
		o.Parallelism = 16
	}
	return o
}

// Report summarizes one broadcast.
type Report struct {
	ID     string
	Sent   []domain.RecipientID
	Pruned []domain.RecipientID
	// Failed lists recipients that were not reached but kept: the broadcast
	// was cancelled, or no sender is configured for their channel.
	Failed []domain.RecipientID
	// PruneErr is set when the prune could not be persisted.
	PruneErr error
}

type Broadcaster struct {
	log     *zap.Logger
	sender  Sender
	subs    SubscriberSource
	clk     clock.Clock
	metrics *metrics.Metrics
	opts    Options

	mu    sync.Mutex
	known []domain.RecipientID
}

func NewBroadcaster(log *zap.Logger, sender Sender, subs SubscriberSource, clk clock.Clock, m *metrics.Metrics, opts Options) *Broadcaster {
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Broadcaster{
		log:     log,
		sender:  sender,
		subs:    subs,
		clk:     clk,
		metrics: m,
		opts:    opts.withDefaults(),
	}
}

// Backoff is the delay before retry n (1-based): base, 2*base, 4*base...
func Backoff(base time.Duration, n int) time.Duration {
	if n < 1 {
		return 0
	}
	return base << (n - 1)
}

func (b *Broadcaster) prefix(text string) string {
	if b.opts.SenderName == "" {
		return text
	}
	return "🛰️ " + b.opts.SenderName + "\n\n" + text
}

func (b *Broadcaster) recipients(ctx context.Context) []domain.RecipientID {
	subs, err := b.subs.LoadSubscribers(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.log.Warn("subscribers_load_failed_using_last_known",
			zap.Error(err), zap.Int("known", len(b.known)))
		b.metrics.PersistErrors.WithLabelValues("load_subscribers").Inc()
	} else {
		b.known = append([]domain.RecipientID(nil), subs.Subs...)
	}
	return append([]domain.RecipientID(nil), b.known...)
}

// Broadcast sends text to every current subscriber. Recipients are served
// concurrently and independently; those still failing after all attempts are
// removed from the subscriber store. It never returns an error: the outcome
// is in the Report and the log.
func (b *Broadcaster) Broadcast(ctx context.Context, text string) Report {
	rep := Report{ID: uuid.NewString()}
	log := b.log.With(zap.String("broadcast_id", rep.ID))

	to := b.recipients(ctx)
	if len(to) == 0 {
		log.Info("broadcast_no_recipients")
		return rep
	}
	msg := b.prefix(text)

	errs := make([]error, len(to))
	var g errgroup.Group
	g.SetLimit(b.opts.Parallelism)
	for i, r := range to {
		g.Go(func() error {
			errs[i] = b.deliver(ctx, r, msg)
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range to {
		switch {
		case errs[i] == nil:
			rep.Sent = append(rep.Sent, r)
		case ctx.Err() != nil:
			rep.Failed = append(rep.Failed, r)
		case errors.Is(errs[i], ErrNoRoute):
			log.Error("delivery_no_route", zap.String("recipient", string(r)), zap.Error(errs[i]))
			rep.Failed = append(rep.Failed, r)
		default:
			log.Warn("delivery_failed", zap.String("recipient", string(r)), zap.Error(errs[i]))
			rep.Pruned = append(rep.Pruned, r)
		}
	}

	if len(rep.Pruned) > 0 {
		rep.PruneErr = b.prune(ctx, rep.Pruned)
		if rep.PruneErr != nil {
			log.Error("subscriber_prune_persist_failed", zap.Error(rep.PruneErr))
		}
		log.Warn("subscribers_pruned", zap.Int("count", len(rep.Pruned)))
	}
	log.Info("broadcast_done",
		zap.Int("recipients", len(to)),
		zap.Int("sent", len(rep.Sent)),
		zap.Int("pruned", len(rep.Pruned)),
		zap.Int("failed", len(rep.Failed)),
	)
	return rep
}

func (b *Broadcaster) deliver(ctx context.Context, to domain.RecipientID, msg string) error {
	var err error
	for n := 1; n <= b.opts.Attempts; n++ {
		if err = b.sender.Send(ctx, to, msg); err == nil {
			b.metrics.Deliveries.WithLabelValues("sent").Inc()
			return nil
		}
		if errors.Is(err, ErrNoRoute) {
			b.metrics.Deliveries.WithLabelValues("no_route").Inc()
			return err
		}
		if n == b.opts.Attempts {
			break
		}
		b.metrics.Deliveries.WithLabelValues("retry").Inc()
		select {
		case <-ctx.Done():
			return &domain.DeliveryError{Recipient: to, Attempts: n, At: b.clk.Now(), Err: ctx.Err()}
		case <-b.clk.After(Backoff(b.opts.Backoff, n)):
		}
	}
	b.metrics.Deliveries.WithLabelValues("failed").Inc()
	return &domain.DeliveryError{Recipient: to, Attempts: b.opts.Attempts, At: b.clk.Now(), Err: err}
}

func (b *Broadcaster) prune(ctx context.Context, dead []domain.RecipientID) error {
	b.mu.Lock()
	b.known = domain.Subscribers{Subs: b.known}.Without(dead).Subs
	b.mu.Unlock()
	b.metrics.Pruned.Add(float64(len(dead)))
	return b.subs.RemoveSubscribers(ctx, dead)
}
