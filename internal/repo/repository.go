package repo

import (
	"context"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// Ports (interfaces); backends live in the sub-packages.

// StateStore persists the per-target liveness map. SaveStates replaces the
// whole snapshot. LoadStates may return a usable map together with an error
// when only some entries could be read.
type StateStore interface {
	LoadStates(ctx context.Context) (map[string]domain.TargetState, error)
	SaveStates(ctx context.Context, states map[string]domain.TargetState) error
}

// SubscriberStore persists the recipient document shared with the front-end.
type SubscriberStore interface {
	LoadSubscribers(ctx context.Context) (domain.Subscribers, error)
	SaveSubscribers(ctx context.Context, subs domain.Subscribers) error
	// RemoveSubscribers drops ids from the approved list; pending is untouched.
	RemoveSubscribers(ctx context.Context, ids []domain.RecipientID) error
}

type Store interface {
	StateStore
	SubscriberStore
	Close() error
}

// CopyStates returns a shallow copy of m, never nil.
func CopyStates(m map[string]domain.TargetState) map[string]domain.TargetState {
	out := make(map[string]domain.TargetState, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
