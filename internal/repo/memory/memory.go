package memory

import (
	"context"
	"sync"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/repo"
)

// Store keeps everything in process memory. Used by tests and dry runs.
type Store struct {
	mu     sync.RWMutex
	states map[string]domain.TargetState
	subs   domain.Subscribers

	// Fail, when set, is returned by every write. Tests use it to exercise
	// persistence failures.
	Fail error
	// Saves counts successful SaveStates calls.
	Saves int
}

func New() *Store {
	return &Store{states: make(map[string]domain.TargetState)}
}

func (m *Store) LoadStates(ctx context.Context) (map[string]domain.TargetState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return repo.CopyStates(m.states), nil
}

func (m *Store) SaveStates(ctx context.Context, states map[string]domain.TargetState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return &domain.PersistenceError{Op: "save_states", Err: m.Fail}
	}
	m.states = repo.CopyStates(states)
	m.Saves++
	return nil
}

func (m *Store) LoadSubscribers(ctx context.Context) (domain.Subscribers, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.Subscribers{
		Subs:    append([]domain.RecipientID(nil), m.subs.Subs...),
		Pending: append([]domain.RecipientID(nil), m.subs.Pending...),
	}, nil
}

func (m *Store) SaveSubscribers(ctx context.Context, subs domain.Subscribers) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return &domain.PersistenceError{Op: "save_subscribers", Err: m.Fail}
	}
	m.subs = subs.Without(nil)
	return nil
}

func (m *Store) RemoveSubscribers(ctx context.Context, ids []domain.RecipientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return &domain.PersistenceError{Op: "remove_subscribers", Err: m.Fail}
	}
	m.subs = m.subs.Without(ids)
	return nil
}

func (m *Store) Close() error { return nil }
