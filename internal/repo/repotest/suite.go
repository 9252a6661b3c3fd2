// Package repotest holds the behaviour every repo.Store backend must share.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/repo"
)

// Run exercises a backend. open must return an empty store; reopen, when
// non-nil, must return a fresh handle onto the same storage.
func Run(t *testing.T, open func(t *testing.T) repo.Store, reopen func(t *testing.T, s repo.Store) repo.Store) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 1, 2, 3, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		s := open(t)
		states, err := s.LoadStates(ctx)
		require.NoError(t, err)
		assert.Empty(t, states)
		subs, err := s.LoadSubscribers(ctx)
		require.NoError(t, err)
		assert.Empty(t, subs.Subs)
		assert.Empty(t, subs.Pending)
	})

	t.Run("states_round_trip_and_replace", func(t *testing.T) {
		s := open(t)
		in := map[string]domain.TargetState{
			"Lobby":  {Status: domain.StatusDown, ConsecutiveFailures: 3, LastAlert: at, LastDown: at},
			"Garage": {Status: domain.StatusUp, ConsecutiveSuccesses: 9, LastUp: at.Add(time.Hour)},
			"New":    domain.NewTargetState(),
		}
		require.NoError(t, s.SaveStates(ctx, in))
		if reopen != nil {
			s = reopen(t, s)
		}
		got, err := s.LoadStates(ctx)
		require.NoError(t, err)
		assert.Equal(t, in, got)

		delete(in, "Garage")
		require.NoError(t, s.SaveStates(ctx, in))
		got, err = s.LoadStates(ctx)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	})

	t.Run("subscribers_round_trip_and_remove", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveSubscribers(ctx, domain.Subscribers{
			Subs:    []domain.RecipientID{"1", "2", "slack:ops"},
			Pending: []domain.RecipientID{"7"},
		}))
		require.NoError(t, s.RemoveSubscribers(ctx, []domain.RecipientID{"2", "absent"}))
		if reopen != nil {
			s = reopen(t, s)
		}
		got, err := s.LoadSubscribers(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []domain.RecipientID{"1", "slack:ops"}, got.Subs)
		assert.ElementsMatch(t, []domain.RecipientID{"7"}, got.Pending)
	})
}
