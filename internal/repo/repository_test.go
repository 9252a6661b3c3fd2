package repo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/repo"
	"github.com/hamed0406/pingwatch/internal/repo/badgerstore"
	"github.com/hamed0406/pingwatch/internal/repo/file"
	"github.com/hamed0406/pingwatch/internal/repo/memory"
	pg "github.com/hamed0406/pingwatch/internal/repo/postgres"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.Store = memory.New()
	var _ repo.Store = (*file.Store)(nil)
	var _ repo.Store = (*badgerstore.Store)(nil)
	var _ repo.Store = (*pg.Store)(nil)
}

func TestRecord_RoundTrip(t *testing.T) {
	in := domain.TargetState{
		Status:              domain.StatusDown,
		ConsecutiveFailures: 4,
		LastAlert:           time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		LastDown:            time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	rec := repo.ToRecord(in)
	assert.Equal(t, "DOWN", rec.Status)
	assert.Zero(t, rec.LastUpTS)

	out, err := repo.FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRecord_RejectsInvalid(t *testing.T) {
	_, err := repo.FromRecord(repo.StateRecord{Status: "SIDEWAYS"})
	assert.Error(t, err)
	_, err = repo.FromRecord(repo.StateRecord{Status: "UP", Fails: 1, Succ: 1})
	assert.Error(t, err)
	_, err = repo.FromRecord(repo.StateRecord{Status: "UP", Fails: -1})
	assert.Error(t, err)
}

func TestCopyStates_Independent(t *testing.T) {
	src := map[string]domain.TargetState{"a": domain.NewTargetState()}
	cp := repo.CopyStates(src)
	cp["b"] = domain.NewTargetState()
	assert.Len(t, src, 1)
	assert.NotNil(t, repo.CopyStates(nil))
}
