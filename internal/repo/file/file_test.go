package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/repo"
	"github.com/hamed0406/pingwatch/internal/repo/repotest"
)

func TestFileStore_Suite(t *testing.T) {
	repotest.Run(t,
		func(t *testing.T) repo.Store {
			s, err := New(t.TempDir())
			require.NoError(t, err)
			return s
		},
		func(t *testing.T, s repo.Store) repo.Store {
			again, err := New(s.(*Store).Dir())
			require.NoError(t, err)
			return again
		},
	)
}

func TestFileStore_CorruptStateLoadsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StateFile), []byte("{not json"), 0o644))
	s, err := New(dir)
	require.NoError(t, err)

	states, err := s.LoadStates(context.Background())
	assert.NotNil(t, states)
	assert.Empty(t, states)
	var pe *domain.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "load_states", pe.Op)
}

func TestFileStore_SkipsInvalidEntries(t *testing.T) {
	dir := t.TempDir()
	doc := `{
	  "Lobby":  {"status": "DOWN", "fails": 5, "succ": 0, "last_alert_ts": 1714525200, "last_up_ts": 0, "last_down_ts": 1714525200},
	  "Broken": {"status": "MAYBE", "fails": 0, "succ": 0},
	  "Both":   {"status": "UP", "fails": 2, "succ": 2}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, StateFile), []byte(doc), 0o644))
	s, err := New(dir)
	require.NoError(t, err)

	states, err := s.LoadStates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken")
	assert.Contains(t, err.Error(), "Both")
	require.Len(t, states, 1)
	assert.Equal(t, domain.StatusDown, states["Lobby"].Status)
	assert.Equal(t, int64(1714525200), states["Lobby"].LastAlert.Unix())
}

func TestFileStore_LegacyNumericChatIDs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SubscribersFile),
		[]byte(`{"subs": [123456789, -1001234], "pending": ["42"]}`), 0o644))
	s, err := New(dir)
	require.NoError(t, err)

	subs, err := s.LoadSubscribers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.RecipientID{"123456789", "-1001234"}, subs.Subs)
	assert.Equal(t, []domain.RecipientID{"42"}, subs.Pending)
}

func TestFileStore_ChatIDsWrittenBackAsNumbers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SubscribersFile)
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"subs": [123456789, -1001234, "slack:ops", 7], "pending": [42, "007"]}`), 0o644))
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.RemoveSubscribers(context.Background(), []domain.RecipientID{"7"}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"subs": [-1001234, 123456789, "slack:ops"], "pending": ["007", 42]}`, string(b))
}

func TestFileStore_RemoveKeepsConcurrentPending(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.SaveSubscribers(ctx, domain.Subscribers{Subs: []domain.RecipientID{"1", "2"}}))

	// the front-end adds a pending request behind our back
	require.NoError(t, os.WriteFile(filepath.Join(dir, SubscribersFile),
		[]byte(`{"subs": ["1", "2"], "pending": ["99"]}`), 0o644))

	require.NoError(t, s.RemoveSubscribers(ctx, []domain.RecipientID{"2"}))
	subs, err := s.LoadSubscribers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.RecipientID{"1"}, subs.Subs)
	assert.Equal(t, []domain.RecipientID{"99"}, subs.Pending)
}

func TestFileStore_WriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s.SaveStates(context.Background(), map[string]domain.TargetState{"a": domain.NewTargetState()}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StateFile, entries[0].Name())
}
