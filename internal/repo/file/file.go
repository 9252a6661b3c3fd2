// Package file stores state and subscribers as JSON documents in a directory,
// the layout the chat front-end reads and writes too.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/multierr"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/repo"
)

const (
	StateFile       = "state.json"
	SubscribersFile = "subscribers.json"
)

type Store struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &domain.PersistenceError{Op: "open", Err: err}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// readJSON returns (false, nil) when the file does not exist.
func readJSON(path string, v any) (bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// writeJSON replaces path atomically: temp file in the same directory, fsync,
// rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	tmp = nil
	return nil
}

// LoadStates reads state.json. A missing file is an empty map. A corrupt
// file is an empty map plus an error. Entries that fail validation are
// skipped; the rest are returned together with an error naming the skipped.
func (s *Store) LoadStates(ctx context.Context) (map[string]domain.TargetState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := map[string]repo.StateRecord{}
	if _, err := readJSON(s.path(StateFile), &raw); err != nil {
		return map[string]domain.TargetState{}, &domain.PersistenceError{Op: "load_states", Err: err}
	}

	out := make(map[string]domain.TargetState, len(raw))
	var bad error
	for name, rec := range raw {
		st, err := repo.FromRecord(rec)
		if err != nil {
			bad = multierr.Append(bad, fmt.Errorf("entry %q: %w", name, err))
			continue
		}
		out[name] = st
	}
	if bad != nil {
		return out, &domain.PersistenceError{Op: "load_states", Err: bad}
	}
	return out, nil
}

func (s *Store) SaveStates(ctx context.Context, states map[string]domain.TargetState) error {
	raw := make(map[string]repo.StateRecord, len(states))
	for name, st := range states {
		raw[name] = repo.ToRecord(st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSON(s.path(StateFile), raw); err != nil {
		return &domain.PersistenceError{Op: "save_states", Err: err}
	}
	return nil
}

func (s *Store) LoadSubscribers(ctx context.Context) (domain.Subscribers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSubscribersLocked()
}

func (s *Store) loadSubscribersLocked() (domain.Subscribers, error) {
	var subs domain.Subscribers
	if _, err := readJSON(s.path(SubscribersFile), &subs); err != nil {
		return domain.Subscribers{}, &domain.PersistenceError{Op: "load_subscribers", Err: err}
	}
	return subs, nil
}

func (s *Store) SaveSubscribers(ctx context.Context, subs domain.Subscribers) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveSubscribersLocked(subs)
}

func (s *Store) saveSubscribersLocked(subs domain.Subscribers) error {
	// keep the file stable and diff-friendly; never write null lists
	doc := subscribersDoc{
		Subs:    fileIDs(sortedIDs(subs.Subs)),
		Pending: fileIDs(sortedIDs(subs.Pending)),
	}
	if err := writeJSON(s.path(SubscribersFile), doc); err != nil {
		return &domain.PersistenceError{Op: "save_subscribers", Err: err}
	}
	return nil
}

// RemoveSubscribers re-reads the document first so pending requests written
// by the front-end in the meantime survive.
func (s *Store) RemoveSubscribers(ctx context.Context, ids []domain.RecipientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.loadSubscribersLocked()
	if err != nil {
		return err
	}
	return s.saveSubscribersLocked(cur.Without(ids))
}

func (s *Store) Close() error { return nil }

func sortedIDs(in []domain.RecipientID) []domain.RecipientID {
	out := append(make([]domain.RecipientID, 0, len(in)), in...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type subscribersDoc struct {
	Subs    []fileID `json:"subs"`
	Pending []fileID `json:"pending"`
}

// fileID writes Telegram chat ids as JSON numbers, the way the chat front-end
// stores them; any other recipient stays a string.
type fileID domain.RecipientID

func (f fileID) MarshalJSON() ([]byte, error) {
	s := string(f)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func fileIDs(in []domain.RecipientID) []fileID {
	out := make([]fileID, len(in))
	for i, r := range in {
		out[i] = fileID(r)
	}
	return out
}
