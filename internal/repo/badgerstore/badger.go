// Package badgerstore keeps state and subscribers in an embedded badger KV
// database. Keys: state/<name>, subscribers/<id>, pending/<id>.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/repo"
)

var (
	statePrefix   = []byte("state/")
	subsPrefix    = []byte("subscribers/")
	pendingPrefix = []byte("pending/")
)

type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database under dir. An empty dir opens an
// in-memory database.
func Open(dir string, log *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	if log != nil {
		opts = opts.WithLogger(&badgerLogger{log.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "open", Err: err}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.s.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }

func key(prefix []byte, id string) []byte {
	return append(append([]byte(nil), prefix...), id...)
}

// scan calls fn for every key under prefix with the prefix stripped.
func scan(txn *badger.Txn, prefix []byte, values bool, fn func(id string, item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = values
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if err := fn(string(item.Key()[len(prefix):]), item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) LoadStates(ctx context.Context) (map[string]domain.TargetState, error) {
	out := map[string]domain.TargetState{}
	var bad error
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, statePrefix, true, func(name string, item *badger.Item) error {
			return item.Value(func(v []byte) error {
				var rec repo.StateRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					bad = multierr.Append(bad, fmt.Errorf("entry %q: %w", name, err))
					return nil
				}
				st, err := repo.FromRecord(rec)
				if err != nil {
					bad = multierr.Append(bad, fmt.Errorf("entry %q: %w", name, err))
					return nil
				}
				out[name] = st
				return nil
			})
		})
	})
	if err != nil {
		return map[string]domain.TargetState{}, &domain.PersistenceError{Op: "load_states", Err: err}
	}
	if bad != nil {
		return out, &domain.PersistenceError{Op: "load_states", Err: bad}
	}
	return out, nil
}

// SaveStates writes every entry and deletes keys for names no longer present,
// in one transaction.
func (s *Store) SaveStates(ctx context.Context, states map[string]domain.TargetState) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var stale [][]byte
		err := scan(txn, statePrefix, false, func(name string, item *badger.Item) error {
			if _, ok := states[name]; !ok {
				stale = append(stale, item.KeyCopy(nil))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for name, st := range states {
			v, err := json.Marshal(repo.ToRecord(st))
			if err != nil {
				return err
			}
			if err := txn.Set(key(statePrefix, name), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &domain.PersistenceError{Op: "save_states", Err: convertError(err)}
	}
	return nil
}

func (s *Store) LoadSubscribers(ctx context.Context) (domain.Subscribers, error) {
	var subs domain.Subscribers
	err := s.db.View(func(txn *badger.Txn) error {
		if err := scan(txn, subsPrefix, false, func(id string, _ *badger.Item) error {
			subs.Subs = append(subs.Subs, domain.RecipientID(id))
			return nil
		}); err != nil {
			return err
		}
		return scan(txn, pendingPrefix, false, func(id string, _ *badger.Item) error {
			subs.Pending = append(subs.Pending, domain.RecipientID(id))
			return nil
		})
	})
	if err != nil {
		return domain.Subscribers{}, &domain.PersistenceError{Op: "load_subscribers", Err: err}
	}
	return subs, nil
}

func (s *Store) SaveSubscribers(ctx context.Context, subs domain.Subscribers) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{subsPrefix, pendingPrefix} {
			var old [][]byte
			if err := scan(txn, prefix, false, func(_ string, item *badger.Item) error {
				old = append(old, item.KeyCopy(nil))
				return nil
			}); err != nil {
				return err
			}
			for _, k := range old {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		for _, id := range subs.Subs {
			if err := txn.Set(key(subsPrefix, string(id)), nil); err != nil {
				return err
			}
		}
		for _, id := range subs.Pending {
			if err := txn.Set(key(pendingPrefix, string(id)), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &domain.PersistenceError{Op: "save_subscribers", Err: convertError(err)}
	}
	return nil
}

func (s *Store) RemoveSubscribers(ctx context.Context, ids []domain.RecipientID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete(key(subsPrefix, string(id))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &domain.PersistenceError{Op: "remove_subscribers", Err: convertError(err)}
	}
	return nil
}

var ErrTooManyEntries = errors.New("too many entries for one transaction")

func convertError(err error) error {
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("%w: %v", ErrTooManyEntries, err)
	}
	return err
}
