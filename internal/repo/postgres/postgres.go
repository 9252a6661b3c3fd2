package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS target_states (
  name          TEXT PRIMARY KEY,
  status        TEXT NOT NULL DEFAULT 'UNKNOWN',
  fails         INTEGER NOT NULL DEFAULT 0,
  succ          INTEGER NOT NULL DEFAULT 0,
  last_alert_at TIMESTAMPTZ NULL,
  last_up_at    TIMESTAMPTZ NULL,
  last_down_at  TIMESTAMPTZ NULL,
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscribers (
  recipient  TEXT PRIMARY KEY,
  pending    BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

// Migrate creates the tables if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return &domain.PersistenceError{Op: "migrate", Err: err}
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ---- StateStore ----

func (s *Store) LoadStates(ctx context.Context) (map[string]domain.TargetState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, status, fails, succ, last_alert_at, last_up_at, last_down_at
		   FROM target_states`)
	if err != nil {
		return map[string]domain.TargetState{}, &domain.PersistenceError{Op: "load_states", Err: err}
	}
	defer rows.Close()

	out := map[string]domain.TargetState{}
	var bad error
	for rows.Next() {
		var (
			name, status          string
			fails, succ           int
			alert, lastUp, lastDn *time.Time
		)
		if err := rows.Scan(&name, &status, &fails, &succ, &alert, &lastUp, &lastDn); err != nil {
			return map[string]domain.TargetState{}, &domain.PersistenceError{Op: "load_states", Err: fmt.Errorf("scan: %w", err)}
		}
		st, err := domain.ParseStatus(status)
		if err == nil {
			ts := domain.TargetState{
				Status:               st,
				ConsecutiveFailures:  fails,
				ConsecutiveSuccesses: succ,
				LastAlert:            stamp(alert),
				LastUp:               stamp(lastUp),
				LastDown:             stamp(lastDn),
			}
			if err = ts.Validate(); err == nil {
				out[name] = ts
				continue
			}
		}
		bad = multierr.Append(bad, fmt.Errorf("entry %q: %w", name, err))
	}
	if err := rows.Err(); err != nil {
		return map[string]domain.TargetState{}, &domain.PersistenceError{Op: "load_states", Err: err}
	}
	if bad != nil {
		return out, &domain.PersistenceError{Op: "load_states", Err: bad}
	}
	return out, nil
}

// SaveStates upserts every entry and deletes rows for names not in states,
// in one transaction.
func (s *Store) SaveStates(ctx context.Context, states map[string]domain.TargetState) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		names := make([]string, 0, len(states))
		for name, st := range states {
			names = append(names, name)
			_, err := tx.Exec(ctx, `
				INSERT INTO target_states (name, status, fails, succ, last_alert_at, last_up_at, last_down_at, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7, now())
				ON CONFLICT (name)
				DO UPDATE SET status=EXCLUDED.status, fails=EXCLUDED.fails, succ=EXCLUDED.succ,
				              last_alert_at=EXCLUDED.last_alert_at, last_up_at=EXCLUDED.last_up_at,
				              last_down_at=EXCLUDED.last_down_at, updated_at=now()`,
				name, string(st.Status), st.ConsecutiveFailures, st.ConsecutiveSuccesses,
				nullTime(st.LastAlert), nullTime(st.LastUp), nullTime(st.LastDown))
			if err != nil {
				return fmt.Errorf("upsert %q: %w", name, err)
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM target_states WHERE NOT (name = ANY($1))`, names); err != nil {
			return fmt.Errorf("delete stale: %w", err)
		}
		return nil
	})
	if err != nil {
		return &domain.PersistenceError{Op: "save_states", Err: err}
	}
	return nil
}

// ---- SubscriberStore ----

func (s *Store) LoadSubscribers(ctx context.Context) (domain.Subscribers, error) {
	rows, err := s.pool.Query(ctx, `SELECT recipient, pending FROM subscribers ORDER BY recipient`)
	if err != nil {
		return domain.Subscribers{}, &domain.PersistenceError{Op: "load_subscribers", Err: err}
	}
	defer rows.Close()

	var out domain.Subscribers
	for rows.Next() {
		var (
			id      string
			pending bool
		)
		if err := rows.Scan(&id, &pending); err != nil {
			return domain.Subscribers{}, &domain.PersistenceError{Op: "load_subscribers", Err: fmt.Errorf("scan: %w", err)}
		}
		if pending {
			out.Pending = append(out.Pending, domain.RecipientID(id))
		} else {
			out.Subs = append(out.Subs, domain.RecipientID(id))
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Subscribers{}, &domain.PersistenceError{Op: "load_subscribers", Err: err}
	}
	return out, nil
}

func (s *Store) SaveSubscribers(ctx context.Context, subs domain.Subscribers) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM subscribers`); err != nil {
			return err
		}
		insert := func(ids []domain.RecipientID, pending bool) error {
			for _, id := range ids {
				if _, err := tx.Exec(ctx,
					`INSERT INTO subscribers (recipient, pending) VALUES ($1,$2)
					 ON CONFLICT (recipient) DO UPDATE SET pending=EXCLUDED.pending`,
					string(id), pending); err != nil {
					return fmt.Errorf("insert %q: %w", id, err)
				}
			}
			return nil
		}
		if err := insert(subs.Subs, false); err != nil {
			return err
		}
		return insert(subs.Pending, true)
	})
	if err != nil {
		return &domain.PersistenceError{Op: "save_subscribers", Err: err}
	}
	return nil
}

func (s *Store) RemoveSubscribers(ctx context.Context, ids []domain.RecipientID) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM subscribers WHERE pending = false AND recipient = ANY($1)`, keys); err != nil {
		return &domain.PersistenceError{Op: "remove_subscribers", Err: err}
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func stamp(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return domain.Stamp(*t)
}
