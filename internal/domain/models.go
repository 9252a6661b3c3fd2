package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusUp      Status = "UP"
	StatusDown    Status = "DOWN"
)

func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusUnknown, "":
		return StatusUnknown, nil
	case StatusUp:
		return StatusUp, nil
	case StatusDown:
		return StatusDown, nil
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", s)
}

// Target is a monitored endpoint. Cooldown is nil when the target relies on
// the process-wide default; an explicit zero disables the cooldown.
type Target struct {
	Name     string         `json:"name"`
	Host     string         `json:"host"`
	Cooldown *time.Duration `json:"cooldown,omitempty"`
}

// WithCooldown returns a copy of t with its own cooldown.
func (t Target) WithCooldown(d time.Duration) Target {
	t.Cooldown = &d
	return t
}

// EffectiveCooldown returns the target's cooldown or def when unset.
func (t Target) EffectiveCooldown(def time.Duration) time.Duration {
	if t.Cooldown != nil {
		return *t.Cooldown
	}
	return def
}

// Settings is the process-wide config snapshot read at load/reload time.
type Settings struct {
	PollInterval     time.Duration
	FailThreshold    int
	RecoverThreshold int
	DefaultCooldown  time.Duration
}

// TargetState is the per-target liveness record. Timestamps are kept at
// second precision (see Stamp) so every store round-trips them exactly.
type TargetState struct {
	Status               Status
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastAlert            time.Time
	LastUp               time.Time
	LastDown             time.Time
}

func NewTargetState() TargetState {
	return TargetState{Status: StatusUnknown}
}

// Validate rejects records that could not have been produced by the state machine.
func (s TargetState) Validate() error {
	switch s.Status {
	case StatusUnknown, StatusUp, StatusDown:
	default:
		return fmt.Errorf("invalid status %q", s.Status)
	}
	if s.ConsecutiveFailures < 0 || s.ConsecutiveSuccesses < 0 {
		return fmt.Errorf("negative counters fails=%d succ=%d", s.ConsecutiveFailures, s.ConsecutiveSuccesses)
	}
	if s.ConsecutiveFailures > 0 && s.ConsecutiveSuccesses > 0 {
		return fmt.Errorf("both counters nonzero fails=%d succ=%d", s.ConsecutiveFailures, s.ConsecutiveSuccesses)
	}
	return nil
}

// Stamp normalizes a wall-clock instant to what the stores persist.
func Stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Second)
}

// UnixOrZero converts a stored unix-seconds value back to a time; 0 is "never".
func UnixOrZero(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

// ToUnix is the inverse of UnixOrZero.
func ToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// RecipientID identifies a notification recipient. Its meaning belongs to the
// front-end (a Telegram chat id, a "slack:" webhook, ...).
type RecipientID string

// UnmarshalJSON also accepts bare numbers, which is how older subscriber files
// stored Telegram chat ids.
func (r *RecipientID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] != '"' {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("recipient id: %w", err)
		}
		*r = RecipientID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("recipient id: %w", err)
	}
	*r = RecipientID(s)
	return nil
}

// Subscribers is the persisted recipient document: approved recipients plus
// the front-end's pending-approval list.
type Subscribers struct {
	Subs    []RecipientID `json:"subs"`
	Pending []RecipientID `json:"pending"`
}

// Without returns a copy with the given recipients removed from Subs.
func (s Subscribers) Without(drop []RecipientID) Subscribers {
	gone := make(map[RecipientID]struct{}, len(drop))
	for _, d := range drop {
		gone[d] = struct{}{}
	}
	out := Subscribers{
		Subs:    make([]RecipientID, 0, len(s.Subs)),
		Pending: append([]RecipientID(nil), s.Pending...),
	}
	for _, r := range s.Subs {
		if _, ok := gone[r]; !ok {
			out.Subs = append(out.Subs, r)
		}
	}
	return out
}
