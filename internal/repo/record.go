package repo

import (
	"fmt"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// StateRecord is the on-disk shape of a TargetState, shared by the file and
// KV backends. Timestamps are unix seconds; 0 means never.
type StateRecord struct {
	Status      string `json:"status"`
	Fails       int    `json:"fails"`
	Succ        int    `json:"succ"`
	LastAlertTS int64  `json:"last_alert_ts"`
	LastUpTS    int64  `json:"last_up_ts"`
	LastDownTS  int64  `json:"last_down_ts"`
}

func ToRecord(s domain.TargetState) StateRecord {
	return StateRecord{
		Status:      string(s.Status),
		Fails:       s.ConsecutiveFailures,
		Succ:        s.ConsecutiveSuccesses,
		LastAlertTS: domain.ToUnix(s.LastAlert),
		LastUpTS:    domain.ToUnix(s.LastUp),
		LastDownTS:  domain.ToUnix(s.LastDown),
	}
}

// FromRecord converts and validates a stored record.
func FromRecord(r StateRecord) (domain.TargetState, error) {
	st, err := domain.ParseStatus(r.Status)
	if err != nil {
		return domain.TargetState{}, err
	}
	s := domain.TargetState{
		Status:               st,
		ConsecutiveFailures:  r.Fails,
		ConsecutiveSuccesses: r.Succ,
		LastAlert:            domain.UnixOrZero(r.LastAlertTS),
		LastUp:               domain.UnixOrZero(r.LastUpTS),
		LastDown:             domain.UnixOrZero(r.LastDownTS),
	}
	if err := s.Validate(); err != nil {
		return domain.TargetState{}, fmt.Errorf("invalid state: %w", err)
	}
	return s, nil
}
