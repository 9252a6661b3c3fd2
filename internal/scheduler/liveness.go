package scheduler

import (
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// Thresholds are the hysteresis limits: how many consecutive results in one
// direction it takes to accept a status change.
type Thresholds struct {
	Fail    int
	Recover int
}

// Transition describes what one probe result did to a target.
type Transition struct {
	From  domain.Status
	To    domain.Status
	At    time.Time
	Alert bool // the change passed the cooldown gate
}

func (t Transition) Changed() bool { return t.From != t.To }

// Suppressed reports a status change that the cooldown kept quiet.
func (t Transition) Suppressed() bool { return t.Changed() && !t.Alert }

// Apply feeds one probe result into st and reports the resulting transition.
//
// UNKNOWN can only be left, never re-entered. A status change is always
// recorded (LastUp/LastDown included), but LastAlert only moves when the
// change actually alerts, so suppressed flaps do not extend the cooldown.
func Apply(st *domain.TargetState, ok bool, now time.Time, th Thresholds, cooldown time.Duration) Transition {
	prev := st.Status
	tr := Transition{From: prev, To: prev, At: now}

	if ok {
		st.ConsecutiveSuccesses++
		st.ConsecutiveFailures = 0
		if prev != domain.StatusUp && st.ConsecutiveSuccesses >= th.Recover {
			st.Status = domain.StatusUp
			st.LastUp = now
			tr.To = domain.StatusUp
		}
	} else {
		st.ConsecutiveFailures++
		st.ConsecutiveSuccesses = 0
		if prev != domain.StatusDown && st.ConsecutiveFailures >= th.Fail {
			st.Status = domain.StatusDown
			st.LastDown = now
			tr.To = domain.StatusDown
		}
	}

	if !tr.Changed() {
		return tr
	}
	if st.LastAlert.IsZero() || now.Sub(st.LastAlert) >= cooldown {
		tr.Alert = true
		st.LastAlert = now
	}
	return tr
}
