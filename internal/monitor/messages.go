package monitor

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/scheduler"
)

const (
	timeLayout       = "2006-01-02 15:04:05"
	testAlertMessage = "🔔 Test alert from the monitor. Delivery path OK."
)

func transitionMessage(t domain.Target, tr scheduler.Transition, loc *time.Location) string {
	name := html.EscapeString(t.Name)
	host := html.EscapeString(t.Host)
	at := tr.At.In(loc).Format(timeLayout)
	if tr.To == domain.StatusUp {
		return fmt.Sprintf("📷 <b>%s</b> back UP ✅\nHost: <code>%s</code>\nTime: %s", name, host, at)
	}
	return fmt.Sprintf("❌ ALERT <b>%s</b> DOWN\nHost: <code>%s</code>\nTime: %s", name, host, at)
}

func digestMessage(views []TargetView, now time.Time) string {
	var down, unknown []string
	for _, v := range views {
		switch v.Status {
		case domain.StatusDown:
			down = append(down, html.EscapeString(v.Name))
		case domain.StatusUnknown:
			unknown = append(unknown, html.EscapeString(v.Name))
		}
	}
	lines := []string{
		fmt.Sprintf("🫀 <b>Daily Heartbeat</b> (%s)", now.Format(timeLayout)),
		fmt.Sprintf("Monitor running. Total targets: %d", len(views)),
	}
	if len(down) > 0 {
		lines = append(lines, "❌ DOWN: "+strings.Join(down, ", "))
	}
	if len(unknown) > 0 {
		lines = append(lines, "❔ UNKNOWN: "+strings.Join(unknown, ", "))
	}
	if len(down) == 0 && len(unknown) == 0 {
		lines = append(lines, "✅ All targets UP.")
	}
	return strings.Join(lines, "\n")
}
