// Package notify delivers alert text to subscribed recipients.
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// Sender delivers one message to one recipient. Text may carry the small
// HTML subset Telegram understands (<b>, <code>).
type Sender interface {
	Send(ctx context.Context, to domain.RecipientID, text string) error
}

type SenderFunc func(ctx context.Context, to domain.RecipientID, text string) error

func (f SenderFunc) Send(ctx context.Context, to domain.RecipientID, text string) error {
	return f(ctx, to, text)
}

const slackScheme = "slack:"

var ErrNoRoute = errors.New("no sender for recipient")

// Router picks the front-end from the recipient id: "slack:..." ids go to
// Slack, anything else (a bare chat id) to Telegram. A nil route fails the
// delivery so the recipient is eventually pruned.
type Router struct {
	Telegram Sender
	Slack    Sender
}

func (r Router) Send(ctx context.Context, to domain.RecipientID, text string) error {
	s := r.Telegram
	if strings.HasPrefix(string(to), slackScheme) {
		s = r.Slack
	}
	if s == nil {
		return &domain.DeliveryError{Recipient: to, Err: ErrNoRoute}
	}
	return s.Send(ctx, to, text)
}
