package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// Slack posts to incoming webhooks. A recipient "slack:https://hooks..."
// carries its own webhook; a bare "slack:" (or "slack:<label>") uses Webhook.
type Slack struct {
	Webhook string
	Client  *http.Client
}

func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

var slackMarkup = strings.NewReplacer("<b>", "*", "</b>", "*", "<code>", "`", "</code>", "`")

// slackText converts the Telegram HTML subset to Slack mrkdwn.
func slackText(s string) string {
	return html.UnescapeString(slackMarkup.Replace(s))
}

func (s *Slack) webhookFor(to domain.RecipientID) string {
	rest := strings.TrimPrefix(string(to), slackScheme)
	if strings.HasPrefix(rest, "https://") || strings.HasPrefix(rest, "http://") {
		return rest
	}
	return s.Webhook
}

func (s *Slack) Send(ctx context.Context, to domain.RecipientID, text string) error {
	if s == nil {
		return &domain.DeliveryError{Recipient: to, Err: ErrNoRoute}
	}
	url := s.webhookFor(to)
	if url == "" {
		return &domain.DeliveryError{Recipient: to, Err: ErrNoRoute}
	}
	body, _ := json.Marshal(slackPayload{Text: slackText(text)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &domain.DeliveryError{Recipient: to, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return &domain.DeliveryError{Recipient: to, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &domain.DeliveryError{Recipient: to, Err: fmt.Errorf("slack status %d", resp.StatusCode)}
	}
	return nil
}
