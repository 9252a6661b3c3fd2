package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

const DefaultTelegramAPI = "https://api.telegram.org"

// Telegram sends through the Bot API sendMessage method with HTML parse mode.
type Telegram struct {
	Token   string
	APIBase string
	Client  *http.Client
}

func NewTelegram(token, apiBase string) *Telegram {
	if token == "" {
		return nil
	}
	if apiBase == "" {
		apiBase = DefaultTelegramAPI
	}
	return &Telegram{
		Token:   token,
		APIBase: strings.TrimRight(apiBase, "/"),
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type tgSendMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type tgResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, to domain.RecipientID, text string) error {
	if t == nil {
		return &domain.DeliveryError{Recipient: to, Err: ErrNoRoute}
	}
	chat := strings.TrimPrefix(string(to), "telegram:")
	body, _ := json.Marshal(tgSendMessage{
		ChatID:                chat,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	url := t.APIBase + "/bot" + t.Token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &domain.DeliveryError{Recipient: to, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		// the request URL embeds the token; keep it out of logs
		return &domain.DeliveryError{Recipient: to, Err: redact(err, t.Token)}
	}
	defer resp.Body.Close()

	var tr tgResponse
	_ = json.NewDecoder(resp.Body).Decode(&tr)
	if resp.StatusCode/100 != 2 || !tr.OK {
		return &domain.DeliveryError{
			Recipient: to,
			Err:       fmt.Errorf("telegram status %d: %s", resp.StatusCode, tr.Description),
		}
	}
	return nil
}

func redact(err error, secret string) error {
	msg := err.Error()
	if secret == "" || !strings.Contains(msg, secret) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(msg, secret, "<token>"))
}
