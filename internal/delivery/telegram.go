package delivery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/briefcast-io/briefcast/internal/preferences"
	"github.com/briefcast-io/briefcast/internal/summarize"
)

// TelegramTransport sends summaries via the Telegram bot API. Telegram is a
// realtime channel: recipients who keep it configured receive digests even
// during quiet hours, and a 200 from the API is the acknowledgement.
type TelegramTransport struct {
	botToken string
	baseURL  string
	client   *http.Client
}

var _ Transport = (*TelegramTransport)(nil)

// NewTelegramTransport registers the bot token. baseURL overrides the
// Telegram API host for tests; empty means the production API.
func NewTelegramTransport(botToken, baseURL string) *TelegramTransport {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramTransport{
		botToken: botToken,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (t *TelegramTransport) Name() string                     { return "telegram" }
func (t *TelegramTransport) SuppressedDuringQuietHours() bool { return false }
func (t *TelegramTransport) ConfirmsDelivery() bool           { return false }

// Send posts the summary as a message to the recipient's chat.
func (t *TelegramTransport) Send(ctx context.Context, prefs preferences.UserPreferences, s *summarize.Summary) error {
	if t.botToken == "" {
		return fmt.Errorf("telegram transport misconfigured: missing bot token")
	}
	if prefs.TelegramChatID == "" {
		return fmt.Errorf("recipient %s has no telegram chat id", prefs.RecipientID)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	form := url.Values{}
	form.Set("chat_id", prefs.TelegramChatID)
	form.Set("text", formatMessage(s))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	return nil
}
