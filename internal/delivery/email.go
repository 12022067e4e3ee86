package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/briefcast-io/briefcast/internal/preferences"
	"github.com/briefcast-io/briefcast/internal/summarize"
)

// EmailTransport hands summaries to an external email gateway over HTTP.
// Email is a batch channel: suppressed during quiet hours, and the gateway
// confirms actual delivery asynchronously via the acknowledgement endpoint,
// so records stay in sent until the callback arrives.
type EmailTransport struct {
	endpoint string
	token    string
	client   *http.Client
}

var _ Transport = (*EmailTransport)(nil)

func NewEmailTransport(endpoint, token string) *EmailTransport {
	return &EmailTransport{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *EmailTransport) Name() string                     { return "email" }
func (t *EmailTransport) SuppressedDuringQuietHours() bool { return true }
func (t *EmailTransport) ConfirmsDelivery() bool           { return true }

type emailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Ref     string `json:"ref"` // delivery correlation id echoed back in the ack callback
}

// Send posts the summary to the gateway.
func (t *EmailTransport) Send(ctx context.Context, prefs preferences.UserPreferences, s *summarize.Summary) error {
	if t.endpoint == "" {
		return fmt.Errorf("email transport misconfigured: missing gateway endpoint")
	}
	if prefs.Email == "" {
		return fmt.Errorf("recipient %s has no email address", prefs.RecipientID)
	}

	body, err := json.Marshal(emailRequest{
		To:      prefs.Email,
		Subject: s.Headline,
		Body:    formatMessage(s),
		Ref:     s.SummaryID,
	})
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("email gateway %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	return nil
}
