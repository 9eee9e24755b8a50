package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Mailer delivers account emails
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// sendGridEndpoint is a var so tests can point it at a local server
var sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

// SendGridMailer sends plain-text mail through the SendGrid v3 API
type SendGridMailer struct {
	apiKey string
	from   string
	client *http.Client
}

// NewSendGridMailer creates a SendGrid mailer
func NewSendGridMailer(apiKey, from string) *SendGridMailer {
	return &SendGridMailer{
		apiKey: apiKey,
		from:   from,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: to}}}},
		From:             sendGridAddress{Email: m.from, Name: "StudyForge"},
		Subject:          subject,
		Content:          []sendGridContent{{Type: "text/plain", Value: body}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendGridEndpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sendgrid rejected email (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// LogMailer writes emails to the log instead of sending them.
// Used when no SendGrid key is configured.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, to, subject, body string) error {
	log.Printf("📧 [MAIL] to=%s subject=%q\n%s", to, subject, body)
	return nil
}
