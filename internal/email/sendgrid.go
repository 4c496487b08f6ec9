package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/trailtours/apiserver/config"
)

const sendgridMailEndpoint = "https://api.sendgrid.com/v3/mail/send"

// SendGridSender delivers plain-text mail via the SendGrid v3 REST API.
type SendGridSender struct {
	apiKey    string
	fromEmail string
	fromName  string
	client    *http.Client
}

// NewSendGridSender constructs a sender from config.
func NewSendGridSender(cfg config.EmailConfig) *SendGridSender {
	return &SendGridSender{
		apiKey:    cfg.SendGridAPIKey,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		client:    http.DefaultClient,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	payload := sgMailPayload{
		Personalizations: []sgPersonalization{{
			To: []sgAddress{{Email: msg.To}},
		}},
		From:    sgAddress{Email: s.fromEmail, Name: s.fromName},
		Subject: msg.Subject,
		Content: []sgContent{{Type: "text/plain", Value: msg.Body}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SendGrid payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendgridMailEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create SendGrid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("SendGrid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SendGrid returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

type sgMailPayload struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}
