// Package mailx delivers transactional email. Delivery is attempted once;
// callers surface failures to the user instead of retrying.
package mailx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

var ErrInvalidMessage = errors.New("mailx: message needs a recipient, subject and body")

// Message is a single email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string // optional
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" || m.Subject == "" || (m.Text == "" && m.HTML == "") {
		return ErrInvalidMessage
	}
	return nil
}

// Sender delivers a message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Console logs messages instead of sending them. It also keeps the sent
// messages so tests and local development can read the codes back.
type Console struct {
	Logger *slog.Logger

	mu   sync.Mutex
	sent []Message
}

func (c *Console) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email (not sent)", "to", msg.To, "subject", msg.Subject, "text", msg.Text)

	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

// Sent returns a copy of every message handed to Send.
func (c *Console) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

// Last returns the most recent message sent to addr.
func (c *Console) Last(addr string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if strings.EqualFold(c.sent[i].To, addr) {
			return c.sent[i], true
		}
	}
	return Message{}, false
}

const resendEndpoint = "https://api.resend.com/emails"

// Resend sends through the Resend HTTP API.
type Resend struct {
	APIKey string
	From   string

	// Endpoint and Client default to the public API and a 10s client.
	Endpoint string
	Client   *http.Client
}

type resendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

func (r *Resend) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	body, err := json.Marshal(resendRequest{
		From:    r.From,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("mailx: failed to marshal request: %w", err)
	}

	endpoint := r.Endpoint
	if endpoint == "" {
		endpoint = resendEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mailx: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("mailx: failed to send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mailx: resend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
