package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cyntientops/field-sync/internal/model"
)

type PhoneResolver interface {
	PhoneFor(ctx context.Context, userID string) (string, error)
}

type smsMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// SMSChannel posts to the SMS gateway. Message bodies are truncated to a
// single segment; the title carries the context.
type SMSChannel struct {
	gatewayURL string
	apiKey     string
	client     *http.Client
	resolver   PhoneResolver
}

const smsMaxLen = 160

func NewSMSChannel(gatewayURL, apiKey string, client *http.Client, resolver PhoneResolver) *SMSChannel {
	if client == nil {
		client = http.DefaultClient
	}
	return &SMSChannel{gatewayURL: gatewayURL, apiKey: apiKey, client: client, resolver: resolver}
}

func (c *SMSChannel) Name() string { return model.ChannelSMS }

func (c *SMSChannel) Send(ctx context.Context, n *model.Notification) error {
	to, err := c.resolver.PhoneFor(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve phone for user %s: %w", n.UserID, err)
	}

	body := n.Title + ": " + n.Message
	if len(body) > smsMaxLen {
		body = body[:smsMaxLen]
	}

	payload, err := json.Marshal(smsMessage{To: to, Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal sms message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}
