package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cyntientops/field-sync/internal/model"
)

type pushMessage struct {
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Priority  model.Priority  `json:"priority"`
	Category  *string         `json:"category,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Sound     bool            `json:"sound"`
	Vibration bool            `json:"vibration"`
	Badge     bool            `json:"badge"`
}

// PushChannel posts to the push gateway, which fans out to the user's
// registered devices.
type PushChannel struct {
	gatewayURL string
	apiKey     string
	client     *http.Client
}

func NewPushChannel(gatewayURL, apiKey string, client *http.Client) *PushChannel {
	if client == nil {
		client = http.DefaultClient
	}
	return &PushChannel{gatewayURL: gatewayURL, apiKey: apiKey, client: client}
}

func (c *PushChannel) Name() string { return model.ChannelPush }

func (c *PushChannel) Send(ctx context.Context, n *model.Notification) error {
	payload, err := json.Marshal(pushMessage{
		UserID:    n.UserID,
		Title:     n.Title,
		Body:      n.Message,
		Priority:  n.Priority,
		Category:  n.Category,
		Data:      n.Data,
		Sound:     n.Sound,
		Vibration: n.Vibration,
		Badge:     n.Badge,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}
	return nil
}
