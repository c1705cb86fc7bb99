package channel

import (
	"context"
	"fmt"

	"github.com/cyntientops/field-sync/internal/model"
	"github.com/cyntientops/field-sync/pkg/messaging"
)

// InAppChannel broadcasts notifications to connected clients over the
// message broker; each user has a dedicated pub/sub channel.
type InAppChannel struct {
	broker messaging.Broker
}

func NewInAppChannel(broker messaging.Broker) *InAppChannel {
	return &InAppChannel{broker: broker}
}

func (c *InAppChannel) Name() string { return model.ChannelInApp }

func (c *InAppChannel) Send(ctx context.Context, n *model.Notification) error {
	topic := fmt.Sprintf("notifications:%s", n.UserID)
	if err := c.broker.Publish(ctx, topic, n); err != nil {
		return fmt.Errorf("failed to broadcast in-app notification: %w", err)
	}
	return nil
}
