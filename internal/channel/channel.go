package channel

import (
	"context"

	"github.com/cyntientops/field-sync/internal/model"
)

// Channel is a fire-and-forget delivery path for one notification. Send is
// an attempt, not an acknowledgement; callers treat errors as per-channel
// failures and continue with the remaining enabled channels.
type Channel interface {
	Name() string
	Send(ctx context.Context, n *model.Notification) error
}
