package model

import (
	"time"
)

// Delivery channel names. These key the per-channel enable map and the
// channel registry.
const (
	ChannelPush  = "push"
	ChannelInApp = "in_app"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// QuietHours is a local-time window during which only critical notifications
// deliver immediately. Start/End are "HH:MM"; windows may span midnight.
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// NotificationPreferences is the per-user delivery policy consulted by the
// preference gate before any channel is attempted.
type NotificationPreferences struct {
	UserID     string                    `json:"user_id"`
	UserRole   string                    `json:"user_role"`
	Enabled    bool                      `json:"enabled"`
	Types      map[NotificationType]bool `json:"types"`
	Priorities map[Priority]bool         `json:"priorities"`
	Channels   map[string]bool           `json:"channels"`
	QuietHours QuietHours                `json:"quiet_hours"`
	Sound      bool                      `json:"sound"`
	Vibration  bool                      `json:"vibration"`
	Badge      bool                      `json:"badge"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// DefaultPreferences is the documented fallback when no row is stored:
// everything enabled except email/SMS, quiet hours off.
func DefaultPreferences(userID, userRole string) *NotificationPreferences {
	return &NotificationPreferences{
		UserID:   userID,
		UserRole: userRole,
		Enabled:  true,
		Types: map[NotificationType]bool{
			NotificationTask:        true,
			NotificationEmergency:   true,
			NotificationSystem:      true,
			NotificationMessage:     true,
			NotificationCompliance:  true,
			NotificationWeather:     true,
			NotificationMaintenance: true,
		},
		Priorities: map[Priority]bool{
			PriorityLow:      true,
			PriorityMedium:   true,
			PriorityHigh:     true,
			PriorityCritical: true,
		},
		Channels: map[string]bool{
			ChannelPush:  true,
			ChannelInApp: true,
			ChannelEmail: false,
			ChannelSMS:   false,
		},
		QuietHours: QuietHours{Enabled: false},
		Sound:      true,
		Vibration:  true,
		Badge:      true,
	}
}
