package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTask        NotificationType = "task"
	NotificationEmergency   NotificationType = "emergency"
	NotificationSystem      NotificationType = "system"
	NotificationMessage     NotificationType = "message"
	NotificationCompliance  NotificationType = "compliance"
	NotificationWeather     NotificationType = "weather"
	NotificationMaintenance NotificationType = "maintenance"
)

func ValidNotificationType(t NotificationType) bool {
	switch t {
	case NotificationTask, NotificationEmergency, NotificationSystem,
		NotificationMessage, NotificationCompliance, NotificationWeather,
		NotificationMaintenance:
		return true
	}
	return false
}

// NotificationAction is a tappable action attached to a notification.
type NotificationAction struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Route string `json:"route,omitempty"`
}

// Notification is an outbound alert. Delivered means at least the enabled
// channel set has been attempted; it is not a per-channel acknowledgement.
// Read is tracked independently of Delivered.
type Notification struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	Type      NotificationType `db:"type" json:"type"`
	Priority  Priority         `db:"priority" json:"priority"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Data      json.RawMessage  `db:"data" json:"data,omitempty"`
	UserID    string           `db:"user_id" json:"user_id"`
	UserRole  string           `db:"user_role" json:"user_role"`
	Timestamp time.Time        `db:"timestamp" json:"timestamp"`
	Read      bool             `db:"read" json:"read"`
	Delivered bool             `db:"delivered" json:"delivered"`
	ExpiresAt *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
	Actions   json.RawMessage  `db:"actions" json:"actions,omitempty"`
	Category  *string          `db:"category" json:"category,omitempty"`
	Sound     bool             `db:"sound" json:"sound"`
	Vibration bool             `db:"vibration" json:"vibration"`
	Badge     bool             `db:"badge" json:"badge"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the notification's TTL has lapsed.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}
